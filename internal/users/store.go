// Package users keeps user accounts and runs registration, login and the
// e-mailed one-time-code password reset.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("user already exists")
)

// User is one account. Email is stored lower-cased and is unique.
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;default:user"`

	ResetOTPHash     string
	ResetOTPExpires  *time.Time
	ResetOTPAttempts int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) hasPendingOTP() bool {
	return u.ResetOTPHash != "" && u.ResetOTPExpires != nil
}

func (u *User) clearOTP() {
	u.ResetOTPHash = ""
	u.ResetOTPExpires = nil
	u.ResetOTPAttempts = 0
}

// Open connects to dsn and migrates the schema. postgres:// and
// postgresql:// URLs select PostgreSQL; anything else is a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
		driver = "postgres"
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s user database: %w", driver, err)
	}

	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate user table: %w", err)
	}

	log.Debug().Str("driver", driver).Msg("User database ready")
	return db, nil
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByEmail looks email up case-insensitively.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *User) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Save writes every field of u, zero values included.
func (s *Store) Save(ctx context.Context, u *User) error {
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
