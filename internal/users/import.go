package users

import (
	"context"
	"errors"
	"strings"

	"battery_log/internal/auth"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAdminEmail    = "admin@test.com"
	DefaultAdminPassword = "123456"
	DefaultAdminName     = "Default Admin"

	defaultImportName = "Unnamed"
)

type AdminSeed struct {
	Email    string
	Password string
	Name     string
}

// SeedAdmin makes sure an admin account exists for seed.Email. It returns
// false when the account was already there.
func (s *Service) SeedAdmin(ctx context.Context, seed AdminSeed) (bool, error) {
	if seed.Email == "" {
		seed.Email = DefaultAdminEmail
	}
	if seed.Name == "" {
		seed.Name = DefaultAdminName
	}
	if seed.Password == "" {
		seed.Password = DefaultAdminPassword
	}
	if seed.Password == DefaultAdminPassword {
		log.Warn().Str("email", seed.Email).Msg("Seeding admin with the default password, set ADMIN_PASS")
	}

	existing, err := s.store.FindByEmail(ctx, seed.Email)
	switch {
	case err == nil:
		if existing.Role != auth.RoleAdmin {
			log.Warn().Str("email", existing.Email).Msg("Seed admin email belongs to a non-admin user, leaving it unchanged")
		} else {
			log.Debug().Str("email", existing.Email).Msg("Admin already exists")
		}
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, err
	}

	hash, err := hashPassword(seed.Password)
	if err != nil {
		return false, err
	}
	u := &User{
		ID:           uuid.NewString(),
		Name:         seed.Name,
		Email:        NormalizeEmail(seed.Email),
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return false, err
	}

	log.Info().Str("email", u.Email).Msg("Seeded admin user")
	return true, nil
}

// ImportRecord is one account in a migration file. Password may be plain text
// or an existing bcrypt hash.
type ImportRecord struct {
	Name     string `json:"name" yaml:"name"`
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
	Role     string `json:"role" yaml:"role"`
}

type ImportSummary struct {
	Created int
	Skipped int
}

// Import adds accounts that do not exist yet. Records without an email or a
// password are skipped, as are emails already registered.
func (s *Service) Import(ctx context.Context, records []ImportRecord) (ImportSummary, error) {
	var sum ImportSummary
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		email := NormalizeEmail(rec.Email)
		if email == "" || rec.Password == "" {
			log.Warn().Int("index", i).Msg("Skipping import record without email or password")
			sum.Skipped++
			continue
		}

		_, err := s.store.FindByEmail(ctx, email)
		if err == nil {
			log.Debug().Str("email", email).Msg("Skipping existing user")
			sum.Skipped++
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return sum, err
		}

		hash := rec.Password
		if !isBcryptHash(hash) {
			if hash, err = hashPassword(rec.Password); err != nil {
				return sum, err
			}
		}

		name := strings.TrimSpace(rec.Name)
		if name == "" {
			name = defaultImportName
		}
		role := strings.ToLower(strings.TrimSpace(rec.Role))
		if role != auth.RoleAdmin {
			role = auth.RoleUser
		}

		u := &User{ID: uuid.NewString(), Name: name, Email: email, PasswordHash: hash, Role: role}
		if err := s.store.Create(ctx, u); err != nil {
			return sum, err
		}
		sum.Created++
	}

	log.Info().Int("created", sum.Created).Int("skipped", sum.Skipped).Msg("Imported users")
	return sum, nil
}

func isBcryptHash(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
