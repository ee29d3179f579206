package app

import (
	"context"
	"fmt"

	"battery_log/internal/auth"
	"battery_log/internal/mailer"
	"battery_log/internal/ratelimit"
	"battery_log/internal/sheets"
	"battery_log/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Clients holds the long-lived dependencies the commands share.
type Clients struct {
	Rows   *sheets.Client
	Mailer *mailer.Client
	Issuer *auth.Issuer
	Users  *users.Service
	// LimiterStorage is nil when no shared store is configured; the limiter
	// then counts in process memory.
	LimiterStorage fiber.Storage

	closers []func() error
}

// InitializeClients connects everything cfg describes. The user database and
// the token issuer are required; the sheet, mail and redis clients degrade
// with a warning.
func InitializeClients(ctx context.Context, cfg Config) (*Clients, error) {
	log.Debug().Msg("Initializing clients")

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return nil, err
	}

	db, err := users.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}

	c := &Clients{
		Rows:    sheets.NewClient(ctx, cfg.Sheets),
		Mailer:  mailer.NewClient(cfg.Mail),
		Issuer:  issuer,
		closers: []func() error{sqlDB.Close},
	}
	c.Users = users.NewService(users.NewStore(db), issuer, c.Mailer, users.Options{
		OTPTTL:         cfg.OTPTTL,
		OTPMaxAttempts: cfg.OTPMaxAttempts,
	})

	if cfg.Redis.Addr != "" {
		storage, err := ratelimit.NewRedisStorage(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, rate limiting per process")
		} else {
			c.LimiterStorage = storage
			c.closers = append(c.closers, storage.Close)
		}
	}

	log.Debug().Msg("Clients initialized successfully")
	return c, nil
}

// Close releases connections in reverse order of creation.
func (c *Clients) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close client")
		}
	}
}
