package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"battery_log/internal/apperr"
	"battery_log/internal/auth"
	"battery_log/internal/mailer"
	"battery_log/internal/ratelimit"
	"battery_log/internal/sheets"
	"battery_log/internal/users"

	"github.com/rs/zerolog/log"
)

// Config is everything the server reads from the environment.
type Config struct {
	Port        string
	Environment string

	Sheets sheets.Config
	Mail   mailer.Config
	Redis  ratelimit.Options

	JWTSecret string
	JWTTTL    time.Duration

	DatabaseURL string
	Admin       users.AdminSeed

	OTPTTL                time.Duration
	OTPMaxAttempts        int
	OTPMaxRequestsPerHour int

	CORSOrigins []string
	UploadsDir  string
}

// LoadConfig reads the environment. Only a missing JWT secret is an error;
// every other gap has a default or disables the feature that needs it.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:        GetEnvWithDefault("PORT", "5000"),
		Environment: GetEnvWithDefault("ENV", "development"),
		Sheets: sheets.Config{
			SpreadsheetID:   firstEnv("SHEET_ID", "SPREADSHEET_ID"),
			SheetName:       GetEnvWithDefault("SHEET_NAME", sheets.DefaultSheetName),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			ClientEmail:     os.Getenv("GOOGLE_CLIENT_EMAIL"),
			PrivateKey:      os.Getenv("GOOGLE_PRIVATE_KEY"),
		},
		Mail: mailer.Config{
			APIKey:    os.Getenv("SENDGRID_API_KEY"),
			FromEmail: os.Getenv("EMAIL_FROM"),
			FromName:  GetEnvWithDefault("EMAIL_FROM_NAME", mailer.DefaultFromName),
		},
		Redis: ratelimit.Options{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       GetEnvInt("REDIS_DB", 0),
		},
		JWTSecret:   firstEnv("JWT_SECRET", "JWT_SECRET_KEY", "JWT_KEY"),
		JWTTTL:      GetEnvDuration("JWT_EXPIRES_IN", auth.DefaultTTL),
		DatabaseURL: GetEnvWithDefault("DATABASE_URL", "battery_log.db"),
		Admin: users.AdminSeed{
			Email:    GetEnvWithDefault("ADMIN_EMAIL", users.DefaultAdminEmail),
			Password: GetEnvWithDefault("ADMIN_PASS", users.DefaultAdminPassword),
			Name:     GetEnvWithDefault("ADMIN_NAME", users.DefaultAdminName),
		},
		OTPTTL:                time.Duration(GetEnvInt("OTP_EXPIRES_MIN", 15)) * time.Minute,
		OTPMaxAttempts:        GetEnvInt("OTP_MAX_ATTEMPTS", users.DefaultOTPMaxAttempts),
		OTPMaxRequestsPerHour: GetEnvInt("OTP_MAX_REQUESTS_PER_HOUR", 5),
		CORSOrigins:           splitList(GetEnvWithDefault("CORS_ORIGINS", "http://localhost:5173")),
		UploadsDir:            GetEnvWithDefault("UPLOADS_DIR", "uploads"),
	}

	if cfg.JWTSecret == "" {
		return cfg, apperr.NotConfigured("JWT_SECRET (or JWT_SECRET_KEY, JWT_KEY) must be set")
	}
	return cfg, nil
}

// GetEnvWithDefault fetches an environment variable with a default fallback.
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt parses an integer variable, falling back on absence or garbage.
func GetEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Int("default", defaultValue).Msg("Invalid integer, using default")
		return defaultValue
	}
	return n
}

// GetEnvDuration parses a Go duration ("168h"). A bare number of days with a
// "d" suffix ("7d") is accepted too.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
