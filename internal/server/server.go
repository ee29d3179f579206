// Package server exposes the battery log over HTTP.
package server

import (
	"slices"
	"strings"
	"time"

	"battery_log/internal/auth"
	"battery_log/internal/cycles"
	"battery_log/internal/query"
	"battery_log/internal/submission"
	"battery_log/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const (
	HealthMessage = "Battery Log Backend is Running"
	bodyLimit     = 5 * 1024 * 1024
)

// Deps are the services behind the routes.
type Deps struct {
	Issuer      *auth.Issuer
	Users       *users.Service
	Submissions *submission.Service
	Cycles      *cycles.Counter
	Query       *query.Service
}

type Options struct {
	CORSOrigins []string
	UploadsDir  string
	// OTPRequestsPerHour caps forgot-password calls per client IP; 0 disables.
	OTPRequestsPerHour int
	// LimiterStorage shares the cap between instances; nil keeps it in memory.
	LimiterStorage fiber.Storage
}

// New builds the application with every route mounted.
func New(deps Deps, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "battery-log",
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestLogger())
	app.Use(corsMiddleware(opts.CORSOrigins))

	if opts.UploadsDir != "" {
		app.Static("/uploads", opts.UploadsDir)
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(HealthMessage)
	})

	ah := &authHandler{users: deps.Users}
	authGroup := app.Group("/auth")
	authGroup.Post("/register", withFallback("Server error during registration"), ah.register)
	authGroup.Post("/login", withFallback("Server error during login"), ah.login)
	authGroup.Post("/forgot-password", otpLimiter(opts), ah.forgotPassword)
	authGroup.Post("/reset-password", withFallback("Failed to reset password"), ah.resetPassword)

	requireAuth := auth.RequireAuth(deps.Issuer)

	rh := &rowsHandler{submissions: deps.Submissions, cycles: deps.Cycles}
	rows := app.Group("/rows", requireAuth)
	rows.Post("/", withFallback("Failed to add row"), rh.submit)
	rows.Get("/cycles", withFallback("Failed to count cycles"), rh.countCycles)

	adm := &adminHandler{query: deps.Query}
	admin := app.Group("/admin", requireAuth, auth.RequireAdmin())
	admin.Get("/rows", withFallback("Failed to fetch rows"), adm.list)
	admin.Get("/rows/search", withFallback("Failed to search rows"), adm.search)
	admin.Get("/rows/by-date", withFallback("Failed to fetch rows"), adm.byDate)
	admin.Get("/rows/export", withFallback("Failed to export CSV"), adm.export)

	return app
}

// corsMiddleware allows credentials for an explicit origin list. With no list
// (or a wildcard) any origin is accepted without credentials.
func corsMiddleware(origins []string) fiber.Handler {
	allow := strings.Join(origins, ",")
	wildcard := allow == "" || slices.Contains(origins, "*")
	if wildcard {
		allow = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins:     allow,
		AllowCredentials: !wildcard,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	})
}

func otpLimiter(opts Options) fiber.Handler {
	if opts.OTPRequestsPerHour <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        opts.OTPRequestsPerHour,
		Expiration: time.Hour,
		Storage:    opts.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"message": "Too many OTP requests from this IP, please try again later",
			})
		},
	})
}
