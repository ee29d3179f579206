package server

import (
	"errors"
	"time"

	"battery_log/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// errorHandler turns every returned error into {"message": ...}. Store and
// internal failures are reported with the route's fallback text when it has one.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"message": fiberErr.Message})
	}

	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	routeFallback, _ := c.Locals(fallbackKey).(string)
	message := apperr.MessageOf(err, "Server error")
	if routeFallback != "" && (kind == apperr.KindStoreUnavailable || kind == apperr.KindInternal) {
		message = routeFallback
	}

	if status >= fiber.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("kind", string(kind)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("Request failed")
	}

	return c.Status(status).JSON(fiber.Map{"message": message})
}

const fallbackKey = "server.fallback"

// withFallback sets the message shown for unclassified failures of one route.
func withFallback(message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(fallbackKey, message)
		return c.Next()
	}
}

// requestLogger writes one access log line per request.
func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		chainErr := c.Next()
		if chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		level := zerolog.InfoLevel
		switch {
		case status >= fiber.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status >= fiber.StatusBadRequest:
			level = zerolog.WarnLevel
		}

		log.WithLevel(level).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.IP()).
			Msg("Request completed")
		return nil
	}
}
