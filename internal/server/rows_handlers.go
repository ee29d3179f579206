package server

import (
	"strings"

	"battery_log/internal/apperr"
	"battery_log/internal/auth"
	"battery_log/internal/cycles"
	"battery_log/internal/schema"
	"battery_log/internal/submission"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type rowsHandler struct {
	submissions *submission.Service
	cycles      *cycles.Counter
}

func (h *rowsHandler) submit(c *fiber.Ctx) error {
	body := map[string]any{}
	if err := bind(c, &body); err != nil {
		return err
	}

	sub := schema.ParseSubmission(body)
	res, err := h.submissions.Submit(c.UserContext(), sub)
	if err != nil {
		return err
	}

	ev := log.Info().Interface("cycles", res.Cycles)
	if claims := auth.ClaimsFrom(c); claims != nil {
		ev = ev.Str("user_id", claims.ID)
	}
	ev.Msg("Row submitted")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Submitted",
		"cycles":  res.Cycles,
	})
}

func (h *rowsHandler) countCycles(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Query("batteryId"))
	if id == "" {
		return apperr.Validation("batteryId query param required")
	}
	n, err := h.cycles.Count(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"batteryId": id, "cycles": n})
}
