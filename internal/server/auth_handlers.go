package server

import (
	"battery_log/internal/apperr"
	"battery_log/internal/users"

	"github.com/gofiber/fiber/v2"
)

type authHandler struct {
	users *users.Service
}

// bind decodes a JSON body into out. An empty body leaves out zero so the
// service reports which fields are missing.
func bind(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperr.E(apperr.KindValidation, "Failed to parse request body", err)
	}
	return nil
}

func (h *authHandler) register(c *fiber.Ctx) error {
	var req users.Registration
	if err := bind(c, &req); err != nil {
		return err
	}
	if _, err := h.users.Register(c.UserContext(), req); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "User registered successfully"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *authHandler) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.users.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"token":   res.Token,
		"role":    res.Role,
		"message": "Login successful",
	})
}

func (h *authHandler) forgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.users.RequestReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": users.ResetRequestedMessage})
}

func (h *authHandler) resetPassword(c *fiber.Ctx) error {
	var req users.PasswordReset
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.users.ResetPassword(c.UserContext(), req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password updated successfully"})
}
