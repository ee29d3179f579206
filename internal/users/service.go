package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"battery_log/internal/apperr"
	"battery_log/internal/auth"
	"battery_log/internal/mailer"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost = 10

	DefaultOTPTTL         = 15 * time.Minute
	DefaultOTPMaxAttempts = 5

	// ResetRequestedMessage is returned for every accepted reset request,
	// whether or not the account exists.
	ResetRequestedMessage = "If an account with that email exists, an OTP has been sent."
)

// Mailer sends one message.
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type Options struct {
	OTPTTL         time.Duration
	OTPMaxAttempts int
}

type Service struct {
	store  *Store
	issuer *auth.Issuer
	mail   Mailer
	opts   Options

	now     func() time.Time
	makeOTP func() (string, error)
}

func NewService(store *Store, issuer *auth.Issuer, mail Mailer, opts Options) *Service {
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = DefaultOTPTTL
	}
	if opts.OTPMaxAttempts <= 0 {
		opts.OTPMaxAttempts = DefaultOTPMaxAttempts
	}
	return &Service{
		store:   store,
		issuer:  issuer,
		mail:    mail,
		opts:    opts,
		now:     time.Now,
		makeOTP: newOTP,
	}
}

type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates a user. Role defaults to user; only user and admin exist.
func (s *Service) Register(ctx context.Context, r Registration) (*User, error) {
	name := strings.TrimSpace(r.Name)
	email := NormalizeEmail(r.Email)
	if name == "" || email == "" || r.Password == "" {
		return nil, apperr.Validation("All fields are required")
	}

	role := strings.ToLower(strings.TrimSpace(r.Role))
	switch role {
	case "":
		role = auth.RoleUser
	case auth.RoleUser, auth.RoleAdmin:
	default:
		return nil, apperr.Validation(fmt.Sprintf("Unknown role: %s", r.Role))
	}

	hash, err := hashPassword(r.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apperr.E(apperr.KindConflict, "User already exists", err)
		}
		return nil, err
	}

	log.Info().Str("user_id", u.ID).Str("role", u.Role).Msg("Registered user")
	return u, nil
}

type LoginResult struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Login checks credentials and issues a token. Unknown email and wrong
// password fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if NormalizeEmail(email) == "" || password == "" {
		return LoginResult{}, apperr.Validation("Email and password are required")
	}

	u, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return LoginResult{}, apperr.Auth("Invalid credentials")
	}
	if err != nil {
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		log.Debug().Str("user_id", u.ID).Msg("Password mismatch")
		return LoginResult{}, apperr.Auth("Invalid credentials")
	}

	token, err := s.issuer.Issue(u.ID, u.Role, u.Email)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, Role: u.Role}, nil
}

// RequestReset e-mails a fresh one-time code. An unknown email succeeds
// silently so accounts cannot be enumerated.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	if NormalizeEmail(email) == "" {
		return apperr.Validation("Email is required")
	}

	u, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		log.Debug().Msg("Reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	code, err := s.makeOTP()
	if err != nil {
		return err
	}
	expires := s.now().Add(s.opts.OTPTTL)
	u.ResetOTPHash = hashOTP(code)
	u.ResetOTPExpires = &expires
	u.ResetOTPAttempts = 0
	if err := s.store.Save(ctx, u); err != nil {
		return err
	}

	if err := s.mail.Send(ctx, mailer.OTPMessage(u.Email, u.Name, code, s.opts.OTPTTL)); err != nil {
		log.Warn().Err(err).Str("user_id", u.ID).Msg("Failed to send OTP, clearing it")
		u.clearOTP()
		if saveErr := s.store.Save(ctx, u); saveErr != nil {
			log.Error().Err(saveErr).Str("user_id", u.ID).Msg("Failed to clear OTP")
		}
		return apperr.E(apperr.KindInternal, "Failed to send OTP email", err)
	}

	log.Info().Str("user_id", u.ID).Time("expires", expires).Msg("Sent password reset OTP")
	return nil
}

type PasswordReset struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword checks the code and replaces the password. Expired codes and
// codes past the attempt limit are cleared; a wrong code costs one attempt.
func (s *Service) ResetPassword(ctx context.Context, r PasswordReset) error {
	if NormalizeEmail(r.Email) == "" || strings.TrimSpace(r.OTP) == "" || r.NewPassword == "" {
		return apperr.Validation("Email, otp and new password are required")
	}

	u, err := s.store.FindByEmail(ctx, r.Email)
	if errors.Is(err, ErrNotFound) {
		return apperr.Validation("Invalid OTP or email")
	}
	if err != nil {
		return err
	}

	if !u.hasPendingOTP() {
		return apperr.Validation("No OTP requested or OTP expired")
	}

	if s.now().After(*u.ResetOTPExpires) {
		u.clearOTP()
		s.saveQuietly(ctx, u)
		return apperr.Validation("OTP expired")
	}

	if u.ResetOTPAttempts >= s.opts.OTPMaxAttempts {
		u.clearOTP()
		s.saveQuietly(ctx, u)
		return apperr.E(apperr.KindRateLimited, "Too many incorrect OTP attempts. Request a new code.", nil)
	}

	if hashOTP(r.OTP) != u.ResetOTPHash {
		u.ResetOTPAttempts++
		s.saveQuietly(ctx, u)
		log.Debug().Str("user_id", u.ID).Int("attempts", u.ResetOTPAttempts).Msg("Wrong OTP")
		return apperr.Validation("Invalid OTP")
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(r.NewPassword)) == nil {
		return apperr.Validation("New password cannot be the same as the previous password.")
	}

	hash, err := hashPassword(r.NewPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.clearOTP()
	if err := s.store.Save(ctx, u); err != nil {
		return err
	}

	if err := s.mail.Send(ctx, mailer.PasswordChangedMessage(u.Email, u.Name)); err != nil {
		log.Warn().Err(err).Str("user_id", u.ID).Msg("Failed to send password change confirmation")
	}

	log.Info().Str("user_id", u.ID).Msg("Password reset")
	return nil
}

func (s *Service) saveQuietly(ctx context.Context, u *User) {
	if err := s.store.Save(ctx, u); err != nil {
		log.Warn().Err(err).Str("user_id", u.ID).Msg("Failed to update OTP state")
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
