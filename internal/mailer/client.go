// Package mailer delivers transactional e-mail through the SendGrid v3 API.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"battery_log/internal/apperr"
	"battery_log/internal/config"
	"battery_log/internal/retry"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/rest"
	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	DefaultFromName = "Battery Log"
	sendEndpoint    = "/v3/mail/send"

	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

type Config struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Host overrides the API host, e.g. for a local fake.
	Host string
}

// Message is one e-mail to one recipient.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

type Client struct {
	cfg     Config
	enabled bool
	retry   retry.Config

	mutex sync.Mutex
	// Circuit breaker state
	failures    int
	lastFailure time.Time
	circuitOpen bool
	// Metrics
	totalSent    int64
	totalFailed  int64
	totalRetries int64
}

// Metrics is a snapshot of the client's delivery counters.
type Metrics struct {
	Sent    int64
	Failed  int64
	Retries int64
}

type MailError struct {
	Type       string
	StatusCode int
	Underlying error
}

func (e *MailError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("mail delivery failed [%s] status %d: %v", e.Type, e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("mail delivery failed [%s]: %v", e.Type, e.Underlying)
}

func (e *MailError) Unwrap() error {
	return e.Underlying
}

func (e *MailError) IsRetryable() bool {
	switch e.Type {
	case "network", "server", "rate_limit":
		return true
	case "auth", "client", "circuit_open":
		return false
	default:
		return e.StatusCode >= 500
	}
}

// NewClient returns a client for cfg. Without an API key or a sender address
// the client is disabled and every send fails.
func NewClient(cfg Config) *Client {
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	c := &Client{
		cfg:     cfg,
		enabled: cfg.APIKey != "" && cfg.FromEmail != "",
		retry:   config.DefaultResilienceConfig.MailSend,
	}
	c.retry.Retryable = isRetryable
	if !c.enabled {
		log.Warn().Msg("SENDGRID_API_KEY or EMAIL_FROM not set, e-mail delivery disabled")
	}
	return c
}

// WithRetry replaces the retry policy used for sends.
func (c *Client) WithRetry(cfg retry.Config) *Client {
	c.retry = cfg
	c.retry.Retryable = isRetryable
	return c
}

func (c *Client) Enabled() bool {
	return c.enabled
}

// Send delivers msg, retrying transient failures.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.enabled {
		return apperr.NotConfigured("email delivery is not configured")
	}

	if c.isCircuitOpen() {
		log.Warn().Str("to", msg.ToEmail).Msg("Circuit breaker open, skipping e-mail")
		return &MailError{Type: "circuit_open", Underlying: errors.New("circuit breaker is open")}
	}

	attempt := 0
	_, err := retry.WithRetry(ctx, c.retry, func(ctx context.Context) (struct{}, error) {
		attempt++
		if attempt > 1 {
			c.incrementRetries()
		}
		return struct{}{}, c.sendOnce(ctx, msg, attempt)
	})
	if err != nil {
		c.recordFailure()
		log.Warn().
			Err(err).
			Str("to", msg.ToEmail).
			Str("subject", msg.Subject).
			Int("attempts", attempt).
			Msg("E-mail delivery failed")
		return err
	}

	c.recordSuccess()
	log.Info().
		Str("to", msg.ToEmail).
		Str("subject", msg.Subject).
		Msg("E-mail sent")
	return nil
}

func (c *Client) sendOnce(ctx context.Context, msg Message, attempt int) error {
	from := mail.NewEmail(c.cfg.FromName, c.cfg.FromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	req := sendgrid.GetRequest(c.cfg.APIKey, sendEndpoint, c.cfg.Host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(m)

	log.Debug().
		Str("to", msg.ToEmail).
		Int("attempt", attempt).
		Msg("Sending e-mail")

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return &MailError{Type: "network", Underlying: err}
	}

	if resp.StatusCode >= 400 {
		return &MailError{
			Type:       categorizeHTTPError(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Underlying: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Body),
		}
	}
	return nil
}

func isRetryable(err error) bool {
	var mailErr *MailError
	if errors.As(err, &mailErr) {
		return mailErr.IsRetryable()
	}
	return !errors.Is(err, context.Canceled)
}

func categorizeHTTPError(statusCode int) string {
	switch {
	case statusCode == 401 || statusCode == 403:
		return "auth"
	case statusCode == 429:
		return "rate_limit"
	case statusCode >= 400 && statusCode < 500:
		return "client"
	case statusCode >= 500:
		return "server"
	default:
		return "unknown"
	}
}

// Circuit breaker and metrics helpers

func (c *Client) isCircuitOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.circuitOpen {
		return false
	}

	// half-open: let the next send through after the cooldown
	if time.Since(c.lastFailure) > breakerCooldown {
		c.circuitOpen = false
		c.failures = 0
		log.Info().Msg("Circuit breaker moving to half-open state")
	}
	return c.circuitOpen
}

func (c *Client) recordSuccess() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalSent++
	c.failures = 0
	if c.circuitOpen {
		c.circuitOpen = false
		log.Info().Msg("Circuit breaker closed after successful send")
	}
}

func (c *Client) recordFailure() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalFailed++
	c.failures++
	c.lastFailure = time.Now()

	if c.failures >= breakerThreshold && !c.circuitOpen {
		c.circuitOpen = true
		log.Warn().
			Int("failures", c.failures).
			Msg("Circuit breaker opened due to consecutive failures")
	}
}

func (c *Client) incrementRetries() {
	c.mutex.Lock()
	c.totalRetries++
	c.mutex.Unlock()
}

// Metrics returns current delivery counters.
func (c *Client) Metrics() Metrics {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return Metrics{Sent: c.totalSent, Failed: c.totalFailed, Retries: c.totalRetries}
}
