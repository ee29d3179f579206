package config

import (
	"time"

	"battery_log/internal/retry"
)

type ResilienceConfig struct {
	// SheetRead covers idempotent reads of the row store. Appends are never
	// retried: a repeated append can duplicate a row.
	SheetRead retry.Config
	MailSend  retry.Config
}

var DefaultResilienceConfig = ResilienceConfig{
	SheetRead: retry.Config{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Timeout:    15 * time.Second,
	},
	MailSend: retry.Config{
		MaxRetries: 2,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Timeout:    10 * time.Second,
	},
}

// NoRetry runs an operation exactly once with no per-attempt deadline.
var NoRetry = retry.Config{}
