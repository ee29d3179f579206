// Package sheets stores battery log rows in a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"battery_log/internal/apperr"
	"battery_log/internal/config"
	"battery_log/internal/retry"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Client is a rowstore.Store over one sheet of a spreadsheet. A client built
// from incomplete configuration still exists; every call on it fails.
type Client struct {
	service       *sheets.Service
	spreadsheetID string
	readRange     string
	readRetry     retry.Config
	configErr     error
}

// NewClient builds a client for cfg. It never fails: configuration problems
// are kept and reported by Ready and by every call. Extra options replace the
// credential options.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) *Client {
	c := &Client{
		spreadsheetID: cfg.SpreadsheetID,
		readRange:     cfg.Range(),
		readRetry:     config.DefaultResilienceConfig.SheetRead,
	}
	c.readRetry.Retryable = isRetryable

	if cfg.SpreadsheetID == "" {
		c.configErr = apperr.NotConfigured("SHEET_ID is not configured")
		log.Warn().Msg("SHEET_ID not set, row store calls will fail")
		return c
	}

	if len(opts) == 0 {
		credOpts, err := cfg.credentialOptions()
		if err != nil {
			c.configErr = err
			log.Warn().Err(err).Msg("Google credentials unusable, row store calls will fail")
			return c
		}
		opts = credOpts
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		c.configErr = fmt.Errorf("failed to create sheets service: %w", err)
		log.Warn().Err(err).Msg("Failed to create sheets service")
		return c
	}
	c.service = service

	log.Debug().
		Str("spreadsheet_id", cfg.SpreadsheetID).
		Str("range", c.readRange).
		Msg("Sheets client ready")
	return c
}

// WithReadRetry replaces the retry policy used for reads.
func (c *Client) WithReadRetry(cfg retry.Config) *Client {
	c.readRetry = cfg
	if c.readRetry.Retryable == nil {
		c.readRetry.Retryable = isRetryable
	}
	return c
}

// Ready reports the configuration error, if any, that makes every call fail.
func (c *Client) Ready() error {
	return c.configErr
}

// ReadAll returns every row of the sheet, header first. Cells are rendered
// as text; rows come back ragged when trailing cells are empty.
func (c *Client) ReadAll(ctx context.Context) ([][]string, error) {
	if c.configErr != nil {
		return nil, apperr.StoreUnavailable("row store is not configured", c.configErr)
	}

	resp, err := retry.WithRetry(ctx, c.readRetry, func(ctx context.Context) (*sheets.ValueRange, error) {
		return c.service.Spreadsheets.Values.Get(c.spreadsheetID, c.readRange).Context(ctx).Do()
	})
	if err != nil {
		return nil, apperr.StoreUnavailable("failed to read sheet", err)
	}

	values := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		values[i] = make([]string, len(row))
		for j, cell := range row {
			if cell != nil {
				values[i][j] = fmt.Sprintf("%v", cell)
			}
		}
	}

	log.Debug().Int("rows", len(values)).Msg("Read sheet")
	return values, nil
}

// Append writes one row after the last row of the data range. Values are
// stored as entered, without formula or date interpretation. Appends are
// never retried.
func (c *Client) Append(ctx context.Context, values []string) error {
	if c.configErr != nil {
		return apperr.StoreUnavailable("row store is not configured", c.configErr)
	}

	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{row},
	}

	_, err := c.service.Spreadsheets.Values.Append(c.spreadsheetID, c.readRange, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return apperr.StoreUnavailable("failed to append row", err)
	}

	log.Debug().Int("cells", len(values)).Msg("Appended sheet row")
	return nil
}

// isRetryable keeps retrying server errors, throttling and transport
// failures. Other API errors, such as a missing sheet or denied access,
// will not change on a second attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}
