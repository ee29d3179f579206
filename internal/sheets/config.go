package sheets

import (
	"encoding/json"
	"fmt"
	"strings"

	"battery_log/internal/apperr"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	DefaultSheetName = "Sheet1"
	tokenURI         = "https://oauth2.googleapis.com/token"
)

// Config locates the spreadsheet and the service account used to reach it.
// Credentials come from a key file, or from an inline client email and
// private key when no file is given.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	ClientEmail     string
	PrivateKey      string
}

// Range is the A1 range covering every row the store uses.
func (c Config) Range() string {
	name := c.SheetName
	if name == "" {
		name = DefaultSheetName
	}
	return quoteSheetName(name) + "!A:AZ"
}

func quoteSheetName(name string) string {
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}

// credentialOptions turns the configured credentials into client options.
func (c Config) credentialOptions() ([]option.ClientOption, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}

	if c.CredentialsFile != "" {
		return append(opts, option.WithCredentialsFile(c.CredentialsFile)), nil
	}

	if c.ClientEmail == "" || c.PrivateKey == "" {
		return nil, apperr.NotConfigured("google credentials are not configured")
	}

	key, err := NormalizePrivateKey(c.PrivateKey)
	if err != nil {
		return nil, err
	}

	creds, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": c.ClientEmail,
		"private_key":  key,
		"token_uri":    tokenURI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode service account credentials: %w", err)
	}
	return append(opts, option.WithCredentialsJSON(creds)), nil
}

// NormalizePrivateKey repairs a PEM key pasted into an environment variable:
// surrounding quotes are dropped, literal "\n" sequences become newlines and
// carriage returns are removed.
func NormalizePrivateKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	key = strings.Trim(key, `"`)
	key = strings.ReplaceAll(key, `\n`, "\n")
	key = strings.ReplaceAll(key, "\r", "")
	key = strings.TrimSpace(key)

	if !strings.HasPrefix(key, "-----BEGIN") || !strings.Contains(key, "PRIVATE KEY-----") {
		return "", apperr.NotConfigured("GOOGLE_PRIVATE_KEY is not a PEM private key")
	}
	if !strings.HasSuffix(key, "-----") {
		return "", apperr.NotConfigured("GOOGLE_PRIVATE_KEY is truncated")
	}
	return key + "\n", nil
}
