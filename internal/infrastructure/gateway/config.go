package gateway

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrMissingBaseURL is returned when the gateway base URL is not set
	ErrMissingBaseURL = errors.New("gateway: missing base URL")
	// ErrInvalidBaseURL is returned when the gateway base URL is not http(s)
	ErrInvalidBaseURL = errors.New("gateway: base URL must start with http:// or https://")
	// ErrMissingAPIKey is returned when the API key is not set
	ErrMissingAPIKey = errors.New("gateway: missing API key")
	// ErrMissingMerchantID is returned when the merchant ID is not set
	ErrMissingMerchantID = errors.New("gateway: missing merchant ID")
)

// Config holds the connection settings for the payment processor API
type Config struct {
	// BaseURL is the processor API base URL
	BaseURL string
	// APIKey authenticates requests and signs payloads
	APIKey string
	// MerchantID identifies the clinic group at the processor
	MerchantID string
	// Timeout bounds each HTTP call
	Timeout time.Duration
}

// Validate validates the gateway configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return ErrInvalidBaseURL
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.MerchantID == "" {
		return ErrMissingMerchantID
	}
	return nil
}

// timeout returns the configured timeout or a sane default
func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 15 * time.Second
	}
	return c.Timeout
}
