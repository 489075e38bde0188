package billing

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultPaymobBaseURL is the Egypt region API host.
const DefaultPaymobBaseURL = "https://accept.paymob.com"

// PaymobConfig contains configuration for the Paymob gateway.
type PaymobConfig struct {
	// BaseURL is the API host, without a trailing slash.
	BaseURL string

	// APIKey authenticates the legacy acceptance endpoints (refund, void, capture).
	APIKey string

	// SecretKey authenticates the intention API.
	SecretKey string

	// PublicKey is embedded in the unified checkout URL.
	PublicKey string

	// HMACSecret signs transaction callbacks and redirect queries.
	HMACSecret string

	// Timeout bounds every Paymob API call.
	Timeout time.Duration

	// Transport overrides the HTTP transport, e.g. to trace outbound calls.
	Transport http.RoundTripper
}

// Validate checks that required configuration is present.
func (c *PaymobConfig) Validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, errors.New("paymob: secret key is required"))
	}
	if c.PublicKey == "" {
		errs = append(errs, errors.New("paymob: public key is required"))
	}
	if c.HMACSecret == "" {
		errs = append(errs, errors.New("paymob: HMAC secret is required"))
	}
	return errors.Join(errs...)
}

func (c *PaymobConfig) baseURL() string {
	if c.BaseURL == "" {
		return DefaultPaymobBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}
