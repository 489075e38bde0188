package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAPIKey is returned when a gateway credential is missing.
	ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")

	// ErrSessionNotFound is returned when a checkout session does not exist.
	ErrSessionNotFound = errors.New("billing: checkout session not found")

	// ErrInvalidWebhookSignature is returned when a Stripe signature or a
	// Paymob HMAC does not match.
	ErrInvalidWebhookSignature = errors.New("billing: invalid webhook signature")

	// ErrNoPaymentIntent is returned when there is no payment intent to act on.
	ErrNoPaymentIntent = errors.New("billing: session has no payment intent")

	// ErrTransactionRejected is returned when Paymob answers a refund, void or
	// capture with success=false.
	ErrTransactionRejected = errors.New("billing: transaction rejected by gateway")
)

// StripeError wraps a Stripe API error with additional context.
type StripeError struct {
	Message       string // Human-readable error message
	Code          string // Stripe error code (e.g., "card_declined")
	DeclineCode   string // Card decline reason (if applicable)
	StatusCode    int    // HTTP status code from Stripe
	RequestID     string // Stripe request ID for debugging
	OriginalError error  // Original error from Stripe SDK
}

func (e *StripeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe: %s (code: %s)", e.Message, e.Code)
	}
	return fmt.Sprintf("stripe: %s", e.Message)
}

func (e *StripeError) Unwrap() error {
	return e.OriginalError
}

// IsDeclined returns true if error is due to card decline.
func (e *StripeError) IsDeclined() bool {
	return e.Code == "card_declined" || e.DeclineCode != ""
}

// IsTemporary returns true if error is likely transient and retryable.
func (e *StripeError) IsTemporary() bool {
	return e.Code == "rate_limit" || e.Code == "api_connection_error" || e.StatusCode >= 500
}

// IsSessionNotExpirable reports Stripe refusing to expire a session that is
// no longer open.
func (e *StripeError) IsSessionNotExpirable() bool {
	return e.StatusCode == 400 && (e.Code == "checkout_session_not_expirable" || e.Code == "")
}

// PaymobError wraps a non-2xx Paymob response.
type PaymobError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *PaymobError) Error() string {
	return fmt.Sprintf("paymob: %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsTemporary reports whether retrying the call could succeed.
func (e *PaymobError) IsTemporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
