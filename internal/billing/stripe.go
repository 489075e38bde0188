package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements StripeGateway using the Stripe Go SDK.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a Stripe gateway. Each provider owns its own
// client, so the global stripe.Key is never touched.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	backends := stripe.NewBackends(&http.Client{Timeout: timeout, Transport: cfg.Transport})
	return &StripeProvider{
		api:           client.New(cfg.APIKey, backends),
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

// CreateCheckoutSession creates a hosted checkout session in payment mode.
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		ClientReferenceID: stripe.String(params.ClientReferenceID),
		Metadata:          params.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: params.Metadata,
		},
	}
	p.Context = ctx
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}

	for _, li := range params.LineItems {
		p.LineItems = append(p.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(li.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(params.Currency),
				UnitAmount: stripe.Int64(li.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
			},
		})
	}
	if len(params.PaymentMethodTypes) > 0 {
		p.PaymentMethodTypes = stripe.StringSlice(params.PaymentMethodTypes)
	}
	if params.CustomerEmail != "" {
		p.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	if params.StatementDescriptor != "" {
		p.PaymentIntentData.StatementDescriptor = stripe.String(params.StatementDescriptor)
	}
	if params.ManualCapture {
		p.PaymentIntentData.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	}
	if params.SaveCards {
		p.PaymentIntentData.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOnSession))
	}
	if params.AllowPromotionCodes {
		p.AllowPromotionCodes = stripe.Bool(true)
	}
	if params.AutomaticTax {
		p.AutomaticTax = &stripe.CheckoutSessionAutomaticTaxParams{Enabled: stripe.Bool(true)}
	}
	if !params.ExpiresAt.IsZero() {
		p.ExpiresAt = stripe.Int64(params.ExpiresAt.Unix())
	}

	sess, err := s.api.CheckoutSessions.New(p)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return toCheckoutSession(sess), nil
}

// GetCheckoutSession retrieves a session with its payment intent expanded.
func (s *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{}
	p.Context = ctx
	p.AddExpand("payment_intent")

	sess, err := s.api.CheckoutSessions.Get(sessionID, p)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, wrapStripeError(err)
	}
	return toCheckoutSession(sess), nil
}

// ExpireCheckoutSession expires an open session.
func (s *StripeProvider) ExpireCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	p := &stripe.CheckoutSessionExpireParams{}
	p.Context = ctx

	sess, err := s.api.CheckoutSessions.Expire(sessionID, p)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return toCheckoutSession(sess), nil
}

// CreateRefund refunds a payment intent. A zero amount refunds the remainder.
func (s *StripeProvider) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	if params.PaymentIntentID == "" {
		return nil, ErrNoPaymentIntent
	}
	p := &stripe.RefundParams{
		PaymentIntent: stripe.String(params.PaymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	p.Context = ctx
	if params.AmountCents > 0 {
		p.Amount = stripe.Int64(params.AmountCents)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}

	r, err := s.api.Refunds.New(p)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return &Refund{
		ID:          r.ID,
		AmountCents: r.Amount,
		Status:      string(r.Status),
		CreatedAt:   time.Unix(r.Created, 0),
	}, nil
}

// CapturePaymentIntent captures a manually captured intent.
func (s *StripeProvider) CapturePaymentIntent(ctx context.Context, params CaptureParams) (*PaymentIntent, error) {
	if params.PaymentIntentID == "" {
		return nil, ErrNoPaymentIntent
	}
	p := &stripe.PaymentIntentCaptureParams{}
	p.Context = ctx
	if params.AmountCents > 0 {
		p.AmountToCapture = stripe.Int64(params.AmountCents)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.Capture(params.PaymentIntentID, p)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return toPaymentIntent(pi), nil
}

// CancelPaymentIntent cancels an intent, releasing any held funds.
func (s *StripeProvider) CancelPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	if intentID == "" {
		return nil, ErrNoPaymentIntent
	}
	p := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	p.Context = ctx

	pi, err := s.api.PaymentIntents.Cancel(intentID, p)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return toPaymentIntent(pi), nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:               pi.ID,
		Status:           string(pi.Status),
		AmountCapturable: pi.AmountCapturable,
		AmountReceived:   pi.AmountReceived,
	}
}

// ParseWebhook verifies the signature and decodes the event payload.
func (s *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	return parseStripeWebhook(payload, signature, s.webhookSecret)
}

func parseStripeWebhook(payload []byte, signature, secret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch event.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded, EventCheckoutAsyncFailed, EventCheckoutExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		out.Session = toCheckoutSession(&sess)
	case EventPaymentIntentPaymentFailed, EventPaymentIntentCapturable:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		out.PaymentIntent = &WebhookPaymentIntent{
			ID:       pi.ID,
			Status:   string(pi.Status),
			Metadata: pi.Metadata,
		}
		if pi.LastPaymentError != nil {
			out.PaymentIntent.LastErrorMessage = pi.LastPaymentError.Msg
		}
	}
	return out, nil
}

func toCheckoutSession(sess *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		Metadata:      sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
		out.PaymentIntentStatus = string(sess.PaymentIntent.Status)
	}
	return out
}

// wrapStripeError converts SDK errors to *StripeError so callers can inspect
// the code without importing the SDK.
func wrapStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return &StripeError{Message: err.Error(), OriginalError: err}
	}
	return &StripeError{
		Message:       se.Msg,
		Code:          string(se.Code),
		DeclineCode:   string(se.DeclineCode),
		StatusCode:    se.HTTPStatusCode,
		RequestID:     se.RequestID,
		OriginalError: err,
	}
}
