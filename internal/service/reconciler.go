package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/billing"
	"github.com/xhaelri/qitchen/internal/cache"
	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/events"
	"github.com/xhaelri/qitchen/internal/telemetry"
)

// WebhookDedupeTTL is how long processed gateway deliveries are remembered.
const WebhookDedupeTTL = 72 * time.Hour

// WebhookOutcome describes what a delivery did.
type WebhookOutcome string

const (
	// OutcomeApplied means the delivery changed the order.
	OutcomeApplied WebhookOutcome = "applied"
	// OutcomeNoop means the order had already left the state the delivery applies to.
	OutcomeNoop WebhookOutcome = "noop"
	// OutcomeDuplicate means the same delivery was processed before.
	OutcomeDuplicate WebhookOutcome = "duplicate"
	// OutcomeIgnored means the event carries nothing to act on.
	OutcomeIgnored WebhookOutcome = "ignored"
)

// ReconcilerDeps wires the Reconciler. Cache may be nil to disable dedupe.
type ReconcilerDeps struct {
	Store     domain.Store
	Stripe    billing.StripeGateway
	Paymob    billing.PaymobGateway
	Cache     cache.Cache
	Namespace string
	Events    events.Publisher
	Metrics   *telemetry.BusinessMetrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Reconciler applies asynchronous gateway notifications to orders. Every
// transition goes through the same Pending guard as the order service, so a
// replayed or late delivery never moves a terminal order.
type Reconciler struct {
	store     domain.Store
	stripe    billing.StripeGateway
	paymob    billing.PaymobGateway
	cache     cache.Cache
	namespace string
	lifecycle *lifecycle
	metrics   *telemetry.BusinessMetrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(d ReconcilerDeps) *Reconciler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &Reconciler{
		store:     d.Store,
		stripe:    d.Stripe,
		paymob:    d.Paymob,
		cache:     d.Cache,
		namespace: d.Namespace,
		lifecycle: &lifecycle{
			store:   d.Store,
			events:  d.Events,
			metrics: d.Metrics,
			logger:  d.Logger,
			now:     d.Now,
		},
		metrics: d.Metrics,
		logger:  d.Logger,
		now:     d.Now,
	}
}

// =============================================================================
// Card gateway
// =============================================================================

// ReconcileStripe verifies and applies a Stripe event. The payload must be
// the raw request body.
func (r *Reconciler) ReconcileStripe(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	const op = "webhook.stripe"
	started := r.now()
	provider := string(domain.ProviderStripe)

	if r.stripe == nil {
		return "", domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	event, err := r.stripe.ParseWebhook(payload, signature)
	if err != nil {
		r.metrics.WebhookError(provider, "signature")
		if errors.Is(err, billing.ErrInvalidWebhookSignature) {
			return "", domain.WrapError(err, domain.EINVALID, op, "Invalid webhook signature")
		}
		return "", domain.WrapError(err, domain.EINVALID, op, "Invalid webhook payload")
	}

	logger := r.logger.With("provider", provider, "event_id", event.ID, "event_type", event.Type)
	dedupeKey := cache.Key(r.namespace, "webhook", provider, event.ID)
	if r.seen(ctx, dedupeKey) {
		logger.InfoContext(ctx, "duplicate webhook delivery")
		r.metrics.Webhook(provider, event.Type, string(OutcomeDuplicate), started)
		return OutcomeDuplicate, nil
	}

	outcome, err := r.applyStripe(ctx, event, logger)
	if err != nil {
		r.metrics.WebhookError(provider, "processing")
		telemetry.CaptureErrorFromContext(ctx, err, map[string]interface{}{
			"provider":   provider,
			"event_id":   event.ID,
			"event_type": event.Type,
		})
		return "", err
	}

	r.remember(ctx, dedupeKey)
	r.metrics.Webhook(provider, event.Type, string(outcome), started)
	logger.InfoContext(ctx, "webhook processed", "outcome", outcome)
	return outcome, nil
}

func (r *Reconciler) applyStripe(ctx context.Context, event *billing.WebhookEvent, logger *slog.Logger) (WebhookOutcome, error) {
	switch event.Type {
	case billing.EventCheckoutCompleted, billing.EventCheckoutAsyncSucceeded:
		sess := event.Session
		if sess == nil {
			return OutcomeIgnored, nil
		}
		o, err := r.stripeOrder(ctx, sess.Metadata, sess.ID)
		if err != nil || o == nil {
			return OutcomeIgnored, err
		}
		if sess.PaymentStatus != billing.SessionPaymentPaid {
			held, err := r.stripeHeld(ctx, sess)
			if err != nil {
				return "", err
			}
			if held {
				return r.authorize(ctx, o, sess.PaymentIntentID, sess.PaymentIntentID, logger)
			}
			// Delayed methods complete the session before the money arrives.
			logger.InfoContext(ctx, "checkout completed without payment, awaiting async result", "session_id", sess.ID)
			return OutcomeIgnored, nil
		}
		if expected := billing.ToMinorUnits(o.TotalPrice); sess.AmountTotal != 0 && sess.AmountTotal != expected {
			logger.ErrorContext(ctx, "checkout amount does not match order total",
				"order_id", o.ID,
				"amount_total", sess.AmountTotal,
				"expected", expected,
			)
		}
		if o.PaymentStatus == domain.PaymentPending && sess.PaymentIntentID != "" && o.Payment.StripePaymentIntentID != sess.PaymentIntentID {
			refs := o.Payment
			refs.StripePaymentIntentID = sess.PaymentIntentID
			if err := r.store.SetPaymentRefs(ctx, o.ID, refs); err != nil {
				return "", domain.Internal(err, "webhook.stripe", "failed to save payment intent")
			}
			o.Payment = refs
		}
		return r.outcome(r.lifecycle.markPaid(ctx, o, sess.PaymentIntentID, sourceWebhook))

	case billing.EventCheckoutAsyncFailed, billing.EventCheckoutExpired:
		sess := event.Session
		if sess == nil {
			return OutcomeIgnored, nil
		}
		o, err := r.stripeOrder(ctx, sess.Metadata, sess.ID)
		if err != nil || o == nil {
			return OutcomeIgnored, err
		}
		reason := "Payment failed"
		if event.Type == billing.EventCheckoutExpired {
			reason = "Checkout session expired"
		}
		return r.outcome(r.lifecycle.markFailed(ctx, o, reason, sourceWebhook))

	case billing.EventPaymentIntentCapturable:
		pi := event.PaymentIntent
		if pi == nil || pi.Status != billing.IntentStatusRequiresCapture {
			return OutcomeIgnored, nil
		}
		o, err := r.stripeOrder(ctx, pi.Metadata, "")
		if err != nil || o == nil {
			return OutcomeIgnored, err
		}
		return r.authorize(ctx, o, pi.ID, pi.ID, logger)

	case billing.EventPaymentIntentPaymentFailed:
		pi := event.PaymentIntent
		if pi == nil {
			return OutcomeIgnored, nil
		}
		o, err := r.stripeOrder(ctx, pi.Metadata, "")
		if err != nil || o == nil {
			return OutcomeIgnored, err
		}
		reason := pi.LastErrorMessage
		if reason == "" {
			reason = "Payment failed"
		}
		return r.outcome(r.lifecycle.markFailed(ctx, o, reason, sourceWebhook))
	}

	logger.DebugContext(ctx, "unhandled webhook event type")
	return OutcomeIgnored, nil
}

// stripeHeld reports whether an unpaid completed session left its payment
// intent awaiting manual capture. Event payloads do not expand the intent, so
// the session is fetched when the status is missing.
func (r *Reconciler) stripeHeld(ctx context.Context, sess *billing.CheckoutSession) (bool, error) {
	status := sess.PaymentIntentStatus
	if status == "" && sess.ID != "" {
		full, err := r.stripe.GetCheckoutSession(ctx, sess.ID)
		if errors.Is(err, billing.ErrSessionNotFound) {
			return false, nil
		}
		if err != nil {
			return false, domain.Internal(err, "webhook.stripe", "failed to load checkout session")
		}
		status = full.PaymentIntentStatus
		if sess.PaymentIntentID == "" {
			sess.PaymentIntentID = full.PaymentIntentID
		}
	}
	return status == billing.IntentStatusRequiresCapture && sess.PaymentIntentID != "", nil
}

// stripeOrder finds the order an event refers to. It returns nil without
// error for events that cannot be tied to any order of ours, including a
// named order that does not exist; only storage failures are errors.
func (r *Reconciler) stripeOrder(ctx context.Context, metadata map[string]string, sessionID string) (*domain.Order, error) {
	const op = "webhook.stripe.lookup"
	if raw := metadata["orderId"]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			r.logger.WarnContext(ctx, "webhook carries malformed order id", "order_id", raw)
			return nil, nil
		}
		o, err := r.store.GetOrder(ctx, id)
		if err != nil {
			if domain.IsCode(err, domain.ENOTFOUND) {
				r.logger.WarnContext(ctx, "webhook for unknown order", "order_id", id)
				return nil, nil
			}
			return nil, domain.Internal(err, op, fmt.Sprintf("failed to load order %s", id))
		}
		return r.ownedBy(ctx, o, domain.ProviderStripe), nil
	}

	if sessionID == "" {
		return nil, nil
	}
	o, err := r.store.GetOrderByStripeSessionID(ctx, sessionID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			r.logger.WarnContext(ctx, "webhook for unknown checkout session", "session_id", sessionID)
			return nil, nil
		}
		return nil, domain.Internal(err, op, "failed to look up order by session")
	}
	return r.ownedBy(ctx, o, domain.ProviderStripe), nil
}

// =============================================================================
// Aggregator
// =============================================================================

// ReconcilePaymob verifies and applies a Paymob transaction callback. hmac is
// the hash Paymob sends in the query string.
func (r *Reconciler) ReconcilePaymob(ctx context.Context, payload []byte, hmac string) (WebhookOutcome, error) {
	const op = "webhook.paymob"
	started := r.now()
	provider := string(domain.ProviderPaymob)

	if r.paymob == nil {
		return "", domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}

	var cb billing.PaymobCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		r.metrics.WebhookError(provider, "decode")
		return "", domain.WrapError(err, domain.EINVALID, op, "Invalid webhook payload")
	}
	if cb.Type != "TRANSACTION" {
		r.metrics.Webhook(provider, cb.Type, string(OutcomeIgnored), started)
		return OutcomeIgnored, nil
	}
	tx := &cb.Obj
	if err := r.paymob.VerifyTransaction(tx, hmac); err != nil {
		r.metrics.WebhookError(provider, "signature")
		return "", domain.WrapError(err, domain.EINVALID, op, "Invalid webhook signature")
	}

	txID := billing.TransactionIDString(tx.ID)
	logger := r.logger.With("provider", provider, "transaction_id", txID, "correlation_id", tx.CorrelationID())

	// A transaction is notified more than once as it settles, so the state
	// flags are part of the delivery identity.
	dedupeKey := cache.Key(r.namespace, "webhook", provider, txID,
		strconv.FormatBool(tx.Success), strconv.FormatBool(tx.Pending), strconv.FormatBool(tx.IsCapture))
	if r.seen(ctx, dedupeKey) {
		logger.InfoContext(ctx, "duplicate webhook delivery")
		r.metrics.Webhook(provider, cb.Type, string(OutcomeDuplicate), started)
		return OutcomeDuplicate, nil
	}

	outcome, err := r.applyPaymob(ctx, tx, logger)
	if err != nil {
		r.metrics.WebhookError(provider, "processing")
		telemetry.CaptureErrorFromContext(ctx, err, map[string]interface{}{
			"provider":       provider,
			"transaction_id": txID,
		})
		return "", err
	}

	r.remember(ctx, dedupeKey)
	r.metrics.Webhook(provider, cb.Type, string(outcome), started)
	logger.InfoContext(ctx, "webhook processed", "outcome", outcome)
	return outcome, nil
}

func (r *Reconciler) applyPaymob(ctx context.Context, tx *billing.PaymobTransaction, logger *slog.Logger) (WebhookOutcome, error) {
	if tx.Pending {
		logger.InfoContext(ctx, "transaction still pending")
		return OutcomeIgnored, nil
	}
	// Refund and void callbacks echo operations we started ourselves.
	if tx.IsRefunded || tx.IsVoided || (tx.HasParentTransaction && !tx.IsCapture) {
		return OutcomeIgnored, nil
	}

	o, err := r.paymobOrder(ctx, tx)
	if err != nil {
		return "", err
	}
	if o = r.ownedBy(ctx, o, domain.ProviderPaymob); o == nil {
		return OutcomeIgnored, nil
	}

	txID := billing.TransactionIDString(tx.ID)
	switch {
	case tx.Authorized():
		return r.authorize(ctx, o, txID, "", logger)

	case tx.Success:
		if expected := billing.ToMinorUnits(o.TotalPrice); tx.AmountCents != expected {
			logger.ErrorContext(ctx, "transaction amount does not match order total",
				"order_id", o.ID,
				"amount_cents", tx.AmountCents,
				"expected", expected,
			)
		}
		return r.outcome(r.lifecycle.markPaid(ctx, o, txID, sourceWebhook))

	default:
		reason := tx.Data.Message
		if reason == "" {
			reason = "Payment declined"
		}
		return r.outcome(r.lifecycle.markFailed(ctx, o, reason, sourceWebhook))
	}
}

// paymobOrder finds the order by correlation id, falling back to the Paymob
// order id. A transaction matching no order yields nil; only storage
// failures are errors.
func (r *Reconciler) paymobOrder(ctx context.Context, tx *billing.PaymobTransaction) (*domain.Order, error) {
	const op = "webhook.paymob.lookup"
	if ref := tx.CorrelationID(); ref != "" {
		o, err := r.store.GetOrderByCorrelationID(ctx, ref)
		if err == nil {
			return o, nil
		}
		if !domain.IsCode(err, domain.ENOTFOUND) {
			return nil, domain.Internal(err, op, "failed to look up order by correlation id")
		}
	}
	if tx.Order.ID != 0 {
		o, err := r.store.GetOrderByPaymobOrderID(ctx, strconv.FormatInt(tx.Order.ID, 10))
		if err == nil {
			return o, nil
		}
		if !domain.IsCode(err, domain.ENOTFOUND) {
			return nil, domain.Internal(err, op, "failed to look up order by paymob order id")
		}
	}
	r.logger.WarnContext(ctx, "webhook for unknown transaction",
		"correlation_id", tx.CorrelationID(),
		"paymob_order_id", tx.Order.ID,
	)
	return nil, nil
}

// RedirectResult is the verified outcome of an aggregator redirect.
type RedirectResult struct {
	OrderID uuid.UUID
	Success bool
}

// VerifyPaymobRedirect checks the HMAC of the customer redirect and reports
// where to send the customer. It never changes order state.
func (r *Reconciler) VerifyPaymobRedirect(ctx context.Context, query map[string]string) (*RedirectResult, error) {
	const op = "webhook.paymob.redirect"
	if r.paymob == nil {
		return nil, domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	if err := r.paymob.VerifyRedirect(query, query["hmac"]); err != nil {
		return nil, domain.WrapError(err, domain.EINVALID, op, "Invalid redirect signature")
	}
	res := &RedirectResult{Success: query["success"] == "true" && query["pending"] != "true"}
	if ref := query["merchant_order_id"]; ref != "" {
		if o, err := r.store.GetOrderByCorrelationID(ctx, ref); err == nil {
			res.OrderID = o.ID
		}
	}
	return res, nil
}

// =============================================================================
// Helpers
// =============================================================================

// authorize records a hold awaiting capture on a Pending order. intentID is
// set for card holds, where capture goes through the payment intent.
func (r *Reconciler) authorize(ctx context.Context, o *domain.Order, txID, intentID string, logger *slog.Logger) (WebhookOutcome, error) {
	if o.PaymentStatus != domain.PaymentPending || o.Payment.Authorized {
		return OutcomeNoop, nil
	}
	refs := o.Payment
	refs.Authorized = true
	refs.TransactionID = txID
	if intentID != "" {
		refs.StripePaymentIntentID = intentID
	}
	if err := r.store.SetPaymentRefs(ctx, o.ID, refs); err != nil {
		return "", domain.Internal(err, "webhook.authorize", "failed to record authorization")
	}
	o.Payment = refs
	logger.InfoContext(ctx, "payment authorized, awaiting capture", "order_id", o.ID)
	return OutcomeApplied, nil
}

// ownedBy returns o when it was paid through provider, nil otherwise.
func (r *Reconciler) ownedBy(ctx context.Context, o *domain.Order, provider domain.Provider) *domain.Order {
	if o == nil {
		return nil
	}
	if o.Provider != provider {
		r.logger.WarnContext(ctx, "webhook for order of another provider", "order_id", o.ID, "order_provider", o.Provider, "provider", provider)
		return nil
	}
	return o
}

func (r *Reconciler) outcome(applied bool, err error) (WebhookOutcome, error) {
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeNoop, nil
	}
	return OutcomeApplied, nil
}

// seen reports whether key was recorded as processed. Cache errors count as
// unseen; the status guard still prevents double transitions.
func (r *Reconciler) seen(ctx context.Context, key string) bool {
	if r.cache == nil {
		return false
	}
	_, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.WarnContext(ctx, "webhook dedupe lookup failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (r *Reconciler) remember(ctx context.Context, key string) {
	if r.cache == nil {
		return
	}
	if _, err := r.cache.SetNX(ctx, key, []byte("1"), WebhookDedupeTTL); err != nil {
		r.logger.WarnContext(ctx, "failed to record webhook delivery", "key", key, "error", err)
	}
}
