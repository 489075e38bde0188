// Package webhook receives asynchronous payment notifications from the card
// gateway and the aggregator.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/handler"
	"github.com/xhaelri/qitchen/internal/middleware"
	"github.com/xhaelri/qitchen/internal/payment"
	"github.com/xhaelri/qitchen/internal/service"
)

// Reconciler applies verified gateway notifications to orders.
type Reconciler interface {
	ReconcileStripe(ctx context.Context, payload []byte, signature string) (service.WebhookOutcome, error)
	ReconcilePaymob(ctx context.Context, payload []byte, hmac string) (service.WebhookOutcome, error)
	VerifyPaymobRedirect(ctx context.Context, query map[string]string) (*service.RedirectResult, error)
}

// Handler serves the webhook endpoints. They carry no user identity; each
// request is authenticated by its gateway signature.
type Handler struct {
	reconciler Reconciler
	urls       payment.URLs
	logger     *slog.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(reconciler Reconciler, urls payment.URLs, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		reconciler: reconciler,
		urls:       urls,
		logger:     logger,
	}
}

type receivedResponse struct {
	Received bool                   `json:"received"`
	Outcome  service.WebhookOutcome `json:"outcome"`
}

// Stripe handles POST /webhooks/stripe
//
// Testing with the Stripe CLI:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger checkout.session.completed
func (h *Handler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Missing signature"))
		return
	}

	outcome, err := h.reconciler.ReconcileStripe(r.Context(), payload, signature)
	h.acknowledge(w, r, outcome, err)
}

// Aggregator handles POST /webhooks/aggregator. Paymob sends the HMAC in the
// query string.
func (h *Handler) Aggregator(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	hmac := r.URL.Query().Get("hmac")
	if hmac == "" {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.paymob", "Missing signature"))
		return
	}

	outcome, err := h.reconciler.ReconcilePaymob(r.Context(), payload, hmac)
	h.acknowledge(w, r, outcome, err)
}

// acknowledge answers 2xx only for processed deliveries so the gateway
// retries anything that failed on our side.
func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request, outcome service.WebhookOutcome, err error) {
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	middleware.GetLogger(r.Context(), h.logger).Info("webhook processed", "outcome", outcome)
	handler.JSON(w, http.StatusOK, receivedResponse{Received: true, Outcome: outcome})
}

// AggregatorRedirect handles GET /webhooks/aggregator/redirect, where Paymob
// sends the customer's browser after checkout. It only decides which
// frontend page to show; order state changes arrive through Aggregator.
func (h *Handler) AggregatorRedirect(w http.ResponseWriter, r *http.Request) {
	query := flatten(r.URL.Query())

	res, err := h.reconciler.VerifyPaymobRedirect(r.Context(), query)
	if err != nil {
		middleware.GetLogger(r.Context(), h.logger).Warn("aggregator redirect rejected",
			"error", err,
			"code", domain.ErrorCode(err),
		)
		http.Redirect(w, r, h.urls.Result("", false), http.StatusFound)
		return
	}

	orderID := ""
	if res.OrderID != uuid.Nil {
		orderID = res.OrderID.String()
	}
	http.Redirect(w, r, h.urls.Result(orderID, res.Success), http.StatusFound)
}

func readBody(r *http.Request) ([]byte, error) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.Errorf(domain.ETOOLARGE, "webhook.read", "Request body too large")
		}
		return nil, domain.WrapError(err, domain.EINVALID, "webhook.read", "Error reading request body")
	}
	return payload, nil
}

// flatten keeps the first value of every query parameter.
func flatten(q url.Values) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
