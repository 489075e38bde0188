package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/payment"
	"github.com/xhaelri/qitchen/internal/service"
)

// mockReconciler implements Reconciler for testing
type mockReconciler struct {
	stripeFunc   func(ctx context.Context, payload []byte, signature string) (service.WebhookOutcome, error)
	paymobFunc   func(ctx context.Context, payload []byte, hmac string) (service.WebhookOutcome, error)
	redirectFunc func(ctx context.Context, query map[string]string) (*service.RedirectResult, error)
}

func (m *mockReconciler) ReconcileStripe(ctx context.Context, payload []byte, signature string) (service.WebhookOutcome, error) {
	return m.stripeFunc(ctx, payload, signature)
}

func (m *mockReconciler) ReconcilePaymob(ctx context.Context, payload []byte, hmac string) (service.WebhookOutcome, error) {
	return m.paymobFunc(ctx, payload, hmac)
}

func (m *mockReconciler) VerifyPaymobRedirect(ctx context.Context, query map[string]string) (*service.RedirectResult, error) {
	return m.redirectFunc(ctx, query)
}

var testURLs = payment.URLs{FrontendURL: "https://shop.test", BaseURL: "https://api.test"}

func TestHandler_Stripe(t *testing.T) {
	tests := []struct {
		name           string
		signature      string
		outcome        service.WebhookOutcome
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "applied",
			signature:      "t=1,v1=abc",
			outcome:        service.OutcomeApplied,
			expectedStatus: http.StatusOK,
			expectedBody:   `"received":true`,
		},
		{
			name:           "duplicate still acknowledged",
			signature:      "t=1,v1=abc",
			outcome:        service.OutcomeDuplicate,
			expectedStatus: http.StatusOK,
			expectedBody:   `"outcome":"duplicate"`,
		},
		{
			name:           "missing signature",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad signature",
			signature:      "t=1,v1=forged",
			err:            domain.Errorf(domain.EINVALID, "webhook.stripe", "Invalid webhook signature"),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "processing failure asks for a retry",
			signature:      "t=1,v1=abc",
			err:            domain.Internal(errors.New("db down"), "webhook.stripe", "apply"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPayload string
			h := NewHandler(&mockReconciler{
				stripeFunc: func(ctx context.Context, payload []byte, signature string) (service.WebhookOutcome, error) {
					gotPayload = string(payload)
					if signature != tt.signature {
						t.Errorf("expected signature %q, got %q", tt.signature, signature)
					}
					return tt.outcome, tt.err
				},
			}, testURLs, nil)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
			if tt.signature != "" {
				req.Header.Set("Stripe-Signature", tt.signature)
			}
			w := httptest.NewRecorder()
			h.Stripe(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.signature != "" && gotPayload != `{"id":"evt_1"}` {
				t.Errorf("raw payload not forwarded: %q", gotPayload)
			}
			if tt.expectedBody != "" && !strings.Contains(w.Body.String(), tt.expectedBody) {
				t.Errorf("expected body to contain %s, got %s", tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestHandler_Aggregator(t *testing.T) {
	var gotHMAC string
	h := NewHandler(&mockReconciler{
		paymobFunc: func(ctx context.Context, payload []byte, hmac string) (service.WebhookOutcome, error) {
			gotHMAC = hmac
			return service.OutcomeApplied, nil
		},
	}, testURLs, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/aggregator?hmac=deadbeef", strings.NewReader(`{"type":"TRANSACTION"}`))
	w := httptest.NewRecorder()
	h.Aggregator(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if gotHMAC != "deadbeef" {
		t.Errorf("expected hmac from query, got %q", gotHMAC)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/aggregator", strings.NewReader(`{}`))
	w = httptest.NewRecorder()
	h.Aggregator(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without hmac, got %d", w.Code)
	}
}

func TestHandler_AggregatorBodyTooLarge(t *testing.T) {
	h := NewHandler(&mockReconciler{}, testURLs, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/aggregator?hmac=x", strings.NewReader(strings.Repeat("a", 64)))
	w := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(w, req.Body, 16)
	h.Aggregator(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", w.Code)
	}
}

func TestHandler_AggregatorRedirect(t *testing.T) {
	orderID := uuid.New()

	tests := []struct {
		name     string
		result   *service.RedirectResult
		err      error
		location string
	}{
		{
			name:     "success",
			result:   &service.RedirectResult{OrderID: orderID, Success: true},
			location: "https://shop.test/payment/success?orderId=" + orderID.String(),
		},
		{
			name:     "declined",
			result:   &service.RedirectResult{OrderID: orderID},
			location: "https://shop.test/payment/failed?orderId=" + orderID.String(),
		},
		{
			name:     "invalid signature",
			err:      domain.Errorf(domain.EINVALID, "webhook.paymob.redirect", "Invalid redirect signature"),
			location: "https://shop.test/payment/failed?orderId=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]string
			h := NewHandler(&mockReconciler{
				redirectFunc: func(ctx context.Context, query map[string]string) (*service.RedirectResult, error) {
					got = query
					return tt.result, tt.err
				},
			}, testURLs, nil)

			req := httptest.NewRequest(http.MethodGet, "/webhooks/aggregator/redirect?success=true&hmac=abc&merchant_order_id=ref-1", nil)
			w := httptest.NewRecorder()
			h.AggregatorRedirect(w, req)

			if w.Code != http.StatusFound {
				t.Fatalf("expected status 302, got %d", w.Code)
			}
			if loc := w.Header().Get("Location"); loc != tt.location {
				t.Errorf("expected redirect to %s, got %s", tt.location, loc)
			}
			if got["hmac"] != "abc" || got["merchant_order_id"] != "ref-1" {
				t.Errorf("query not forwarded: %v", got)
			}
		})
	}
}
