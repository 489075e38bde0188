package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/service"
)

// mockOrderService implements service.OrderService for testing
type mockOrderService struct {
	createOrderFunc      func(ctx context.Context, params service.CreateOrderParams) (*service.CreateOrderResult, error)
	getOrderFunc         func(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	listOrdersFunc       func(ctx context.Context) ([]*domain.Order, error)
	getPaymentStatusFunc func(ctx context.Context, orderID uuid.UUID) (*service.PaymentStatusView, error)
	cancelOrderFunc      func(ctx context.Context, orderID uuid.UUID, reason string) (*domain.Order, error)
	refundOrderFunc      func(ctx context.Context, orderID uuid.UUID, params service.RefundParams) (*service.RefundSummary, error)
	captureOrderFunc     func(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	advanceStatusFunc    func(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (*domain.Order, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, params service.CreateOrderParams) (*service.CreateOrderResult, error) {
	if m.createOrderFunc != nil {
		return m.createOrderFunc(ctx, params)
	}
	return nil, nil
}

func (m *mockOrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	if m.getOrderFunc != nil {
		return m.getOrderFunc(ctx, orderID)
	}
	return nil, nil
}

func (m *mockOrderService) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	if m.listOrdersFunc != nil {
		return m.listOrdersFunc(ctx)
	}
	return nil, nil
}

func (m *mockOrderService) GetPaymentStatus(ctx context.Context, orderID uuid.UUID) (*service.PaymentStatusView, error) {
	if m.getPaymentStatusFunc != nil {
		return m.getPaymentStatusFunc(ctx, orderID)
	}
	return nil, nil
}

func (m *mockOrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*domain.Order, error) {
	if m.cancelOrderFunc != nil {
		return m.cancelOrderFunc(ctx, orderID, reason)
	}
	return nil, nil
}

func (m *mockOrderService) RefundOrder(ctx context.Context, orderID uuid.UUID, params service.RefundParams) (*service.RefundSummary, error) {
	if m.refundOrderFunc != nil {
		return m.refundOrderFunc(ctx, orderID, params)
	}
	return nil, nil
}

func (m *mockOrderService) CaptureOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	if m.captureOrderFunc != nil {
		return m.captureOrderFunc(ctx, orderID)
	}
	return nil, nil
}

func (m *mockOrderService) AdvanceStatus(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (*domain.Order, error) {
	if m.advanceStatusFunc != nil {
		return m.advanceStatusFunc(ctx, orderID, next)
	}
	return nil, nil
}

func (m *mockOrderService) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return 0, nil
}

var errBoom = errors.New("boom")

// serve routes a single request through a ServeMux so path values resolve.
func serve(pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, w.Body.String())
	}
	return body
}

func TestOrderHandler_Create(t *testing.T) {
	productID := uuid.New()
	orderID := uuid.New()

	tests := []struct {
		name           string
		body           string
		createErr      error
		expectedStatus int
		checkParams    func(t *testing.T, p service.CreateOrderParams)
		checkBody      func(t *testing.T, body map[string]any)
	}{
		{
			name:           "creates order from product list",
			body:           `{"items":[{"productId":"` + productID.String() + `","quantity":2}],"couponCode":"WELCOME","placeType":"Takeaway","paymentMethod":"COD"}`,
			expectedStatus: http.StatusCreated,
			checkParams: func(t *testing.T, p service.CreateOrderParams) {
				if p.CartID != nil {
					t.Error("expected no cart id")
				}
				if len(p.Items) != 1 || p.Items[0].ProductID != productID || p.Items[0].Quantity != 2 {
					t.Errorf("unexpected items %+v", p.Items)
				}
				if p.CouponCode != "WELCOME" || p.PlaceType != domain.PlaceTakeaway || p.PaymentMethod != domain.MethodCOD {
					t.Errorf("unexpected params %+v", p)
				}
			},
			checkBody: func(t *testing.T, body map[string]any) {
				if body["success"] != true {
					t.Errorf("expected success, got %v", body["success"])
				}
				if body["orderId"] != orderID.String() {
					t.Errorf("expected orderId %s, got %v", orderID, body["orderId"])
				}
				if body["provider"] != "internal" {
					t.Errorf("expected provider internal, got %v", body["provider"])
				}
				if _, ok := body["redirectUrl"]; ok {
					t.Error("redirectUrl should be omitted when empty")
				}
			},
		},
		{
			name:           "missing items",
			body:           `{"placeType":"Takeaway","paymentMethod":"COD"}`,
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body map[string]any) {
				fields, _ := body["fields"].(map[string]any)
				if fields["items"] != "is required" {
					t.Errorf("expected items field error, got %v", body["fields"])
				}
			},
		},
		{
			name:           "quantity out of range",
			body:           `{"items":[{"productId":"` + productID.String() + `","quantity":101}],"placeType":"Takeaway","paymentMethod":"COD"}`,
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body map[string]any) {
				fields, _ := body["fields"].(map[string]any)
				if fields["items[0].quantity"] != "must be at most 100" {
					t.Errorf("unexpected fields %v", body["fields"])
				}
			},
		},
		{
			name:           "malformed json",
			body:           `{"items":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "payment method disabled",
			body:           `{"items":[{"productId":"` + productID.String() + `","quantity":1}],"placeType":"Takeaway","paymentMethod":"Card"}`,
			createErr:      domain.ErrPaymentMethodDisabled,
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body map[string]any) {
				if body["success"] != false {
					t.Errorf("expected success=false, got %v", body["success"])
				}
				if body["message"] != domain.ErrorMessage(domain.ErrPaymentMethodDisabled) {
					t.Errorf("unexpected message %v", body["message"])
				}
			},
		},
		{
			name:           "gateway failure hides details",
			body:           `{"items":[{"productId":"` + productID.String() + `","quantity":1}],"placeType":"Takeaway","paymentMethod":"Card"}`,
			createErr:      domain.Internal(errBoom, "test", "stripe exploded"),
			expectedStatus: http.StatusInternalServerError,
			checkBody: func(t *testing.T, body map[string]any) {
				if msg, _ := body["message"].(string); strings.Contains(msg, "stripe") {
					t.Errorf("internal details leaked: %s", msg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got service.CreateOrderParams
			h := NewOrderHandler(&mockOrderService{
				createOrderFunc: func(ctx context.Context, p service.CreateOrderParams) (*service.CreateOrderResult, error) {
					got = p
					if tt.createErr != nil {
						return nil, tt.createErr
					}
					return &service.CreateOrderResult{
						Order:    &domain.Order{ID: orderID},
						Provider: domain.ProviderInternal,
						Message:  "Order placed",
					}, nil
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tt.body))
			w := serve("POST /orders", h.Create, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.checkParams != nil {
				tt.checkParams(t, got)
			}
			if tt.checkBody != nil {
				tt.checkBody(t, decodeBody(t, w))
			}
		})
	}
}

func TestOrderHandler_CreateFromCart(t *testing.T) {
	cartID := uuid.New()
	addressID := uuid.New()
	tableID := uuid.New()

	tests := []struct {
		name           string
		path           string
		body           string
		expectedStatus int
		checkParams    func(t *testing.T, p service.CreateOrderParams)
	}{
		{
			name:           "online uses the address segment",
			path:           "/orders/cart/" + cartID.String() + "/" + addressID.String(),
			body:           `{"placeType":"Online","paymentMethod":"Card","governorate":"Giza","city":"Dokki"}`,
			expectedStatus: http.StatusCreated,
			checkParams: func(t *testing.T, p service.CreateOrderParams) {
				if p.CartID == nil || *p.CartID != cartID {
					t.Errorf("expected cart id %s", cartID)
				}
				if p.AddressID == nil || *p.AddressID != addressID {
					t.Errorf("expected address id %s", addressID)
				}
				if p.Governorate != "Giza" || p.City != "Dokki" {
					t.Errorf("unexpected location %q/%q", p.Governorate, p.City)
				}
			},
		},
		{
			name:           "in-place ignores the address segment",
			path:           "/orders/cart/" + cartID.String() + "/none",
			body:           `{"placeType":"In-Place","paymentMethod":"COD","tableId":"` + tableID.String() + `"}`,
			expectedStatus: http.StatusCreated,
			checkParams: func(t *testing.T, p service.CreateOrderParams) {
				if p.AddressID != nil {
					t.Error("expected no address id")
				}
				if p.TableID == nil || *p.TableID != tableID {
					t.Errorf("expected table id %s", tableID)
				}
			},
		},
		{
			name:           "online requires a valid address id",
			path:           "/orders/cart/" + cartID.String() + "/none",
			body:           `{"placeType":"Online","paymentMethod":"Card"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid cart id",
			path:           "/orders/cart/abc/" + addressID.String(),
			body:           `{"placeType":"Online","paymentMethod":"Card"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing payment method",
			path:           "/orders/cart/" + cartID.String() + "/" + addressID.String(),
			body:           `{"placeType":"Online"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got service.CreateOrderParams
			h := NewOrderHandler(&mockOrderService{
				createOrderFunc: func(ctx context.Context, p service.CreateOrderParams) (*service.CreateOrderResult, error) {
					got = p
					return &service.CreateOrderResult{
						Order:       &domain.Order{ID: uuid.New()},
						Provider:    domain.ProviderStripe,
						RedirectURL: "https://checkout.stripe.test/s",
					}, nil
				},
			})

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			w := serve("POST /orders/cart/{cartId}/{addressId}", h.CreateFromCart, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.checkParams != nil {
				tt.checkParams(t, got)
			}
		})
	}
}

func TestOrderHandler_Refund(t *testing.T) {
	orderID := uuid.New()

	tests := []struct {
		name           string
		body           string
		refundErr      error
		expectedStatus int
		wantAmount     string
	}{
		{name: "full refund", body: ``, expectedStatus: http.StatusOK},
		{name: "partial refund", body: `{"refundAmount":"12.50","refundReason":"cold food"}`, expectedStatus: http.StatusOK, wantAmount: "12.5"},
		{name: "numeric amount", body: `{"refundAmount":7}`, expectedStatus: http.StatusOK, wantAmount: "7"},
		{name: "negative amount", body: `{"refundAmount":"-1"}`, expectedStatus: http.StatusBadRequest},
		{name: "window closed", body: `{}`, refundErr: domain.ErrRefundWindowExpired, expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got service.RefundParams
			h := NewOrderHandler(&mockOrderService{
				refundOrderFunc: func(ctx context.Context, id uuid.UUID, p service.RefundParams) (*service.RefundSummary, error) {
					if id != orderID {
						t.Errorf("expected order %s, got %s", orderID, id)
					}
					got = p
					if tt.refundErr != nil {
						return nil, tt.refundErr
					}
					return &service.RefundSummary{OrderID: id, Amount: decimal.NewFromInt(10)}, nil
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/refund", strings.NewReader(tt.body))
			w := serve("POST /orders/{orderId}/refund", h.Refund, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			if tt.wantAmount == "" {
				if got.Amount != nil {
					t.Errorf("expected full refund, got amount %s", got.Amount)
				}
				return
			}
			if got.Amount == nil || got.Amount.String() != tt.wantAmount {
				t.Errorf("expected amount %s, got %v", tt.wantAmount, got.Amount)
			}
		})
	}
}

func TestOrderHandler_Cancel(t *testing.T) {
	orderID := uuid.New()
	var reason string
	h := NewOrderHandler(&mockOrderService{
		cancelOrderFunc: func(ctx context.Context, id uuid.UUID, r string) (*domain.Order, error) {
			reason = r
			return &domain.Order{ID: id, OrderStatus: domain.OrderCancelled}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/cancel", strings.NewReader(`{"cancellationReason":"changed my mind"}`))
	w := serve("POST /orders/{orderId}/cancel", h.Cancel, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if reason != "changed my mind" {
		t.Errorf("expected reason to be passed through, got %q", reason)
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["data"] == nil {
		t.Errorf("unexpected body %v", body)
	}
}

func TestOrderHandler_Get(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		getErr         error
		expectedStatus int
	}{
		{name: "found", path: "/orders/" + uuid.NewString(), expectedStatus: http.StatusOK},
		{name: "not found", path: "/orders/" + uuid.NewString(), getErr: domain.ErrOrderNotFound, expectedStatus: http.StatusNotFound},
		{name: "bad id", path: "/orders/42", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOrderHandler(&mockOrderService{
				getOrderFunc: func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
					if tt.getErr != nil {
						return nil, tt.getErr
					}
					return &domain.Order{ID: id}, nil
				},
			})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := serve("GET /orders/{orderId}", h.Get, req)
			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestOrderHandler_ListEmpty(t *testing.T) {
	h := NewOrderHandler(&mockOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	w := serve("GET /orders", h.List, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("expected empty list, got %s", w.Body.String())
	}
}

func TestOrderHandler_AdvanceStatus(t *testing.T) {
	var next domain.OrderStatus
	h := NewOrderHandler(&mockOrderService{
		advanceStatusFunc: func(ctx context.Context, id uuid.UUID, s domain.OrderStatus) (*domain.Order, error) {
			next = s
			return &domain.Order{ID: id, OrderStatus: s}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"On the way"}`))
	w := serve("PATCH /admin/orders/{orderId}/status", h.AdvanceStatus, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if next != domain.OrderOnTheWay {
		t.Errorf("expected %q, got %q", domain.OrderOnTheWay, next)
	}
}
