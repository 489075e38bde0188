package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/service"
)

// mockCartService implements service.CartService for testing
type mockCartService struct {
	service.CartService

	addItemFunc     func(ctx context.Context, productID uuid.UUID, quantity int) (*service.CartView, error)
	setQuantityFunc func(ctx context.Context, productID uuid.UUID, quantity int) (*service.CartView, error)
	applyCouponFunc func(ctx context.Context, code string) (*service.CartView, error)
}

func (m *mockCartService) AddItem(ctx context.Context, productID uuid.UUID, quantity int) (*service.CartView, error) {
	return m.addItemFunc(ctx, productID, quantity)
}

func (m *mockCartService) SetQuantity(ctx context.Context, productID uuid.UUID, quantity int) (*service.CartView, error) {
	return m.setQuantityFunc(ctx, productID, quantity)
}

func (m *mockCartService) ApplyCoupon(ctx context.Context, code string) (*service.CartView, error) {
	return m.applyCouponFunc(ctx, code)
}

func TestCartHandler_Add(t *testing.T) {
	productID := uuid.New()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{name: "valid", body: `{"productId":"` + productID.String() + `","quantity":3}`, expectedStatus: http.StatusOK},
		{name: "zero quantity", body: `{"productId":"` + productID.String() + `","quantity":0}`, expectedStatus: http.StatusBadRequest},
		{name: "missing product", body: `{"quantity":1}`, expectedStatus: http.StatusBadRequest},
		{name: "bad product id", body: `{"productId":"nope","quantity":1}`, expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCartHandler(&mockCartService{
				addItemFunc: func(ctx context.Context, id uuid.UUID, qty int) (*service.CartView, error) {
					if id != productID || qty != 3 {
						t.Errorf("unexpected add %s x%d", id, qty)
					}
					return &service.CartView{ItemCount: qty}, nil
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(tt.body))
			w := serve("POST /cart/items", h.Add, req)
			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestCartHandler_UpdateAllowsZero(t *testing.T) {
	var gotQty = -1
	h := NewCartHandler(&mockCartService{
		setQuantityFunc: func(ctx context.Context, id uuid.UUID, qty int) (*service.CartView, error) {
			gotQty = qty
			return &service.CartView{}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPut, "/cart/items/"+uuid.NewString(), strings.NewReader(`{"quantity":0}`))
	w := serve("PUT /cart/items/{productId}", h.Update, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotQty != 0 {
		t.Errorf("expected quantity 0, got %d", gotQty)
	}
}

func TestCartHandler_ApplyCouponRejected(t *testing.T) {
	h := NewCartHandler(&mockCartService{
		applyCouponFunc: func(ctx context.Context, code string) (*service.CartView, error) {
			return nil, domain.ErrCouponNotFound
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/cart/coupon", strings.NewReader(`{"couponCode":"NOPE"}`))
	w := serve("POST /cart/coupon", h.ApplyCoupon, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
}
