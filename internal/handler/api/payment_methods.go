package api

import (
	"context"
	"net/http"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/handler"
)

// MethodLister lists registry entries.
type MethodLister interface {
	List(ctx context.Context, activeOnly bool) ([]*domain.PaymentMethod, error)
}

// PaymentMethodHandler serves the public list of payment methods.
type PaymentMethodHandler struct {
	methods MethodLister
}

// NewPaymentMethodHandler creates a new payment method handler
func NewPaymentMethodHandler(methods MethodLister) *PaymentMethodHandler {
	return &PaymentMethodHandler{methods: methods}
}

// List handles GET /payment-methods. Only active methods are shown.
func (h *PaymentMethodHandler) List(w http.ResponseWriter, r *http.Request) {
	methods, err := h.methods.List(r.Context(), true)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if methods == nil {
		methods = []*domain.PaymentMethod{}
	}
	handler.Success(w, http.StatusOK, "Payment methods retrieved", methods)
}
