package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/handler"
	"github.com/xhaelri/qitchen/internal/pricing"
	"github.com/xhaelri/qitchen/internal/service"
)

// OrderHandler serves the customer order endpoints and the admin fulfilment
// transition.
type OrderHandler struct {
	orders service.OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// orderRequest is the body of both creation endpoints. Items and AddressID
// only apply to POST /orders; the cart endpoint takes them from the path.
type orderRequest struct {
	Items           []pricing.Line           `json:"items" validate:"omitempty,max=50,dive"`
	CouponCode      string                   `json:"couponCode" validate:"max=50"`
	PlaceType       domain.PlaceType         `json:"placeType" validate:"required"`
	PaymentMethod   domain.PaymentMethodName `json:"paymentMethod" validate:"required"`
	AddressID       *uuid.UUID               `json:"addressId"`
	Governorate     string                   `json:"governorate" validate:"max=100"`
	City            string                   `json:"city" validate:"max=100"`
	TableID         *uuid.UUID               `json:"tableId"`
	ReservationDate *time.Time               `json:"reservationDate"`
}

func (req orderRequest) params() service.CreateOrderParams {
	return service.CreateOrderParams{
		CouponCode:      req.CouponCode,
		PlaceType:       req.PlaceType,
		PaymentMethod:   req.PaymentMethod,
		Governorate:     req.Governorate,
		City:            req.City,
		TableID:         req.TableID,
		ReservationDate: req.ReservationDate,
	}
}

type createOrderResponse struct {
	Success     bool            `json:"success"`
	OrderID     uuid.UUID       `json:"orderId"`
	Order       *domain.Order   `json:"order"`
	Provider    domain.Provider `json:"provider"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
	Message     string          `json:"message"`
}

// Create handles POST /orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if len(req.Items) == 0 {
		handler.ErrorResponse(w, r, domain.NewValidationError("handler.createOrder", "items", "is required"))
		return
	}

	params := req.params()
	params.Items = req.Items
	params.AddressID = req.AddressID
	h.create(w, r, params)
}

// CreateFromCart handles POST /orders/cart/{cartId}/{addressId}
func (h *OrderHandler) CreateFromCart(w http.ResponseWriter, r *http.Request) {
	cartID, err := handler.PathUUID(r, "cartId")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req orderRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	params := req.params()
	params.CartID = &cartID
	// The address segment is only meaningful for delivery orders.
	if req.PlaceType == domain.PlaceOnline {
		addressID, err := handler.PathUUID(r, "addressId")
		if err != nil {
			handler.ErrorResponse(w, r, err)
			return
		}
		params.AddressID = &addressID
	}
	h.create(w, r, params)
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request, params service.CreateOrderParams) {
	res, err := h.orders.CreateOrder(r.Context(), params)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusCreated, createOrderResponse{
		Success:     true,
		OrderID:     res.Order.ID,
		Order:       res.Order,
		Provider:    res.Provider,
		RedirectURL: res.RedirectURL,
		Message:     res.Message,
	})
}

// List handles GET /orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context())
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	handler.Success(w, http.StatusOK, "Orders retrieved", orders)
}

// Get handles GET /orders/{orderId}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := handler.PathUUID(r, "orderId")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Order retrieved", order)
}

// PaymentStatus handles GET /orders/{orderId}/payment-status
func (h *OrderHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := handler.PathUUID(r, "orderId")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	view, err := h.orders.GetPaymentStatus(r.Context(), orderID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Payment status retrieved", view)
}

type cancelRequest struct {
	CancellationReason string `json:"cancellationReason" validate:"max=500"`
}

// Cancel handles POST /orders/{orderId}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, err := handler.PathUUID(r, "orderId")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req cancelRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), orderID, req.CancellationReason)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Order cancelled", order)
}

type refundRequest struct {
	RefundAmount *decimal.Decimal `json:"refundAmount"`
	RefundReason string           `json:"refundReason" validate:"max=500"`
}

// Refund handles POST /orders/{orderId}/refund
func (h *OrderHandler) Refund(w http.ResponseWriter, r *http.Request) {
	orderID, err := handler.PathUUID(r, "orderId")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req refundRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if req.RefundAmount != nil && !req.RefundAmount.IsPositive() {
		handler.ErrorResponse(w, r, domain.NewValidationError("handler.refund", "refundAmount", "must be greater than 0"))
		return
	}

	summary, err := h.orders.RefundOrder(r.Context(), orderID, service.RefundParams{
		Amount: req.RefundAmount,
		Reason: req.RefundReason,
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Refund processed", summary)
}

// Capture handles POST /orders/{orderId}/capture. Captures are always for
// the authorized amount.
func (h *OrderHandler) Capture(w http.ResponseWriter, r *http.Request) {
	orderID, err := handler.PathUUID(r, "orderId")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.CaptureOrder(r.Context(), orderID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Payment captured", order)
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required"`
}

// AdvanceStatus handles PATCH /admin/orders/{orderId}/status
func (h *OrderHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := handler.PathUUID(r, "orderId")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req statusRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.AdvanceStatus(r.Context(), orderID, req.Status)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Order status updated", order)
}
