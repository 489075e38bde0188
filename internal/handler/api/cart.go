package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/handler"
	"github.com/xhaelri/qitchen/internal/service"
)

// CartHandler handles all cart routes. Every route acts on the caller's cart.
type CartHandler struct {
	carts service.CartService
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts service.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type addItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=100"`
}

type setQuantityRequest struct {
	// Zero removes the line.
	Quantity int `json:"quantity" validate:"min=0,max=100"`
}

type couponRequest struct {
	CouponCode string `json:"couponCode" validate:"required,max=50"`
}

// View handles GET /cart
func (h *CartHandler) View(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "Cart retrieved")(h.carts.GetCart(r.Context()))
}

// Add handles POST /cart/items
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, "Item added to cart")(h.carts.AddItem(r.Context(), req.ProductID, req.Quantity))
}

// Update handles PUT /cart/items/{productId}
func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	productID, err := handler.PathUUID(r, "productId")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req setQuantityRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, "Cart updated")(h.carts.SetQuantity(r.Context(), productID, req.Quantity))
}

// Remove handles DELETE /cart/items/{productId}
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	productID, err := handler.PathUUID(r, "productId")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, "Item removed from cart")(h.carts.RemoveItem(r.Context(), productID))
}

// ApplyCoupon handles POST /cart/coupon
func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, "Coupon applied")(h.carts.ApplyCoupon(r.Context(), req.CouponCode))
}

// RemoveCoupon handles DELETE /cart/coupon
func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "Coupon removed")(h.carts.RemoveCoupon(r.Context()))
}

// Clear handles DELETE /cart
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "Cart cleared")(h.carts.ClearCart(r.Context()))
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, message string) func(*service.CartView, error) {
	return func(view *service.CartView, err error) {
		if err != nil {
			handler.ErrorResponse(w, r, err)
			return
		}
		handler.Success(w, http.StatusOK, message, view)
	}
}
