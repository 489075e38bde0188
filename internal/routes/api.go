package routes

import (
	"net/http"

	"github.com/xhaelri/qitchen/internal/middleware"
	"github.com/xhaelri/qitchen/internal/router"
)

// RegisterAPIRoutes registers the customer-facing JSON API. Everything but
// the payment method list requires an identified caller; refunds and
// captures move money and are admin only.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	r.Get("/payment-methods", deps.PaymentMethods.List)

	authed := r.Group(middleware.RequireAuth)

	checkout := []router.Middleware{}
	if deps.CheckoutLimit != nil {
		checkout = append(checkout, deps.CheckoutLimit)
	}

	// Orders
	authed.Post("/orders", deps.Orders.Create, checkout...)
	authed.Post("/orders/cart/{cartId}/{addressId}", deps.Orders.CreateFromCart, checkout...)
	authed.Get("/orders", deps.Orders.List)
	authed.Get("/orders/{orderId}", deps.Orders.Get)
	authed.Get("/orders/{orderId}/payment-status", deps.Orders.PaymentStatus)
	authed.Post("/orders/{orderId}/cancel", deps.Orders.Cancel)
	authed.Post("/orders/{orderId}/refund", deps.Orders.Refund, middleware.RequireAdmin)
	authed.Post("/orders/{orderId}/capture", deps.Orders.Capture, middleware.RequireAdmin)

	// Cart
	authed.Get("/cart", deps.Carts.View)
	authed.Delete("/cart", deps.Carts.Clear)
	authed.Post("/cart/items", deps.Carts.Add)
	authed.Put("/cart/items/{productId}", deps.Carts.Update)
	authed.Delete("/cart/items/{productId}", deps.Carts.Remove)
	authed.Post("/cart/coupon", deps.Carts.ApplyCoupon)
	authed.Delete("/cart/coupon", deps.Carts.RemoveCoupon)

	// Reservations
	authed.Post("/reservations", deps.Reservations.Create)
	authed.Get("/reservations", deps.Reservations.List)
	authed.Post("/reservations/{reservationId}/cancel", deps.Reservations.Cancel)
}

// RegisterOpsRoutes registers health and metrics endpoints.
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	r.Get("/healthz", deps.Health)
	if deps.Metrics != nil {
		r.Handle(http.MethodGet, "/metrics", deps.Metrics)
	}
}
