package routes

import (
	"net/http"

	"github.com/xhaelri/qitchen/internal/handler/api"
	"github.com/xhaelri/qitchen/internal/handler/webhook"
	"github.com/xhaelri/qitchen/internal/router"
)

// APIDeps contains dependencies for the customer API routes
type APIDeps struct {
	Orders         *api.OrderHandler
	Carts          *api.CartHandler
	Reservations   *api.ReservationHandler
	PaymentMethods *api.PaymentMethodHandler

	// CheckoutLimit throttles endpoints that start a payment.
	CheckoutLimit router.Middleware
}

// AdminDeps contains dependencies for admin routes
type AdminDeps struct {
	Admin  *api.AdminHandler
	Orders *api.OrderHandler
}

// WebhookDeps contains dependencies for webhook routes
type WebhookDeps struct {
	Handler *webhook.Handler
}

// OpsDeps contains the unauthenticated operational endpoints
type OpsDeps struct {
	Health  http.HandlerFunc
	Metrics http.Handler
}
