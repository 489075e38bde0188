package routes

import (
	"github.com/xhaelri/qitchen/internal/middleware"
	"github.com/xhaelri/qitchen/internal/router"
)

// RegisterWebhookRoutes registers all webhook routes.
// These routes handle incoming webhooks from the payment gateways.
//
// Note: Webhook routes do NOT have authentication middleware.
// Each delivery is authenticated by its gateway signature.
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	hooks := r.Group(middleware.MaxBodySize(middleware.WebhookMaxBodySize))

	hooks.Post("/webhooks/stripe", deps.Handler.Stripe)
	hooks.Post("/webhooks/aggregator", deps.Handler.Aggregator)
	hooks.Get("/webhooks/aggregator/redirect", deps.Handler.AggregatorRedirect)
}
