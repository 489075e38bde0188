package routes

import (
	"github.com/xhaelri/qitchen/internal/middleware"
	"github.com/xhaelri/qitchen/internal/router"
)

// RegisterAdminRoutes registers the admin configuration API.
// All routes are protected by admin authentication middleware.
func RegisterAdminRoutes(r *router.Router, deps AdminDeps) {
	admin := r.Group(middleware.RequireAdmin)

	// Gateway policy
	admin.Get("/admin/payment-configs/{provider}", deps.Admin.GetProviderConfig)
	admin.Put("/admin/payment-configs/{provider}", deps.Admin.SaveProviderConfig)

	// Payment method registry
	admin.Get("/admin/payment-methods", deps.Admin.ListPaymentMethods)
	admin.Put("/admin/payment-methods/{name}", deps.Admin.UpdatePaymentMethod)

	// Pricing
	admin.Post("/admin/discounts/global", deps.Admin.CreateGlobalDiscount)
	admin.Post("/admin/discounts/category", deps.Admin.CreateCategoryDiscount)
	admin.Post("/admin/coupons", deps.Admin.CreateCoupon)

	// Catalog
	admin.Post("/admin/products", deps.Admin.UpsertProduct)
	admin.Put("/admin/products", deps.Admin.UpsertProduct)
	admin.Post("/admin/tables", deps.Admin.UpsertTable)
	admin.Put("/admin/tables", deps.Admin.UpsertTable)
	admin.Post("/admin/delivery-locations", deps.Admin.UpsertDeliveryLocation)
	admin.Put("/admin/delivery-locations", deps.Admin.UpsertDeliveryLocation)

	// Fulfilment
	admin.Patch("/admin/orders/{orderId}/status", deps.Orders.AdvanceStatus)
}
