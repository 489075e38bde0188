package api

import (
	"context"
	"net/http"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/handler"
	"github.com/xhaelri/qitchen/internal/service"
)

// AdminHandler serves the admin configuration endpoints. Authorization is
// checked again by the service.
type AdminHandler struct {
	admin service.AdminService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(admin service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// GetProviderConfig handles GET /admin/payment-configs/{provider}
func (h *AdminHandler) GetProviderConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.admin.GetProviderConfig(r.Context(), domain.Provider(r.PathValue("provider")))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Payment configuration retrieved", cfg)
}

// SaveProviderConfig handles PUT /admin/payment-configs/{provider}
func (h *AdminHandler) SaveProviderConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ProviderConfig
	if err := handler.DecodeJSON(r, &cfg); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	cfg.Provider = domain.Provider(r.PathValue("provider"))

	saved, err := h.admin.SaveProviderConfig(r.Context(), &cfg)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Payment configuration saved", saved)
}

// ListPaymentMethods handles GET /admin/payment-methods
func (h *AdminHandler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.admin.ListPaymentMethods(r.Context())
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Payment methods retrieved", methods)
}

type updatePaymentMethodRequest struct {
	IsActive    *bool   `json:"isActive"`
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Icon        *string `json:"icon" validate:"omitempty,max=255"`
	SortOrder   *int    `json:"sortOrder" validate:"omitempty,min=0"`
}

// UpdatePaymentMethod handles PUT /admin/payment-methods/{name}
func (h *AdminHandler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req updatePaymentMethodRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	pm, err := h.admin.UpdatePaymentMethod(r.Context(), domain.PaymentMethodName(r.PathValue("name")), service.UpdatePaymentMethodParams{
		IsActive:    req.IsActive,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Icon:        req.Icon,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Payment method updated", pm)
}

// CreateGlobalDiscount handles POST /admin/discounts/global
func (h *AdminHandler) CreateGlobalDiscount(w http.ResponseWriter, r *http.Request) {
	create(w, r, "Global discount created", h.admin.CreateGlobalDiscount)
}

// CreateCategoryDiscount handles POST /admin/discounts/category
func (h *AdminHandler) CreateCategoryDiscount(w http.ResponseWriter, r *http.Request) {
	create(w, r, "Category discount created", h.admin.CreateCategoryDiscount)
}

// CreateCoupon handles POST /admin/coupons
func (h *AdminHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	create(w, r, "Coupon created", h.admin.CreateCoupon)
}

// UpsertProduct handles POST and PUT /admin/products
func (h *AdminHandler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, "Product saved", h.admin.UpsertProduct)
}

// UpsertTable handles POST and PUT /admin/tables
func (h *AdminHandler) UpsertTable(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, "Table saved", h.admin.UpsertTable)
}

// UpsertDeliveryLocation handles POST and PUT /admin/delivery-locations
func (h *AdminHandler) UpsertDeliveryLocation(w http.ResponseWriter, r *http.Request) {
	upsert(w, r, "Delivery location saved", h.admin.UpsertDeliveryLocation)
}

// create decodes a T, hands it to save and answers 201.
func create[T any](w http.ResponseWriter, r *http.Request, message string, save func(context.Context, *T) (*T, error)) {
	write(w, r, http.StatusCreated, message, save)
}

// upsert answers 201 for POST and 200 for PUT.
func upsert[T any](w http.ResponseWriter, r *http.Request, message string, save func(context.Context, *T) (*T, error)) {
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	write(w, r, status, message, save)
}

func write[T any](w http.ResponseWriter, r *http.Request, status int, message string, save func(context.Context, *T) (*T, error)) {
	var in T
	if err := handler.DecodeJSON(r, &in); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	out, err := save(r.Context(), &in)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, status, message, out)
}
