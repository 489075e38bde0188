package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/handler"
	"github.com/xhaelri/qitchen/internal/service"
)

// ReservationHandler handles table bookings made outside an order.
type ReservationHandler struct {
	reservations service.ReservationService
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservations service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

type createReservationRequest struct {
	TableID uuid.UUID `json:"tableId" validate:"required"`
	// Omitted means the current slot.
	ReservationDate *time.Time `json:"reservationDate"`
}

// Create handles POST /reservations
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	res, err := h.reservations.Create(r.Context(), service.CreateReservationParams{
		TableID: req.TableID,
		Date:    req.ReservationDate,
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusCreated, "Reservation created", res)
}

// List handles GET /reservations
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.reservations.List(r.Context())
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Reservation{}
	}
	handler.Success(w, http.StatusOK, "Reservations retrieved", list)
}

// Cancel handles POST /reservations/{reservationId}/cancel
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := handler.PathUUID(r, "reservationId")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	res, err := h.reservations.Cancel(r.Context(), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.Success(w, http.StatusOK, "Reservation cancelled", res)
}
