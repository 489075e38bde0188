package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus is the lifecycle of a table booking.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "Pending"
	ReservationConfirmed ReservationStatus = "Confirmed"
	ReservationCancelled ReservationStatus = "Cancelled"
)

// Table is a bookable restaurant table.
type Table struct {
	ID       uuid.UUID `json:"id"`
	Number   int       `json:"number"`
	Capacity int       `json:"capacity"`
	IsActive bool      `json:"isActive"`
}

// Reservation books a table for one slot. At most one non-cancelled
// reservation exists per (TableID, Date); the store enforces it.
type Reservation struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"userId"`
	TableID   uuid.UUID         `json:"tableId"`
	Date      time.Time         `json:"reservationDate"`
	Status    ReservationStatus `json:"status"`
	OrderID   *uuid.UUID        `json:"orderId,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Reservation errors.
var (
	ErrTableNotFound       = &Error{Code: ENOTFOUND, Message: "Table not found"}
	ErrTableInactive       = &Error{Code: EINVALID, Message: "Table is not available for reservations"}
	ErrSlotUnavailable     = &Error{Code: ECONFLICT, Message: "Table is already reserved for this time slot"}
	ErrReservationNotFound = &Error{Code: ENOTFOUND, Message: "Reservation not found"}
	ErrReservationInPast   = &Error{Code: EINVALID, Message: "Reservation date must not be in the past"}
)
