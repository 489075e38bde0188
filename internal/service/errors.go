package service

import (
	"github.com/xhaelri/qitchen/internal/domain"
)

// Identity errors - use domain.EUNAUTHORIZED / domain.EFORBIDDEN
var (
	ErrIdentityRequired = domain.Errorf(domain.EUNAUTHORIZED, "", "Authentication required")
	ErrNotOrderOwner    = domain.Errorf(domain.EFORBIDDEN, "", "You do not have access to this order")
	ErrNotCartOwner     = domain.Errorf(domain.EFORBIDDEN, "", "You do not have access to this cart")
	ErrAdminRequired    = domain.Errorf(domain.EFORBIDDEN, "", "Administrator access required")
)

// Placement errors - use domain.EINVALID
var (
	ErrInvalidPlaceType     = domain.Errorf(domain.EINVALID, "", "Place type must be Online, In-Place or Takeaway")
	ErrAddressRequired      = domain.Errorf(domain.EINVALID, "", "Delivery address is required for online orders")
	ErrTableRequired        = domain.Errorf(domain.EINVALID, "", "Table is required for in-place orders")
	ErrTableNotAllowed      = domain.Errorf(domain.EINVALID, "", "Table can only be set for in-place orders")
	ErrSourceRequired       = domain.Errorf(domain.EINVALID, "", "Order needs a cart or a list of items")
	ErrInvalidQuantity      = domain.Errorf(domain.EINVALID, "", "Quantity must be greater than 0")
	ErrInvalidRefundAmount  = domain.Errorf(domain.EINVALID, "", "Refund amount must be greater than 0")
	ErrReservationNotActive = domain.Errorf(domain.ECONFLICT, "", "Reservation is already cancelled")
)
