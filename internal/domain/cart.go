package domain

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a product reference and quantity; prices are computed on read.
type CartItem struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// Cart belongs to exactly one user.
type Cart struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"userId"`
	Items     []CartItem `json:"items"`
	CouponID  *uuid.UUID `json:"couponId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewCart returns an empty cart owned by userID.
func NewCart(userID uuid.UUID, now time.Time) *Cart {
	return &Cart{
		ID:        uuid.New(),
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetQuantity sets the quantity for a product; zero removes the line.
func (c *Cart) SetQuantity(productID uuid.UUID, qty int) {
	for i, it := range c.Items {
		if it.ProductID == productID {
			if qty <= 0 {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
			} else {
				c.Items[i].Quantity = qty
			}
			return
		}
	}
	if qty > 0 {
		c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: qty})
	}
}

// Add increases the quantity of a product by qty.
func (c *Cart) Add(productID uuid.UUID, qty int) {
	for i, it := range c.Items {
		if it.ProductID == productID {
			c.Items[i].Quantity += qty
			return
		}
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: qty})
}

// Quantity returns the current quantity of a product.
func (c *Cart) Quantity(productID uuid.UUID) int {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

// Cart errors.
var (
	ErrCartNotFound = &Error{Code: ENOTFOUND, Message: "Cart not found"}
	ErrCartEmpty    = &Error{Code: EINVALID, Message: "Cart is empty"}
	ErrCartExists   = &Error{Code: ECONFLICT, Message: "User already has a cart"}
)
