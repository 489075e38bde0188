// Package domain provides core business types, repository contracts and
// context helpers for the ordering backend.
package domain

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	userContextKey contextKey = iota
)

// Roles carried by an authenticated caller.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User is the caller identity established by the upstream authentication layer.
type User struct {
	ID    uuid.UUID
	Email string
	Name  string
	Phone string
	Role  string
}

// IsAdmin reports whether the user may use admin operations.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// NewContextWithUser returns a new context with the user attached.
func NewContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the user from context.
// Returns nil if no user is present.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

// UserIDFromContext retrieves the user ID from context.
// Returns uuid.Nil if no user is present.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if user := UserFromContext(ctx); user != nil {
		return user.ID
	}
	return uuid.Nil
}
