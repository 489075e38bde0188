package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
)

type contextKey string

// Identity headers set by the upstream authentication layer.
const (
	UserIDHeader    = "X-User-ID"
	UserEmailHeader = "X-User-Email"
	UserNameHeader  = "X-User-Name"
	UserPhoneHeader = "X-User-Phone"
	UserRoleHeader  = "X-User-Role"
)

// WithUser reads the caller identity forwarded by the authentication layer
// and attaches it to the request context. Requests without a valid user id
// continue anonymously; RequireAuth rejects them where needed.
func WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			respondUnauthorized(w, r)
			return
		}

		role := strings.ToLower(strings.TrimSpace(r.Header.Get(UserRoleHeader)))
		if role != domain.RoleAdmin {
			role = domain.RoleCustomer
		}

		user := &domain.User{
			ID:    id,
			Email: r.Header.Get(UserEmailHeader),
			Name:  r.Header.Get(UserNameHeader),
			Phone: r.Header.Get(UserPhoneHeader),
			Role:  role,
		}
		next.ServeHTTP(w, r.WithContext(domain.NewContextWithUser(r.Context(), user)))
	})
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if domain.UserFromContext(r.Context()) == nil {
			respondUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects non-admin callers: 401 when anonymous, 403 otherwise.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := domain.UserFromContext(r.Context())
		if user == nil {
			respondUnauthorized(w, r)
			return
		}
		if !user.IsAdmin() {
			respondForbidden(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
