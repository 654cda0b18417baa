package auth

import (
	"net/http"
	"strings"
)

// Middleware validates JWTs and enforces the authorized-role list before
// any repository access.
type Middleware struct {
	Secret     []byte
	Policy     Policy
	Authorizer *Authorizer
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, authorizer *Authorizer) *Middleware {
	return &Middleware{Secret: secret, Policy: policy, Authorizer: authorizer}
}

// Wrap applies authentication and role authorization to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		claims, err := ParseJWT(token, m.Secret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if m.Authorizer != nil {
			if err := m.Authorizer.Authorize(claims.Roles); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		ctx := WithIdentity(r.Context(), claims.TenantID, claims.Roles, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
