// Package identity carries the caller identity supplied by the upstream identity provider.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleManager  Role = "manager"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsManager() bool { return a.Role == RoleManager }

// RequireManager fails with ErrForbidden unless the actor holds the managing role.
func (a Actor) RequireManager() error {
	if !a.IsManager() {
		return ErrForbidden
	}
	return nil
}

// CanAccess reports whether the actor may act on a resource owned by ownerID.
func (a Actor) CanAccess(ownerID string) bool {
	return a.IsManager() || (a.ID != "" && a.ID == ownerID)
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}

func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCustomer:
		return RoleCustomer, true
	case RoleManager:
		return RoleManager, true
	}
	return "", false
}

// Middleware trusts the identity headers stamped by the gateway in front of this service.
// Requests without a valid actor get 401.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderActorID))
		role, ok := ParseRole(r.Header.Get(HeaderActorRole))
		if id == "" || !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthenticated","message":"missing or invalid actor headers"}`))
			return
		}
		ctx := WithActor(r.Context(), Actor{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
