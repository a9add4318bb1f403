package auth

import (
	"context"
	"slices"
)

// Roles carried in the "role" custom claim of Firebase ID tokens.
const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RoleAdmin    = "admin"
)

// Identity is the verified end user behind a request. For sellers UID doubles as the seller ID
// used on order lines and settlements.
type Identity struct {
	UID   string
	Email string
	Roles []string
}

func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, normaliseRole(role))
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
