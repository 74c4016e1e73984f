package auth

import (
	"context"
	"slices"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/crumbline/orders-api/internal/domain"
)

// Identity is a verified Firebase caller.
type Identity struct {
	UID   string
	Email string
	Roles []string

	token *firebaseauth.Token
}

func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole matches case-insensitively and through the legacy aliases.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	want := normaliseRole(role)
	return want != "" && slices.ContainsFunc(i.Roles, func(r string) bool {
		return normaliseRole(r) == want
	})
}

func (i *Identity) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(roles, i.HasRole)
}

// Principal is the actor the order core authorises against; the highest tier held wins.
func (i *Identity) Principal() domain.Principal {
	if i == nil || strings.TrimSpace(i.UID) == "" {
		return domain.Principal{}
	}
	p := domain.Principal{UID: i.UID, Role: domain.RoleCustomer}
	if i.HasRole(RoleAdmin) {
		p.Role = domain.RoleAdmin
	} else if i.HasRole(RoleStaff) {
		p.Role = domain.RoleStaff
	}
	return p
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, _ := ctx.Value(identityKey{}).(*Identity)
	return identity, identity != nil
}

// PrincipalFromContext yields the anonymous principal for unauthenticated requests.
func PrincipalFromContext(ctx context.Context) domain.Principal {
	identity, _ := IdentityFromContext(ctx)
	return identity.Principal()
}
