package auth

import (
	"slices"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Role claim values recognised on Firebase custom claims.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// roleAliases folds legacy claim values onto the three tiers.
var roleAliases = map[string]string{
	"user":   RoleCustomer,
	"baker":  RoleStaff,
	"owner":  RoleAdmin,
	"admins": RoleAdmin,
}

func normaliseRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if alias, ok := roleAliases[role]; ok {
		return alias
	}
	return role
}

// claimRoles accepts a single string, a list of strings, or a map of role to bool. Output is
// normalised and de-duplicated in claim order.
func claimRoles(claims map[string]any, key string) []string {
	var raw []string
	switch v := claims[key].(type) {
	case string:
		raw = []string{v}
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case map[string]any:
		for name, enabled := range v {
			if on, _ := enabled.(bool); on {
				raw = append(raw, name)
			}
		}
		slices.Sort(raw)
	}

	var roles []string
	for _, value := range raw {
		if role := normaliseRole(value); role != "" && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles
}

func claimString(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}

// identityFromToken maps a verified token onto an Identity. It returns nil when the token has no
// uid or no role can be derived.
func (a *Authenticator) identityFromToken(token *firebaseauth.Token) *Identity {
	if token == nil || strings.TrimSpace(token.UID) == "" {
		return nil
	}
	identity := &Identity{
		UID:   token.UID,
		Email: claimString(token.Claims, a.emailClaim),
		Roles: claimRoles(token.Claims, a.roleClaim),
		token: token,
	}
	if identity.Email == "" && a.emailClaim != defaultEmailClaim {
		identity.Email = claimString(token.Claims, defaultEmailClaim)
	}
	if len(identity.Roles) == 0 {
		if a.fallbackRole == "" {
			return nil
		}
		identity.Roles = []string{a.fallbackRole}
	}
	return identity
}
