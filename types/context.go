package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const keyIdentity contextKey = "identity"

// Identity is the authenticated principal behind a request.
type Identity struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles,omitempty"`
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithIdentity adds the caller identity to context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, keyIdentity, id)
}

// IdentityFrom extracts the caller identity from context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(keyIdentity).(Identity)
	return v, ok && v.Subject != ""
}
