package auth

import (
	"context"

	"quiz-session-service/internal/domain"
)

type identityKey struct{}

// WithIdentity binds an authenticated caller to ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller bound by WithIdentity.
func FromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

// ContextProvider implements app.IdentityProvider on top of request contexts.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) (domain.Identity, error) {
	id, ok := FromContext(ctx)
	if !ok || id.UserID == 0 {
		return domain.Identity{}, domain.ErrNoIdentity
	}
	return id, nil
}
