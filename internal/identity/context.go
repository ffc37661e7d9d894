package identity

import "context"

type identityContextKey struct{}
type tokenContextKey struct{}

// WithContext attaches the identity snapshot to the request context.
func WithContext(ctx context.Context, ident Context) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &ident)
}

// FromContext extracts the identity snapshot from the request context.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Context)
	if !ok || v == nil {
		return Context{}, false
	}
	return *v, true
}

// WithToken stores the raw bearer token inside the context.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
