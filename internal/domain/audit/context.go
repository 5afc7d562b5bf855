package audit

import "context"

type requestCtxKey struct{}

// WithRequestContext stores the request annotations on the context so events
// recorded deeper in the call chain carry them.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, rc)
}

// RequestContextFrom returns the stored request annotations, or the zero
// value outside a request.
func RequestContextFrom(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(requestCtxKey{}).(RequestContext)
	return rc
}
