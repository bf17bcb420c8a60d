package apiclient

import "context"

type ctxKey int

const (
	tokenKey ctxKey = iota
	requestIDKey
	callerKey
)

// WithToken attaches the caller's bearer token to ctx. It takes precedence over
// the client's configured token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFrom returns the bearer token attached by WithToken.
func TokenFrom(ctx context.Context) string {
	v, _ := ctx.Value(tokenKey).(string)
	return v
}

// WithCaller attaches the stable identity of the student behind the token.
func WithCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerKey, id)
}

// CallerFrom returns the identity attached by WithCaller, or "".
func CallerFrom(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}

// WithRequestID attaches a request id that is forwarded as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func requestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
