package goRefresh

import "context"

type contextKey int

const clientIPContextKey contextKey = iota

// WithClientIP attaches the caller's client IP to the context so emitted
// audit events can carry it. The engine never interprets the value.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPContextKey, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}
