// Package requestcontext carries request- and connection-scoped values through
// context.Context so services can log them without importing net/http.
//
// The request middleware sets the request values; the websocket handler sets
// the connection id for every session it runs.
package requestcontext

import (
	"context"
	"time"
)

type key int

const (
	clientIPKey key = iota
	userAgentKey
	requestIDKey
	requestTimeKey
	connectionIDKey
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

func str(ctx context.Context, k key) string {
	s, _ := value[string](ctx, k)
	return s
}

// ClientIP is the resolved client address, or "".
func ClientIP(ctx context.Context) string { return str(ctx, clientIPKey) }

// UserAgent is the raw User-Agent header, or "".
func UserAgent(ctx context.Context) string { return str(ctx, userAgentKey) }

// RequestID is the HTTP request id, or "" outside a request.
func RequestID(ctx context.Context) string { return str(ctx, requestIDKey) }

// ConnectionID is the websocket connection id, or "" outside a session.
func ConnectionID(ctx context.Context) string { return str(ctx, connectionIDKey) }

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func WithConnectionID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connectionIDKey, connID)
}

// Now returns the request-scoped time. The change feed and websocket sessions
// have none and get time.Now().
func Now(ctx context.Context) time.Time {
	if t, ok := value[time.Time](ctx, requestTimeKey); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the time Now returns.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
