package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
	ctxKeyOrigin    contextKey = "origin"
)

// Batch origins recorded in the history.
const (
	OriginWeb   = "web"
	OriginCLI   = "cli"
	OriginWatch = "watch"
)

// ContextWithIPAddress adds the client IP to context for the batch history.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the User-Agent to context for the batch history.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ContextWithOrigin records which surface started a batch.
func ContextWithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, ctxKeyOrigin, origin)
}

// GetIPAddressFromContext extracts the client IP from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts the User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// GetOriginFromContext returns the batch origin, defaulting to OriginWeb.
func GetOriginFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyOrigin).(string); ok && v != "" {
		return v
	}
	return OriginWeb
}
