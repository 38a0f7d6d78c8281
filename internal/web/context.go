package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/gemstock/internal/core"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for the batch
// history and marks the batch as started from the web.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, r.RemoteAddr) // resolved by TrustedRealIP
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return core.ContextWithOrigin(ctx, core.OriginWeb)
}
