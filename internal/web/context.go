package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/web/middleware"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx so service
// logs can say who triggered an import or update.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, middleware.ClientIP(r))
	return core.ContextWithUserAgent(ctx, r.UserAgent())
}
