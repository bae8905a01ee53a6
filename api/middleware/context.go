package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/praktis/pricecompare/pkg/logger"
)

// ViewHeader carries the browser tab's view id; each id owns one comparison session.
const ViewHeader = "X-Console-View"

const defaultViewID = "default"

type contextKey string

const ctxViewID contextKey = "view_id"

// ViewIDFromContext returns the view id, or "default" when none was sent.
func ViewIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return defaultViewID
	}
	if v, ok := ctx.Value(ctxViewID).(string); ok && v != "" {
		return v
	}
	return defaultViewID
}

// WithViewID injects the view identifier into the context.
func WithViewID(ctx context.Context, viewID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxViewID, viewID)
}

// View reads the view header (or the "view" query parameter used by export
// download links) and tags the request context and logs with it.
func View(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewID := normalizeViewID(r.Header.Get(ViewHeader))
			if viewID == "" {
				viewID = normalizeViewID(r.URL.Query().Get("view"))
			}
			if viewID == "" {
				viewID = defaultViewID
			}
			ctx := WithViewID(r.Context(), viewID)
			if logg != nil {
				ctx = logg.WithView(ctx, viewID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func normalizeViewID(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 64 {
		raw = raw[:64]
	}
	return raw
}
