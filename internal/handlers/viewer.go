package handlers

import (
	"net/http"
	"strings"

	"github.com/kalitka1293/instagram-scan/internal/platform/httpx"
	"github.com/kalitka1293/instagram-scan/internal/platform/requestctx"
)

// DefaultViewerHeader carries the operator identity supplied by the host shell.
const DefaultViewerHeader = "X-Viewer-ID"

const maxViewerIDLength = 128

// RequireViewer attaches the viewer identity from header to the request context and rejects
// requests without one.
func RequireViewer(header string) func(http.Handler) http.Handler {
	header = strings.TrimSpace(header)
	if header == "" {
		header = DefaultViewerHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := strings.TrimSpace(r.Header.Get(header))
			if viewer == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("viewer_required", "viewer identity required", http.StatusUnauthorized))
				return
			}
			if len(viewer) > maxViewerIDLength {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_viewer", "viewer identity too long", http.StatusBadRequest))
				return
			}
			ctx := requestctx.WithViewer(r.Context(), viewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
