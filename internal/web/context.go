package web

import (
	"net/http"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/web/middleware"
)

// requestMetadata tags the request context with the submitting client so
// registration logs can name it.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithClient(r.Context(), middleware.ClientIP(r), r.UserAgent())
		ctx = core.ContextWithChannel(ctx, "http")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
