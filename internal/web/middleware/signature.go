package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/notify"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature"

// VerifySignature rejects requests whose body does not match the
// X-Signature HMAC under secret. With an empty secret every request is
// rejected, so an unconfigured gateway cannot post status changes.
// The body is buffered and handed on unchanged.
func VerifySignature(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				reject(w, r, http.StatusBadRequest, "unreadable body")
				return
			}

			sig := r.Header.Get(SignatureHeader)
			if sig == "" {
				reject(w, r, http.StatusUnauthorized, "missing signature")
				return
			}
			if !notify.ValidSignature(secret, body, sig) {
				reject(w, r, http.StatusForbidden, "invalid signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, status int, reason string) {
	slog.Warn("signature: rejected callback",
		"path", r.URL.Path,
		"reason", reason,
		"remote_addr", r.RemoteAddr,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"error":"`+reason+`","message":"Payment callback signature is invalid","code":"PAY001"}`)
}
