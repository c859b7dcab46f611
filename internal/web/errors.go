package web

// errors.go turns engine errors into JSON responses.
//
// The technical error is logged with the request ID; the client only sees
// the mapped core.UserMessage plus the structured details of validation and
// duplicate failures, which carry no internals.

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/logging"
)

// retryAfterSeconds is advertised on responses the client should retry.
const retryAfterSeconds = 2

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error      string                 `json:"error"`
	Message    string                 `json:"message"`
	Action     string                 `json:"action,omitempty"`
	Code       string                 `json:"code"`
	Fields     []core.ValidationError `json:"fields,omitempty"`
	Duplicates []core.DuplicateMatch  `json:"duplicates,omitempty"`
}

// statusFor maps an engine failure to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, core.ErrTooManyImports) {
		return http.StatusServiceUnavailable
	}
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindDuplicate, core.KindAllocationExhausted, core.KindIdempotencyMismatch:
		return http.StatusConflict
	case core.KindTransactionConflict, core.KindTransactionTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var e *core.Error
	if errors.As(err, &e) {
		resp.Fields = e.Fields
		resp.Duplicates = e.Duplicates
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, status, resp)
}

// writeError writes an error produced by the web layer itself.
func writeError(w http.ResponseWriter, status int, code, message, action string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Message: message,
		Action:  action,
		Code:    code,
	})
}
