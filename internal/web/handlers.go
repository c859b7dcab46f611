package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

// idempotencyHeader carries the client's retry key. It wins over a key in the body.
const idempotencyHeader = "Idempotency-Key"

// decodeJSON reads the request body into v. On failure it writes the
// response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "REQ002",
			"Request body is too large", "Send at most "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
		return false
	}
	writeError(w, http.StatusBadRequest, "REQ001", "Request body is not valid JSON", "Check the request format")
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.ImportLimiterStatus(),
	})
}

func (s *Server) handleRegisterIndividual(w http.ResponseWriter, r *http.Request) {
	var req core.IndividualRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if key := strings.TrimSpace(r.Header.Get(idempotencyHeader)); key != "" {
		req.IdempotencyKey = key
	}

	res, err := s.service.RegisterIndividual(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, registrationStatus(res), res)
}

func (s *Server) handleRegisterGroup(w http.ResponseWriter, r *http.Request) {
	var req core.GroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if key := strings.TrimSpace(r.Header.Get(idempotencyHeader)); key != "" {
		req.IdempotencyKey = key
	}

	res, err := s.service.RegisterGroup(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, registrationStatus(res), res)
}

// registrationStatus is 201 for a new registration and 200 for a replay.
func registrationStatus(res *core.RegistrationResult) int {
	if res.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetRegistration(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// importRequest is the body of both import endpoints.
type importRequest struct {
	Rows []core.ImportRow `json:"rows"`
}

func (s *Server) handleValidateImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := s.service.Validate(r.Context(), req.Rows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := s.service.Import(r.Context(), req.Rows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// paymentCallback is the gateway's notification body. Status uses the
// gateway's own spelling.
type paymentCallback struct {
	PaymentCode string `json:"paymentCode"`
	Status      string `json:"status"`
	Reference   string `json:"reference"`
}

func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var cb paymentCallback
	if !decodeJSON(w, r, &cb) {
		return
	}

	status, err := core.ParsePaymentStatus(cb.Status)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	pay, err := s.service.ApplyPaymentStatus(r.Context(), core.PaymentUpdate{
		Code:      cb.PaymentCode,
		Status:    status,
		Reference: cb.Reference,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pay)
}

func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	pt := s.service.Pricing()
	minMembers, maxMembers := pt.GroupBounds()
	writeJSON(w, http.StatusOK, map[string]any{
		"categories":  pt.Categories(),
		"jerseySizes": pt.JerseySizes(),
		"group": map[string]int{
			"minMembers": minMembers,
			"maxMembers": maxMembers,
		},
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var early *bool
	if raw := q.Get("early"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondError(w, r, core.Invalid("quote", core.ValidationError{
				Field: "early", Value: raw, Message: "must be true or false",
			}))
			return
		}
		early = &v
	}

	jersey := q.Get("jersey")
	if jersey == "" {
		jersey = string(core.DefaultImportJersey)
	}

	quote, err := s.service.Quote(q.Get("category"), jersey, early)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
