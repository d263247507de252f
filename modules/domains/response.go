package domains

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agencyhq/tenancy/pkg/logger"
	"github.com/agencyhq/tenancy/pkg/tenant"
)

// Response is the envelope of every admin API response.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any, meta map[string]any) {
	writeJSON(w, http.StatusOK, Response{Data: data, Meta: meta})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{Error: &ErrorDetail{Code: code, Message: message}})
}

// classify maps domain errors to a status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, tenant.ErrInvalidDomain):
		return http.StatusUnprocessableEntity, "invalid_domain"
	case errors.Is(err, tenant.ErrNoPendingClaim):
		return http.StatusConflict, "no_pending_claim"
	case errors.Is(err, tenant.ErrDomainMismatch):
		return http.StatusConflict, "domain_mismatch"
	case errors.Is(err, tenant.ErrDomainTaken):
		return http.StatusConflict, "domain_taken"
	case errors.Is(err, tenant.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	level := slog.LevelWarn
	message := err.Error()
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
		message = http.StatusText(status)
	}
	h.log.Log(r.Context(), level, "admin request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		logger.Error(err),
	)

	writeError(w, status, code, message)
}
