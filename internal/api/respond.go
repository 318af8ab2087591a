package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/leadstate"
	"github.com/aatumaykin/leadbot/internal/store"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string, details ...string) {
	JSON(w, status, ErrorBody{Error: message, Details: details})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrVersionConflict),
		errors.Is(err, leadstate.ErrInvalidTransition),
		errors.Is(err, leadstate.ErrTerminalLead),
		errors.Is(err, agent.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, agent.ErrInvalidConfig):
		return http.StatusUnprocessableEntity
	case errors.Is(err, agent.ErrInvalidReply),
		errors.Is(err, agent.ErrInvalidLead):
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Validation failures joined with
// errors.Join are returned as details.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorCtx(r.Context(), "API request failed", err)
	}
	var details []string
	var verr *agent.ValidationError
	if errors.As(err, &verr) {
		for _, p := range verr.Problems {
			details = append(details, p.Error())
		}
	}
	Error(w, status, err.Error(), details...)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
