package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/campusbooks/internal/auth"
	"github.com/ahinestrog/campusbooks/internal/inventory"
	"github.com/ahinestrog/campusbooks/internal/query"
	"github.com/ahinestrog/campusbooks/internal/reservation"
)

type httpError struct {
	Status  int
	Code    string
	Message string
}

func (e httpError) Error() string {
	return e.Code + ": " + e.Message
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func badRequest(msg string) httpError {
	return httpError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: msg}
}

var statusByKind = map[reservation.Kind]int{
	reservation.KindValidation:          http.StatusBadRequest,
	reservation.KindNotFound:            http.StatusNotFound,
	reservation.KindConflict:            http.StatusBadRequest,
	reservation.KindUpstreamUnavailable: http.StatusServiceUnavailable,
	reservation.KindPersistence:         http.StatusInternalServerError,
}

// toHTTP maps err onto a status, code and caller-safe message.
func toHTTP(err error) httpError {
	var he httpError
	if errors.As(err, &he) {
		return he
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return badRequest("Invalid request: " + ve[0].Field() + " failed " + ve[0].Tag())
	}
	if re, ok := reservation.AsError(err); ok {
		status, ok := statusByKind[re.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		return httpError{Status: status, Code: re.Code, Message: re.Message}
	}
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return httpError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Unauthorized"}
	case errors.Is(err, auth.ErrForbidden):
		return httpError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "Forbidden: Admin access required"}
	case errors.Is(err, query.ErrInvalidQuery):
		return httpError{Status: http.StatusBadRequest, Code: "INVALID_QUERY", Message: "Search query must be at least 2 characters"}
	case errors.Is(err, query.ErrInvalidISBN):
		return httpError{Status: http.StatusBadRequest, Code: "INVALID_ISBN", Message: "Invalid ISBN format"}
	case errors.Is(err, inventory.ErrBookNotFound):
		return httpError{Status: http.StatusNotFound, Code: "BOOK_NOT_FOUND", Message: "Book not found"}
	}
	return httpError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "Internal server error"}
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	he := toHTTP(err)
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &h.logger
	}
	ev := logger.Debug()
	if he.Status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).Str("operation", operation).Int("status", he.Status).Str("code", he.Code).Msg("request failed")
	_ = writeJSON(w, he.Status, errorBody{Success: false, Error: he.Message, Code: he.Code})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and runs struct validation on it. An
// empty body decodes as {} so validation reports the missing fields.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("Invalid JSON body")
	}
	return h.validate.Struct(dst)
}

// failedOn reports whether validation of err failed on the named field.
func failedOn(err error, field string) bool {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return false
	}
	for _, fe := range ve {
		if fe.Field() == field {
			return true
		}
	}
	return false
}
