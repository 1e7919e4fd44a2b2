package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ahinestrog/campusbooks/internal/query"
)

type scanRequest struct {
	ISBN      string  `json:"isbn" validate:"required"`
	ScannerID *string `json:"scanner_id" validate:"omitempty,max=128"`
}

type scanResponse struct {
	Success bool              `json:"success"`
	ScanID  string            `json:"scan_id"`
	Book    *query.BookDetail `json:"book"`
	Created bool              `json:"created"`
	Warning string            `json:"warning,omitempty"`
}

// scanner checks the shared scanner token when one is configured.
func (h *Handler) scanner(fn handlerFunc) handlerFunc {
	if h.scannerToken == "" {
		return fn
	}
	want := []byte(h.scannerToken)
	return func(w http.ResponseWriter, r *http.Request) error {
		got := []byte(r.Header.Get(headerScannerToken))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return httpError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Unauthorized"}
		}
		return fn(w, r)
	}
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) error {
	var in scanRequest
	if err := h.decode(r, &in); err != nil {
		if failedOn(err, "isbn") {
			return httpError{Status: http.StatusBadRequest, Code: "MISSING_ISBN", Message: "ISBN is required"}
		}
		return err
	}
	if in.ScannerID != nil && strings.TrimSpace(*in.ScannerID) == "" {
		in.ScannerID = nil
	}

	res, err := h.engine.RecordScan(r.Context(), in.ISBN, in.ScannerID)
	if err != nil {
		return err
	}
	out := scanResponse{Success: true, ScanID: res.ScanID, Created: res.Created, Warning: res.Warning}
	if res.Book != nil {
		d := query.DetailOf(*res.Book)
		out.Book = &d
	}
	return writeJSON(w, http.StatusOK, out)
}

type endpointInfo struct {
	Method string            `json:"method"`
	Path   string            `json:"path"`
	Body   map[string]string `json:"body"`
}

func (h *Handler) handleScanInfo(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{
		"message": "ISBN Scanner API",
		"version": "1.0.0",
		"endpoints": map[string]endpointInfo{
			"scan": {
				Method: http.MethodPost,
				Path:   "/api/scan",
				Body: map[string]string{
					"isbn":       "string (required)",
					"scanner_id": "string (optional)",
				},
			},
		},
	})
}
