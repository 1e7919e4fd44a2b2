package httpapi

import (
	"net/http"

	"github.com/ahinestrog/campusbooks/internal/auth"
	"github.com/ahinestrog/campusbooks/internal/query"
	"github.com/ahinestrog/campusbooks/internal/requests"
	"github.com/ahinestrog/campusbooks/internal/reservation"
)

type decisionResponse struct {
	Success           bool            `json:"success"`
	Message           string          `json:"message"`
	RequestID         string          `json:"request_id"`
	Status            requests.Status `json:"status"`
	QuantityApproved  *int64          `json:"quantity_approved"`
	QuantityAvailable int64           `json:"quantity_available"`
}

func decided(w http.ResponseWriter, d reservation.Decision) error {
	return writeJSON(w, http.StatusOK, decisionResponse{
		Success:           true,
		Message:           d.Message,
		RequestID:         d.Request.ID,
		Status:            d.Request.Status,
		QuantityApproved:  d.Request.QuantityApproved,
		QuantityAvailable: d.QuantityAvailable,
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request, admin auth.Admin) error {
	d, err := h.engine.Approve(r.Context(), admin, r.PathValue("id"))
	if err != nil {
		return err
	}
	return decided(w, d)
}

type partialBody struct {
	QuantityApproved *int64 `json:"quantity_approved" validate:"required"`
}

func (h *Handler) handlePartial(w http.ResponseWriter, r *http.Request, admin auth.Admin) error {
	var in partialBody
	if err := h.decode(r, &in); err != nil {
		if failedOn(err, "quantity_approved") {
			return httpError{
				Status:  http.StatusBadRequest,
				Code:    "INVALID_QUANTITY",
				Message: "Invalid quantity_approved: must be at least 1",
			}
		}
		return err
	}
	d, err := h.engine.Partial(r.Context(), admin, r.PathValue("id"), *in.QuantityApproved)
	if err != nil {
		return err
	}
	return decided(w, d)
}

type rejectBody struct {
	RejectionReason string `json:"rejection_reason" validate:"max=1000"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request, admin auth.Admin) error {
	var in rejectBody
	if err := h.decode(r, &in); err != nil {
		return err
	}
	d, err := h.engine.Reject(r.Context(), admin, r.PathValue("id"), in.RejectionReason)
	if err != nil {
		return err
	}
	return decided(w, d)
}

func (h *Handler) handleAdminRequests(w http.ResponseWriter, r *http.Request, _ auth.Admin) error {
	q := r.URL.Query()
	f := query.AdminFilter{
		ProfessorEmail: q.Get("professor_email"),
		ISBN:           q.Get("isbn"),
	}
	if s := q.Get("status"); s != "" && s != "all" {
		f.Status = requests.Status(s)
		if !f.Status.Valid() {
			return badRequest("Invalid status: " + s)
		}
	}
	views, err := h.query.ListRequestsForAdmin(r.Context(), f)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleAdminBooks(w http.ResponseWriter, r *http.Request, _ auth.Admin) error {
	q := r.URL.Query()
	books, err := h.query.ListBooksWithPendingCounts(r.Context(), query.BookFilter{
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, books)
}
