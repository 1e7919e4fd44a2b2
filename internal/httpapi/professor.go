package httpapi

import (
	"net/http"

	"github.com/ahinestrog/campusbooks/internal/reservation"
)

type createRequestBody struct {
	ISBN              string `json:"isbn" validate:"required"`
	QuantityRequested int64  `json:"quantity_requested"`
	CourseCode        string `json:"course_code" validate:"max=32"`
	CourseName        string `json:"course_name" validate:"max=200"`
}

type createRequestResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) error {
	var in createRequestBody
	if err := h.decode(r, &in); err != nil {
		if failedOn(err, "isbn") {
			return httpError{Status: http.StatusBadRequest, Code: "MISSING_ISBN", Message: "ISBN is required"}
		}
		return err
	}

	sub, err := h.engine.CreateRequest(r.Context(), identityFrom(r.Context()), reservation.NewRequest{
		ISBN:       in.ISBN,
		Quantity:   in.QuantityRequested,
		CourseCode: in.CourseCode,
		CourseName: in.CourseName,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, createRequestResponse{
		Success:   true,
		RequestID: sub.Request.ID,
		Message:   sub.Message,
	})
}

func (h *Handler) handleProfessorRequests(w http.ResponseWriter, r *http.Request) error {
	views, err := h.query.ListRequestsForProfessor(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, views)
}
