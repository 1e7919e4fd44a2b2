package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahinestrog/campusbooks/internal/auth"
	"github.com/ahinestrog/campusbooks/internal/events"
	"github.com/ahinestrog/campusbooks/internal/inventory"
	"github.com/ahinestrog/campusbooks/internal/isbn"
	"github.com/ahinestrog/campusbooks/internal/requests"
)

// NewRequest is what a professor submits.
type NewRequest struct {
	ISBN       string
	Quantity   int64
	CourseCode string
	CourseName string
}

type requestEvent struct {
	RequestID         string          `json:"request_id"`
	ISBN              string          `json:"isbn"`
	ProfessorID       string          `json:"professor_id"`
	Status            requests.Status `json:"status"`
	QuantityRequested int64           `json:"quantity_requested"`
	QuantityApproved  *int64          `json:"quantity_approved,omitempty"`
	ProcessedBy       *string         `json:"processed_by,omitempty"`
}

func eventFor(r requests.Request) requestEvent {
	return requestEvent{
		RequestID:         r.ID,
		ISBN:              r.ISBN,
		ProfessorID:       r.ProfessorID,
		Status:            r.Status,
		QuantityRequested: r.QuantityRequested,
		QuantityApproved:  r.QuantityApproved,
		ProcessedBy:       r.ProcessedBy,
	}
}

// Submission is a newly filed request.
type Submission struct {
	Request   requests.Request
	BookTitle string
	Message   string
}

// CreateRequest files a pending request for copies of an existing book.
// Stock is not checked or reserved here; that happens on approval.
func (e *Engine) CreateRequest(ctx context.Context, prof auth.Identity, in NewRequest) (Submission, error) {
	if in.Quantity < 1 {
		return Submission{}, newError(ErrInvalidQuantity, "Quantity must be at least 1", nil)
	}
	code, ok := isbn.Parse(in.ISBN)
	if !ok {
		return Submission{}, newError(ErrInvalidISBN, "Invalid ISBN format", nil)
	}

	book, err := inventory.NewRepository(e.db).Get(ctx, code)
	if err != nil {
		if errors.Is(err, inventory.ErrBookNotFound) {
			return Submission{}, newError(ErrBookNotFound, "Book not found", nil)
		}
		e.log.Error().Err(err).Str("isbn", code).Msg("book lookup failed")
		return Submission{}, persistence("Failed to create request", err)
	}

	req := requests.Request{
		ID:                e.newID(),
		ProfessorID:       prof.UserID,
		ProfessorEmail:    prof.Email,
		ISBN:              code,
		QuantityRequested: in.Quantity,
		Status:            requests.StatusPending,
		CourseCode:        optional(in.CourseCode),
		CourseName:        optional(in.CourseName),
		RequestedAt:       e.now(),
	}
	repo := requests.NewRepository(e.db)
	wctx, cancel := e.detach(ctx)
	defer cancel()
	if err := e.withRetry(wctx, func(ctx context.Context) error { return repo.Create(ctx, req) }); err != nil {
		e.log.Error().Err(err).Str("isbn", code).Str("professor", prof.UserID).Msg("request insert failed")
		return Submission{}, persistence("Failed to create request", err)
	}
	if e.metrics != nil {
		e.metrics.RequestsCreated.Inc()
	}
	e.log.Info().Str("request_id", req.ID).Str("isbn", code).Int64("quantity", in.Quantity).Msg("request created")
	e.publish(ctx, events.RequestCreated, eventFor(req))
	return Submission{
		Request:   req,
		BookTitle: book.Title,
		Message:   fmt.Sprintf("Request submitted for %q", book.Title),
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
