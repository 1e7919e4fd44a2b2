package requests

import (
	"database/sql"
	"time"

	"github.com/ahinestrog/campusbooks/internal/storage"
)

// Status of a professor request. Pending is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPartial  Status = "partial"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPartial, StatusRejected:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s != StatusPending && s.Valid() }

// Request is a professor's ask for copies of one ISBN.
type Request struct {
	ID                string
	ProfessorID       string
	ProfessorEmail    string
	ISBN              string
	QuantityRequested int64
	QuantityApproved  *int64
	Status            Status
	CourseCode        *string
	CourseName        *string
	RejectionReason   *string
	RequestedAt       time.Time
	ProcessedAt       *time.Time
	ProcessedBy       *string
}

// Resolution is the single terminal transition applied to a pending request.
type Resolution struct {
	Status           Status
	QuantityApproved *int64
	RejectionReason  *string
	ProcessedAt      time.Time
	ProcessedBy      string
}

// BookSummary carries the joined book fields a request listing displays.
// Present is false when the referenced book row does not exist.
type BookSummary struct {
	Present           bool
	Title             string
	Authors           []string
	ThumbnailURL      *string
	QuantityAvailable int64
}

// Listed is a request together with its optional book.
type Listed struct {
	Request
	Book BookSummary
}

type requestRow struct {
	ID                string         `db:"id"`
	ProfessorID       string         `db:"professor_id"`
	ProfessorEmail    string         `db:"professor_email"`
	ISBN              string         `db:"isbn"`
	QuantityRequested int64          `db:"quantity_requested"`
	QuantityApproved  sql.NullInt64  `db:"quantity_approved"`
	Status            string         `db:"status"`
	CourseCode        sql.NullString `db:"course_code"`
	CourseName        sql.NullString `db:"course_name"`
	RejectionReason   sql.NullString `db:"rejection_reason"`
	RequestedAt       int64          `db:"requested_at"`
	ProcessedAt       sql.NullInt64  `db:"processed_at"`
	ProcessedBy       sql.NullString `db:"processed_by"`
}

type listedRow struct {
	requestRow
	BookTitle     sql.NullString     `db:"book_title"`
	BookAuthors   storage.StringList `db:"book_authors"`
	BookThumbnail sql.NullString     `db:"book_thumbnail"`
	BookQuantity  sql.NullInt64      `db:"book_quantity"`
}

const requestColumns = `id, professor_id, professor_email, isbn, quantity_requested,
quantity_approved, status, course_code, course_name, rejection_reason,
requested_at, processed_at, processed_by`

func (r requestRow) toRequest() Request {
	out := Request{
		ID:                r.ID,
		ProfessorID:       r.ProfessorID,
		ProfessorEmail:    r.ProfessorEmail,
		ISBN:              r.ISBN,
		QuantityRequested: r.QuantityRequested,
		Status:            Status(r.Status),
		RequestedAt:       storage.MillisToTime(r.RequestedAt),
	}
	if r.QuantityApproved.Valid {
		n := r.QuantityApproved.Int64
		out.QuantityApproved = &n
	}
	if r.CourseCode.Valid {
		s := r.CourseCode.String
		out.CourseCode = &s
	}
	if r.CourseName.Valid {
		s := r.CourseName.String
		out.CourseName = &s
	}
	if r.RejectionReason.Valid {
		s := r.RejectionReason.String
		out.RejectionReason = &s
	}
	if r.ProcessedAt.Valid {
		t := storage.MillisToTime(r.ProcessedAt.Int64)
		out.ProcessedAt = &t
	}
	if r.ProcessedBy.Valid {
		s := r.ProcessedBy.String
		out.ProcessedBy = &s
	}
	return out
}

func (r listedRow) toListed() Listed {
	l := Listed{Request: r.requestRow.toRequest()}
	if r.BookTitle.Valid {
		l.Book = BookSummary{
			Present:           true,
			Title:             r.BookTitle.String,
			Authors:           []string(r.BookAuthors),
			QuantityAvailable: r.BookQuantity.Int64,
		}
		if r.BookThumbnail.Valid {
			s := r.BookThumbnail.String
			l.Book.ThumbnailURL = &s
		}
	}
	if l.Book.Authors == nil {
		l.Book.Authors = []string{}
	}
	return l
}
