package query

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ahinestrog/campusbooks/internal/inventory"
	"github.com/ahinestrog/campusbooks/internal/requests"
	"github.com/ahinestrog/campusbooks/internal/storage"
)

// BookDetail is the full public shape of a book.
type BookDetail struct {
	ISBN              string          `json:"isbn"`
	GoogleBooksID     *string         `json:"google_books_id"`
	Title             string          `json:"title"`
	Subtitle          *string         `json:"subtitle"`
	Authors           []string        `json:"authors"`
	Publisher         *string         `json:"publisher"`
	PublishedDate     *string         `json:"published_date"`
	Description       *string         `json:"description"`
	PageCount         *int64          `json:"page_count"`
	Categories        []string        `json:"categories"`
	Language          *string         `json:"language"`
	ThumbnailURL      *string         `json:"thumbnail_url"`
	SmallThumbnailURL *string         `json:"small_thumbnail_url"`
	AverageRating     *float64        `json:"average_rating"`
	RatingsCount      *int64          `json:"ratings_count"`
	Metadata          storage.RawJSON `json:"metadata,omitempty"`
	QuantityAvailable int64           `json:"quantity_available"`
	ScanCount         int64           `json:"scan_count"`
	FirstScannedAt    time.Time       `json:"first_scanned_at"`
	LastScannedAt     time.Time       `json:"last_scanned_at"`
}

func DetailOf(b inventory.Book) BookDetail {
	return BookDetail{
		ISBN:              b.ISBN,
		GoogleBooksID:     b.GoogleBooksID,
		Title:             b.Title,
		Subtitle:          b.Subtitle,
		Authors:           b.Authors,
		Publisher:         b.Publisher,
		PublishedDate:     b.PublishedDate,
		Description:       b.Description,
		PageCount:         b.PageCount,
		Categories:        b.Categories,
		Language:          b.Language,
		ThumbnailURL:      b.ThumbnailURL,
		SmallThumbnailURL: b.SmallThumbnailURL,
		AverageRating:     b.AverageRating,
		RatingsCount:      b.RatingsCount,
		QuantityAvailable: b.QuantityAvailable,
		ScanCount:         b.ScanCount,
		FirstScannedAt:    b.FirstScannedAt,
		LastScannedAt:     b.LastScannedAt,
	}
}

// SearchHit is a compact search result.
type SearchHit struct {
	ISBN              string   `json:"isbn"`
	Title             string   `json:"title"`
	Authors           []string `json:"authors"`
	Publisher         *string  `json:"publisher"`
	ThumbnailURL      *string  `json:"thumbnail_url"`
	QuantityAvailable int64    `json:"quantity_available"`
}

type SearchResult struct {
	Query   string      `json:"query"`
	Count   int         `json:"count"`
	Results []SearchHit `json:"results"`
}

// PendingRequest is one pending request shown under its book.
type PendingRequest struct {
	ID                string    `json:"id"`
	ProfessorID       string    `json:"professor_id"`
	ProfessorEmail    string    `json:"professor_email"`
	QuantityRequested int64     `json:"quantity_requested"`
	CourseCode        *string   `json:"course_code"`
	CourseName        *string   `json:"course_name"`
	RequestedAt       time.Time `json:"requested_at"`
}

// BookView is a book in the admin listing with its live pending requests.
type BookView struct {
	ISBN              string           `json:"isbn"`
	Title             string           `json:"title"`
	Subtitle          *string          `json:"subtitle"`
	Authors           []string         `json:"authors"`
	Publisher         *string          `json:"publisher"`
	ThumbnailURL      *string          `json:"thumbnail_url"`
	QuantityAvailable int64            `json:"quantity_available"`
	ScanCount         int64            `json:"scan_count"`
	LastScannedAt     time.Time        `json:"last_scanned_at"`
	PendingCount      int              `json:"pending_requests_count"`
	PendingRequests   []PendingRequest `json:"pending_requests"`
}

// RequestView is a request joined to its book for display.
type RequestView struct {
	ID                string          `json:"id"`
	ProfessorID       string          `json:"professor_id"`
	ProfessorEmail    string          `json:"professor_email"`
	ISBN              string          `json:"isbn"`
	QuantityRequested int64           `json:"quantity_requested"`
	QuantityApproved  *int64          `json:"quantity_approved"`
	Status            requests.Status `json:"status"`
	CourseCode        *string         `json:"course_code"`
	CourseName        *string         `json:"course_name"`
	RejectionReason   *string         `json:"rejection_reason"`
	RequestedAt       time.Time       `json:"requested_at"`
	RequestedAgo      string          `json:"requested_ago"`
	ProcessedAt       *time.Time      `json:"processed_at"`
	ProcessedBy       *string         `json:"processed_by"`
	BookTitle         string          `json:"book_title"`
	BookAuthors       []string        `json:"book_authors"`
	BookThumbnail     *string         `json:"book_thumbnail"`
	// QuantityAvailable is only filled in for admin listings.
	QuantityAvailable *int64 `json:"quantity_available,omitempty"`
}

const unknownBook = "Unknown Book"

func requestView(l requests.Listed, now time.Time, withStock bool) RequestView {
	v := RequestView{
		ID:                l.ID,
		ProfessorID:       l.ProfessorID,
		ProfessorEmail:    l.ProfessorEmail,
		ISBN:              l.ISBN,
		QuantityRequested: l.QuantityRequested,
		QuantityApproved:  l.QuantityApproved,
		Status:            l.Status,
		CourseCode:        l.CourseCode,
		CourseName:        l.CourseName,
		RejectionReason:   l.RejectionReason,
		RequestedAt:       l.RequestedAt,
		RequestedAgo:      humanize.RelTime(l.RequestedAt, now, "ago", "from now"),
		ProcessedAt:       l.ProcessedAt,
		ProcessedBy:       l.ProcessedBy,
		BookTitle:         unknownBook,
		BookAuthors:       []string{},
	}
	if l.Book.Present {
		v.BookTitle = l.Book.Title
		v.BookAuthors = l.Book.Authors
		v.BookThumbnail = l.Book.ThumbnailURL
	}
	if withStock {
		n := l.Book.QuantityAvailable
		v.QuantityAvailable = &n
	}
	return v
}
