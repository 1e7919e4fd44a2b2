// Package query builds the read models shown to professors and admins. Every
// view is computed from the stores at read time; nothing here is cached.
package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ahinestrog/campusbooks/internal/inventory"
	"github.com/ahinestrog/campusbooks/internal/isbn"
	"github.com/ahinestrog/campusbooks/internal/requests"
	"github.com/ahinestrog/campusbooks/internal/storage"
)

var (
	ErrInvalidQuery = errors.New("search query must be at least 2 characters")
	ErrInvalidISBN  = errors.New("invalid isbn")
)

const (
	minSearchLen = 2
	searchLimit  = 10
)

type Service struct {
	books *inventory.Repository
	reqs  *requests.Repository
	now   func() time.Time
}

func NewService(q storage.Querier) *Service {
	return &Service{
		books: inventory.NewRepository(q),
		reqs:  requests.NewRepository(q),
		now:   time.Now,
	}
}

// WithClock returns a copy of s using now for relative timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	return &c
}

// BookFilter narrows the admin book listing.
type BookFilter struct {
	Search string
	Sort   string
	Order  string
}

// ListBooksWithPendingCounts returns books with their pending requests
// attached, newest request first.
func (s *Service) ListBooksWithPendingCounts(ctx context.Context, f BookFilter) ([]BookView, error) {
	search := strings.TrimSpace(f.Search)
	books, err := s.books.List(ctx, inventory.ListFilter{
		Search: search,
		Sort:   inventory.ParseSortField(f.Sort),
		Desc:   strings.EqualFold(f.Order, "desc"),
	})
	if err != nil {
		return nil, err
	}
	out := make([]BookView, 0, len(books))
	if len(books) == 0 {
		return out, nil
	}

	pending, err := s.reqs.List(ctx, requests.ListFilter{Status: requests.StatusPending, BookSearch: search})
	if err != nil {
		return nil, err
	}
	byISBN := make(map[string][]PendingRequest, len(books))
	for _, p := range pending {
		byISBN[p.ISBN] = append(byISBN[p.ISBN], PendingRequest{
			ID:                p.ID,
			ProfessorID:       p.ProfessorID,
			ProfessorEmail:    p.ProfessorEmail,
			QuantityRequested: p.QuantityRequested,
			CourseCode:        p.CourseCode,
			CourseName:        p.CourseName,
			RequestedAt:       p.RequestedAt,
		})
	}

	for _, b := range books {
		prs := byISBN[b.ISBN]
		if prs == nil {
			prs = []PendingRequest{}
		}
		out = append(out, BookView{
			ISBN:              b.ISBN,
			Title:             b.Title,
			Subtitle:          b.Subtitle,
			Authors:           b.Authors,
			Publisher:         b.Publisher,
			ThumbnailURL:      b.ThumbnailURL,
			QuantityAvailable: b.QuantityAvailable,
			ScanCount:         b.ScanCount,
			LastScannedAt:     b.LastScannedAt,
			PendingCount:      len(prs),
			PendingRequests:   prs,
		})
	}
	return out, nil
}

// ListRequestsForProfessor returns the professor's own requests.
func (s *Service) ListRequestsForProfessor(ctx context.Context, professorID string) ([]RequestView, error) {
	listed, err := s.reqs.List(ctx, requests.ListFilter{ProfessorID: professorID})
	if err != nil {
		return nil, err
	}
	return s.views(listed, false), nil
}

// AdminFilter narrows the admin request listing. Empty fields do not filter.
type AdminFilter struct {
	Status         requests.Status
	ProfessorEmail string
	ISBN           string
}

func (s *Service) ListRequestsForAdmin(ctx context.Context, f AdminFilter) ([]RequestView, error) {
	lf := requests.ListFilter{
		Status:         f.Status,
		ProfessorEmail: strings.TrimSpace(f.ProfessorEmail),
	}
	if f.ISBN != "" {
		lf.ISBN = isbn.Normalize(f.ISBN)
	}
	listed, err := s.reqs.List(ctx, lf)
	if err != nil {
		return nil, err
	}
	return s.views(listed, true), nil
}

func (s *Service) views(listed []requests.Listed, withStock bool) []RequestView {
	now := s.now()
	out := make([]RequestView, 0, len(listed))
	for _, l := range listed {
		out = append(out, requestView(l, now, withStock))
	}
	return out
}

// SearchBooks matches q against ISBN, title and authors, books with the
// most copies first.
func (s *Service) SearchBooks(ctx context.Context, q string) (SearchResult, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < minSearchLen {
		return SearchResult{}, ErrInvalidQuery
	}
	term := q
	// "978-0-14..." should match the stored normalized form.
	if n := isbn.Normalize(q); looksLikeISBN(n) {
		term = n
	}
	books, err := s.books.Search(ctx, term, searchLimit)
	if err != nil {
		return SearchResult{}, err
	}
	hits := make([]SearchHit, 0, len(books))
	for _, b := range books {
		hits = append(hits, SearchHit{
			ISBN:              b.ISBN,
			Title:             b.Title,
			Authors:           b.Authors,
			Publisher:         b.Publisher,
			ThumbnailURL:      b.ThumbnailURL,
			QuantityAvailable: b.QuantityAvailable,
		})
	}
	return SearchResult{Query: q, Count: len(hits), Results: hits}, nil
}

// GetBook looks a book up by any formatting of a valid ISBN. Unknown books
// yield inventory.ErrBookNotFound.
func (s *Service) GetBook(ctx context.Context, raw string) (BookDetail, error) {
	code, ok := isbn.Parse(raw)
	if !ok {
		return BookDetail{}, ErrInvalidISBN
	}
	b, err := s.books.Get(ctx, code)
	if err != nil {
		return BookDetail{}, err
	}
	return DetailOf(b), nil
}

func looksLikeISBN(s string) bool {
	if len(s) < minSearchLen {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != 'X' {
			return false
		}
	}
	return true
}
