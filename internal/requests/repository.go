// Package requests is the professor request store. A request is created
// pending and moves exactly once to approved, partial or rejected.
package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"github.com/ahinestrog/campusbooks/internal/inventory"
	"github.com/ahinestrog/campusbooks/internal/storage"
)

var (
	ErrNotFound   = errors.New("request not found")
	ErrNotPending = errors.New("request is not pending")
)

var dialect = goqu.Dialect("sqlite3")

type Repository struct {
	q storage.Querier
}

// NewRepository binds the store to a connection or an open transaction.
func NewRepository(q storage.Querier) *Repository { return &Repository{q: q} }

// Create inserts r, which must be pending.
func (r *Repository) Create(ctx context.Context, req Request) error {
	if req.Status != StatusPending {
		return fmt.Errorf("requests: create with status %q", req.Status)
	}
	_, err := r.q.ExecContext(ctx, `
INSERT INTO professor_requests(id, professor_id, professor_email, isbn, quantity_requested,
  status, course_code, course_name, requested_at)
VALUES(?,?,?,?,?,?,?,?,?)`,
		req.ID, req.ProfessorID, req.ProfessorEmail, req.ISBN, req.QuantityRequested,
		string(req.Status), req.CourseCode, req.CourseName, req.RequestedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("requests: insert %s: %w", req.ID, err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (Request, error) {
	var row requestRow
	err := r.q.GetContext(ctx, &row, `SELECT `+requestColumns+` FROM professor_requests WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, fmt.Errorf("requests: get %s: %w", id, err)
	}
	return row.toRequest(), nil
}

// Resolve applies the terminal transition to a pending request. The status
// guard is part of the UPDATE, so a request that another writer already
// processed yields ErrNotPending and is left untouched.
func (r *Repository) Resolve(ctx context.Context, id string, res Resolution) error {
	if !res.Status.Terminal() {
		return fmt.Errorf("requests: resolve %s to non-terminal status %q", id, res.Status)
	}
	out, err := r.q.ExecContext(ctx, `
UPDATE professor_requests SET
  status = ?,
  quantity_approved = ?,
  rejection_reason = ?,
  processed_at = ?,
  processed_by = ?
WHERE id = ? AND status = 'pending'`,
		string(res.Status), res.QuantityApproved, res.RejectionReason,
		res.ProcessedAt.UnixMilli(), res.ProcessedBy, id)
	if err != nil {
		return fmt.Errorf("requests: resolve %s: %w", id, err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return fmt.Errorf("requests: resolve %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// ListFilter selects requests for listings. Empty fields do not filter.
type ListFilter struct {
	ProfessorID    string
	ProfessorEmail string
	ISBN           string
	Status         Status
	// BookSearch keeps requests whose book matches the inventory listing
	// search. Requests for books not in the inventory never match it.
	BookSearch string
}

// List returns matching requests joined to their book, newest first.
// Requests whose book row is missing are still returned.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Listed, error) {
	ds := dialect.From(goqu.T("professor_requests").As("r")).
		LeftJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.isbn").Eq(goqu.I("r.isbn")))).
		Select(
			goqu.I("r.id"), goqu.I("r.professor_id"), goqu.I("r.professor_email"), goqu.I("r.isbn"),
			goqu.I("r.quantity_requested"), goqu.I("r.quantity_approved"), goqu.I("r.status"),
			goqu.I("r.course_code"), goqu.I("r.course_name"), goqu.I("r.rejection_reason"),
			goqu.I("r.requested_at"), goqu.I("r.processed_at"), goqu.I("r.processed_by"),
			goqu.I("b.title").As("book_title"),
			goqu.I("b.authors").As("book_authors"),
			goqu.I("b.thumbnail_url").As("book_thumbnail"),
			goqu.I("b.quantity_available").As("book_quantity"),
		)

	where := goqu.Ex{}
	if f.ProfessorID != "" {
		where["r.professor_id"] = f.ProfessorID
	}
	if f.ProfessorEmail != "" {
		where["r.professor_email"] = f.ProfessorEmail
	}
	if f.ISBN != "" {
		where["r.isbn"] = f.ISBN
	}
	if f.Status != "" {
		where["r.status"] = string(f.Status)
	}
	if len(where) > 0 {
		ds = ds.Where(where)
	}
	if f.BookSearch != "" {
		ds = ds.Where(inventory.MatchTitleOrISBN("b", f.BookSearch))
	}
	ds = ds.Order(goqu.I("r.requested_at").Desc(), goqu.I("r.id").Desc())

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("requests: build list query: %w", err)
	}
	var rows []listedRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("requests: list: %w", err)
	}
	out := make([]Listed, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toListed())
	}
	return out, nil
}
