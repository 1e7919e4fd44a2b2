// Package inventory is the book inventory store: one row per ISBN holding
// available stock and scan statistics, plus the append-only scan log.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/ahinestrog/campusbooks/internal/storage"
)

var (
	ErrBookNotFound      = errors.New("book not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError reports a rejected decrement together with the
// stock level observed inside the same transaction.
type InsufficientStockError struct {
	ISBN  string
	Need  int64
	Avail int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: need %d, available %d", e.ISBN, e.Need, e.Avail)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

var dialect = goqu.Dialect("sqlite3")

type Repository struct {
	q storage.Querier
}

// NewRepository binds the store to a connection or an open transaction.
func NewRepository(q storage.Querier) *Repository { return &Repository{q: q} }

func (r *Repository) Get(ctx context.Context, isbn string) (Book, error) {
	var row bookRow
	err := r.q.GetContext(ctx, &row, `SELECT `+bookColumns+` FROM books WHERE isbn=?`, isbn)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("inventory: get %s: %w", isbn, err)
	}
	return row.toBook(), nil
}

// InsertScan appends a scan log entry.
func (r *Repository) InsertScan(ctx context.Context, s Scan) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO scanned_books(id, isbn, scanner_id, scanned_at) VALUES(?,?,?,?)`,
		s.ID, s.ISBN, s.ScannerID, s.ScannedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("inventory: insert scan: %w", err)
	}
	return nil
}

// CountScans returns how many scan log entries exist for isbn.
func (r *Repository) CountScans(ctx context.Context, isbn string) (int64, error) {
	var n int64
	if err := r.q.GetContext(ctx, &n, `SELECT COUNT(1) FROM scanned_books WHERE isbn=?`, isbn); err != nil {
		return 0, fmt.Errorf("inventory: count scans: %w", err)
	}
	return n, nil
}

// RecordFirstScan creates the book with one copy in stock. If a concurrent
// scan created it first, the row is counted as a rescan instead and the
// supplied metadata is ignored.
func (r *Repository) RecordFirstScan(ctx context.Context, isbn string, m Metadata, at time.Time) (Book, error) {
	var row bookRow
	ts := at.UnixMilli()
	err := r.q.GetContext(ctx, &row, `
INSERT INTO books(isbn, google_books_id, title, subtitle, authors, publisher, published_date,
  description, page_count, categories, language, thumbnail_url, small_thumbnail_url,
  average_rating, ratings_count, metadata, quantity_available, scan_count,
  first_scanned_at, last_scanned_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,1,1,?,?)
ON CONFLICT(isbn) DO UPDATE SET
  scan_count = scan_count + 1,
  quantity_available = quantity_available + 1,
  last_scanned_at = excluded.last_scanned_at
RETURNING `+bookColumns,
		isbn, m.GoogleBooksID, m.Title, m.Subtitle, storage.StringList(m.Authors), m.Publisher,
		m.PublishedDate, m.Description, m.PageCount, storage.StringList(m.Categories), m.Language,
		m.ThumbnailURL, m.SmallThumbnailURL, m.AverageRating, m.RatingsCount, m.Raw, ts, ts)
	if err != nil {
		return Book{}, fmt.Errorf("inventory: insert book %s: %w", isbn, err)
	}
	return row.toBook(), nil
}

// RecordRescan adds one copy to an existing book and bumps its scan stats.
func (r *Repository) RecordRescan(ctx context.Context, isbn string, at time.Time) (Book, error) {
	var row bookRow
	err := r.q.GetContext(ctx, &row, `
UPDATE books SET
  scan_count = scan_count + 1,
  quantity_available = quantity_available + 1,
  last_scanned_at = ?
WHERE isbn = ?
RETURNING `+bookColumns, at.UnixMilli(), isbn)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("inventory: rescan %s: %w", isbn, err)
	}
	return row.toBook(), nil
}

// Reserve decrements available stock by n only if at least n copies remain,
// returning the new level. The guard and the decrement are one statement, so
// two reservations racing on the same ISBN can never both pass.
func (r *Repository) Reserve(ctx context.Context, isbn string, n int64) (int64, error) {
	var left int64
	err := r.q.GetContext(ctx, &left, `
UPDATE books SET quantity_available = quantity_available - ?
WHERE isbn = ? AND quantity_available >= ?
RETURNING quantity_available`, n, isbn, n)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("inventory: reserve %d of %s: %w", n, isbn, err)
	}

	var avail int64
	err = r.q.GetContext(ctx, &avail, `SELECT quantity_available FROM books WHERE isbn=?`, isbn)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		avail = 0
	case err != nil:
		return 0, fmt.Errorf("inventory: reserve %d of %s: %w", n, isbn, err)
	}
	return 0, &InsufficientStockError{ISBN: isbn, Need: n, Avail: avail}
}

// SortField is a whitelisted column for book listings.
type SortField string

const (
	SortTitle     SortField = "title"
	SortISBN      SortField = "isbn"
	SortPublisher SortField = "publisher"
	SortQuantity  SortField = "quantity_available"
)

// ParseSortField maps user input to a known column, falling back to title.
func ParseSortField(s string) SortField {
	switch f := SortField(s); f {
	case SortTitle, SortISBN, SortPublisher, SortQuantity:
		return f
	}
	return SortTitle
}

// ListFilter narrows and orders a book listing.
type ListFilter struct {
	// Search matches title or ISBN substrings, case-insensitively.
	Search string
	Sort   SortField
	Desc   bool
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]Book, error) {
	ds := dialect.From("books").Select(goqu.L(bookColumns))
	if f.Search != "" {
		ds = ds.Where(MatchTitleOrISBN("books", f.Search))
	}
	col := goqu.C(string(ParseSortField(string(f.Sort))))
	var order exp.OrderedExpression
	if f.Desc {
		order = col.Desc()
	} else {
		order = col.Asc()
	}
	ds = ds.Order(order, goqu.C("isbn").Asc())
	return r.selectBooks(ctx, ds)
}

// MatchTitleOrISBN is the book listing filter: term appears literally in the
// title or ISBN of table, which names the books table or its alias.
func MatchTitleOrISBN(table, term string) exp.Expression {
	p := containing(term)
	t := goqu.T(table)
	return goqu.Or(like(t.Col("title"), p), like(t.Col("isbn"), p))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containing builds a LIKE pattern matching term anywhere, with LIKE
// wildcards in term taken literally.
func containing(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func like(col exp.IdentifierExpression, pattern string) exp.Expression {
	return goqu.L(`? LIKE ? ESCAPE '\'`, col, pattern)
}

// Search matches ISBN, title or author substrings, in-stock books first.
func (r *Repository) Search(ctx context.Context, term string, limit uint) ([]Book, error) {
	p := containing(term)
	books := goqu.T("books")
	ds := dialect.From(books).
		Select(goqu.L(bookColumns)).
		Where(goqu.Or(
			like(books.Col("isbn"), p),
			like(books.Col("title"), p),
			goqu.L(`EXISTS (SELECT 1 FROM json_each(?) WHERE json_each.value LIKE ? ESCAPE '\')`, books.Col("authors"), p),
		)).
		Order(goqu.C("quantity_available").Desc(), goqu.C("title").Asc()).
		Limit(limit)
	return r.selectBooks(ctx, ds)
}

func (r *Repository) selectBooks(ctx context.Context, ds *goqu.SelectDataset) ([]Book, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("inventory: build query: %w", err)
	}
	var rows []bookRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("inventory: list books: %w", err)
	}
	out := make([]Book, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toBook())
	}
	return out, nil
}
