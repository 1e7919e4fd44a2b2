package inventory

import (
	"database/sql"
	"time"

	"github.com/ahinestrog/campusbooks/internal/storage"
)

// Book is one inventory row keyed by normalized ISBN.
// quantity_available is the only source of truth for loanable stock and
// never drops below zero.
type Book struct {
	ISBN              string
	GoogleBooksID     *string
	Title             string
	Subtitle          *string
	Authors           []string
	Publisher         *string
	PublishedDate     *string
	Description       *string
	PageCount         *int64
	Categories        []string
	Language          *string
	ThumbnailURL      *string
	SmallThumbnailURL *string
	AverageRating     *float64
	RatingsCount      *int64
	Metadata          storage.RawJSON
	QuantityAvailable int64
	ScanCount         int64
	FirstScannedAt    time.Time
	LastScannedAt     time.Time
}

// Metadata is the descriptive part of a Book, supplied by the catalog on
// first scan.
type Metadata struct {
	GoogleBooksID     *string
	Title             string
	Subtitle          *string
	Authors           []string
	Publisher         *string
	PublishedDate     *string
	Description       *string
	PageCount         *int64
	Categories        []string
	Language          *string
	ThumbnailURL      *string
	SmallThumbnailURL *string
	AverageRating     *float64
	RatingsCount      *int64
	Raw               storage.RawJSON
}

// Scan is one entry of the append-only scan log.
type Scan struct {
	ID        string
	ISBN      string
	ScannerID *string
	ScannedAt time.Time
}

type bookRow struct {
	ISBN              string             `db:"isbn"`
	GoogleBooksID     sql.NullString     `db:"google_books_id"`
	Title             string             `db:"title"`
	Subtitle          sql.NullString     `db:"subtitle"`
	Authors           storage.StringList `db:"authors"`
	Publisher         sql.NullString     `db:"publisher"`
	PublishedDate     sql.NullString     `db:"published_date"`
	Description       sql.NullString     `db:"description"`
	PageCount         sql.NullInt64      `db:"page_count"`
	Categories        storage.StringList `db:"categories"`
	Language          sql.NullString     `db:"language"`
	ThumbnailURL      sql.NullString     `db:"thumbnail_url"`
	SmallThumbnailURL sql.NullString     `db:"small_thumbnail_url"`
	AverageRating     sql.NullFloat64    `db:"average_rating"`
	RatingsCount      sql.NullInt64      `db:"ratings_count"`
	Metadata          storage.RawJSON    `db:"metadata"`
	QuantityAvailable int64              `db:"quantity_available"`
	ScanCount         int64              `db:"scan_count"`
	FirstScannedAt    int64              `db:"first_scanned_at"`
	LastScannedAt     int64              `db:"last_scanned_at"`
}

const bookColumns = `isbn, google_books_id, title, subtitle, authors, publisher, published_date,
description, page_count, categories, language, thumbnail_url, small_thumbnail_url,
average_rating, ratings_count, metadata, quantity_available, scan_count,
first_scanned_at, last_scanned_at`

func (r bookRow) toBook() Book {
	return Book{
		ISBN:              r.ISBN,
		GoogleBooksID:     nullString(r.GoogleBooksID),
		Title:             r.Title,
		Subtitle:          nullString(r.Subtitle),
		Authors:           nonNil(r.Authors),
		Publisher:         nullString(r.Publisher),
		PublishedDate:     nullString(r.PublishedDate),
		Description:       nullString(r.Description),
		PageCount:         nullInt(r.PageCount),
		Categories:        nonNil(r.Categories),
		Language:          nullString(r.Language),
		ThumbnailURL:      nullString(r.ThumbnailURL),
		SmallThumbnailURL: nullString(r.SmallThumbnailURL),
		AverageRating:     nullFloat(r.AverageRating),
		RatingsCount:      nullInt(r.RatingsCount),
		Metadata:          r.Metadata,
		QuantityAvailable: r.QuantityAvailable,
		ScanCount:         r.ScanCount,
		FirstScannedAt:    storage.MillisToTime(r.FirstScannedAt),
		LastScannedAt:     storage.MillisToTime(r.LastScannedAt),
	}
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nonNil(l storage.StringList) []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}
