// Package catalog fetches descriptive book metadata from an external source.
// Catalogs are slow and unreliable; callers treat every failure as "use a
// placeholder" rather than as a reason to fail.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ahinestrog/campusbooks/internal/inventory"
)

// ErrUnavailable wraps transport failures, timeouts and unexpected upstream
// responses.
var ErrUnavailable = errors.New("catalog unavailable")

// Lookup fetches metadata for a normalized ISBN.
// It returns nil, nil when the catalog has no record of the book, and
// nil, error (wrapping ErrUnavailable) when the catalog could not be asked.
type Lookup interface {
	Name() string
	Lookup(ctx context.Context, isbn string) (*inventory.Metadata, error)
}

const NotFoundReason = "Book not found in Google Books API"

// PlaceholderTitle is the title given to books the catalog could not describe.
func PlaceholderTitle(isbn string) string {
	return fmt.Sprintf("Unknown Book (ISBN: %s)", isbn)
}

// Placeholder builds the metadata recorded for a book the catalog could not
// describe. reason ends up in the raw metadata document.
func Placeholder(isbn, reason string) inventory.Metadata {
	if reason == "" {
		reason = NotFoundReason
	}
	raw, _ := json.Marshal(struct {
		NotFoundInAPI bool   `json:"not_found_in_api"`
		Error         string `json:"error"`
	}{true, reason})
	return inventory.Metadata{
		Title:      PlaceholderTitle(isbn),
		Authors:    []string{},
		Categories: []string{},
		Raw:        raw,
	}
}
