package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahinestrog/campusbooks/internal/catalog"
	"github.com/ahinestrog/campusbooks/internal/events"
	"github.com/ahinestrog/campusbooks/internal/inventory"
	"github.com/ahinestrog/campusbooks/internal/isbn"
)

// ScanResult describes a recorded scan. Book is nil when the scan was logged
// but the book row could not be saved; Warning then says why.
type ScanResult struct {
	ScanID  string
	ISBN    string
	Book    *inventory.Book
	Created bool
	// Placeholder is set when the catalog could not describe a new book.
	Placeholder bool
	Warning     string
}

type scannedEvent struct {
	ScanID            string  `json:"scan_id"`
	ISBN              string  `json:"isbn"`
	ScannerID         *string `json:"scanner_id,omitempty"`
	Created           bool    `json:"created"`
	QuantityAvailable int64   `json:"quantity_available"`
}

// RecordScan logs a physical scan of raw and adds one copy to the inventory,
// creating the book on its first scan. The scan log entry is written first
// and stands even if the book cannot be saved. Once it is written, ctx only
// bounds the catalog lookup: the book write runs to completion even if the
// caller goes away.
func (e *Engine) RecordScan(ctx context.Context, raw string, scannerID *string) (ScanResult, error) {
	code, ok := isbn.Parse(raw)
	if !ok {
		return ScanResult{}, newError(ErrInvalidISBN, "Invalid ISBN format", nil)
	}
	log := e.log.With().Str("isbn", code).Logger()
	now := e.now()
	res := ScanResult{ScanID: e.newID(), ISBN: code}

	inv := inventory.NewRepository(e.db)
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return inv.InsertScan(ctx, inventory.Scan{ID: res.ScanID, ISBN: code, ScannerID: scannerID, ScannedAt: now})
	})
	if err != nil {
		log.Error().Err(err).Msg("scan log write failed")
		return ScanResult{}, persistence("Failed to record scan", err)
	}

	wctx, cancel := e.detach(ctx)
	defer cancel()
	book, created, placeholder, err := e.upsertBook(ctx, wctx, inv, code, now)
	if err != nil {
		log.Error().Err(err).Str("scan_id", res.ScanID).Msg("book save failed after scan was logged")
		res.Warning = fmt.Sprintf("Scan recorded but failed to save book: %v", err)
		e.countScan("book_save_failed")
		return res, nil
	}
	res.Book = &book
	res.Created = created
	res.Placeholder = placeholder
	if created {
		e.countScan("created")
	} else {
		e.countScan("incremented")
	}
	log.Info().Bool("created", created).Int64("quantity_available", book.QuantityAvailable).Msg("scan recorded")

	e.publish(ctx, events.BookScanned, scannedEvent{
		ScanID:            res.ScanID,
		ISBN:              code,
		ScannerID:         scannerID,
		Created:           created,
		QuantityAvailable: book.QuantityAvailable,
	})
	return res, nil
}

// upsertBook writes on wctx; ctx is only used for the catalog lookup.
func (e *Engine) upsertBook(ctx, wctx context.Context, inv *inventory.Repository, code string, now time.Time) (book inventory.Book, created, placeholder bool, err error) {
	err = e.withRetry(wctx, func(ctx context.Context) error {
		var err error
		book, err = inv.RecordRescan(ctx, code, now)
		return err
	})
	if err == nil {
		return book, false, false, nil
	}
	if !errors.Is(err, inventory.ErrBookNotFound) {
		return inventory.Book{}, false, false, err
	}

	meta, placeholder := e.describe(ctx, code)
	err = e.withRetry(wctx, func(ctx context.Context) error {
		var err error
		book, err = inv.RecordFirstScan(ctx, code, meta, now)
		return err
	})
	if err != nil {
		return inventory.Book{}, false, false, err
	}
	// A concurrent first scan may have won the insert, in which case this
	// scan was counted as a rescan.
	created = book.ScanCount == 1
	return book, created, placeholder && created, nil
}

// describe asks the catalog for metadata, falling back to a placeholder on
// a miss, an error or a timeout.
func (e *Engine) describe(ctx context.Context, code string) (inventory.Metadata, bool) {
	ctx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	m, err := e.lookup.Lookup(ctx, code)
	switch {
	case err != nil:
		e.countLookup("unavailable")
		cause := newError(ErrCatalogUnavailable, "Catalog lookup failed", err)
		e.log.Warn().Err(cause).Str("isbn", code).Str("catalog", e.lookup.Name()).Msg("using placeholder metadata")
		return catalog.Placeholder(code, err.Error()), true
	case m == nil:
		e.countLookup("not_found")
		return catalog.Placeholder(code, ""), true
	}
	e.countLookup("found")
	return *m, false
}

func (e *Engine) countScan(outcome string) {
	if e.metrics != nil {
		e.metrics.Scans.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) countLookup(result string) {
	if e.metrics != nil {
		e.metrics.CatalogLookups.WithLabelValues(result).Inc()
	}
}
