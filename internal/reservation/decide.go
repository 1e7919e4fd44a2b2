package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ahinestrog/campusbooks/internal/auth"
	"github.com/ahinestrog/campusbooks/internal/events"
	"github.com/ahinestrog/campusbooks/internal/inventory"
	"github.com/ahinestrog/campusbooks/internal/requests"
)

const unknownTitle = "Unknown Book"

// Decision is the outcome of an approve, partial or reject call.
type Decision struct {
	Request requests.Request
	// BookTitle is "Unknown Book" when the request's book does not exist.
	BookTitle string
	// QuantityAvailable is the book's stock after the decision.
	QuantityAvailable int64
	Message           string
}

type decisionKind string

const (
	decideApprove decisionKind = "approve"
	decidePartial decisionKind = "partial"
	decideReject  decisionKind = "reject"
)

// snapshot is what a decision sees inside its transaction.
type snapshot struct {
	req       requests.Request
	title     string
	available int64
}

// plan turns a snapshot into the transition to apply and the number of
// copies to take from stock. It returns an *Error to refuse the decision.
type plan func(s snapshot) (res requests.Resolution, take int64, err error)

// Approve grants the full requested quantity.
func (e *Engine) Approve(ctx context.Context, admin auth.Admin, requestID string) (Decision, error) {
	d, err := e.decide(ctx, decideApprove, admin, requestID, func(s snapshot) (requests.Resolution, int64, error) {
		n := s.req.QuantityRequested
		if s.available < n {
			return requests.Resolution{}, 0, insufficient(s.available)
		}
		return requests.Resolution{Status: requests.StatusApproved, QuantityApproved: &n}, n, nil
	})
	if err != nil {
		return Decision{}, err
	}
	d.Message = fmt.Sprintf("Request approved for %q", d.BookTitle)
	return d, nil
}

// Partial grants quantityApproved copies, which may be fewer than requested.
func (e *Engine) Partial(ctx context.Context, admin auth.Admin, requestID string, quantityApproved int64) (Decision, error) {
	if quantityApproved < 1 {
		return Decision{}, newError(ErrInvalidQuantity, "Invalid quantity_approved: must be at least 1", nil)
	}
	d, err := e.decide(ctx, decidePartial, admin, requestID, func(s snapshot) (requests.Resolution, int64, error) {
		if quantityApproved > s.req.QuantityRequested {
			return requests.Resolution{}, 0, newError(ErrExceedsRequested,
				fmt.Sprintf("Cannot approve more than requested (%d)", s.req.QuantityRequested), nil)
		}
		if s.available < quantityApproved {
			return requests.Resolution{}, 0, insufficient(s.available)
		}
		n := quantityApproved
		return requests.Resolution{Status: requests.StatusPartial, QuantityApproved: &n}, n, nil
	})
	if err != nil {
		return Decision{}, err
	}
	d.Message = fmt.Sprintf("Partially approved %d of %d for %q",
		quantityApproved, d.Request.QuantityRequested, d.BookTitle)
	return d, nil
}

// Reject closes the request without touching stock. A blank reason is
// stored as no reason.
func (e *Engine) Reject(ctx context.Context, admin auth.Admin, requestID string, reason string) (Decision, error) {
	d, err := e.decide(ctx, decideReject, admin, requestID, func(s snapshot) (requests.Resolution, int64, error) {
		return requests.Resolution{Status: requests.StatusRejected, RejectionReason: optional(reason)}, 0, nil
	})
	if err != nil {
		return Decision{}, err
	}
	d.Message = fmt.Sprintf("Request rejected for %q", d.BookTitle)
	return d, nil
}

func insufficient(available int64) *Error {
	return newError(ErrInsufficientInventory,
		fmt.Sprintf("Insufficient inventory. Only %d available.", available), nil)
}

// decide runs one admin decision as a single transaction: read the request
// and its book, let p validate, then take stock and close the request. Stock
// is taken with a guarded decrement and the request is closed with a
// status-guarded update, so a concurrent decision on the same book or
// request makes this one fail cleanly instead of over-committing. The whole
// unit is retried on transient lock errors, and once started it is not
// cancelled with ctx.
func (e *Engine) decide(ctx context.Context, kind decisionKind, admin auth.Admin, requestID string, p plan) (Decision, error) {
	if !admin.Valid() {
		return Decision{}, auth.ErrForbidden
	}
	start := time.Now()
	log := e.log.With().Str("decision", string(kind)).Str("request_id", requestID).Str("actor", admin.UserID()).Logger()

	wctx, cancel := e.detach(ctx)
	defer cancel()
	var out Decision
	err := e.withRetry(wctx, func(ctx context.Context) error {
		return e.db.InTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			out, err = e.decideTx(ctx, tx, admin, requestID, p)
			return err
		})
	})
	e.observeDecision(kind, start, err)

	if err != nil {
		if de, ok := AsError(err); ok {
			log.Info().Str("code", de.Code).Msg(de.Message)
			return Decision{}, de
		}
		log.Error().Err(err).Msg("decision failed")
		return Decision{}, persistence(fmt.Sprintf("Failed to %s request", kind), err)
	}

	log.Info().
		Str("status", string(out.Request.Status)).
		Int64("quantity_available", out.QuantityAvailable).
		Msg("decision applied")
	e.publish(ctx, eventType(out.Request.Status), eventFor(out.Request))
	return out, nil
}

func (e *Engine) decideTx(ctx context.Context, tx *sqlx.Tx, admin auth.Admin, requestID string, p plan) (Decision, error) {
	reqs := requests.NewRepository(tx)
	inv := inventory.NewRepository(tx)

	req, err := reqs.Get(ctx, requestID)
	if errors.Is(err, requests.ErrNotFound) {
		return Decision{}, newError(ErrRequestNotFound, "Request not found", nil)
	}
	if err != nil {
		return Decision{}, err
	}
	if req.Status != requests.StatusPending {
		return Decision{}, alreadyProcessed(req.Status)
	}

	s := snapshot{req: req, title: unknownTitle}
	book, err := inv.Get(ctx, req.ISBN)
	switch {
	case err == nil:
		s.title = book.Title
		s.available = book.QuantityAvailable
	case !errors.Is(err, inventory.ErrBookNotFound):
		return Decision{}, err
	}

	res, take, err := p(s)
	if err != nil {
		return Decision{}, err
	}

	left := s.available
	if take > 0 {
		left, err = inv.Reserve(ctx, req.ISBN, take)
		var ise *inventory.InsufficientStockError
		if errors.As(err, &ise) {
			return Decision{}, insufficient(ise.Avail)
		}
		if err != nil {
			return Decision{}, err
		}
	}

	res.ProcessedAt = e.now()
	res.ProcessedBy = admin.UserID()
	if err := reqs.Resolve(ctx, requestID, res); err != nil {
		if errors.Is(err, requests.ErrNotPending) {
			return Decision{}, newError(ErrAlreadyProcessed, "Request already processed", nil)
		}
		return Decision{}, err
	}

	updated, err := reqs.Get(ctx, requestID)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Request: updated, BookTitle: s.title, QuantityAvailable: left}, nil
}

func alreadyProcessed(status requests.Status) *Error {
	return newError(ErrAlreadyProcessed, fmt.Sprintf("Request already %s", status), nil)
}

func eventType(s requests.Status) string {
	switch s {
	case requests.StatusApproved:
		return events.RequestApproved
	case requests.StatusPartial:
		return events.RequestPartial
	}
	return events.RequestRejected
}

func (e *Engine) observeDecision(kind decisionKind, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	result := "OK"
	if err != nil {
		result = "INTERNAL_ERROR"
		if de, ok := AsError(err); ok {
			result = de.Code
		}
	}
	e.metrics.Decisions.WithLabelValues(string(kind), result).Inc()
	e.metrics.DecisionLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
}
