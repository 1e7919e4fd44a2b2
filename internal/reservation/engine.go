// Package reservation records book scans and professor requests, and applies
// admin decisions against the shared inventory. Every decision validates and
// mutates the request and the stock inside one transaction, so stock is never
// over-committed and a request never ends up approved without its copies
// having been taken.
package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/campusbooks/internal/catalog"
	"github.com/ahinestrog/campusbooks/internal/events"
	"github.com/ahinestrog/campusbooks/internal/metrics"
	"github.com/ahinestrog/campusbooks/internal/storage"
)

var (
	ErrNilDB             = errors.New("reservation: db must not be nil")
	ErrNilLookup         = errors.New("reservation: catalog lookup must not be nil")
	ErrInvalidMaxAttempt = errors.New("reservation: max attempts must be positive")
)

const (
	defaultLookupTimeout = 5 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	publishTimeout       = 5 * time.Second
)

type Engine struct {
	db     *storage.DB
	lookup catalog.Lookup

	events  events.Publisher
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
	newID   func() string

	lookupTimeout time.Duration
	writeTimeout  time.Duration
	maxAttempts   int
	baseDelay     time.Duration
}

type Option func(*Engine) error

func WithEvents(p events.Publisher) Option {
	return func(e *Engine) error { e.events = p; return nil }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) error { e.metrics = m; return nil }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) error { e.log = l.With().Str("component", "reservation").Logger(); return nil }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error { e.now = now; return nil }
}

// WithIDs replaces the uuid generator for scan and request ids.
func WithIDs(gen func() string) Option {
	return func(e *Engine) error { e.newID = gen; return nil }
}

// WithLookupTimeout bounds a single catalog lookup during scan ingestion.
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d > 0 {
			e.lookupTimeout = d
		}
		return nil
	}
}

// WithWriteTimeout bounds a store write unit once it has started. The
// caller's cancellation no longer applies at that point.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d > 0 {
			e.writeTimeout = d
		}
		return nil
	}
}

// WithMaxAttempts sets how many times a unit of work runs before a transient
// store error is given up on.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return ErrInvalidMaxAttempt
		}
		e.maxAttempts = n
		return nil
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(e *Engine) error { e.baseDelay = d; return nil }
}

func NewEngine(db *storage.DB, lookup catalog.Lookup, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if lookup == nil {
		return nil, ErrNilLookup
	}
	e := &Engine{
		db:            db,
		lookup:        lookup,
		log:           zerolog.Nop(),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
		lookupTimeout: defaultLookupTimeout,
		writeTimeout:  defaultWriteTimeout,
		maxAttempts:   defaultMaxAttempts,
		baseDelay:     defaultBaseDelay,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// detach returns a context for a unit of store writes: it keeps ctx's values
// but not its cancellation, and is bounded by the write timeout instead.
func (e *Engine) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
}

// publish emits a domain event once the change it describes is committed.
// The caller's cancellation does not abort it.
func (e *Engine) publish(ctx context.Context, eventType string, payload any) {
	if e.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.events.Publish(ctx, eventType, payload); err != nil {
		e.log.Warn().Err(err).Str("event", eventType).Msg("publish failed")
		if e.metrics != nil {
			e.metrics.EventFailures.Inc()
		}
	}
}
