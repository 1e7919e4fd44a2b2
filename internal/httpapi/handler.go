// Package httpapi exposes the scan, request and admin operations as a JSON
// HTTP API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/ahinestrog/campusbooks/internal/auth"
	"github.com/ahinestrog/campusbooks/internal/metrics"
	"github.com/ahinestrog/campusbooks/internal/query"
	"github.com/ahinestrog/campusbooks/internal/reservation"
	"github.com/ahinestrog/campusbooks/internal/storage"
)

const (
	headerRequestID    = "X-Request-ID"
	headerScannerToken = "X-Scanner-Token"
	pingTimeout        = 2 * time.Second
)

// Deps are the collaborators a Handler serves from. Metrics may be nil.
type Deps struct {
	Engine     *reservation.Engine
	Query      *query.Service
	Verifier   *auth.Verifier
	Authorizer *auth.Authorizer
	DB         *storage.DB
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger

	// ScannerToken, when non-empty, must be sent in X-Scanner-Token on scans.
	ScannerToken string
	CORSOrigins  []string
}

type Handler struct {
	engine       *reservation.Engine
	query        *query.Service
	verifier     *auth.Verifier
	authorizer   *auth.Authorizer
	db           *storage.DB
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	scannerToken string
	corsOrigins  []string
	validate     *validator.Validate
}

func New(d Deps) (*Handler, error) {
	switch {
	case d.Engine == nil:
		return nil, errors.New("httpapi: engine is required")
	case d.Query == nil:
		return nil, errors.New("httpapi: query service is required")
	case d.Verifier == nil || d.Authorizer == nil:
		return nil, errors.New("httpapi: verifier and authorizer are required")
	case d.DB == nil:
		return nil, errors.New("httpapi: db is required")
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		engine:       d.Engine,
		query:        d.Query,
		verifier:     d.Verifier,
		authorizer:   d.Authorizer,
		db:           d.DB,
		metrics:      d.Metrics,
		logger:       d.Logger.With().Str("component", "httpapi").Logger(),
		scannerToken: d.ScannerToken,
		corsOrigins:  d.CORSOrigins,
		validate:     v,
	}, nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// Routes returns the full API with logging, request ids and CORS applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", h.wrap("healthz", h.handleHealth))
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	mux.Handle("GET /api/scan", h.wrap("scan.describe", h.handleScanInfo))
	mux.Handle("POST /api/scan", h.wrap("scan", h.scanner(h.handleScan)))

	mux.Handle("GET /api/books/search", h.wrap("books.search", h.handleSearchBooks))
	mux.Handle("GET /api/books/{isbn}", h.wrap("books.get", h.handleGetBook))

	mux.Handle("POST /api/professor/request", h.wrap("professor.request", h.authed(h.handleCreateRequest)))
	mux.Handle("GET /api/professor/requests", h.wrap("professor.requests", h.authed(h.handleProfessorRequests)))

	mux.Handle("GET /api/admin/requests", h.wrap("admin.requests", h.admin(h.handleAdminRequests)))
	mux.Handle("POST /api/admin/requests/{id}/approve", h.wrap("admin.approve", h.admin(h.handleApprove)))
	mux.Handle("POST /api/admin/requests/{id}/partial", h.wrap("admin.partial", h.admin(h.handlePartial)))
	mux.Handle("POST /api/admin/requests/{id}/reject", h.wrap("admin.reject", h.admin(h.handleReject)))
	mux.Handle("GET /api/admin/books", h.wrap("admin.books", h.admin(h.handleAdminBooks)))

	c := cors.New(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", headerScannerToken, headerRequestID},
		ExposedHeaders: []string{headerRequestID},
	})

	var handler http.Handler = mux
	handler = c.Handler(handler)
	handler = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("http request")
	})(handler)
	handler = hlog.RequestIDHandler("request_id", headerRequestID)(handler)
	handler = hlog.NewHandler(h.logger)(handler)
	return handler
}

// wrap adapts fn to http.Handler, turning a returned error into a JSON
// error body.
func (h *Handler) wrap(operation string, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.handleError(r.Context(), w, operation, err)
		}
	})
}

type identityKey struct{}

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey{}).(auth.Identity)
	return id
}

// authed requires a valid bearer token and puts the identity in the request
// context.
func (h *Handler) authed(fn handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		id, err := h.verifier.Verify(auth.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			return err
		}
		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("actor", id.UserID)
		})
		return fn(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	}
}

type adminFunc func(w http.ResponseWriter, r *http.Request, admin auth.Admin) error

func (h *Handler) admin(fn adminFunc) handlerFunc {
	return h.authed(func(w http.ResponseWriter, r *http.Request) error {
		adm, err := h.authorizer.RequireAdmin(r.Context(), identityFrom(r.Context()))
		if err != nil {
			return err
		}
		return fn(w, r, adm)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("health check failed")
		return httpError{Status: http.StatusServiceUnavailable, Code: "DB_ERROR", Message: "Database unavailable"}
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
