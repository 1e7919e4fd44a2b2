package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ahinestrog/campusbooks/internal/auth"
	"github.com/ahinestrog/campusbooks/internal/catalog"
	"github.com/ahinestrog/campusbooks/internal/config"
	"github.com/ahinestrog/campusbooks/internal/events"
	"github.com/ahinestrog/campusbooks/internal/grpcapi"
	"github.com/ahinestrog/campusbooks/internal/httpapi"
	"github.com/ahinestrog/campusbooks/internal/inventory"
	"github.com/ahinestrog/campusbooks/internal/metrics"
	"github.com/ahinestrog/campusbooks/internal/query"
	"github.com/ahinestrog/campusbooks/internal/reservation"
	"github.com/ahinestrog/campusbooks/internal/storage"
)

func newServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg, os.Stderr))
		},
	}
}

func newLookup(cfg config.Config) catalog.Lookup {
	if cfg.CatalogOffline {
		return catalog.NewOffline(map[string]inventory.Metadata{})
	}
	gb := catalog.NewGoogleBooks(cfg.GoogleBooksURL, cfg.GoogleBooksAPIKey, cfg.CatalogTimeout)
	return catalog.NewCached(gb, cfg.CatalogCacheSize, cfg.CatalogCacheTTL, cfg.CatalogTimeout)
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	logger.Info().
		Str("http", cfg.HTTPAddr).
		Str("grpc", cfg.GRPCAddr).
		Str("db", cfg.DBPath).
		Bool("events", cfg.RabbitURL != "").
		Bool("catalog_offline", cfg.CatalogOffline).
		Msg("starting campusbooks")

	db, err := storage.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()
	opts := []reservation.Option{
		reservation.WithLogger(logger),
		reservation.WithMetrics(m),
		reservation.WithLookupTimeout(cfg.CatalogTimeout),
		reservation.WithMaxAttempts(cfg.DecisionMaxAttempts),
	}
	rabbit, err := events.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if rabbit != nil {
		defer rabbit.Close()
		opts = append(opts, reservation.WithEvents(rabbit))
		logger.Info().Str("exchange", cfg.RabbitExchange).Msg("publishing domain events")
	}
	engine, err := reservation.NewEngine(db, newLookup(cfg), opts...)
	if err != nil {
		return err
	}

	roles := auth.NewRoles(db)
	api, err := httpapi.New(httpapi.Deps{
		Engine:       engine,
		Query:        query.NewService(db),
		Verifier:     auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Authorizer:   auth.NewAuthorizer(roles),
		DB:           db,
		Metrics:      m,
		Logger:       logger,
		ScannerToken: cfg.ScannerToken,
		CORSOrigins:  cfg.CORSAllowedOrigins,
	})
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var lis net.Listener
	if cfg.GRPCAddr != "" {
		if lis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Warn().Msg("shutting down...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	if lis != nil {
		g.Go(func() error {
			return grpcapi.New(db, logger).Serve(gctx, lis)
		})
	}
	return g.Wait()
}
