package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/api"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/auth"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/config"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/listener"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/manager"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/metrics"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/storage"
)

const depthInterval = 10 * time.Second

func runListener(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init Metrics
	metrics.Init()

	// Init queue transport
	factory, closeTransport, err := newSourceFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to init %s transport: %w", cfg.Listener.Transport, err)
	}
	defer func() {
		if err := closeTransport(); err != nil {
			log.Warn().Err(err).Msg("Failed to close transport")
		}
	}()
	log.Info().Str("transport", cfg.Listener.Transport).Msg("Queue transport ready")

	// Optional message journal
	var journal manager.Journal
	var store api.MessageStore
	if cfg.Database.URL != "" {
		db, err := storage.NewStorage(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to init DB: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		journal, store = db, db
		log.Info().Msg("PostgreSQL journal connected")
	}

	// Register listeners
	lm := manager.NewListenerManager(factory, journal, cfg.Listener.BackOff)
	defer lm.ShutdownAll()

	receiver := listener.NewReceiver(os.Stdout)
	for _, q := range cfg.Listener.Queues {
		spec, err := queueSpec(q)
		if err != nil {
			return err
		}
		if err := lm.Register(ctx, spec, payloadHandler(receiver, q.Payload)); err != nil {
			return fmt.Errorf("failed to register listener: %w", err)
		}
	}

	// Background loop for queue depth metrics
	go func() {
		ticker := time.NewTicker(depthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lm.UpdateQueueDepths(ctx)
			}
		}
	}()

	// Init API
	apiHandler := api.NewAPI(lm, store, auth.NewAuthenticator(cfg.Auth.JWTSecret))
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting admin API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info().Msg("Shutdown initiated...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}

	lm.ShutdownAll()

	log.Info().Msg("Graceful shutdown complete")
	return nil
}
