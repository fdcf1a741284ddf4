// Package main implements the bug answer API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/WessleyAI/bugbot/engine/answer"
	"github.com/WessleyAI/bugbot/engine/events"
	"github.com/WessleyAI/bugbot/engine/semantic"
	"github.com/WessleyAI/bugbot/pkg/config"
	"github.com/WessleyAI/bugbot/pkg/metrics"
	"github.com/WessleyAI/bugbot/pkg/natsutil"
	"github.com/WessleyAI/bugbot/pkg/ollama"
	"github.com/WessleyAI/bugbot/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// --- Event sinks ---
	dispatcher, nc, err := buildDispatcher(cfg, logger, reg)
	if err != nil {
		return err
	}
	defer func() {
		dispatcher.Close()
		if nc != nil {
			nc.Close()
		}
	}()

	// --- Connect to Qdrant ---
	store, err := semantic.New(semantic.Options{
		Addr:       cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		TLS:        cfg.QdrantTLS,
		Collection: cfg.QdrantCollection,
		Namespace:  cfg.QdrantNamespace,
	})
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()
	logger.Info("vector store configured",
		"addr", cfg.QdrantURL,
		"collection", cfg.QdrantCollection,
		"namespace", cfg.QdrantNamespace,
		"cloud", cfg.QdrantCloud,
		"region", cfg.QdrantRegion,
	)

	// --- Build answer service ---
	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.ModelVectorizer)
	opts := answer.DefaultOptions()
	opts.Threshold = cfg.ConfidenceThreshold
	opts.EmbedTimeout = cfg.EmbedTimeout
	opts.SearchTimeout = cfg.SearchTimeout
	svc := answer.New(embedder, store, dispatcher, opts, logger, reg)

	created, err := svc.EnsureCatalogReady(ctx)
	if err != nil {
		return fmt.Errorf("prepare catalog: %w", err)
	}
	logger.Info("catalog ready", "collection", store.Collection(), "created", created)

	// --- Build HTTP server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(svc, reg, cfg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "threshold", svc.Threshold())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// buildDispatcher wires the webhook sink and, when NATS_URL is set, the NATS
// mirror. The returned connection is nil without NATS.
func buildDispatcher(cfg config.Config, logger *slog.Logger, reg *metrics.Registry) (*events.Dispatcher, *nats.Conn, error) {
	d := events.NewDispatcher(cfg.SinkTimeout, logger, reg)
	d.Add("webhook", events.NewWebhook(cfg.WebhookURL), breakerOpts("webhook", logger))

	if cfg.NATSURL == "" {
		return d, nil, nil
	}
	nc, err := natsutil.Connect(cfg.NATSURL, "bugbot-api", logger)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	d.Add("nats", events.NewNATS(nc, cfg.EventsSubject), breakerOpts("nats", logger))
	logger.Info("event mirror enabled", "subject", cfg.EventsSubject)
	return d, nc, nil
}

func breakerOpts(sink string, logger *slog.Logger) resilience.BreakerOpts {
	opts := resilience.DefaultBreakerOpts
	opts.OnStateChange = func(from, to resilience.State) {
		logger.Warn("event sink circuit changed", "sink", sink, "from", from.String(), "to", to.String())
	}
	return opts
}
