// Package main re-embeds the built-in bug catalog and upserts it into the
// vector store, creating the collection first when it does not exist.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/bugbot/engine/answer"
	"github.com/WessleyAI/bugbot/engine/catalog"
	"github.com/WessleyAI/bugbot/engine/events"
	"github.com/WessleyAI/bugbot/engine/semantic"
	"github.com/WessleyAI/bugbot/pkg/config"
	"github.com/WessleyAI/bugbot/pkg/ollama"
	"github.com/WessleyAI/bugbot/pkg/resilience"
)

func main() {
	var (
		workers = flag.Int("workers", 4, "concurrent embedding requests")
		timeout = flag.Duration("timeout", 2*time.Minute, "overall seeding deadline")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	n, err := run(ctx, cfg, *workers, logger)
	if err != nil {
		logger.Error("seeding failed", "err", err)
		os.Exit(1)
	}
	logger.Info("seeding complete", "records", n, "collection", cfg.QdrantCollection)
}

func run(ctx context.Context, cfg config.Config, workers int, logger *slog.Logger) (int, error) {
	dispatcher := events.NewDispatcher(cfg.SinkTimeout, logger, nil)
	dispatcher.Add("webhook", events.NewWebhook(cfg.WebhookURL), resilience.DefaultBreakerOpts)
	defer dispatcher.Close()

	store, err := semantic.New(semantic.Options{
		Addr:       cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		TLS:        cfg.QdrantTLS,
		Collection: cfg.QdrantCollection,
		Namespace:  cfg.QdrantNamespace,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	opts := answer.DefaultOptions()
	opts.EmbedTimeout = cfg.EmbedTimeout
	opts.SeedWorkers = workers
	opts.Records = catalog.Bugs()
	svc := answer.New(ollama.NewEmbedClient(cfg.OllamaURL, cfg.ModelVectorizer), store, dispatcher, opts, logger, nil)

	created, err := svc.EnsureCatalogReady(ctx)
	if err != nil {
		return 0, err
	}
	if created {
		// A fresh collection was seeded as part of creation.
		return len(opts.Records), nil
	}
	return svc.Reseed(ctx)
}
