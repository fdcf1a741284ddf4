//go:build integration

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/bugbot/engine/answer"
	"github.com/WessleyAI/bugbot/engine/semantic"
	"github.com/WessleyAI/bugbot/pkg/config"
	"github.com/WessleyAI/bugbot/pkg/metrics"
	"github.com/WessleyAI/bugbot/pkg/ollama"
)

// TestAPI_EndToEnd needs a reachable Qdrant and Ollama, configured through
// the usual environment variables.
func TestAPI_EndToEnd(t *testing.T) {
	if os.Getenv("QDRANT_API_KEY") == "" {
		t.Skip("QDRANT_API_KEY not set")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Load(logger)
	cfg.QdrantCollection = "bugbot-it-" + time.Now().Format("150405")

	store, err := semantic.New(semantic.Options{
		Addr:       cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		TLS:        cfg.QdrantTLS,
		Collection: cfg.QdrantCollection,
		Namespace:  cfg.QdrantNamespace,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	defer store.DeleteCollection(context.Background())

	reg := metrics.New()
	svc := answer.New(ollama.NewEmbedClient(cfg.OllamaURL, cfg.ModelVectorizer), store, nil, answer.DefaultOptions(), logger, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := svc.EnsureCatalogReady(ctx); err != nil {
		t.Fatalf("prepare catalog: %v", err)
	}

	srv := httptest.NewServer(newRouter(svc, reg, cfg, logger))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/query", "application/json",
		strings.NewReader(`{"query":"Client hangs when loading a level in multiplayer mode"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var d answer.Decision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if !d.Confident() || d.BugTitle == nil || *d.BugTitle != "Level load hang in multiplayer" {
		t.Fatalf("expected the level-load bug, got %+v", d)
	}
}
