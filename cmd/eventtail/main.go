// Package main follows the NATS event mirror and logs every query and error
// event the API emits.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/WessleyAI/bugbot/engine/events"
	"github.com/WessleyAI/bugbot/pkg/natsutil"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// record holds the union of query and error event fields.
type record struct {
	EventType      string   `json:"event_type"`
	Query          string   `json:"query,omitempty"`
	ResultsCount   int      `json:"results_count"`
	TopResultID    *string  `json:"top_result_id"`
	TopResultScore *float64 `json:"top_result_score"`
	ErrorType      string   `json:"error_type,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// attrs returns the log attributes for r.
func (r record) attrs() []any {
	switch r.EventType {
	case events.TypeQuery:
		a := []any{"query", r.Query, "results", r.ResultsCount, "ts", r.Timestamp}
		if r.TopResultID != nil {
			a = append(a, "top_id", *r.TopResultID)
		}
		if r.TopResultScore != nil {
			a = append(a, "top_score", *r.TopResultScore)
		}
		return a
	case events.TypeError:
		return []any{"error_type", r.ErrorType, "error", r.ErrorMessage, "ts", r.Timestamp}
	default:
		return []any{"event_type", r.EventType, "ts", r.Timestamp}
	}
}

// tally counts events per type.
type tally struct {
	mu     sync.Mutex
	counts map[string]int
}

func (t *tally) add(typ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts == nil {
		t.counts = make(map[string]int)
	}
	t.counts[typ]++
}

func (t *tally) snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

func handler(logger *slog.Logger, counts *tally) func(context.Context, string, record) {
	return func(ctx context.Context, subject string, r record) {
		counts.add(r.EventType)
		level := slog.LevelInfo
		if r.EventType == events.TypeError {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, subject, r.attrs()...)
	}
}

func main() {
	var (
		natsURL = flag.String("nats", envOr("NATS_URL", "nats://localhost:4222"), "NATS server URL")
		subject = flag.String("subject", envOr("EVENTS_SUBJECT", events.DefaultSubject), "event subject prefix")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	nc, err := natsutil.Connect(*natsURL, "bugbot-eventtail", logger)
	if err != nil {
		logger.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Close()

	var counts tally
	sub, err := natsutil.Subscribe(nc, *subject+".>", handler(logger, &counts))
	if err != nil {
		logger.Error("subscribe failed", "err", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()
	logger.Info("tailing events", "subject", *subject+".>")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("event totals", "counts", counts.snapshot())
}
