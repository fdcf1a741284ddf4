// Package answer turns a free-text question into a decision about which known
// bug it describes. It embeds the question, asks the catalog store for the
// nearest bug, and applies the confidence threshold. Every lookup is reported
// to an event sink without waiting for delivery.
package answer

import (
	"context"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/bugbot/engine/catalog"
	"github.com/WessleyAI/bugbot/engine/domain"
	"github.com/WessleyAI/bugbot/engine/events"
	"github.com/WessleyAI/bugbot/engine/semantic"
	"github.com/WessleyAI/bugbot/pkg/metrics"
)

// Unknown is the response text for questions no known bug answers.
const Unknown = "Не знаю"

const tracerName = "github.com/WessleyAI/bugbot/engine/answer"

// Error event types.
const (
	ErrTypeEmbedQuery     = "embed_query"
	ErrTypeCatalogQuery   = "catalog_query"
	ErrTypeCatalogConnect = "catalog_connect"
	ErrTypeCatalogSeed    = "catalog_seed"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension(ctx context.Context) (int, error)
}

// Store is the vector catalog the service reads and seeds.
type Store interface {
	Exists(ctx context.Context) (bool, error)
	Dimension(ctx context.Context) (int, error)
	Create(ctx context.Context, dims int) error
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	Query(ctx context.Context, embedding []float32, topK int) ([]semantic.Match, error)
}

// EventSink accepts events for background delivery. Emit must not block,
// and delivery must not be cancelled along with ctx.
type EventSink interface {
	Emit(ctx context.Context, ev events.Event)
}

// Options configures the service.
type Options struct {
	Threshold     float64 // inclusive lower bound for a confident answer
	TopK          int
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
	SeedWorkers   int
	Records       []catalog.BugRecord // nil means catalog.Bugs()
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:     0.65,
		TopK:          1,
		EmbedTimeout:  10 * time.Second,
		SearchTimeout: 5 * time.Second,
		SeedWorkers:   4,
	}
}

// Decision is the answer to one question. BugTitle and BugDescription are
// either both set (confident) or both nil.
type Decision struct {
	Response       string  `json:"response"`
	Confidence     float64 `json:"confidence"`
	BugTitle       *string `json:"bug_title"`
	BugDescription *string `json:"bug_description"`
}

// Confident reports whether the decision names a known bug.
func (d Decision) Confident() bool { return d.BugTitle != nil }

func unknown(confidence float64) Decision {
	return Decision{Response: Unknown, Confidence: confidence}
}

// Service answers questions against the bug catalog.
type Service struct {
	embedder Embedder
	store    Store
	sink     EventSink
	opts     Options
	logger   *slog.Logger
	met      *metrics.Registry
	tracer   trace.Tracer
}

// New creates a Service. A nil sink discards events; a nil registry keeps
// metrics private to the service.
func New(embedder Embedder, store Store, sink EventSink, opts Options, logger *slog.Logger, reg *metrics.Registry) *Service {
	def := DefaultOptions()
	if math.IsNaN(opts.Threshold) {
		opts.Threshold = def.Threshold
	}
	if opts.TopK < 1 {
		opts.TopK = def.TopK
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = def.EmbedTimeout
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = def.SearchTimeout
	}
	if opts.SeedWorkers <= 0 {
		opts.SeedWorkers = def.SeedWorkers
	}
	if opts.Records == nil {
		opts.Records = catalog.Bugs()
	}
	if sink == nil {
		sink = discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		sink:     sink,
		opts:     opts,
		logger:   logger,
		met:      reg,
		tracer:   otel.Tracer(tracerName),
	}
}

// Threshold returns the configured confidence threshold.
func (s *Service) Threshold() float64 { return s.opts.Threshold }

// Answer embeds query, looks up the nearest catalog entries and decides.
// topK values below 1 are treated as 1; only the best match is consulted.
// Embedding and lookup failures are returned as *domain.SearchFailure; a
// low-confidence or empty result is a normal unknown decision.
func (s *Service) Answer(ctx context.Context, query string, topK int) (Decision, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "answer.Answer")
	defer span.End()

	if err := domain.ValidateQuery(query); err != nil {
		return Decision{}, err
	}
	if topK < 1 {
		topK = 1
	}
	span.SetAttributes(attribute.Int("answer.top_k", topK))

	embedCtx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	vec, err := s.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		return Decision{}, s.searchFailed(ctx, ErrTypeEmbedQuery, "embed query", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	matches, err := s.store.Query(searchCtx, vec, topK)
	cancel()
	if err != nil {
		return Decision{}, s.searchFailed(ctx, ErrTypeCatalogQuery, "query catalog", err)
	}

	d := s.decide(ctx, matches)

	if len(matches) > 0 {
		s.sink.Emit(ctx, events.NewQueryEvent(query, len(matches), matches[0].ID, matches[0].Score))
	} else {
		s.sink.Emit(ctx, events.NewQueryEvent(query, 0, "", 0))
	}

	outcome := "unknown"
	if d.Confident() {
		outcome = "answered"
	}
	s.observe(outcome, start)
	span.SetAttributes(
		attribute.Int("answer.matches", len(matches)),
		attribute.Float64("answer.confidence", d.Confidence),
		attribute.String("answer.outcome", outcome),
	)
	s.logger.Info("query answered", "outcome", outcome, "confidence", d.Confidence, "matches", len(matches))
	return d, nil
}

// decide applies the threshold to the best match. The boundary is closed:
// a score equal to the threshold is confident.
func (s *Service) decide(ctx context.Context, matches []semantic.Match) Decision {
	if len(matches) == 0 {
		return unknown(0)
	}
	top := matches[0]
	if top.Score < s.opts.Threshold {
		return unknown(top.Score)
	}
	if top.Title == "" || top.Description == "" {
		s.logger.WarnContext(ctx, "confident match lacks title or description", "bug_id", top.ID, "score", top.Score)
		return unknown(top.Score)
	}
	title, desc := top.Title, top.Description
	return Decision{
		Response:       desc,
		Confidence:     top.Score,
		BugTitle:       &title,
		BugDescription: &desc,
	}
}

func (s *Service) searchFailed(ctx context.Context, errType, op string, cause error) error {
	err := &domain.SearchFailure{Op: op, Cause: cause}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	s.logger.Error("query failed", "op", op, "err", cause)
	s.sink.Emit(ctx, events.NewErrorEvent(errType, err))
	s.met.Counter(metrics.WithLabels("bugbot_queries_total", "outcome", "error"), queriesHelp).Inc()
	return err
}

const queriesHelp = "Questions handled, by outcome"

func (s *Service) observe(outcome string, start time.Time) {
	s.met.Counter(metrics.WithLabels("bugbot_queries_total", "outcome", outcome), queriesHelp).Inc()
	s.met.Histogram(metrics.WithLabels("bugbot_query_seconds", "outcome", outcome), "Answer latency in seconds", nil).Since(start)
}

type discard struct{}

func (discard) Emit(context.Context, events.Event) {}
