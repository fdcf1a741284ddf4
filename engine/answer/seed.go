package answer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/bugbot/engine/catalog"
	"github.com/WessleyAI/bugbot/engine/domain"
	"github.com/WessleyAI/bugbot/engine/events"
	"github.com/WessleyAI/bugbot/engine/semantic"
	"github.com/WessleyAI/bugbot/pkg/fn"
)

// EnsureCatalogReady makes sure the collection exists and matches the
// embedder. A missing collection is created at the embedder's dimension and
// seeded; an existing one is only checked, never re-embedded. It reports
// whether the collection was created. Failures are *domain.SeedFailure.
func (s *Service) EnsureCatalogReady(ctx context.Context) (created bool, err error) {
	ctx, span := s.tracer.Start(ctx, "answer.EnsureCatalogReady")
	defer span.End()

	exists, err := withDeadline(ctx, s.opts.SearchTimeout, s.store.Exists)
	if err != nil {
		return false, s.seedFailed(ctx, ErrTypeCatalogConnect, "list collections", err)
	}

	dims, err := withDeadline(ctx, s.opts.EmbedTimeout, s.embedder.Dimension)
	if err != nil {
		return false, s.seedFailed(ctx, ErrTypeCatalogSeed, "probe embedding dimension", err)
	}

	if exists {
		have, err := withDeadline(ctx, s.opts.SearchTimeout, s.store.Dimension)
		if err != nil {
			return false, s.seedFailed(ctx, ErrTypeCatalogConnect, "read collection dimension", err)
		}
		if have != dims {
			return false, s.seedFailed(ctx, ErrTypeCatalogSeed, "check collection dimension",
				fmt.Errorf("collection has %d dimensions, embedder produces %d", have, dims))
		}
		span.SetAttributes(attribute.Bool("catalog.created", false))
		s.logger.Info("catalog collection already exists", "dimension", dims)
		return false, nil
	}

	s.logger.Info("creating catalog collection", "dimension", dims)
	_, err = withDeadline(ctx, s.opts.SearchTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Create(ctx, dims)
	})
	if err != nil {
		return false, s.seedFailed(ctx, ErrTypeCatalogSeed, "create collection", err)
	}
	if _, err := s.Reseed(ctx); err != nil {
		return true, err
	}
	span.SetAttributes(attribute.Bool("catalog.created", true))
	return true, nil
}

// Reseed embeds every catalog record and upserts them in one batch. Point ids
// are derived from record ids, so repeated calls overwrite rather than
// duplicate. It returns the number of records written.
func (s *Service) Reseed(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "answer.Reseed")
	defer span.End()

	if err := catalog.Validate(s.opts.Records); err != nil {
		return 0, s.seedFailed(ctx, ErrTypeCatalogSeed, "validate catalog", err)
	}

	embedAll := fn.TracedStage("answer.embed_catalog",
		fn.BatchStage(s.opts.SeedWorkers, s.embedRecord))
	upsert := fn.TracedStage("answer.upsert_catalog",
		func(ctx context.Context, recs []semantic.VectorRecord) fn.Result[int] {
			ctx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
			defer cancel()
			return fn.FromPair(len(recs), s.store.Upsert(ctx, recs))
		})

	n, err := fn.Then(embedAll, upsert)(ctx, s.opts.Records).Unwrap()
	if err != nil {
		return 0, s.seedFailed(ctx, ErrTypeCatalogSeed, "seed catalog", err)
	}

	s.met.Counter("bugbot_seeded_records_total", "Catalog records written to the vector store").Add(int64(n))
	span.SetAttributes(attribute.Int("catalog.records", n))
	s.logger.Info("catalog seeded", "records", n)
	return n, nil
}

func (s *Service) embedRecord(ctx context.Context, r catalog.BugRecord) fn.Result[semantic.VectorRecord] {
	ctx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()
	vec, err := s.embedder.Embed(ctx, r.Text())
	if err != nil {
		return fn.Err[semantic.VectorRecord](fmt.Errorf("embed %s: %w", r.ID, err))
	}
	return fn.Ok(semantic.VectorRecord{
		ID:          r.ID,
		Embedding:   vec,
		Title:       r.Title,
		Description: r.Description,
	})
}

// withDeadline runs call under its own timeout derived from ctx.
func withDeadline[T any](ctx context.Context, d time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return call(ctx)
}

func (s *Service) seedFailed(ctx context.Context, errType, op string, cause error) error {
	err := &domain.SeedFailure{Op: op, Cause: cause}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	s.logger.Error("catalog seeding failed", "op", op, "err", cause)
	s.sink.Emit(ctx, events.NewErrorEvent(errType, err))
	return err
}
