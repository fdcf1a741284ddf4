package answer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/bugbot/engine/catalog"
	"github.com/WessleyAI/bugbot/engine/domain"
	"github.com/WessleyAI/bugbot/engine/events"
	"github.com/WessleyAI/bugbot/engine/semantic"
	"github.com/WessleyAI/bugbot/pkg/resilience"
)

var testRecords = []catalog.BugRecord{
	{ID: "b1", Title: levelHangTitle, Description: levelHangDesc},
	{ID: "b2", Title: "Audio cuts out", Description: "Sound stops after alt-tab."},
	{ID: "b3", Title: "Save corruption", Description: "Save file is unreadable after a crash."},
}

func newSeedService(emb *mockEmbedder, store *mockStore, sink EventSink) *Service {
	opts := DefaultOptions()
	opts.Records = testRecords
	opts.SeedWorkers = 2
	return New(emb, store, sink, opts, quiet, nil)
}

func TestEnsureCatalogReady_CreatesAndSeeds(t *testing.T) {
	emb := &mockEmbedder{dims: 768}
	store := &mockStore{}
	svc := newSeedService(emb, store, nil)

	created, err := svc.EnsureCatalogReady(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected collection to be created")
	}
	if len(store.created) != 1 || store.created[0] != 768 {
		t.Fatalf("expected one create at 768 dims, got %v", store.created)
	}
	if store.upserts != 1 || len(store.points) != len(testRecords) {
		t.Fatalf("expected one batch of %d points, got %d upserts / %d points",
			len(testRecords), store.upserts, len(store.points))
	}
	p := store.points["b1"]
	if p.Title != levelHangTitle || p.Description != levelHangDesc || len(p.Embedding) != 768 {
		t.Fatalf("unexpected stored record: %+v", p)
	}
}

func TestEnsureCatalogReady_ExistingCollectionIsNotReembedded(t *testing.T) {
	emb := &mockEmbedder{dims: 768}
	store := &mockStore{exists: true, dims: 768}
	svc := newSeedService(emb, store, nil)

	created, err := svc.EnsureCatalogReady(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("collection already existed")
	}
	if len(store.created) != 0 || store.upserts != 0 || emb.calls() != 0 {
		t.Fatalf("expected no create/upsert/embed, got %d/%d/%d", len(store.created), store.upserts, emb.calls())
	}
}

func TestEnsureCatalogReady_DimensionMismatch(t *testing.T) {
	sink := &recordingSink{}
	svc := newSeedService(&mockEmbedder{dims: 768}, &mockStore{exists: true, dims: 384}, sink)

	_, err := svc.EnsureCatalogReady(context.Background())
	if !errors.Is(err, domain.ErrSeed) {
		t.Fatalf("expected ErrSeed, got %v", err)
	}
	if got := sink.errorTypes(); len(got) != 1 || got[0] != ErrTypeCatalogSeed {
		t.Fatalf("expected catalog_seed error event, got %v", got)
	}
}

func TestEnsureCatalogReady_Failures(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name    string
		emb     *mockEmbedder
		store   *mockStore
		errType string
	}{
		{"list", &mockEmbedder{dims: 8}, &mockStore{existsErr: boom}, ErrTypeCatalogConnect},
		{"probe", &mockEmbedder{dimErr: boom}, &mockStore{}, ErrTypeCatalogSeed},
		{"create", &mockEmbedder{dims: 8}, &mockStore{createErr: boom}, ErrTypeCatalogSeed},
		{"upsert", &mockEmbedder{dims: 8}, &mockStore{upsertErr: boom}, ErrTypeCatalogSeed},
		{"dimension", &mockEmbedder{dims: 8}, &mockStore{exists: true, dimErr: boom}, ErrTypeCatalogConnect},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sink := &recordingSink{}
			svc := newSeedService(c.emb, c.store, sink)
			_, err := svc.EnsureCatalogReady(context.Background())
			if !errors.Is(err, domain.ErrSeed) || !errors.Is(err, boom) {
				t.Fatalf("expected ErrSeed wrapping cause, got %v", err)
			}
			if got := sink.errorTypes(); len(got) != 1 || got[0] != c.errType {
				t.Fatalf("expected one %s error event, got %v", c.errType, got)
			}
		})
	}
}

func TestReseed_Idempotent(t *testing.T) {
	store := &mockStore{exists: true}
	svc := newSeedService(&mockEmbedder{dims: 4}, store, nil)

	for i := 0; i < 2; i++ {
		n, err := svc.Reseed(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if n != len(testRecords) {
			t.Fatalf("run %d: expected %d records, got %d", i, len(testRecords), n)
		}
	}
	if store.upserts != 2 {
		t.Fatalf("expected 2 upsert batches, got %d", store.upserts)
	}
	if len(store.points) != len(testRecords) {
		t.Fatalf("reseeding must not duplicate points: got %d", len(store.points))
	}
}

func TestReseed_EmbedsTitleAndDescription(t *testing.T) {
	emb := &mockEmbedder{dims: 4}
	svc := newSeedService(emb, &mockStore{}, nil)
	if _, err := svc.Reseed(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{}
	for _, r := range testRecords {
		want[r.Title+". "+r.Description] = true
	}
	for _, text := range emb.texts {
		if !want[text] {
			t.Errorf("unexpected embedded text %q", text)
		}
		delete(want, text)
	}
	if len(want) != 0 {
		t.Errorf("records never embedded: %v", want)
	}
}

func TestReseed_EmbedFailureSkipsUpsert(t *testing.T) {
	store := &mockStore{}
	svc := newSeedService(&mockEmbedder{err: errors.New("model not loaded")}, store, nil)

	_, err := svc.Reseed(context.Background())
	if !errors.Is(err, domain.ErrSeed) {
		t.Fatalf("expected ErrSeed, got %v", err)
	}
	if store.upserts != 0 {
		t.Fatal("nothing should be upserted after an embed failure")
	}
}

func TestReseed_InvalidCatalog(t *testing.T) {
	opts := DefaultOptions()
	opts.Records = []catalog.BugRecord{{ID: "b1", Title: "t", Description: "d"}, {ID: "b1", Title: "t", Description: "d"}}
	emb := &mockEmbedder{dims: 4}
	svc := New(emb, &mockStore{}, nil, opts, quiet, nil)

	_, err := svc.Reseed(context.Background())
	if !errors.Is(err, domain.ErrSeed) || !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("expected ErrSeed wrapping ErrInvalidRecord, got %v", err)
	}
	if emb.calls() != 0 {
		t.Fatal("invalid catalog must not be embedded")
	}
}

func TestReseed_BuiltInCatalog(t *testing.T) {
	store := &mockStore{}
	svc := New(&mockEmbedder{dims: 4}, store, nil, DefaultOptions(), quiet, nil)
	n, err := svc.Reseed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != len(catalog.Bugs()) || len(store.points) != n {
		t.Fatalf("expected %d records seeded, got %d", len(catalog.Bugs()), n)
	}
}

// stallingStore blocks the named operation until its context ends.
type stallingStore struct {
	*mockStore
	stall string
}

func (s stallingStore) wait(ctx context.Context, op string) error {
	if s.stall != op {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s stallingStore) Exists(ctx context.Context) (bool, error) {
	if err := s.wait(ctx, "exists"); err != nil {
		return false, err
	}
	return s.mockStore.Exists(ctx)
}

func (s stallingStore) Dimension(ctx context.Context) (int, error) {
	if err := s.wait(ctx, "dimension"); err != nil {
		return 0, err
	}
	return s.mockStore.Dimension(ctx)
}

func (s stallingStore) Create(ctx context.Context, dims int) error {
	if err := s.wait(ctx, "create"); err != nil {
		return err
	}
	return s.mockStore.Create(ctx, dims)
}

func (s stallingStore) Upsert(ctx context.Context, recs []semantic.VectorRecord) error {
	if err := s.wait(ctx, "upsert"); err != nil {
		return err
	}
	return s.mockStore.Upsert(ctx, recs)
}

func TestEnsureCatalogReady_StalledStoreTimesOut(t *testing.T) {
	cases := []struct {
		stall  string
		exists bool
	}{
		{"exists", false},
		{"dimension", true},
		{"create", false},
		{"upsert", false},
	}
	for _, c := range cases {
		t.Run(c.stall, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Records = testRecords
			opts.SearchTimeout = 50 * time.Millisecond
			store := stallingStore{mockStore: &mockStore{exists: c.exists, dims: 8}, stall: c.stall}
			svc := New(&mockEmbedder{dims: 8}, store, nil, opts, quiet, nil)

			done := make(chan error, 1)
			go func() {
				_, err := svc.EnsureCatalogReady(context.Background())
				done <- err
			}()
			select {
			case err := <-done:
				if !errors.Is(err, domain.ErrSeed) || !errors.Is(err, context.DeadlineExceeded) {
					t.Fatalf("expected ErrSeed wrapping DeadlineExceeded, got %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("still blocked on %s after 2s", c.stall)
			}
		})
	}
}

func TestReseed_StalledUpsertTimesOut(t *testing.T) {
	opts := DefaultOptions()
	opts.Records = testRecords
	opts.SearchTimeout = 50 * time.Millisecond
	store := stallingStore{mockStore: &mockStore{exists: true}, stall: "upsert"}
	svc := New(&mockEmbedder{dims: 4}, store, nil, opts, quiet, nil)

	start := time.Now()
	_, err := svc.Reseed(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("reseed took %v", elapsed)
	}
}

func TestEnsureCatalogReady_SinkFailuresDoNotAffectResult(t *testing.T) {
	newDispatcher := func() *events.Dispatcher {
		d := events.NewDispatcher(200*time.Millisecond, quiet, nil)
		d.Add("slow", blockingSink{}, resilience.BreakerOpts{})
		d.Add("broken", failingSink{}, resilience.BreakerOpts{})
		return d
	}

	t.Run("created", func(t *testing.T) {
		d := newDispatcher()
		defer d.Close()
		svc := newSeedService(&mockEmbedder{dims: 8}, &mockStore{}, d)

		start := time.Now()
		created, err := svc.EnsureCatalogReady(context.Background())
		if err != nil || !created {
			t.Fatalf("expected created without error, got %v %v", created, err)
		}
		if elapsed := time.Since(start); elapsed >= 200*time.Millisecond {
			t.Fatalf("seeding waited for sinks: %v", elapsed)
		}
	})

	t.Run("create fails", func(t *testing.T) {
		d := newDispatcher()
		defer d.Close()
		boom := errors.New("boom")
		svc := newSeedService(&mockEmbedder{dims: 8}, &mockStore{createErr: boom}, d)

		start := time.Now()
		_, err := svc.EnsureCatalogReady(context.Background())
		var sf *domain.SeedFailure
		if !errors.As(err, &sf) || !errors.Is(err, boom) {
			t.Fatalf("expected SeedFailure wrapping cause, got %v", err)
		}
		if elapsed := time.Since(start); elapsed >= 200*time.Millisecond {
			t.Fatalf("seeding waited for sinks: %v", elapsed)
		}
	})
}
