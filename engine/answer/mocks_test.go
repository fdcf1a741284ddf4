package answer

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/WessleyAI/bugbot/engine/events"
	"github.com/WessleyAI/bugbot/engine/semantic"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockEmbedder struct {
	mu     sync.Mutex
	dims   int
	dimErr error
	err    error
	texts  []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	if m.err != nil {
		return nil, m.err
	}
	vec := make([]float32, m.dims)
	for i := range vec {
		vec[i] = float32(len(text)+i) / 100
	}
	return vec, nil
}

func (m *mockEmbedder) Dimension(context.Context) (int, error) {
	return m.dims, m.dimErr
}

func (m *mockEmbedder) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.texts)
}

type mockStore struct {
	mu sync.Mutex

	exists    bool
	existsErr error
	dims      int
	dimErr    error
	createErr error
	upsertErr error

	matches  []semantic.Match
	queryErr error

	created  []int
	upserts  int
	points   map[string]semantic.VectorRecord
	queries  int
	lastTopK int
}

func (m *mockStore) Exists(context.Context) (bool, error) { return m.exists, m.existsErr }

func (m *mockStore) Dimension(context.Context) (int, error) { return m.dims, m.dimErr }

func (m *mockStore) Create(_ context.Context, dims int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, dims)
	m.exists, m.dims = true, dims
	return nil
}

func (m *mockStore) Upsert(_ context.Context, recs []semantic.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	if m.points == nil {
		m.points = make(map[string]semantic.VectorRecord)
	}
	for _, r := range recs {
		m.points[r.ID] = r
	}
	return nil
}

func (m *mockStore) Query(_ context.Context, _ []float32, topK int) ([]semantic.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	m.lastTopK = topK
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if len(m.matches) > topK {
		return m.matches[:topK], nil
	}
	return m.matches, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Emit(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recordingSink) errorTypes() []string {
	var out []string
	for _, ev := range r.all() {
		if e, ok := ev.(events.ErrorEvent); ok {
			out = append(out, e.ErrorType)
		}
	}
	return out
}
