package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/harmonyservices/todobot/pkg/todobot/conversation"
	"github.com/harmonyservices/todobot/pkg/todobot/enhance"
	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	mu      sync.Mutex
	tasks   map[string]store.Task
	seq     int
	failing bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]store.Task)}
}

func (f *fakeStore) Create(ctx context.Context, task store.Task) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return store.Task{}, fmt.Errorf("store unavailable")
	}
	f.seq++
	task.ID = fmt.Sprintf("task-%d", f.seq)
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeStore) ListByOwner(ctx context.Context, owner string) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, fmt.Errorf("store unavailable")
	}
	var out []store.Task
	for _, t := range f.tasks {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeStore) ListIncomplete(ctx context.Context, owner string) ([]store.Task, error) {
	all, err := f.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	var out []store.Task
	for _, t := range all {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return store.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) Update(ctx context.Context, id string, upd store.Update) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return store.Task{}, store.ErrNotFound
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Completed != nil {
		t.Completed = *upd.Completed
	}
	f.tasks[id] = t
	return t, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) Close() error { return nil }

// offlineEnhancer always fails, forcing the deterministic fallback.
type offlineEnhancer struct{}

func (offlineEnhancer) Enhance(ctx context.Context, title, description string) (enhance.Enhancement, error) {
	return enhance.Enhancement{}, fmt.Errorf("enhancer offline")
}

// recordingSender captures outbound deliveries.
type recordingSender struct {
	mu   sync.Mutex
	sent []struct{ To, Text string }
	fail bool
}

func (s *recordingSender) Send(ctx context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("gateway rejected message")
	}
	s.sent = append(s.sent, struct{ To, Text string }{to, text})
	return nil
}

type testGateway struct {
	gw     *Gateway
	store  *fakeStore
	sender *recordingSender
	srv    *httptest.Server
}

func newTestGateway(t *testing.T, cfg Config) *testGateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := newFakeStore()
	sender := &recordingSender{}
	engine := conversation.NewEngine(st, offlineEnhancer{}, conversation.NewMemoryStore(), "", logger)
	gw := New(cfg, engine, st, offlineEnhancer{}, sender, logger)
	srv := httptest.NewServer(gw.routes())
	t.Cleanup(srv.Close)
	return &testGateway{gw: gw, store: st, sender: sender, srv: srv}
}

func TestHealthEndpoint(t *testing.T) {
	tg := newTestGateway(t, Config{})

	resp, err := http.Get(tg.srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}
