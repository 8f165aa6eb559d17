package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harmonyservices/todobot/pkg/todobot/conversation"
	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

type stubStore struct {
	store.Store
	tasksByOwner map[string][]store.Task
	err          error
}

func (s *stubStore) ListIncomplete(ctx context.Context, owner string) ([]store.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tasksByOwner[owner], nil
}

type captureSender struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func (c *captureSender) Send(ctx context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.sent == nil {
		c.sent = make(map[string]string)
	}
	c.sent[to] = text
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunDeliversDigests(t *testing.T) {
	sessions := conversation.NewMemoryStore()
	sessions.Put("5511999990000", conversation.Session{
		Address: "5511999990000",
		State:   conversation.StateMenu,
		Owner:   "jane@example.com",
	})
	sessions.Put("5581999990000", conversation.Session{
		Address: "5581999990000",
		State:   conversation.StateAwaitingIdentity,
	})
	sessions.Put("5521999990000", conversation.Session{
		Address: "5521999990000",
		State:   conversation.StateMenu,
		Owner:   "empty@example.com",
	})

	st := &stubStore{tasksByOwner: map[string][]store.Task{
		"jane@example.com": {
			{ID: "t1", Title: "Buy milk"},
			{ID: "t2", Title: "Call dentist"},
		},
	}}
	sender := &captureSender{}

	d := New(DefaultConfig(), sessions, st, sender, testLogger())
	sent, failed := d.Run(context.Background())

	if sent != 1 || failed != 0 {
		t.Fatalf("sent=%d failed=%d, want 1/0", sent, failed)
	}
	msg, ok := sender.sent["5511999990000"]
	if !ok {
		t.Fatal("no digest delivered to the identified session")
	}
	if !strings.Contains(msg, "2 open tasks") {
		t.Errorf("digest %q does not mention the task count", msg)
	}
	if !strings.Contains(msg, "1. Buy milk") || !strings.Contains(msg, "2. Call dentist") {
		t.Errorf("digest %q does not list the tasks", msg)
	}
	if _, ok := sender.sent["5581999990000"]; ok {
		t.Error("unidentified session received a digest")
	}
	if _, ok := sender.sent["5521999990000"]; ok {
		t.Error("session with no open tasks received a digest")
	}
}

func TestRunCountsFailures(t *testing.T) {
	sessions := conversation.NewMemoryStore()
	sessions.Put("5511999990000", conversation.Session{
		Address: "5511999990000",
		Owner:   "jane@example.com",
	})

	t.Run("store failure", func(t *testing.T) {
		st := &stubStore{err: fmt.Errorf("db gone")}
		d := New(DefaultConfig(), sessions, st, &captureSender{}, testLogger())

		sent, failed := d.Run(context.Background())
		if sent != 0 || failed != 1 {
			t.Errorf("sent=%d failed=%d, want 0/1", sent, failed)
		}
	})

	t.Run("delivery failure", func(t *testing.T) {
		st := &stubStore{tasksByOwner: map[string][]store.Task{
			"jane@example.com": {{ID: "t1", Title: "Buy milk"}},
		}}
		sender := &captureSender{err: fmt.Errorf("gateway down")}
		d := New(DefaultConfig(), sessions, st, sender, testLogger())

		sent, failed := d.Run(context.Background())
		if sent != 0 || failed != 1 {
			t.Errorf("sent=%d failed=%d, want 0/1", sent, failed)
		}
	})
}

func TestFormatDigestSingular(t *testing.T) {
	msg := FormatDigest([]store.Task{{Title: "Buy milk"}})
	if !strings.Contains(msg, "1 open task:") {
		t.Errorf("digest %q should use the singular form", msg)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	d := New(Config{Schedule: "not a schedule"}, conversation.NewMemoryStore(), &stubStore{}, &captureSender{}, testLogger())

	if err := d.Start(context.Background()); err == nil {
		d.Stop()
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStartAndStop(t *testing.T) {
	d := New(Config{Schedule: "@every 1h", RunTimeout: time.Second}, conversation.NewMemoryStore(), &stubStore{}, &captureSender{}, testLogger())

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	d.Stop()
}
