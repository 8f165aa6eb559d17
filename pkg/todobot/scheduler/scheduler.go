// Package scheduler sends the daily task digest. On each cron fire it walks
// the live sessions, fetches every identified user's open tasks, and pushes
// a summary through the outbound sender.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/harmonyservices/todobot/pkg/todobot/conversation"
	"github.com/harmonyservices/todobot/pkg/todobot/messenger"
	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

// Config holds digest scheduler configuration.
type Config struct {
	// Enabled turns the digest on.
	Enabled bool `yaml:"enabled"`

	// Schedule is the cron expression or shorthand (e.g. "0 8 * * *",
	// "@daily", "@every 24h").
	Schedule string `yaml:"schedule"`

	// RunTimeout caps a single digest run.
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Schedule:   "0 8 * * *",
		RunTimeout: 2 * time.Minute,
	}
}

// Digest runs the scheduled open-task summaries.
type Digest struct {
	cfg      Config
	sessions conversation.SessionStore
	store    store.Store
	sender   messenger.Sender
	logger   *slog.Logger

	cron    *cron.Cron
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a digest scheduler.
func New(cfg Config, sessions conversation.SessionStore, st store.Store, sender messenger.Sender, logger *slog.Logger) *Digest {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 8 * * *"
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	return &Digest{
		cfg:      cfg,
		sessions: sessions,
		store:    st,
		sender:   sender,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start registers the digest with cron and starts firing.
func (d *Digest) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	if _, err := d.cron.AddFunc(d.cfg.Schedule, d.run); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", d.cfg.Schedule, err)
	}

	d.cron.Start()
	d.logger.Info("digest scheduler started", "schedule", d.cfg.Schedule)
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running digest.
func (d *Digest) Stop() {
	if d.cron != nil {
		stopCtx := d.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(10 * time.Second):
			d.logger.Warn("digest scheduler stop timed out")
		}
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.logger.Info("digest scheduler stopped")
}

// run executes one digest pass. A guard skips the fire when the previous
// pass is still going.
func (d *Digest) run() {
	if !d.running.CompareAndSwap(false, true) {
		d.logger.Warn("skipping digest (previous run still active)")
		return
	}
	defer d.running.Store(false)

	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.RunTimeout)
	defer cancel()

	sent, failed := d.Run(ctx)
	d.logger.Info("digest pass completed", "sent", sent, "failed", failed)
}

// Run walks the current sessions and delivers a digest to every identified
// user with open tasks. It returns the delivered and failed counts.
func (d *Digest) Run(ctx context.Context) (sent, failed int) {
	for _, sess := range d.sessions.Snapshot() {
		if sess.Owner == "" {
			continue
		}

		tasks, err := d.store.ListIncomplete(ctx, sess.Owner)
		if err != nil {
			d.logger.Error("digest: listing tasks failed", "owner", sess.Owner, "error", err)
			failed++
			continue
		}
		if len(tasks) == 0 {
			continue
		}

		if err := d.sender.Send(ctx, sess.Address, FormatDigest(tasks)); err != nil {
			d.logger.Error("digest: delivery failed", "to", sess.Address, "error", err)
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}

// FormatDigest renders the open-task summary message.
func FormatDigest(tasks []store.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌅 Good morning! You have %d open task", len(tasks))
	if len(tasks) != 1 {
		b.WriteByte('s')
	}
	b.WriteString(":\n\n")
	for i, task := range tasks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, task.Title)
	}
	b.WriteString("\nSend *1* to see details, or *3* to mark one done.")
	return b.String()
}
