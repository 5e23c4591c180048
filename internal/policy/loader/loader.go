// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package loader manages the lifecycle of compiled policy sets: it
// fetches schema source, compiles it, and atomically swaps the active
// snapshot so in-flight decisions always see a consistent rule set.
package loader

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/policy"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Default loader configuration values.
const (
	defaultStalenessThreshold = 30 * time.Second
)

// Source provides schema source text. Implementations may read from a
// file, a database, or any other backing store.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// Notifier emits a signal whenever the underlying schema source may
// have changed. Implementations stop emitting when the context is
// cancelled; they may or may not close the channel.
type Notifier interface {
	Notify(ctx context.Context) (<-chan struct{}, error)
}

// Snapshot is an immutable view of one compiled schema version.
type Snapshot struct {
	Policies *policy.PolicySet
	Warnings []policy.ValidationWarning
	LoadedAt time.Time
}

// Option configures Loader behavior.
type Option func(*config)

type config struct {
	stalenessThreshold time.Duration
	lastUpdateGauge    prometheus.Gauge
}

// WithStalenessThreshold sets the duration after which the snapshot is
// considered stale.
func WithStalenessThreshold(d time.Duration) Option {
	return func(c *config) {
		c.stalenessThreshold = d
	}
}

// WithLastUpdateGauge sets the Prometheus gauge recording the last
// successful reload timestamp.
func WithLastUpdateGauge(g prometheus.Gauge) Option {
	return func(c *config) {
		c.lastUpdateGauge = g
	}
}

// Loader compiles schema source into policy sets and serves the
// current snapshot to concurrent readers. Reload swaps a pointer; it
// never mutates a published snapshot.
type Loader struct {
	source   Source
	compiler *policy.Compiler
	cfg      config

	mu       sync.RWMutex
	snapshot *Snapshot

	// lastUpdate stores the Unix timestamp in nanoseconds of the last
	// successful reload. Zero means no reload has occurred.
	lastUpdate atomic.Int64

	// wg tracks background goroutines for graceful shutdown.
	wg sync.WaitGroup
}

// New creates a Loader for the given source. Call Reload to populate
// the snapshot before first use.
func New(source Source, compiler *policy.Compiler, opts ...Option) *Loader {
	cfg := config{
		stalenessThreshold: defaultStalenessThreshold,
		lastUpdateGauge:    lastUpdateGauge,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Loader{
		source:   source,
		compiler: compiler,
		cfg:      cfg,
	}
}

// Current returns the active policy set, or nil before the first
// successful reload. Implements policy.PolicyProvider.
func (l *Loader) Current() *policy.PolicySet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.snapshot == nil {
		return nil
	}
	return l.snapshot.Policies
}

// Snapshot returns the current snapshot, or nil before the first
// successful reload. The returned snapshot is safe for concurrent use.
func (l *Loader) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Reload fetches schema source, compiles it, and atomically swaps the
// snapshot. The write lock is held only during the pointer swap, not
// during the fetch and compilation. A failed reload leaves the
// previous snapshot in place.
func (l *Loader) Reload(ctx context.Context) error {
	source, err := l.source.Fetch(ctx)
	if err != nil {
		return oops.Wrapf(err, "loader reload: fetch schema source")
	}

	policies, warnings, err := l.compiler.Compile(source)
	if err != nil {
		return oops.Wrapf(err, "loader reload: compile schema")
	}
	for _, w := range warnings {
		slog.WarnContext(ctx, "schema validation warning",
			"model", w.Model, "warning", w.Message)
	}

	snap := &Snapshot{
		Policies: policies,
		Warnings: warnings,
		LoadedAt: time.Now(),
	}

	l.mu.Lock()
	l.snapshot = snap
	l.mu.Unlock()

	now := time.Now()
	l.lastUpdate.Store(now.UnixNano())
	if l.cfg.lastUpdateGauge != nil {
		l.cfg.lastUpdateGauge.Set(float64(now.Unix()))
	}

	return nil
}

// IsStale returns true if no successful reload has occurred within the
// staleness threshold.
func (l *Loader) IsStale() bool {
	last := l.lastUpdate.Load()
	if last == 0 {
		return true // never reloaded
	}
	return time.Since(time.Unix(0, last)) > l.cfg.stalenessThreshold
}

// Start spawns a background goroutine that reloads the snapshot on
// each change notification. The goroutine exits when the context is
// cancelled or the notification channel closes.
func (l *Loader) Start(ctx context.Context, notifier Notifier) error {
	ch, err := notifier.Notify(ctx)
	if err != nil {
		return oops.Wrapf(err, "loader start notifier")
	}

	l.wg.Add(1)
	go l.watchLoop(ctx, ch)
	return nil
}

// Wait blocks until all background goroutines have exited.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// watchLoop processes change notifications and triggers reloads.
func (l *Loader) watchLoop(ctx context.Context, ch <-chan struct{}) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := l.Reload(ctx); err != nil {
				errutil.LogError(slog.Default(), "policy reload on notification failed", err)
			}
		}
	}
}

// lastUpdateGauge tracks the last successful schema reload across all
// loaders that do not override it with WithLastUpdateGauge.
var lastUpdateGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "gatehouse_schema_last_update",
	Help: "Unix timestamp of the last successful schema reload",
})
