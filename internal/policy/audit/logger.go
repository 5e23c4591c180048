// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package audit provides audit logging for access control decisions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/policy/types"
)

// Mode controls which decisions are logged.
type Mode string

// Audit logging modes.
const (
	ModeMinimal     Mode = "minimal"      // denials only
	ModeDenialsOnly Mode = "denials_only" // denials + default_deny
	ModeAll         Mode = "all"          // everything
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMinimal, ModeDenialsOnly, ModeAll:
		return Mode(s), nil
	default:
		return "", oops.Code("AUDIT_INVALID_MODE").With("mode", s).
			Errorf("audit mode must be minimal, denials_only, or all")
	}
}

// Entry represents a single access control decision to be logged.
type Entry struct {
	ID         string       `json:"id"`
	Entity     string       `json:"entity"`
	Operation  string       `json:"operation"`
	Actor      string       `json:"actor"`
	Effect     types.Effect `json:"effect"`
	Rule       string       `json:"rule"`
	DurationUS int64        `json:"duration_us"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Writer is the interface for writing audit entries to a backend.
type Writer interface {
	WriteSync(ctx context.Context, entry Entry) error
	WriteAsync(entry Entry) error
	Close() error
}

var (
	channelFullCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatehouse_audit_channel_full_total",
		Help: "Total number of times the async audit channel was full",
	})

	failuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatehouse_audit_failures_total",
		Help: "Total number of audit logging failures",
	}, []string{"reason"})

	walEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gatehouse_audit_wal_entries",
		Help: "Current number of entries in the WAL",
	})
)

// Logger routes audit entries based on mode and effect. Denials are
// written synchronously with a WAL fallback; allows (in mode "all")
// go through a buffered async channel.
type Logger struct {
	mode      Mode
	writer    Writer
	walPath   string
	walFile   *os.File
	walMu     sync.Mutex
	asyncChan chan Entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewLogger creates a Logger with the given mode, writer, and WAL path.
func NewLogger(mode Mode, writer Writer, walPath string) *Logger {
	l := &Logger{
		mode:      mode,
		writer:    writer,
		walPath:   walPath,
		asyncChan: make(chan Entry, 1000),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncConsumer()

	return l
}

// Log routes an audit entry based on the configured mode and effect.
// Entries without an ID are assigned a ULID.
func (l *Logger) Log(ctx context.Context, entry Entry) error {
	shouldLog, useSync := l.shouldLog(entry.Effect)
	if !shouldLog {
		return nil
	}

	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}

	if useSync {
		if err := l.writer.WriteSync(ctx, entry); err != nil {
			if walErr := l.writeToWAL(entry); walErr != nil {
				slog.Error("audit write failed: both writer and WAL failed",
					"writer_error", err,
					"wal_error", walErr,
					"entity", entry.Entity,
					"operation", entry.Operation,
					"effect", entry.Effect,
				)
				failuresCounter.WithLabelValues("wal_failed").Inc()
			}
		}
		return nil
	}

	select {
	case l.asyncChan <- entry:
		return nil
	default:
		channelFullCounter.Inc()
		return nil
	}
}

// shouldLog determines if an entry should be logged based on mode and
// effect. Returns (shouldLog, useSync).
func (l *Logger) shouldLog(effect types.Effect) (shouldLog, useSync bool) {
	switch l.mode {
	case ModeMinimal:
		if effect == types.EffectDeny {
			return true, true
		}
		return false, false

	case ModeDenialsOnly:
		switch effect {
		case types.EffectDeny, types.EffectDefaultDeny:
			return true, true
		default:
			return false, false
		}

	case ModeAll:
		switch effect {
		case types.EffectDeny, types.EffectDefaultDeny:
			return true, true
		case types.EffectAllow:
			return true, false
		default:
			return false, false
		}

	default:
		return false, false
	}
}

// asyncConsumer processes async writes from the channel.
func (l *Logger) asyncConsumer() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.asyncChan:
			if err := l.writer.WriteAsync(entry); err != nil {
				slog.Error("async audit write failed",
					"error", err,
					"entity", entry.Entity,
					"operation", entry.Operation,
				)
				failuresCounter.WithLabelValues("async_write_failed").Inc()
			}
		case <-l.stopChan:
			l.drainAsync()
			return
		}
	}
}

// drainAsync processes all remaining entries in the channel.
func (l *Logger) drainAsync() {
	for {
		select {
		case entry := <-l.asyncChan:
			if err := l.writer.WriteAsync(entry); err != nil {
				slog.Error("async audit write failed during drain",
					"error", err,
					"entity", entry.Entity,
				)
				failuresCounter.WithLabelValues("async_write_failed").Inc()
			}
		default:
			return
		}
	}
}

// writeToWAL appends an entry to the write-ahead log.
func (l *Logger) writeToWAL(entry Entry) error {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	if l.walFile == nil {
		file, err := os.OpenFile(l.walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY|os.O_SYNC, 0o600)
		if err != nil {
			return oops.With("path", l.walPath).Wrap(err)
		}
		l.walFile = file
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return oops.Wrap(err)
	}

	if _, err := fmt.Fprintf(l.walFile, "%s\n", data); err != nil {
		return oops.Wrap(err)
	}

	walEntriesGauge.Inc()
	return nil
}

// ReplayWAL reads all entries from the WAL and writes them to the
// writer. On success, truncates the WAL file.
func (l *Logger) ReplayWAL(ctx context.Context) error {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	if _, err := os.Stat(l.walPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(l.walPath)
	if err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}
	if len(data) == 0 {
		return nil
	}

	replayed := 0
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			slog.Error("failed to unmarshal WAL entry", "error", err, "line", line)
			failuresCounter.WithLabelValues("wal_unmarshal_failed").Inc()
			continue
		}

		if err := l.writer.WriteSync(ctx, entry); err != nil {
			slog.Error("failed to replay WAL entry", "error", err, "id", entry.ID)
			failuresCounter.WithLabelValues("wal_replay_failed").Inc()
		}
		replayed++
	}

	if err := os.Truncate(l.walPath, 0); err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}

	walEntriesGauge.Set(0)
	slog.Info("replayed WAL entries", "count", replayed)
	return nil
}

// Close gracefully shuts down the logger, draining pending async
// entries.
func (l *Logger) Close() error {
	close(l.stopChan)
	l.wg.Wait()

	if err := l.writer.Close(); err != nil {
		return oops.Wrap(err)
	}

	l.walMu.Lock()
	defer l.walMu.Unlock()
	if l.walFile != nil {
		if err := l.walFile.Close(); err != nil {
			return oops.Wrap(err)
		}
		l.walFile = nil
	}

	return nil
}
