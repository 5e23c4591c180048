// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default reconnection backoff for the notification listener.
const (
	listenReconnectInitial = 100 * time.Millisecond
	listenReconnectMax     = 30 * time.Second
)

// PgListener emits a signal on each NOTIFY received on NotifyChannel,
// using a dedicated (non-pooled) connection. The connection is
// re-established with exponential backoff when it drops.
//
// PgListener implements the loader's Notifier contract.
type PgListener struct {
	connStr string
	channel string
}

// NewPgListener creates a listener for NotifyChannel. The connStr must
// be a PostgreSQL connection string; the listener opens its own
// connection rather than borrowing from a pool, because LISTEN ties
// notifications to a single session.
func NewPgListener(connStr string) *PgListener {
	return &PgListener{connStr: connStr, channel: NotifyChannel}
}

// Notify starts the listen loop and returns the signal channel. The
// loop runs until the context is cancelled.
func (l *PgListener) Notify(ctx context.Context) (<-chan struct{}, error) {
	// Establish the first connection eagerly so misconfiguration
	// surfaces at startup rather than as silent retry churn.
	conn, err := l.connect(ctx)
	if err != nil {
		return nil, oops.With("channel", l.channel).Wrapf(err, "connect notification listener")
	}

	ch := make(chan struct{}, 1)
	go l.listenLoop(ctx, conn, ch)
	return ch, nil
}

// connect opens a dedicated connection and issues LISTEN.
func (l *PgListener) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, l.connStr)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		_ = conn.Close(ctx) //nolint:errcheck // listen failure takes precedence
		return nil, err
	}
	return conn, nil
}

// listenLoop waits for notifications, coalescing them into the signal
// channel, and reconnects with backoff on connection failure.
func (l *PgListener) listenLoop(ctx context.Context, conn *pgx.Conn, ch chan<- struct{}) {
	defer func() {
		if conn != nil {
			_ = conn.Close(context.Background()) //nolint:errcheck // shutdown path
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		if conn == nil {
			backoff := retry.WithCappedDuration(listenReconnectMax,
				retry.NewExponential(listenReconnectInitial))
			err := retry.Do(ctx, backoff, func(ctx context.Context) error {
				c, err := l.connect(ctx)
				if err != nil {
					return retry.RetryableError(err)
				}
				conn = c
				return nil
			})
			if err != nil {
				return // context cancelled during backoff
			}
			// The drop may have swallowed a notification; signal a
			// reload so the consumer resynchronizes.
			select {
			case ch <- struct{}{}:
			default:
			}
		}

		_, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("schema notification connection lost, reconnecting",
				slog.String("channel", l.channel),
				slog.String("error", err.Error()))
			_ = conn.Close(context.Background()) //nolint:errcheck // already broken
			conn = nil
			continue
		}

		select {
		case ch <- struct{}{}:
		default: // a signal is already pending; coalesce
		}
	}
}
