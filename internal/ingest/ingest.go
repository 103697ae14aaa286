// Package ingest runs the background loop that pulls protocol update
// events and feeds them onto the queue consumed by the event loop. It
// never touches UI or store state directly.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mvolodin/teleterm/internal/queue"
	"github.com/mvolodin/teleterm/internal/store"
)

// ErrAuthInvalidated is returned by an EventSource when the server has
// revoked the session. The loop signals the orchestrator and stops.
var ErrAuthInvalidated = errors.New("ingest: authorization invalidated")

// EventSource yields the next update event, blocking until one is
// available or ctx is cancelled.
type EventSource interface {
	Next(ctx context.Context) (store.Update, error)
}

type Loop struct {
	source     EventSource
	q          *queue.Queue[store.Update]
	log        *zap.Logger
	onAuthLost func()
	onRetry    func(err error, wait time.Duration)
	newBackoff func() backoff.BackOff
}

// New creates a loop. onAuthLost is invoked (from the loop goroutine)
// when the session is invalidated; it should only hand a signal over to
// the event loop.
func New(source EventSource, q *queue.Queue[store.Update], log *zap.Logger, onAuthLost func()) *Loop {
	return &Loop{
		source:     source,
		q:          q,
		log:        log,
		onAuthLost: onAuthLost,
		newBackoff: defaultBackoff,
	}
}

func defaultBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // connectivity loss is not fatal; retry forever
	return bo
}

// SetBackoff replaces the retry policy factory. Tests use this to avoid
// real delays.
func (l *Loop) SetBackoff(f func() backoff.BackOff) { l.newBackoff = f }

// SetOnRetry installs a hook called (from the loop goroutine) before each
// backoff sleep, so the UI can show a connectivity indicator.
func (l *Loop) SetOnRetry(f func(err error, wait time.Duration)) { l.onRetry = f }

// Run pulls events until ctx is cancelled or auth is invalidated.
// Transient source errors are retried with exponential backoff.
func (l *Loop) Run(ctx context.Context) error {
	bo := l.newBackoff()

	for {
		ev, err := l.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrAuthInvalidated) {
				l.log.Warn("authorization invalidated, stopping ingestion")
				if l.onAuthLost != nil {
					l.onAuthLost()
				}
				return err
			}

			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				wait = 30 * time.Second
			}
			l.log.Warn("update stream error, retrying",
				zap.Error(err),
				zap.Duration("backoff", wait))
			if l.onRetry != nil {
				l.onRetry(err, wait)
			}

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		bo.Reset()
		if l.q.Push(ev) {
			l.log.Warn("update queue full, dropped oldest",
				zap.Uint64("dropped_total", l.q.Dropped()))
		}
	}
}
