// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot fetches the full job list with bounded retry and
// call coalescing.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// Fetcher performs one snapshot request. *auditapi.Client
// implements it.
type Fetcher interface {
	Jobs(ctx context.Context) (auditapi.JobList, error)
}

// Default retry policy.
const (
	DefaultAttempts       = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// Config holds configuration for creating a Loader.
type Config struct {
	Fetcher Fetcher

	// Attempts bounds the requests per Load, including the first.
	// Zero means DefaultAttempts.
	Attempts int

	// InitialBackoff is the wait before the second attempt; each
	// later wait doubles up to MaxBackoff. Zero means the defaults.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Clock times the waits between attempts. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger records retries. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Stats counts loader activity.
type Stats struct {
	// Callers is the number of Load calls that attached to a fetch.
	Callers int64

	// Fetches is the number of fetches started; concurrent callers
	// share one.
	Fetches int64

	// Requests is the number of requests sent, across all attempts.
	Requests int64
}

// Loader fetches the snapshot. Safe for concurrent use.
type Loader struct {
	fetcher        Fetcher
	attempts       int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	clock          clock.Clock
	logger         *slog.Logger

	group singleflight.Group

	callers  atomic.Int64
	fetches  atomic.Int64
	requests atomic.Int64
}

// New creates a Loader.
func New(config Config) *Loader {
	loader := &Loader{
		fetcher:        config.Fetcher,
		attempts:       config.Attempts,
		initialBackoff: config.InitialBackoff,
		maxBackoff:     config.MaxBackoff,
		clock:          config.Clock,
		logger:         config.Logger,
	}
	if loader.attempts <= 0 {
		loader.attempts = DefaultAttempts
	}
	if loader.initialBackoff <= 0 {
		loader.initialBackoff = DefaultInitialBackoff
	}
	if loader.maxBackoff <= 0 {
		loader.maxBackoff = DefaultMaxBackoff
	}
	if loader.clock == nil {
		loader.clock = clock.Real()
	}
	if loader.logger == nil {
		loader.logger = slog.Default()
	}
	return loader
}

// Stats returns the activity counters.
func (l *Loader) Stats() Stats {
	return Stats{
		Callers:  l.callers.Load(),
		Fetches:  l.fetches.Load(),
		Requests: l.requests.Load(),
	}
}

// Load returns the user's full job list. A call made while another
// is in flight waits for and shares that call's result, so a burst of
// reload triggers sends one request. The shared fetch runs under the
// context of the call that started it.
//
// Transient failures (no response, 5xx) are retried with exponential
// backoff up to the attempt bound; the final error still satisfies
// auditapi.IsTransient. A 401 or any other 4xx is returned at once.
func (l *Loader) Load(ctx context.Context) ([]job.Job, error) {
	results := l.group.DoChan("snapshot", func() (any, error) {
		l.fetches.Add(1)
		return l.fetch(ctx)
	})
	l.callers.Add(1)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		shared := result.Val.([]job.Job)
		jobs := make([]job.Job, len(shared))
		for index := range shared {
			jobs[index] = shared[index].Clone()
		}
		return jobs, nil
	}
}

func (l *Loader) fetch(ctx context.Context) ([]job.Job, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.initialBackoff
	policy.MaxInterval = l.maxBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.Reset()

	var lastErr error
	for attempt := 1; attempt <= l.attempts; attempt++ {
		l.requests.Add(1)
		list, err := l.fetcher.Jobs(ctx)
		if err == nil {
			if attempt > 1 {
				l.logger.Info("snapshot loaded after retry", "attempt", attempt, "jobs", len(list.Jobs))
			}
			return list.Jobs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !auditapi.IsTransient(err) {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		lastErr = err
		if attempt == l.attempts {
			break
		}

		delay := policy.NextBackOff()
		l.logger.Warn("snapshot load failed, retrying",
			"attempt", attempt,
			"error", err,
			"backoff", delay,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.clock.After(delay):
		}
	}
	return nil, fmt.Errorf("snapshot: giving up after %d attempts: %w", l.attempts, lastErr)
}

// IsSessionExpired reports whether a Load error means the session is
// gone.
func IsSessionExpired(err error) bool {
	return errors.Is(err, auditapi.ErrUnauthorized)
}
