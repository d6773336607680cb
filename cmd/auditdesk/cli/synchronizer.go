// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/auditdesk/lib/actions"
	"github.com/bureau-foundation/auditdesk/lib/eventstream"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/jobsync"
	"github.com/bureau-foundation/auditdesk/lib/journal"
	"github.com/bureau-foundation/auditdesk/lib/snapshot"
)

// Synchronizer is the job store with everything that feeds it,
// assembled from an Environment.
type Synchronizer struct {
	Store       *jobstore.Store
	Loader      *snapshot.Loader
	Coordinator *actions.Coordinator

	// Runtime follows the session and the event stream. Nil unless
	// built with live set.
	Runtime *jobsync.Runtime

	journal *journal.Writer
}

// NewSynchronizer builds the store, the snapshot loader and the
// action coordinator on the environment's client and guard. With live
// set it also builds the runtime that runs the event stream, with the
// journal from journal.path attached. logger replaces the
// environment's logger when not nil (the dashboard routes it into the
// UI).
func (e *Environment) NewSynchronizer(live bool, logger *slog.Logger) (*Synchronizer, error) {
	if logger == nil {
		logger = e.Logger
	}
	cfg := e.Config

	store := jobstore.New(jobstore.Config{Clock: e.Clock, Logger: logger})
	loader := snapshot.New(snapshot.Config{
		Fetcher:        e.Client,
		Attempts:       cfg.Snapshot.Attempts,
		InitialBackoff: cfg.Snapshot.InitialBackoff,
		MaxBackoff:     cfg.Snapshot.MaxBackoff,
		Clock:          e.Clock,
		Logger:         logger,
	})
	coordinator := actions.New(actions.Config{
		API:            e.Client,
		Session:        e.Guard,
		Store:          store,
		Attempts:       cfg.Actions.Attempts,
		InitialBackoff: cfg.Actions.InitialBackoff,
		MaxBackoff:     cfg.Actions.MaxBackoff,
		Clock:          e.Clock,
		Logger:         logger,
	})
	synchronizer := &Synchronizer{Store: store, Loader: loader, Coordinator: coordinator}
	if !live {
		return synchronizer, nil
	}

	runtimeConfig := jobsync.Config{
		Session:     e.Guard,
		Loader:      loader,
		Store:       store,
		Coordinator: coordinator,
		NewStream: func(hooks jobsync.StreamHooks) (jobsync.Streamer, error) {
			return eventstream.NewDialer(eventstream.Config{
				BaseURL:          e.Client.BaseURL(),
				HTTPClient:       e.Client.StreamHTTPClient(),
				HandshakeTimeout: cfg.Stream.HandshakeTimeout,
				InitialBackoff:   cfg.Stream.InitialBackoff,
				MaxBackoff:       cfg.Stream.MaxBackoff,
				OnConnect:        hooks.OnConnect,
				OnReconnect:      hooks.OnReconnect,
				OnDisconnect:     hooks.OnDisconnect,
				Clock:            e.Clock,
				Logger:           logger,
			})
		},
		Clock:  e.Clock,
		Logger: logger,
	}
	if cfg.Journal.Path != "" {
		writer, err := journal.Create(cfg.Journal.Path, e.Clock)
		if err != nil {
			return nil, Validation("cannot open journal: %w", err)
		}
		synchronizer.journal = writer
		runtimeConfig.Recorder = writer
		logger.Info("recording journal", "path", cfg.Journal.Path)
	}

	runtime, err := jobsync.New(runtimeConfig)
	if err != nil {
		synchronizer.Close()
		return nil, Internal("%w", err)
	}
	synchronizer.Runtime = runtime
	return synchronizer, nil
}

// LoadSnapshot fills the store with one snapshot, for commands that do
// not follow the stream.
func (s *Synchronizer) LoadSnapshot(ctx context.Context) error {
	jobs, err := s.Loader.Load(ctx)
	if err != nil {
		return Classify(err)
	}
	s.Store.ApplySnapshot(jobs)
	return nil
}

// Close stops the runtime and flushes the journal.
func (s *Synchronizer) Close() error {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}
