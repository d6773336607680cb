// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/auditdesk/lib/actions"
	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/eventstream"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
	"github.com/bureau-foundation/auditdesk/lib/session"
	"github.com/bureau-foundation/auditdesk/lib/snapshot"
)

// State is the synchronizer's connection state, for the status bar.
type State string

const (
	// StateOffline means there is no session (or the runtime is closed).
	StateOffline State = "offline"
	// StateConnecting means the event stream has not connected yet.
	StateConnecting State = "connecting"
	// StateLoading means a snapshot load is in progress.
	StateLoading State = "loading"
	// StateLive means the stream is connected and no snapshot load is
	// pending. Status.SnapshotLoaded tells whether the list is complete.
	StateLive State = "live"
	// StateReconnecting means the stream dropped and a redial is pending.
	StateReconnecting State = "reconnecting"
)

// Status is a point-in-time copy of the synchronizer's state.
type Status struct {
	State    State
	Username string

	// Generation is the session generation being synchronized.
	Generation uint64

	// SnapshotLoaded reports whether a snapshot was applied in this
	// generation.
	SnapshotLoaded bool

	// LastError is the most recent advisory error (a failed snapshot
	// load or a dropped stream), cleared by the next success.
	LastError error

	// RetryIn is the pending reconnect delay in StateReconnecting.
	RetryIn time.Duration

	// SyncedAt is when the last snapshot was applied.
	SyncedAt time.Time
}

// Loader fetches the job list. *snapshot.Loader implements it.
type Loader interface {
	Load(ctx context.Context) ([]job.Job, error)
}

// Streamer runs the event stream until ctx ends. *eventstream.Dialer
// implements it.
type Streamer interface {
	Run(ctx context.Context, handler func(eventstream.Event)) error
}

// StreamHooks are the lifecycle callbacks the runtime needs from the
// stream. NewStream copies them into eventstream.Config.
type StreamHooks struct {
	OnConnect    func()
	OnReconnect  func()
	OnDisconnect func(err error, backoff time.Duration)
}

// Recorder receives every input applied to the store.
// *journal.Writer implements it.
type Recorder interface {
	Snapshot(generation uint64, jobs []job.Job) error
	Event(generation uint64, name string, patch job.Patch) error
	Reset(generation uint64) error
}

// Config holds configuration for creating a Runtime.
type Config struct {
	Session     *session.Guard
	Loader      Loader
	Store       *jobstore.Store
	Coordinator *actions.Coordinator

	// NewStream builds the event stream with the runtime's hooks
	// installed. Called once, by New.
	NewStream func(StreamHooks) (Streamer, error)

	// Recorder, if not nil, journals every store input.
	Recorder Recorder

	// Clock is used by tests. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// ErrNoSession is returned by Reload when no session is live.
var ErrNoSession = errors.New("jobsync: not logged in")

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("jobsync: runtime already started")

// Runtime keeps the job store synchronized with the service while a
// session is authenticated. Each authenticated session runs in its own
// generation: a context, a snapshot load and a stream loop. When the
// session ends the generation is cancelled and drained before the
// store is cleared, so nothing from an old session reaches the store
// afterwards. Safe for concurrent use.
type Runtime struct {
	session     *session.Guard
	loader      Loader
	store       *jobstore.Store
	coordinator *actions.Coordinator
	stream      Streamer
	recorder    Recorder
	clock       clock.Clock
	logger      *slog.Logger

	mutex    sync.Mutex
	root     context.Context
	cancel   context.CancelFunc
	started  bool
	closed   bool
	dispose  func()
	current  *generation
	detached sync.WaitGroup

	subscribers map[int]chan struct{}
	nextSubID   int
}

// generation is the lifetime of one authenticated session.
type generation struct {
	id       uint64
	username string
	ctx      context.Context
	cancel   context.CancelFunc

	// closing is set under Runtime.mutex before wait.Wait; nothing
	// joins wait after that.
	closing bool
	wait    sync.WaitGroup

	// The rest is guarded by Runtime.mutex.
	streamUp       bool
	reconnecting   bool
	retryIn        time.Duration
	streamErr      error
	loading        int
	snapshotLoaded bool
	snapshotErr    error
	syncedAt       time.Time
}

// New validates config and builds the stream. The runtime does
// nothing until Start.
func New(config Config) (*Runtime, error) {
	if config.Session == nil || config.Loader == nil || config.Store == nil || config.NewStream == nil {
		return nil, errors.New("jobsync: Session, Loader, Store and NewStream are required")
	}
	runtime := &Runtime{
		session:     config.Session,
		loader:      config.Loader,
		store:       config.Store,
		coordinator: config.Coordinator,
		recorder:    config.Recorder,
		clock:       config.Clock,
		logger:      config.Logger,
		subscribers: make(map[int]chan struct{}),
	}
	if runtime.clock == nil {
		runtime.clock = clock.Real()
	}
	if runtime.logger == nil {
		runtime.logger = slog.Default()
	}
	stream, err := config.NewStream(StreamHooks{
		OnConnect:    runtime.streamConnected,
		OnReconnect:  runtime.streamReconnected,
		OnDisconnect: runtime.streamDisconnected,
	})
	if err != nil {
		return nil, fmt.Errorf("jobsync: building event stream: %w", err)
	}
	runtime.stream = stream
	return runtime, nil
}

// Start follows the session from now on and, if the guard has not
// probed yet, runs its probe. The returned error is the probe's
// failure, if any; the runtime keeps following the session either
// way. Background work is bounded by Close, not by ctx.
func (r *Runtime) Start(ctx context.Context) error {
	r.mutex.Lock()
	if r.started {
		r.mutex.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.root, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.mutex.Unlock()

	dispose := r.session.Subscribe(r.sessionChanged)
	r.mutex.Lock()
	r.dispose = dispose
	r.mutex.Unlock()

	current := r.session.Status()
	switch current.State {
	case session.StateAuthenticated:
		r.open(current.Generation, current.Username)
	case session.StateUnknown:
		err := r.session.Start(ctx)
		if err != nil && !errors.Is(err, session.ErrAlreadyStarted) {
			return err
		}
	}
	return nil
}

// sessionChanged runs synchronously inside the guard's transition, so
// it must not call back into the guard.
func (r *Runtime) sessionChanged(transition session.Transition) {
	if r.coordinator != nil {
		r.coordinator.Reset()
	}
	switch transition.To {
	case session.StateAuthenticated:
		r.teardown()
		r.open(transition.Generation, transition.Username)
	case session.StateAnonymous:
		r.teardown()
	}
}

// open starts a generation. A second call for the current generation
// is a no-op.
func (r *Runtime) open(id uint64, username string) {
	r.mutex.Lock()
	if r.closed || r.root == nil || (r.current != nil && r.current.id == id) {
		r.mutex.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(r.root)
	gen := &generation{id: id, username: username, ctx: ctx, cancel: cancel}
	gen.wait.Add(2)
	r.current = gen
	r.publishLocked()
	r.mutex.Unlock()

	r.logger.Info("sync generation started", "generation", id, "username", username)
	go func() {
		defer gen.wait.Done()
		r.load(gen, gen.ctx)
	}()
	go func() {
		defer gen.wait.Done()
		r.run(gen)
	}()
}

// teardown drains the current generation and clears the store. The
// runtime reports offline only once the store is empty.
func (r *Runtime) teardown() {
	gen := r.drain()
	if gen == nil {
		return
	}
	r.store.Reset()
	if r.recorder != nil {
		if err := r.recorder.Reset(gen.id); err != nil {
			r.logger.Warn("journal write failed", "error", err)
		}
	}
	r.release(gen)
	r.logger.Info("sync generation ended", "generation", gen.id)
}

// drain cancels the current generation and waits for its goroutines.
// Returns the drained generation, or nil if there was none or another
// caller is already draining it.
func (r *Runtime) drain() *generation {
	r.mutex.Lock()
	gen := r.current
	if gen == nil || gen.closing {
		r.mutex.Unlock()
		return nil
	}
	gen.closing = true
	r.mutex.Unlock()

	gen.cancel()
	gen.wait.Wait()
	return gen
}

// release forgets a drained generation.
func (r *Runtime) release(gen *generation) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.current == gen {
		r.current = nil
	}
	r.publishLocked()
}

// Status returns the current synchronizer status.
func (r *Runtime) Status() Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.statusLocked()
}

func (r *Runtime) statusLocked() Status {
	gen := r.current
	if gen == nil {
		return Status{State: StateOffline}
	}
	status := Status{
		Username:       gen.username,
		Generation:     gen.id,
		SnapshotLoaded: gen.snapshotLoaded,
		SyncedAt:       gen.syncedAt,
		LastError:      gen.snapshotErr,
	}
	switch {
	case gen.reconnecting:
		status.State = StateReconnecting
		status.RetryIn = gen.retryIn
		status.LastError = gen.streamErr
	case gen.loading > 0:
		status.State = StateLoading
	case !gen.streamUp:
		status.State = StateConnecting
	default:
		status.State = StateLive
	}
	return status
}

// Subscribe returns a channel that receives a value whenever the
// status may have changed, and a function that unregisters it.
// Wakeups coalesce; call Status for the current value.
func (r *Runtime) Subscribe() (<-chan struct{}, func()) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	id := r.nextSubID
	r.nextSubID++
	channel := make(chan struct{}, 1)
	r.subscribers[id] = channel

	var once sync.Once
	return channel, func() {
		once.Do(func() {
			r.mutex.Lock()
			defer r.mutex.Unlock()
			if _, ok := r.subscribers[id]; ok {
				delete(r.subscribers, id)
				close(channel)
			}
		})
	}
}

func (r *Runtime) publishLocked() {
	for _, channel := range r.subscribers {
		select {
		case channel <- struct{}{}:
		default:
		}
	}
}

// live reports whether gen is still the current generation.
func (r *Runtime) live(gen *generation) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.current == gen && !gen.closing && gen.ctx.Err() == nil
}

// join registers one more goroutine with gen. Returns false once gen
// is being torn down.
func (r *Runtime) join(gen *generation) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.current != gen || gen.closing {
		return false
	}
	gen.wait.Add(1)
	return true
}

// currentGeneration returns the live generation, or nil.
func (r *Runtime) currentGeneration() *generation {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.current == nil || r.current.closing {
		return nil
	}
	return r.current
}

// update applies change to gen's state if gen is still current and
// wakes subscribers.
func (r *Runtime) update(gen *generation, change func(*generation)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.current != gen || gen.closing {
		return
	}
	change(gen)
	r.publishLocked()
}

// expire ends the session after a 401. The guard is called from a
// detached goroutine: its listeners drain this generation, which
// includes the goroutine that saw the 401.
func (r *Runtime) expire(gen *generation, source string, err error) {
	if !r.live(gen) {
		return
	}
	r.logger.Warn("session expired", "source", source, "generation", gen.id, "error", err)
	r.detached.Add(1)
	go func() {
		defer r.detached.Done()
		r.session.Unauthorized()
	}()
}

// load runs one snapshot load for gen and applies the result if gen
// is still current when it arrives.
func (r *Runtime) load(gen *generation, ctx context.Context) error {
	r.update(gen, func(g *generation) { g.loading++ })

	jobs, err := r.loader.Load(ctx)

	if !r.live(gen) {
		r.logger.Debug("discarding snapshot from an ended generation", "generation", gen.id)
		return ErrNoSession
	}
	if err != nil {
		callerCanceled := ctx.Err() != nil
		r.update(gen, func(g *generation) {
			g.loading--
			if !callerCanceled {
				g.snapshotErr = err
			}
		})
		if snapshot.IsSessionExpired(err) {
			r.expire(gen, "snapshot", err)
		} else if !callerCanceled {
			r.logger.Warn("snapshot load failed", "generation", gen.id, "error", err)
		}
		return err
	}

	if r.recorder != nil {
		if err := r.recorder.Snapshot(gen.id, jobs); err != nil {
			r.logger.Warn("journal write failed", "error", err)
		}
	}
	r.store.ApplySnapshot(jobs)
	r.logger.Info("snapshot applied", "generation", gen.id, "jobs", len(jobs))
	r.update(gen, func(g *generation) {
		g.loading--
		g.snapshotLoaded = true
		g.snapshotErr = nil
		g.syncedAt = r.clock.Now()
	})
	return nil
}

// run keeps the event stream open for gen.
func (r *Runtime) run(gen *generation) {
	err := r.stream.Run(gen.ctx, func(event eventstream.Event) {
		if !r.live(gen) {
			return
		}
		if r.recorder != nil {
			if err := r.recorder.Event(gen.id, string(event.Kind), event.Patch); err != nil {
				r.logger.Warn("journal write failed", "error", err)
			}
		}
		r.store.ApplyEvent(event.Patch)
	})
	if snapshot.IsSessionExpired(err) {
		r.expire(gen, "stream", err)
	}
}

// The stream hooks run in the stream goroutine of the current
// generation.

func (r *Runtime) streamConnected() {
	gen := r.currentGeneration()
	if gen == nil {
		return
	}
	r.update(gen, func(g *generation) {
		g.streamUp = true
		g.reconnecting = false
		g.retryIn = 0
		g.streamErr = nil
	})
}

// streamReconnected reloads the snapshot: the stream has no replay,
// so changes made while it was down are only in the job list.
func (r *Runtime) streamReconnected() {
	gen := r.currentGeneration()
	if gen == nil || !r.join(gen) {
		return
	}
	r.logger.Info("event stream reconnected, reloading snapshot", "generation", gen.id)
	go func() {
		defer gen.wait.Done()
		r.load(gen, gen.ctx)
	}()
}

func (r *Runtime) streamDisconnected(err error, backoff time.Duration) {
	gen := r.currentGeneration()
	if gen == nil {
		return
	}
	r.update(gen, func(g *generation) {
		g.streamUp = false
		g.reconnecting = true
		g.retryIn = backoff
		g.streamErr = err
	})
}

// Reload loads the snapshot again, for a user-requested retry, and
// waits for the result. ctx bounds the wait; the session ending
// cancels it too.
func (r *Runtime) Reload(ctx context.Context) error {
	gen := r.currentGeneration()
	if gen == nil || !r.join(gen) {
		return ErrNoSession
	}
	defer gen.wait.Done()

	loadCtx, cancel := context.WithCancel(gen.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return r.load(gen, loadCtx)
}

// Close stops following the session, drains the current generation
// and closes subscriber channels. The store keeps its contents.
// Idempotent.
func (r *Runtime) Close() {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return
	}
	r.closed = true
	dispose := r.dispose
	cancel := r.cancel
	r.mutex.Unlock()

	if dispose != nil {
		dispose()
	}
	if gen := r.drain(); gen != nil {
		r.release(gen)
	}
	if cancel != nil {
		cancel()
	}
	r.detached.Wait()

	r.mutex.Lock()
	for id, channel := range r.subscribers {
		delete(r.subscribers, id)
		close(channel)
	}
	r.mutex.Unlock()
}
