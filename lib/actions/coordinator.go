// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
	"github.com/bureau-foundation/auditdesk/lib/session"
)

// Kind is a destructive action.
type Kind string

const (
	KindStop   Kind = "stop"
	KindDelete Kind = "delete"
	KindLogout Kind = "logout"

	// KindCreate labels rejections of Create. It is never pending.
	KindCreate Kind = "create"
)

// Phase is where a pending action stands.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseAwaitingConfirmation
	PhaseInFlight
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseAwaitingConfirmation:
		return "awaiting_confirmation"
	case PhaseInFlight:
		return "in_flight"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// PendingAction is the coordinator's state. Kind and Target are
// empty in PhaseNone; Target is empty for logout.
type PendingAction struct {
	Phase  Phase
	Kind   Kind
	Target string
}

// Outcome describes a confirmed action that succeeded.
type Outcome struct {
	Kind   Kind
	Target string
}

// API is the subset of the service client the coordinator calls.
// *auditapi.Client implements it.
type API interface {
	StopJob(ctx context.Context, id string) error
	DeleteJob(ctx context.Context, id string) error
	AddJob(ctx context.Context, request auditapi.NewJob) (auditapi.Submitted, error)
}

// Session is the subset of the session guard the coordinator uses.
// *session.Guard implements it. Unauthorized is called without the
// coordinator's lock held, so its listeners may call Reset.
type Session interface {
	Status() session.Status
	Logout(ctx context.Context) error
	Unauthorized()
}

// Default retry policy for stop and delete.
const (
	DefaultAttempts       = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// Config holds configuration for creating a Coordinator.
type Config struct {
	API     API
	Session Session
	Store   *jobstore.Store

	// Attempts, InitialBackoff and MaxBackoff bound the retry of
	// transient stop and delete failures. Zero means the defaults.
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Clock times retry waits and stamps new jobs. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger records action results. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Coordinator owns the pending action. Safe for concurrent use.
type Coordinator struct {
	api     API
	session Session
	store   *jobstore.Store
	clock   clock.Clock
	logger  *slog.Logger

	attempts       int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mutex   sync.Mutex
	pending PendingAction

	// epoch increments on every Reset. A request compares it before
	// and after the network call to detect teardown.
	epoch uint64

	listeners  []listener
	nextListen int
}

type listener struct {
	id       int
	callback func(PendingAction)
}

// New creates a Coordinator with no pending action.
func New(config Config) *Coordinator {
	coordinator := &Coordinator{
		api:            config.API,
		session:        config.Session,
		store:          config.Store,
		clock:          config.Clock,
		logger:         config.Logger,
		attempts:       config.Attempts,
		initialBackoff: config.InitialBackoff,
		maxBackoff:     config.MaxBackoff,
	}
	if coordinator.clock == nil {
		coordinator.clock = clock.Real()
	}
	if coordinator.logger == nil {
		coordinator.logger = slog.Default()
	}
	if coordinator.attempts <= 0 {
		coordinator.attempts = DefaultAttempts
	}
	if coordinator.initialBackoff <= 0 {
		coordinator.initialBackoff = DefaultInitialBackoff
	}
	if coordinator.maxBackoff <= 0 {
		coordinator.maxBackoff = DefaultMaxBackoff
	}
	return coordinator
}

// Pending returns the current pending action.
func (c *Coordinator) Pending() PendingAction {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.pending
}

// Subscribe registers callback for every change of the pending
// action and returns a function that unregisters it. Callbacks run
// synchronously in the goroutine that made the change, after the
// coordinator's lock is released.
func (c *Coordinator) Subscribe(callback func(PendingAction)) func() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	id := c.nextListen
	c.nextListen++
	c.listeners = append(c.listeners, listener{id: id, callback: callback})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mutex.Lock()
			defer c.mutex.Unlock()
			for index, registered := range c.listeners {
				if registered.id == id {
					c.listeners = append(c.listeners[:index:index], c.listeners[index+1:]...)
					return
				}
			}
		})
	}
}

// setLocked changes the pending action and returns the listeners to
// notify once the lock is released.
func (c *Coordinator) setLocked(pending PendingAction) []listener {
	c.pending = pending
	return append([]listener(nil), c.listeners...)
}

func notify(listeners []listener, pending PendingAction) {
	for _, registered := range listeners {
		registered.callback(pending)
	}
}

// Request raises a pending action awaiting confirmation. It replaces
// an action already awaiting confirmation and fails with ErrBusy
// while one is in flight. The target must qualify: stop needs a job
// that is not finished, delete needs a finished one.
func (c *Coordinator) Request(kind Kind, target string) (PendingAction, error) {
	if err := c.checkTarget(kind, target); err != nil {
		return PendingAction{}, err
	}
	if kind == KindLogout {
		target = ""
	}

	c.mutex.Lock()
	if c.pending.Phase == PhaseInFlight {
		c.mutex.Unlock()
		return PendingAction{}, ErrBusy
	}
	pending := PendingAction{Phase: PhaseAwaitingConfirmation, Kind: kind, Target: target}
	listeners := c.setLocked(pending)
	c.mutex.Unlock()

	notify(listeners, pending)
	return pending, nil
}

func (c *Coordinator) checkTarget(kind Kind, target string) error {
	switch kind {
	case KindLogout:
		return nil
	case KindStop, KindDelete:
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown action %q", kind)}
	}

	view, ok := c.store.Get(target)
	if !ok {
		return &ValidationError{Field: "target", Message: fmt.Sprintf("job %q not found", target)}
	}
	if view.Provisional {
		return &ValidationError{Field: "target", Message: fmt.Sprintf("job %q has not been accepted by the service yet", target)}
	}
	switch {
	case kind == KindStop && view.Status.Terminal():
		return &ValidationError{Field: "target", Message: fmt.Sprintf("job %s is already %s", target, view.Status)}
	case kind == KindDelete && !view.Status.Terminal():
		return &ValidationError{Field: "target", Message: fmt.Sprintf("job %s is still %s; stop it before deleting", target, view.Status)}
	}
	return nil
}

// Cancel drops an action awaiting confirmation. Returns false when
// there was none.
func (c *Coordinator) Cancel() bool {
	c.mutex.Lock()
	if c.pending.Phase != PhaseAwaitingConfirmation {
		c.mutex.Unlock()
		return false
	}
	listeners := c.setLocked(PendingAction{})
	c.mutex.Unlock()

	notify(listeners, PendingAction{})
	return true
}

// Reset drops any pending action and invalidates requests in flight:
// their results are discarded. Called on every session transition.
func (c *Coordinator) Reset() {
	c.mutex.Lock()
	c.epoch++
	if c.pending.Phase == PhaseNone {
		c.mutex.Unlock()
		return
	}
	listeners := c.setLocked(PendingAction{})
	c.mutex.Unlock()

	notify(listeners, PendingAction{})
}

// Confirm executes the action awaiting confirmation. The pending
// action is cleared whatever the result.
//
// A stop shows the job as stopped at once and reverts it if the
// request fails. A delete removes the job only after the service
// confirms. A logout always ends the local session. Transient
// failures of stop and delete are retried; a refusal returns a
// *RejectedError; a 401 ends the session and returns an error
// matching auditapi.ErrUnauthorized.
func (c *Coordinator) Confirm(ctx context.Context) (Outcome, error) {
	c.mutex.Lock()
	if c.pending.Phase != PhaseAwaitingConfirmation {
		c.mutex.Unlock()
		return Outcome{}, ErrNoPendingAction
	}
	action := c.pending
	action.Phase = PhaseInFlight
	epoch := c.epoch
	generation := c.sessionGeneration()
	listeners := c.setLocked(action)
	c.mutex.Unlock()
	notify(listeners, action)

	outcome := Outcome{Kind: action.Kind, Target: action.Target}
	var err error
	switch action.Kind {
	case KindStop:
		err = c.stop(ctx, action.Target, epoch, generation)
	case KindDelete:
		err = c.delete(ctx, action.Target, epoch, generation)
	case KindLogout:
		err = c.session.Logout(ctx)
	}

	c.mutex.Lock()
	if c.epoch == epoch && c.pending == action {
		listeners = c.setLocked(PendingAction{})
	} else {
		listeners = nil
	}
	c.mutex.Unlock()
	if listeners != nil {
		notify(listeners, PendingAction{})
	}

	if err != nil {
		c.logger.Warn("action failed", "action", string(action.Kind), "job_id", action.Target, "error", err)
		return outcome, err
	}
	c.logger.Info("action completed", "action", string(action.Kind), "job_id", action.Target)
	return outcome, nil
}

func (c *Coordinator) sessionGeneration() uint64 {
	if c.session == nil {
		return 0
	}
	return c.session.Status().Generation
}

// current reports whether a request started at epoch and generation
// still belongs to the live session.
func (c *Coordinator) current(epoch, generation uint64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.epoch == epoch && c.sessionGeneration() == generation
}

func (c *Coordinator) stop(ctx context.Context, id string, epoch, generation uint64) error {
	token, err := c.store.BeginOptimistic(id, job.StatusStopped)
	if err != nil {
		return &ValidationError{Field: "target", Message: err.Error()}
	}

	requestErr := c.retry(ctx, "stop", func() error { return c.api.StopJob(ctx, id) })

	if !c.current(epoch, generation) {
		c.logger.Info("discarding stop result from an ended session", "job_id", id)
		return ErrDiscarded
	}
	if requestErr != nil {
		if rollbackErr := c.store.RollbackOptimistic(token); rollbackErr != nil {
			c.logger.Debug("stop overlay already gone", "job_id", id, "error", rollbackErr)
		}
		c.expireOn(KindStop, requestErr)
		return classify(KindStop, id, requestErr)
	}
	if commitErr := c.store.CommitOptimistic(token); commitErr != nil {
		c.logger.Debug("stop overlay already gone", "job_id", id, "error", commitErr)
	}
	return nil
}

func (c *Coordinator) delete(ctx context.Context, id string, epoch, generation uint64) error {
	requestErr := c.retry(ctx, "delete", func() error { return c.api.DeleteJob(ctx, id) })

	if !c.current(epoch, generation) {
		c.logger.Info("discarding delete result from an ended session", "job_id", id)
		return ErrDiscarded
	}
	if requestErr != nil {
		c.expireOn(KindDelete, requestErr)
		return classify(KindDelete, id, requestErr)
	}
	c.store.Remove(id)
	return nil
}

// expireOn ends the session when err is a 401. The guard's listeners
// call Reset, so the coordinator's mutex must not be held.
func (c *Coordinator) expireOn(kind Kind, err error) {
	if c.session == nil || !auditapi.IsUnauthorized(err) {
		return
	}
	c.logger.Warn("session expired during action", "action", string(kind))
	c.session.Unauthorized()
}

// classify turns a request error into the coordinator's taxonomy: a
// 4xx other than 401 becomes a *RejectedError; 401 and transient
// failures pass through so callers can match them.
func classify(kind Kind, target string, err error) error {
	status := auditapi.StatusCode(err)
	if status >= 400 && status < 500 && !auditapi.IsUnauthorized(err) {
		return &RejectedError{Kind: kind, Target: target, Message: auditapi.ServerMessage(err), Err: err}
	}
	return fmt.Errorf("actions: %s %s: %w", kind, target, err)
}

// retry runs request until it succeeds, fails with a non-transient
// error, or the attempts run out.
func (c *Coordinator) retry(ctx context.Context, name string, request func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = c.maxBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.Reset()

	var err error
	for attempt := 1; ; attempt++ {
		err = request()
		if err == nil || !auditapi.IsTransient(err) || attempt >= c.attempts {
			return err
		}
		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}
		delay := policy.NextBackOff()
		c.logger.Warn("action request failed, retrying",
			"action", name,
			"attempt", attempt,
			"error", err,
			"backoff", delay,
		)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-c.clock.After(delay):
		}
	}
}
