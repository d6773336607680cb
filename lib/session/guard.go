// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/auditdesk/auditapi"
)

// State is the session state as far as the client knows it.
type State int

const (
	// StateUnknown is the state before the first probe completes.
	StateUnknown State = iota
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Cause names the operation that produced a Transition.
type Cause string

const (
	CauseProbe        Cause = "probe"
	CauseLogin        Cause = "login"
	CauseLogout       Cause = "logout"
	CauseUnauthorized Cause = "unauthorized"
)

// Transition is delivered to listeners on every state change.
type Transition struct {
	From  State
	To    State
	Cause Cause

	// Username is the logged-in user when To is StateAuthenticated.
	Username string

	// Generation is the counter value after the transition.
	Generation uint64
}

// Status is a point-in-time copy of the guard's state.
type Status struct {
	State      State
	Username   string
	Generation uint64
}

// API is the subset of the service client the guard calls.
// *auditapi.Client implements it.
type API interface {
	Me(ctx context.Context) (auditapi.Identity, error)
	Login(ctx context.Context, credentials auditapi.Credentials) (auditapi.Identity, error)
	Logout(ctx context.Context) error
}

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("session: guard already started")

// LoginError is a login the service refused. Message is the
// service's explanation, suitable for display.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string { return "session: login rejected: " + e.Message }

func (e *LoginError) Unwrap() error { return e.Err }

// Config holds configuration for creating a Guard.
type Config struct {
	API API

	// Logger records transitions. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Guard owns the session state. Safe for concurrent use.
//
// Listeners must not call Login, Logout, or Unauthorized
// synchronously: transitions are serialized and such a call would
// wait for the transition that is delivering to the listener.
type Guard struct {
	api    API
	logger *slog.Logger

	// transition serializes state changes together with their
	// listener dispatch, so listeners see transitions in order.
	transition sync.Mutex

	mutex      sync.Mutex
	status     Status
	started    bool
	listeners  []listener
	nextListen int
}

type listener struct {
	id       int
	callback func(Transition)
}

// New creates a guard in StateUnknown.
func New(config Config) *Guard {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{api: config.API, logger: logger}
}

// Status returns the current state.
func (g *Guard) Status() Status {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.status
}

// Subscribe registers callback for every future transition and
// returns a function that unregisters it.
func (g *Guard) Subscribe(callback func(Transition)) func() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	id := g.nextListen
	g.nextListen++
	g.listeners = append(g.listeners, listener{id: id, callback: callback})

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mutex.Lock()
			defer g.mutex.Unlock()
			for index, registered := range g.listeners {
				if registered.id == id {
					g.listeners = append(g.listeners[:index:index], g.listeners[index+1:]...)
					return
				}
			}
		})
	}
}

// Start probes the session with exactly one request. A 200 moves to
// StateAuthenticated and a 401 to StateAnonymous. Any other failure
// also moves to StateAnonymous and is returned so the caller can
// report it.
func (g *Guard) Start(ctx context.Context) error {
	g.mutex.Lock()
	if g.started {
		g.mutex.Unlock()
		return ErrAlreadyStarted
	}
	g.started = true
	g.mutex.Unlock()

	identity, err := g.api.Me(ctx)

	g.transition.Lock()
	defer g.transition.Unlock()
	if err == nil {
		g.moveLocked(StateAuthenticated, identity.Username, CauseProbe)
		return nil
	}
	g.moveLocked(StateAnonymous, "", CauseProbe)
	if auditapi.IsUnauthorized(err) {
		return nil
	}
	return fmt.Errorf("session: probing session: %w", err)
}

// Login submits credentials. On success the guard moves to
// StateAuthenticated; if it was already authenticated it first
// passes through StateAnonymous so dependents tear down the old
// session. A refusal returns a *LoginError and leaves the state
// alone.
func (g *Guard) Login(ctx context.Context, credentials auditapi.Credentials) error {
	identity, err := g.api.Login(ctx, credentials)
	if err != nil {
		var apiErr *auditapi.APIError
		if errors.As(err, &apiErr) {
			return &LoginError{Message: auditapi.ServerMessage(err), Err: err}
		}
		return fmt.Errorf("session: login: %w", err)
	}

	g.transition.Lock()
	defer g.transition.Unlock()
	g.mutex.Lock()
	g.started = true
	current := g.status.State
	g.mutex.Unlock()
	if current == StateAuthenticated {
		g.moveLocked(StateAnonymous, "", CauseLogin)
	}
	g.moveLocked(StateAuthenticated, identity.Username, CauseLogin)
	return nil
}

// Logout ends the session on the service and then always moves to
// StateAnonymous, even when the request failed: the local session
// ends regardless. The request error is returned for reporting.
func (g *Guard) Logout(ctx context.Context) error {
	requestErr := g.api.Logout(ctx)

	g.transition.Lock()
	g.moveLocked(StateAnonymous, "", CauseLogout)
	g.transition.Unlock()

	if requestErr != nil && !auditapi.IsUnauthorized(requestErr) {
		return fmt.Errorf("session: logout request: %w", requestErr)
	}
	return nil
}

// Unauthorized forces StateAnonymous, for a 401 seen by any
// component. Idempotent.
func (g *Guard) Unauthorized() {
	g.transition.Lock()
	defer g.transition.Unlock()
	g.moveLocked(StateAnonymous, "", CauseUnauthorized)
}

// moveLocked changes state and notifies listeners. Requires the
// transition lock. A move to the current state (other than a login
// as a different user) is a no-op.
func (g *Guard) moveLocked(to State, username string, cause Cause) {
	g.mutex.Lock()
	from := g.status.State
	if from == to && g.status.Username == username {
		g.mutex.Unlock()
		return
	}
	if from == StateAuthenticated || to == StateAuthenticated {
		g.status.Generation++
	}
	g.status.State = to
	g.status.Username = username
	transition := Transition{
		From:       from,
		To:         to,
		Cause:      cause,
		Username:   username,
		Generation: g.status.Generation,
	}
	listeners := make([]listener, len(g.listeners))
	copy(listeners, g.listeners)
	g.mutex.Unlock()

	g.logger.Info("session state changed",
		"from", from.String(),
		"to", to.String(),
		"cause", string(cause),
		"generation", transition.Generation,
	)
	for _, registered := range listeners {
		registered.callback(transition)
	}
}
