// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/actions"
	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/eventstream"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
	"github.com/bureau-foundation/auditdesk/lib/session"
	"github.com/bureau-foundation/auditdesk/lib/testutil"
)

const timeout = 5 * time.Second

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type sessionAPI struct{}

func (sessionAPI) Me(context.Context) (auditapi.Identity, error) {
	return auditapi.Identity{}, &auditapi.APIError{Method: "GET", Path: "/me", StatusCode: http.StatusUnauthorized}
}

func (sessionAPI) Login(_ context.Context, credentials auditapi.Credentials) (auditapi.Identity, error) {
	return auditapi.Identity{Username: credentials.Username}, nil
}

func (sessionAPI) Logout(context.Context) error { return nil }

// actionsAPI answers every job action with the configured error.
type actionsAPI struct {
	err error
}

func (a actionsAPI) StopJob(context.Context, string) error   { return a.err }
func (a actionsAPI) DeleteJob(context.Context, string) error { return a.err }

func (a actionsAPI) AddJob(context.Context, auditapi.NewJob) (auditapi.Submitted, error) {
	return auditapi.Submitted{}, a.err
}

type loadResult struct {
	jobs []job.Job
	err  error
}

// fakeLoader blocks each Load until the test sends a result.
type fakeLoader struct {
	started chan struct{}
	results chan loadResult
}

func (f *fakeLoader) Load(ctx context.Context) ([]job.Job, error) {
	f.started <- struct{}{}
	select {
	case result := <-f.results:
		return result.jobs, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fakeStream connects at once and delivers events sent by the test
// until its context ends or the test fails it.
type fakeStream struct {
	hooks  StreamHooks
	runs   chan struct{}
	events chan eventstream.Event
	fail   chan error
}

func (f *fakeStream) Run(ctx context.Context, handler func(eventstream.Event)) error {
	f.runs <- struct{}{}
	f.hooks.OnConnect()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-f.events:
			handler(event)
		case err := <-f.fail:
			return err
		}
	}
}

type recorded struct {
	kind       string
	generation uint64
}

type fakeRecorder struct {
	mutex   sync.Mutex
	entries []recorded
}

func (f *fakeRecorder) add(kind string, generation uint64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.entries = append(f.entries, recorded{kind: kind, generation: generation})
	return nil
}

func (f *fakeRecorder) Snapshot(generation uint64, _ []job.Job) error {
	return f.add("snapshot", generation)
}

func (f *fakeRecorder) Event(generation uint64, name string, _ job.Patch) error {
	return f.add(name, generation)
}

func (f *fakeRecorder) Reset(generation uint64) error {
	return f.add("reset", generation)
}

type harness struct {
	guard    *session.Guard
	loader   *fakeLoader
	stream   *fakeStream
	store    *jobstore.Store
	runtime  *Runtime
	wakeups  <-chan struct{}
	recorder *fakeRecorder
	actions  *actions.Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithAPI(t, actionsAPI{})
}

func newHarnessWithAPI(t *testing.T, api actions.API) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := clock.Fake(epoch)
	h := &harness{
		guard:    session.New(session.Config{API: sessionAPI{}, Logger: logger}),
		loader:   &fakeLoader{started: make(chan struct{}, 8), results: make(chan loadResult)},
		stream:   &fakeStream{runs: make(chan struct{}, 8), events: make(chan eventstream.Event), fail: make(chan error)},
		store:    jobstore.New(jobstore.Config{Clock: fake, Logger: logger}),
		recorder: &fakeRecorder{},
	}
	h.actions = actions.New(actions.Config{API: api, Session: h.guard, Store: h.store, Clock: fake, Logger: logger})

	runtime, err := New(Config{
		Session:     h.guard,
		Loader:      h.loader,
		Store:       h.store,
		Coordinator: h.actions,
		NewStream: func(hooks StreamHooks) (Streamer, error) {
			h.stream.hooks = hooks
			return h.stream, nil
		},
		Recorder: h.recorder,
		Clock:    fake,
		Logger:   logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.runtime = runtime
	wakeups, dispose := runtime.Subscribe()
	h.wakeups = wakeups
	t.Cleanup(func() {
		dispose()
		runtime.Close()
	})

	if err := runtime.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h
}

// login authenticates and waits for the generation's snapshot load
// and stream to start.
func (h *harness) login(t *testing.T) {
	t.Helper()
	if err := h.guard.Login(context.Background(), auditapi.Credentials{Username: "ana", Password: "secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	testutil.RequireReceive(t, h.loader.started, timeout, "waiting for snapshot load")
	testutil.RequireReceive(t, h.stream.runs, timeout, "waiting for stream")
}

func (h *harness) waitFor(t *testing.T, description string, want func(Status) bool) Status {
	t.Helper()
	deadline := time.After(timeout)
	for {
		status := h.runtime.Status()
		if want(status) {
			return status
		}
		select {
		case <-h.wakeups:
		case <-deadline:
			t.Fatalf("timed out waiting for %s; status = %+v", description, status)
		}
	}
}

func processing(id string) job.Job {
	return job.Job{ID: id, CaseNumber: "C-" + id, Status: job.StatusProcessing}
}

func TestStartWithoutSessionStaysOffline(t *testing.T) {
	h := newHarness(t)
	if state := h.guard.Status().State; state != session.StateAnonymous {
		t.Fatalf("guard state = %s, want anonymous", state)
	}
	if status := h.runtime.Status(); status.State != StateOffline {
		t.Errorf("status = %+v, want offline", status)
	}
	if err := h.runtime.Reload(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Reload without a session = %v, want ErrNoSession", err)
	}
	if err := h.runtime.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	changes, dispose := h.store.Subscribe()
	defer dispose()

	h.login(t)
	testutil.RequireSend(t, h.loader.results, loadResult{jobs: []job.Job{processing("1")}}, timeout)
	testutil.RequireReceive(t, changes, timeout, "waiting for snapshot")
	status := h.waitFor(t, "live", func(s Status) bool { return s.State == StateLive })
	if !status.SnapshotLoaded || status.Username != "ana" || !status.SyncedAt.Equal(epoch) {
		t.Errorf("status = %+v", status)
	}

	completed := job.StatusCompleted
	accuracy := 97.0
	testutil.RequireSend(t, h.stream.events, eventstream.Event{
		Kind:  eventstream.KindJobUpdate,
		Patch: job.Patch{ID: "1", Status: &completed, Accuracy: &accuracy},
	}, timeout)
	testutil.RequireReceive(t, changes, timeout, "waiting for event")
	if view, _ := h.store.Get("1"); view.Status != job.StatusCompleted {
		t.Errorf("job 1 = %+v", view)
	}

	if _, err := h.actions.Request(actions.KindDelete, "1"); err != nil {
		t.Fatal(err)
	}
	if err := h.guard.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}

	if h.store.Len() != 0 {
		t.Errorf("store has %d jobs after logout", h.store.Len())
	}
	if status := h.runtime.Status(); status.State != StateOffline {
		t.Errorf("status after logout = %+v", status)
	}
	if pending := h.actions.Pending(); pending.Phase != actions.PhaseNone {
		t.Errorf("pending action survived logout: %+v", pending)
	}

	h.recorder.mutex.Lock()
	defer h.recorder.mutex.Unlock()
	want := []recorded{{"snapshot", 1}, {"job_update", 1}, {"reset", 1}}
	if len(h.recorder.entries) != len(want) {
		t.Fatalf("journal = %v, want %v", h.recorder.entries, want)
	}
	for index := range want {
		if h.recorder.entries[index] != want[index] {
			t.Errorf("journal[%d] = %v, want %v", index, h.recorder.entries[index], want[index])
		}
	}
}

func TestLogoutDiscardsPendingSnapshot(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	if err := h.guard.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case h.loader.results <- loadResult{jobs: []job.Job{processing("1")}}:
		t.Fatal("a snapshot load was still waiting after logout")
	default:
	}
	if h.store.Len() != 0 {
		t.Errorf("store has %d jobs", h.store.Len())
	}

	h.login(t)
	if status := h.runtime.Status(); status.Generation != 3 {
		t.Errorf("generation = %d, want 3", status.Generation)
	}
	testutil.RequireSend(t, h.loader.results, loadResult{jobs: []job.Job{processing("2")}}, timeout)
	h.waitFor(t, "second snapshot", func(s Status) bool { return s.SnapshotLoaded })
	if _, ok := h.store.Get("2"); !ok {
		t.Error("snapshot of the new session missing")
	}
}

func TestStreamUnauthorizedEndsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	testutil.RequireSend(t, h.loader.results, loadResult{jobs: []job.Job{processing("1")}}, timeout)
	h.waitFor(t, "snapshot", func(s Status) bool { return s.SnapshotLoaded })

	unauthorized := &auditapi.APIError{Method: "GET", Path: "/socket.io/", StatusCode: http.StatusUnauthorized}
	testutil.RequireSend(t, h.stream.fail, error(unauthorized), timeout)

	h.waitFor(t, "offline", func(s Status) bool { return s.State == StateOffline })
	if state := h.guard.Status().State; state != session.StateAnonymous {
		t.Errorf("guard state = %s, want anonymous", state)
	}
	if h.store.Len() != 0 {
		t.Errorf("store has %d jobs after the session expired", h.store.Len())
	}
}

func TestSnapshotUnauthorizedEndsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	expired := &auditapi.APIError{Method: "GET", Path: "/user/jobs", StatusCode: http.StatusUnauthorized}
	testutil.RequireSend(t, h.loader.results, loadResult{err: expired}, timeout)

	h.waitFor(t, "offline", func(s Status) bool { return s.State == StateOffline })
	if state := h.guard.Status().State; state != session.StateAnonymous {
		t.Errorf("guard state = %s, want anonymous", state)
	}
}

func TestActionUnauthorizedEndsSession(t *testing.T) {
	expired := &auditapi.APIError{Method: "POST", Path: "/user/stop_job", StatusCode: http.StatusUnauthorized}
	h := newHarnessWithAPI(t, actionsAPI{err: expired})
	h.login(t)
	testutil.RequireSend(t, h.loader.results, loadResult{jobs: []job.Job{processing("1")}}, timeout)
	h.waitFor(t, "live", func(s Status) bool { return s.State == StateLive && s.SnapshotLoaded })

	if _, err := h.actions.Request(actions.KindStop, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.actions.Confirm(context.Background()); !auditapi.IsUnauthorized(err) {
		t.Fatalf("Confirm = %v, want unauthorized", err)
	}

	if state := h.guard.Status().State; state != session.StateAnonymous {
		t.Errorf("guard state = %s, want anonymous", state)
	}
	if h.store.Len() != 0 {
		t.Errorf("store has %d jobs after the session expired", h.store.Len())
	}
	if status := h.runtime.Status(); status.State != StateOffline {
		t.Errorf("status = %+v, want offline", status)
	}
	if pending := h.actions.Pending(); pending.Phase != actions.PhaseNone {
		t.Errorf("pending = %+v, want none", pending)
	}
}

func TestReconnectReloadsSnapshot(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	testutil.RequireSend(t, h.loader.results, loadResult{jobs: []job.Job{processing("1")}}, timeout)
	h.waitFor(t, "live", func(s Status) bool { return s.State == StateLive })

	dropped := errors.New("connection reset")
	h.stream.hooks.OnDisconnect(dropped, time.Second)
	status := h.runtime.Status()
	if status.State != StateReconnecting || status.RetryIn != time.Second || !errors.Is(status.LastError, dropped) {
		t.Errorf("status after disconnect = %+v", status)
	}

	h.stream.hooks.OnConnect()
	h.stream.hooks.OnReconnect()
	testutil.RequireReceive(t, h.loader.started, timeout, "waiting for reload after reconnect")
	testutil.RequireSend(t, h.loader.results, loadResult{jobs: []job.Job{processing("1"), processing("2")}}, timeout)

	h.waitFor(t, "reloaded", func(s Status) bool { return s.State == StateLive && s.LastError == nil })
	if h.store.Len() != 2 {
		t.Errorf("store has %d jobs, want 2", h.store.Len())
	}
}

func TestReloadAfterFailedSnapshot(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	unavailable := &auditapi.TransientError{Op: "GET /user/jobs", Err: errors.New("503 Service Unavailable")}
	testutil.RequireSend(t, h.loader.results, loadResult{err: unavailable}, timeout)
	status := h.waitFor(t, "failed load", func(s Status) bool { return s.LastError != nil && s.State == StateLive })
	if status.SnapshotLoaded || status.State != StateLive {
		t.Errorf("status = %+v, want live stream without a snapshot", status)
	}

	done := make(chan error, 1)
	go func() { done <- h.runtime.Reload(context.Background()) }()
	testutil.RequireReceive(t, h.loader.started, timeout, "waiting for reload")
	testutil.RequireSend(t, h.loader.results, loadResult{jobs: []job.Job{processing("5")}}, timeout)
	if err := testutil.RequireReceive(t, done, timeout, "waiting for Reload"); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	status = h.runtime.Status()
	if !status.SnapshotLoaded || status.LastError != nil {
		t.Errorf("status after reload = %+v", status)
	}
}

func TestReloadHonoursCallerContext(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	testutil.RequireSend(t, h.loader.results, loadResult{jobs: nil}, timeout)
	h.waitFor(t, "live", func(s Status) bool { return s.SnapshotLoaded && s.State == StateLive })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.runtime.Reload(ctx) }()
	testutil.RequireReceive(t, h.loader.started, timeout, "waiting for reload")
	cancel()

	if err := testutil.RequireReceive(t, done, timeout, "waiting for Reload"); !errors.Is(err, context.Canceled) {
		t.Errorf("Reload = %v, want context.Canceled", err)
	}
	if status := h.runtime.Status(); status.LastError != nil || status.State != StateLive {
		t.Errorf("status = %+v, a cancelled reload is not a failure", status)
	}
}

func TestCloseKeepsStore(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	testutil.RequireSend(t, h.loader.results, loadResult{jobs: []job.Job{processing("1")}}, timeout)
	h.waitFor(t, "snapshot", func(s Status) bool { return s.SnapshotLoaded })

	h.runtime.Close()
	h.runtime.Close()

	if status := h.runtime.Status(); status.State != StateOffline {
		t.Errorf("status after Close = %+v", status)
	}
	if h.store.Len() != 1 {
		t.Errorf("store has %d jobs after Close, want 1", h.store.Len())
	}
	testutil.RequireClosed(t, h.wakeups, timeout, "subscriber channel")
}
