// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package actions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
	"github.com/bureau-foundation/auditdesk/lib/session"
	"github.com/bureau-foundation/auditdesk/lib/testutil"
)

type fakeAPI struct {
	mutex   sync.Mutex
	calls   []string
	stop    func(id string) error
	delete  func(id string) error
	addJob  func(request auditapi.NewJob) (auditapi.Submitted, error)
	created []auditapi.NewJob
}

func (f *fakeAPI) record(call string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) callList() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) StopJob(_ context.Context, id string) error {
	f.record("stop " + id)
	if f.stop != nil {
		return f.stop(id)
	}
	return nil
}

func (f *fakeAPI) DeleteJob(_ context.Context, id string) error {
	f.record("delete " + id)
	if f.delete != nil {
		return f.delete(id)
	}
	return nil
}

func (f *fakeAPI) AddJob(_ context.Context, request auditapi.NewJob) (auditapi.Submitted, error) {
	f.record("add " + request.CaseNumber)
	f.mutex.Lock()
	f.created = append(f.created, request)
	f.mutex.Unlock()
	if f.addJob != nil {
		return f.addJob(request)
	}
	return auditapi.Submitted{}, nil
}

type fakeSession struct {
	mutex          sync.Mutex
	generation     uint64
	onLogout       func()
	onUnauthorized func()
	logouts        int
	unauthorized   int
}

func (f *fakeSession) Status() session.Status {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return session.Status{State: session.StateAuthenticated, Username: "ana", Generation: f.generation}
}

func (f *fakeSession) Logout(context.Context) error {
	f.mutex.Lock()
	f.logouts++
	f.generation++
	f.mutex.Unlock()
	if f.onLogout != nil {
		f.onLogout()
	}
	return nil
}

func (f *fakeSession) Unauthorized() {
	f.mutex.Lock()
	f.unauthorized++
	f.generation++
	f.mutex.Unlock()
	if f.onUnauthorized != nil {
		f.onUnauthorized()
	}
}

func (f *fakeSession) unauthorizedCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.unauthorized
}

type fixture struct {
	api         *fakeAPI
	session     *fakeSession
	store       *jobstore.Store
	clock       *clock.FakeClock
	coordinator *Coordinator
}

func newFixture(t *testing.T, jobs ...job.Job) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := jobstore.New(jobstore.Config{Clock: fake, Logger: logger})
	store.ApplySnapshot(jobs)
	f := &fixture{
		api:     &fakeAPI{},
		session: &fakeSession{generation: 1},
		store:   store,
		clock:   fake,
	}
	f.coordinator = New(Config{
		API:     f.api,
		Session: f.session,
		Store:   store,
		Clock:   fake,
		Logger:  logger,
	})
	return f
}

func (f *fixture) status(t *testing.T, id string) jobstore.View {
	t.Helper()
	view, ok := f.store.Get(id)
	if !ok {
		t.Fatalf("job %s missing from store", id)
	}
	return view
}

func apiError(status int, message string) error {
	return &auditapi.APIError{Method: "POST", Path: "/user/jobs/1/stop", StatusCode: status, Message: message}
}

func transientError() error {
	return &auditapi.TransientError{Op: "POST /user/jobs/1/stop", Err: errors.New("connection reset")}
}

func TestStopIsOptimisticThenCommitted(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusProcessing})
	var during jobstore.View
	f.api.stop = func(id string) error {
		during, _ = f.store.Get(id)
		return nil
	}

	pending, err := f.coordinator.Request(KindStop, "1")
	if err != nil {
		t.Fatal(err)
	}
	if pending.Phase != PhaseAwaitingConfirmation {
		t.Errorf("phase = %s", pending.Phase)
	}
	if len(f.api.callList()) != 0 {
		t.Fatal("request sent before confirmation")
	}

	outcome, err := f.coordinator.Confirm(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != KindStop || outcome.Target != "1" {
		t.Errorf("outcome = %+v", outcome)
	}
	if during.Status != job.StatusStopped || !during.Optimistic {
		t.Errorf("job during request = %+v, want optimistic stopped", during)
	}
	view := f.status(t, "1")
	if view.Status != job.StatusStopped || view.Optimistic {
		t.Errorf("job after commit = %+v", view)
	}
	if f.coordinator.Pending().Phase != PhaseNone {
		t.Errorf("pending = %+v, want none", f.coordinator.Pending())
	}
}

func TestStopRejectedRollsBack(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusProcessing})
	before := f.status(t, "1")
	f.api.stop = func(string) error { return apiError(http.StatusBadRequest, "Job cannot be stopped") }

	f.coordinator.Request(KindStop, "1")
	_, err := f.coordinator.Confirm(context.Background())

	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Message != "Job cannot be stopped" {
		t.Fatalf("error = %v, want RejectedError with server message", err)
	}
	after := f.status(t, "1")
	if after.Status != before.Status || after.Optimistic {
		t.Errorf("job after rollback = %+v, want %s", after, before.Status)
	}
	if len(f.api.callList()) != 1 {
		t.Errorf("calls = %v, rejection must not be retried", f.api.callList())
	}
	if f.coordinator.Pending().Phase != PhaseNone {
		t.Error("pending action survived a failure")
	}
}

func TestStopRetriesTransientFailures(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusQueued})
	failures := 2
	f.api.stop = func(string) error {
		if failures > 0 {
			failures--
			return transientError()
		}
		return nil
	}

	f.coordinator.Request(KindStop, "1")
	done := make(chan error, 1)
	go func() {
		_, err := f.coordinator.Confirm(context.Background())
		done <- err
	}()

	f.clock.WaitForTimers(1)
	f.clock.Advance(DefaultInitialBackoff)
	f.clock.WaitForTimers(1)
	f.clock.Advance(2 * DefaultInitialBackoff)

	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Confirm"); err != nil {
		t.Fatal(err)
	}
	if calls := f.api.callList(); len(calls) != 3 {
		t.Errorf("calls = %v, want 3 attempts", calls)
	}
	if view := f.status(t, "1"); view.Status != job.StatusStopped {
		t.Errorf("status = %s", view.Status)
	}
}

func TestStopUnauthorizedRollsBack(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusQueued})
	f.api.stop = func(string) error { return apiError(http.StatusUnauthorized, "") }

	f.coordinator.Request(KindStop, "1")
	_, err := f.coordinator.Confirm(context.Background())
	if !auditapi.IsUnauthorized(err) {
		t.Fatalf("error = %v, want unauthorized", err)
	}
	if IsRejected(err) {
		t.Error("401 classified as a rejection")
	}
	if view := f.status(t, "1"); view.Status != job.StatusQueued {
		t.Errorf("status = %s, want queued after rollback", view.Status)
	}
	if got := f.session.unauthorizedCount(); got != 1 {
		t.Errorf("session expired %d times, want 1", got)
	}
}

func TestUnauthorizedEndsSessionWithoutDeadlock(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusFailed})
	f.api.delete = func(string) error { return apiError(http.StatusUnauthorized, "") }
	// The guard's listeners reset the coordinator synchronously.
	f.session.onUnauthorized = f.coordinator.Reset

	f.coordinator.Request(KindDelete, "1")
	_, err := f.coordinator.Confirm(context.Background())
	if !auditapi.IsUnauthorized(err) {
		t.Fatalf("error = %v, want unauthorized", err)
	}
	if got := f.session.unauthorizedCount(); got != 1 {
		t.Errorf("session expired %d times, want 1", got)
	}
	if pending := f.coordinator.Pending(); pending.Phase != PhaseNone {
		t.Errorf("pending = %+v, want none", pending)
	}
	f.status(t, "1")
}

func TestRejectionKeepsSession(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusQueued})
	f.api.stop = func(string) error { return apiError(http.StatusBadRequest, "Job already finished") }

	f.coordinator.Request(KindStop, "1")
	if _, err := f.coordinator.Confirm(context.Background()); !IsRejected(err) {
		t.Fatalf("error = %v, want rejection", err)
	}
	if got := f.session.unauthorizedCount(); got != 0 {
		t.Errorf("session expired %d times on a rejection", got)
	}
}

func TestDeleteRemovesOnlyAfterConfirmation(t *testing.T) {
	f := newFixture(t,
		job.Job{ID: "1", Status: job.StatusCompleted, Accuracy: ref(90.0)},
		job.Job{ID: "2", Status: job.StatusFailed, Error: "bad scan"},
	)
	f.api.delete = func(id string) error {
		if id == "1" {
			return apiError(http.StatusBadRequest, "Job not found")
		}
		return nil
	}

	f.coordinator.Request(KindDelete, "1")
	if _, err := f.coordinator.Confirm(context.Background()); !IsRejected(err) {
		t.Fatalf("error = %v, want rejection", err)
	}
	f.status(t, "1")

	f.coordinator.Request(KindDelete, "2")
	if _, err := f.coordinator.Confirm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.store.Get("2"); ok {
		t.Error("deleted job still in store")
	}
}

func TestRequestPreconditions(t *testing.T) {
	f := newFixture(t,
		job.Job{ID: "running", Status: job.StatusProcessing},
		job.Job{ID: "done", Status: job.StatusStopped},
	)
	localID, _ := f.store.InsertProvisional(job.Job{CaseNumber: "C-1"})

	tests := []struct {
		kind   Kind
		target string
	}{
		{KindStop, "done"},
		{KindDelete, "running"},
		{KindStop, "missing"},
		{KindDelete, localID},
		{Kind("archive"), "done"},
	}
	for _, test := range tests {
		if _, err := f.coordinator.Request(test.kind, test.target); !IsValidation(err) {
			t.Errorf("Request(%s, %s) error = %v, want ValidationError", test.kind, test.target, err)
		}
	}
	if f.coordinator.Pending().Phase != PhaseNone {
		t.Error("failed request left a pending action")
	}
}

func TestRequestReplacesAwaitingAction(t *testing.T) {
	f := newFixture(t,
		job.Job{ID: "1", Status: job.StatusProcessing},
		job.Job{ID: "2", Status: job.StatusCompleted, Accuracy: ref(50.0)},
	)
	f.coordinator.Request(KindStop, "1")
	f.coordinator.Request(KindDelete, "2")

	pending := f.coordinator.Pending()
	if pending.Kind != KindDelete || pending.Target != "2" {
		t.Errorf("pending = %+v, want delete 2", pending)
	}
}

func TestRequestWhileInFlight(t *testing.T) {
	f := newFixture(t,
		job.Job{ID: "1", Status: job.StatusProcessing},
		job.Job{ID: "2", Status: job.StatusProcessing},
	)
	var busyErr error
	f.api.stop = func(string) error {
		_, busyErr = f.coordinator.Request(KindStop, "2")
		return nil
	}

	f.coordinator.Request(KindStop, "1")
	if _, err := f.coordinator.Confirm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(busyErr, ErrBusy) {
		t.Errorf("Request while in flight = %v, want ErrBusy", busyErr)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusProcessing})
	if f.coordinator.Cancel() {
		t.Error("Cancel with nothing pending reported true")
	}
	f.coordinator.Request(KindStop, "1")
	if !f.coordinator.Cancel() {
		t.Fatal("Cancel reported false")
	}
	if _, err := f.coordinator.Confirm(context.Background()); !errors.Is(err, ErrNoPendingAction) {
		t.Errorf("Confirm after Cancel = %v", err)
	}
	if len(f.api.callList()) != 0 {
		t.Errorf("calls = %v", f.api.callList())
	}
}

func TestLogoutWhileStopAwaitsConfirmation(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusProcessing})
	f.session.onLogout = func() {
		f.coordinator.Reset()
		f.store.Reset()
	}

	f.coordinator.Request(KindStop, "1")
	f.coordinator.Request(KindLogout, "")
	if _, err := f.coordinator.Confirm(context.Background()); err != nil {
		t.Fatal(err)
	}

	if f.session.logouts != 1 {
		t.Errorf("logouts = %d", f.session.logouts)
	}
	for _, call := range f.api.callList() {
		if strings.HasPrefix(call, "stop") {
			t.Errorf("stop request sent after teardown: %v", f.api.callList())
		}
	}
	if f.coordinator.Pending().Phase != PhaseNone {
		t.Errorf("pending = %+v", f.coordinator.Pending())
	}
	if _, err := f.coordinator.Confirm(context.Background()); !errors.Is(err, ErrNoPendingAction) {
		t.Errorf("Confirm after logout = %v", err)
	}
}

func TestSessionTransitionDropsAwaitingAction(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusProcessing})
	f.coordinator.Request(KindStop, "1")

	f.coordinator.Reset()

	if _, err := f.coordinator.Confirm(context.Background()); !errors.Is(err, ErrNoPendingAction) {
		t.Errorf("Confirm after Reset = %v", err)
	}
	if len(f.api.callList()) != 0 {
		t.Errorf("calls = %v", f.api.callList())
	}
}

func TestResultFromEndedSessionIsDiscarded(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusCompleted, Accuracy: ref(70.0)})
	f.api.delete = func(string) error {
		f.coordinator.Reset()
		f.store.Reset()
		f.store.ApplySnapshot([]job.Job{{ID: "1", Status: job.StatusCompleted, Accuracy: ref(70.0)}})
		return nil
	}

	f.coordinator.Request(KindDelete, "1")
	_, err := f.coordinator.Confirm(context.Background())
	if !errors.Is(err, ErrDiscarded) {
		t.Fatalf("error = %v, want ErrDiscarded", err)
	}
	if _, ok := f.store.Get("1"); !ok {
		t.Error("late delete result mutated the new session's store")
	}
}

func TestPendingActionNotifications(t *testing.T) {
	f := newFixture(t, job.Job{ID: "1", Status: job.StatusProcessing})
	var phases []Phase
	dispose := f.coordinator.Subscribe(func(pending PendingAction) { phases = append(phases, pending.Phase) })

	f.coordinator.Request(KindStop, "1")
	f.coordinator.Confirm(context.Background())
	dispose()
	f.coordinator.Request(KindStop, "1")

	want := []Phase{PhaseAwaitingConfirmation, PhaseInFlight, PhaseNone}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for index := range want {
		if phases[index] != want[index] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

func ref[T any](value T) *T { return &value }
