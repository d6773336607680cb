// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

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

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/actions"
	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/jobsync"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
	"github.com/bureau-foundation/auditdesk/lib/session"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAPI struct {
	mutex sync.Mutex
	calls []string
	stop  error
}

func (f *fakeAPI) StopJob(_ context.Context, id string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, "stop "+id)
	return f.stop
}

func (f *fakeAPI) DeleteJob(_ context.Context, id string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, "delete "+id)
	return nil
}

func (f *fakeAPI) AddJob(context.Context, auditapi.NewJob) (auditapi.Submitted, error) {
	return auditapi.Submitted{}, errors.New("not used")
}

func (f *fakeAPI) callList() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSession struct {
	mutex        sync.Mutex
	generation   uint64
	logouts      int
	unauthorized int
}

func (f *fakeSession) Status() session.Status {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return session.Status{State: session.StateAuthenticated, Username: "ana", Generation: f.generation}
}

func (f *fakeSession) Logout(context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.logouts++
	f.generation++
	return nil
}

func (f *fakeSession) Unauthorized() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.unauthorized++
	f.generation++
}

type fakeSync struct {
	mutex     sync.Mutex
	status    jobsync.Status
	wakes     chan struct{}
	reloads   int
	reloadErr error
}

func (f *fakeSync) Status() jobsync.Status {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.status
}

func (f *fakeSync) Subscribe() (<-chan struct{}, func()) {
	return f.wakes, func() {}
}

func (f *fakeSync) Reload(context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.reloads++
	return f.reloadErr
}

func (f *fakeSync) set(status jobsync.Status) {
	f.mutex.Lock()
	f.status = status
	f.mutex.Unlock()
}

type harness struct {
	api     *fakeAPI
	session *fakeSession
	sync    *fakeSync
	store   *jobstore.Store
	model   Model
}

// newHarness builds a dashboard over a real store and coordinator,
// loaded with three jobs: 7 processing (newest), 8 completed, 9 queued.
func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := clock.Fake(epoch)
	store := jobstore.New(jobstore.Config{Clock: fake, Logger: discardLogger()})
	accuracy := 91.5
	store.ApplySnapshot([]job.Job{
		{ID: "7", CaseNumber: "C-7 Henderson", Branch: "Phoenix", Feature: job.FeatureGeneral, Status: job.StatusProcessing, CreatedAt: epoch.Add(3 * time.Hour)},
		{ID: "8", CaseNumber: "C-8 Alvarez", Branch: "Phoenix", Feature: job.FeatureCrossCheck, Status: job.StatusCompleted, Accuracy: &accuracy, Issues: []string{"date mismatch"}, CreatedAt: epoch.Add(2 * time.Hour)},
		{ID: "9", CaseNumber: "C-9 Okafor", Branch: "Peoria", Feature: job.FeatureGeneral, Status: job.StatusQueued, CreatedAt: epoch.Add(time.Hour)},
	})

	h := &harness{
		api:     &fakeAPI{},
		session: &fakeSession{generation: 1},
		sync: &fakeSync{
			status: jobsync.Status{State: jobsync.StateLive, Username: "ana", Generation: 1, SnapshotLoaded: true},
			wakes:  make(chan struct{}, 1),
		},
		store: store,
	}
	coordinator := actions.New(actions.Config{
		API:     h.api,
		Session: h.session,
		Store:   store,
		Clock:   fake,
		Logger:  discardLogger(),
	})
	h.model = NewModel(Config{
		Store:   store,
		Actions: coordinator,
		Sync:    h.sync,
		Plain:   true,
		Output:  io.Discard,
		Clock:   fake,
	})
	t.Cleanup(h.model.Close)
	h.update(t, tea.WindowSizeMsg{Width: 140, Height: 30})
	return h
}

func (h *harness) update(t *testing.T, message tea.Msg) tea.Cmd {
	t.Helper()
	updated, cmd := h.model.Update(message)
	model, ok := updated.(Model)
	if !ok {
		t.Fatalf("Update returned %T", updated)
	}
	h.model = model
	return cmd
}

// press sends key presses by name and returns the last command.
func (h *harness) press(t *testing.T, keys ...string) tea.Cmd {
	t.Helper()
	var cmd tea.Cmd
	for _, name := range keys {
		message := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(name)}
		switch name {
		case "esc":
			message = tea.KeyMsg{Type: tea.KeyEsc}
		case "enter":
			message = tea.KeyMsg{Type: tea.KeyEnter}
		case "backspace":
			message = tea.KeyMsg{Type: tea.KeyBackspace}
		case "down":
			message = tea.KeyMsg{Type: tea.KeyDown}
		}
		cmd = h.update(t, message)
	}
	return cmd
}

// drainStore feeds every queued store change to the model.
func (h *harness) drainStore(t *testing.T) {
	t.Helper()
	for {
		select {
		case change := <-h.model.storeChanges:
			h.update(t, storeChangeMsg{change: change})
		default:
			return
		}
	}
}

// confirm answers the overlay and feeds the action result back.
func (h *harness) confirm(t *testing.T) tea.Cmd {
	t.Helper()
	cmd := h.press(t, "y")
	if cmd == nil {
		t.Fatal("confirming produced no command")
	}
	result, ok := cmd().(actionResultMsg)
	if !ok {
		t.Fatal("confirm command did not return an action result")
	}
	h.drainStore(t)
	return h.update(t, result)
}

func TestModelListsStoreJobs(t *testing.T) {
	h := newHarness(t)
	view := h.model.View()

	for _, want := range []string{"auditdesk", "ana", "3 jobs", "1 processing", "C-7 Henderson", "C-8 Alvarez", "C-9 Okafor", "91.5%", "[live]"} {
		if !strings.Contains(view, want) {
			t.Errorf("view is missing %q:\n%s", want, view)
		}
	}
	if h.model.selectedID != "7" {
		t.Errorf("selected = %q, want the newest job 7", h.model.selectedID)
	}
}

func TestModelDetailFollowsSelection(t *testing.T) {
	h := newHarness(t)
	h.press(t, "j")
	if h.model.selectedID != "8" {
		t.Fatalf("selected = %q after j, want 8", h.model.selectedID)
	}
	view := h.model.View()
	for _, want := range []string{"Accuracy", "Issues (1)", "date mismatch", "d delete"} {
		if !strings.Contains(view, want) {
			t.Errorf("detail is missing %q:\n%s", want, view)
		}
	}

	h.press(t, "G")
	if h.model.selectedID != "9" {
		t.Errorf("selected = %q after G, want 9", h.model.selectedID)
	}
	h.press(t, "g")
	if h.model.selectedID != "7" {
		t.Errorf("selected = %q after g, want 7", h.model.selectedID)
	}
}

func TestModelFollowsStoreChanges(t *testing.T) {
	h := newHarness(t)
	h.press(t, "j") // select 8

	h.store.ApplyEvent(job.Patch{ID: "10", CaseNumber: ptr("C-10 Brandt"), Status: ptr(job.StatusQueued), CreatedAt: ptr(epoch.Add(4 * time.Hour))})
	h.drainStore(t)

	if h.model.selectedID != "8" {
		t.Errorf("selection moved to %q, want it to stay on 8", h.model.selectedID)
	}
	if h.model.cursor != 2 {
		t.Errorf("cursor = %d, want 2 after a newer job arrived", h.model.cursor)
	}
	if view := h.model.View(); !strings.Contains(view, "C-10 Brandt") || !strings.Contains(view, "4 jobs") {
		t.Errorf("new job not shown:\n%s", view)
	}
	if h.model.heat.heat("10", h.model.clock.Now()) == 0 {
		t.Error("new job is not highlighted")
	}
	if !h.model.tickRunning {
		t.Error("heat tick not started")
	}

	h.store.Reset()
	h.drainStore(t)
	if h.model.selectedID != "" || len(h.model.matches) != 0 {
		t.Errorf("after reset: selected %q, %d rows", h.model.selectedID, len(h.model.matches))
	}
}

func TestModelFilter(t *testing.T) {
	h := newHarness(t)
	h.press(t, "/", "p", "e", "o")

	if len(h.model.matches) != 1 || h.model.matches[0].View.ID != "9" {
		t.Fatalf("filter %q matched %d rows", h.model.filter.Input, len(h.model.matches))
	}
	if h.model.selectedID != "9" {
		t.Errorf("selected = %q, want the only match", h.model.selectedID)
	}
	if view := h.model.View(); !strings.Contains(view, " / peo") {
		t.Errorf("filter bar not shown:\n%s", view)
	}

	// Letters go to the filter, not to the action keys.
	h.press(t, "s")
	if h.model.pending.Phase != actions.PhaseNone {
		t.Errorf("typing s in the filter raised %v", h.model.pending)
	}

	h.press(t, "backspace", "enter")
	if h.model.filter.Active || h.model.filter.Input != "peo" {
		t.Errorf("after enter: filter = %+v", h.model.filter)
	}
	h.press(t, "esc")
	if h.model.filter.Input != "" || len(h.model.matches) != 3 {
		t.Errorf("esc did not clear the filter: %+v, %d rows", h.model.filter, len(h.model.matches))
	}
}

func TestModelStopNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.press(t, "s")

	if h.model.pending.Phase != actions.PhaseAwaitingConfirmation || h.model.pending.Target != "7" {
		t.Fatalf("pending = %+v", h.model.pending)
	}
	if view := h.model.View(); !strings.Contains(view, "Stop job 7 (C-7 Henderson)?") {
		t.Errorf("confirmation overlay missing:\n%s", view)
	}
	if calls := h.api.callList(); len(calls) != 0 {
		t.Fatalf("request sent before confirmation: %v", calls)
	}

	// Navigation keys are swallowed by the overlay.
	h.press(t, "j")
	if h.model.selectedID != "7" {
		t.Errorf("selection moved under the overlay")
	}

	h.confirm(t)
	if calls := h.api.callList(); len(calls) != 1 || calls[0] != "stop 7" {
		t.Errorf("calls = %v", calls)
	}
	if h.model.pending.Phase != actions.PhaseNone {
		t.Errorf("pending = %+v after the result", h.model.pending)
	}
	if h.model.notice != "stopped job 7" || h.model.noticeError {
		t.Errorf("notice = %q (error %v)", h.model.notice, h.model.noticeError)
	}
	if view, _ := h.store.Get("7"); view.Status != job.StatusStopped {
		t.Errorf("job 7 is %s", view.Status)
	}
}

func TestModelCancelDismissesOverlay(t *testing.T) {
	h := newHarness(t)
	h.press(t, "j", "d")
	if h.model.pending.Kind != actions.KindDelete || h.model.pending.Target != "8" {
		t.Fatalf("pending = %+v", h.model.pending)
	}
	h.press(t, "n")
	if h.model.pending.Phase != actions.PhaseNone {
		t.Errorf("pending = %+v after n", h.model.pending)
	}
	if strings.Contains(h.model.View(), "Delete job") {
		t.Error("overlay still shown")
	}
	if calls := h.api.callList(); len(calls) != 0 {
		t.Errorf("calls = %v", calls)
	}
}

func TestModelRejectedStopShowsServerMessage(t *testing.T) {
	h := newHarness(t)
	h.api.stop = &auditapi.APIError{Method: http.MethodPost, Path: "/user/jobs/7/stop", StatusCode: http.StatusBadRequest, Message: "job already finishing"}
	h.press(t, "s")
	h.confirm(t)

	if !h.model.noticeError || !strings.Contains(h.model.notice, "job already finishing") {
		t.Errorf("notice = %q (error %v)", h.model.notice, h.model.noticeError)
	}
	if view, _ := h.store.Get("7"); view.Status != job.StatusProcessing || view.Optimistic {
		t.Errorf("job 7 = %s optimistic=%v, want the rollback", view.Status, view.Optimistic)
	}
	if h.model.heat.kind("7") != heatRevert {
		t.Error("rolled back job does not glow as a revert")
	}
}

func TestModelPreconditionFailureShowsNotice(t *testing.T) {
	h := newHarness(t)
	h.press(t, "j", "s") // 8 is completed
	if h.model.pending.Phase != actions.PhaseNone {
		t.Fatalf("pending = %+v", h.model.pending)
	}
	if !h.model.noticeError || !strings.Contains(h.model.notice, "already completed") {
		t.Errorf("notice = %q", h.model.notice)
	}
}

func TestModelLogoutQuits(t *testing.T) {
	h := newHarness(t)
	h.press(t, "L")
	if view := h.model.View(); !strings.Contains(view, "Log out?") {
		t.Fatalf("logout overlay missing:\n%s", view)
	}
	cmd := h.confirm(t)
	if cmd == nil {
		t.Fatal("no command after logout")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("logout did not quit")
	}
	if h.model.ExitReason() != "logged out" {
		t.Errorf("exit reason = %q", h.model.ExitReason())
	}
	if h.session.logouts != 1 {
		t.Errorf("logouts = %d", h.session.logouts)
	}
}

func TestModelQuitsWhenSessionEnds(t *testing.T) {
	h := newHarness(t)
	h.sync.set(jobsync.Status{State: jobsync.StateReconnecting, Username: "ana", Generation: 1, SnapshotLoaded: true, RetryIn: 2 * time.Second})
	cmd := h.update(t, syncChangeMsg{})
	h.sync.wakes <- struct{}{}
	if _, ok := cmd().(syncChangeMsg); !ok {
		t.Fatal("model stopped listening while reconnecting")
	}
	if !strings.Contains(h.model.View(), "[reconnecting in 2s]") {
		t.Errorf("status bar does not show the reconnect:\n%s", h.model.View())
	}

	h.sync.set(jobsync.Status{State: jobsync.StateOffline})
	cmd = h.update(t, syncChangeMsg{})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("did not quit when the session ended")
	}
	if h.model.ExitReason() != "session ended" {
		t.Errorf("exit reason = %q", h.model.ExitReason())
	}
}

func TestModelReload(t *testing.T) {
	h := newHarness(t)
	h.sync.reloadErr = &auditapi.TransientError{Op: "GET /user/jobs", Err: errors.New("connection refused")}
	result, ok := h.model.reload()().(reloadResultMsg)
	if !ok {
		t.Fatal("reload command did not return a reload result")
	}
	h.update(t, result)
	if h.sync.reloads != 1 {
		t.Errorf("reloads = %d", h.sync.reloads)
	}
	if !h.model.noticeError || !strings.Contains(h.model.notice, "connection refused") {
		t.Errorf("notice = %q", h.model.notice)
	}
}

func TestModelEmptyStates(t *testing.T) {
	h := newHarness(t)
	h.store.Reset()
	h.drainStore(t)

	tests := []struct {
		status jobsync.Status
		want   string
	}{
		{jobsync.Status{State: jobsync.StateConnecting, Generation: 1}, "Connecting…"},
		{jobsync.Status{State: jobsync.StateLoading, Generation: 1}, "Loading jobs…"},
		{jobsync.Status{State: jobsync.StateLive, Generation: 1}, "Press r to retry"},
		{jobsync.Status{State: jobsync.StateLive, Generation: 1, SnapshotLoaded: true}, "No jobs yet."},
	}
	for _, test := range tests {
		h.sync.set(test.status)
		h.update(t, syncChangeMsg{})
		if view := h.model.View(); !strings.Contains(view, test.want) {
			t.Errorf("%s: view is missing %q:\n%s", test.status.State, test.want, view)
		}
	}
}

func TestModelNoticeFades(t *testing.T) {
	h := newHarness(t)
	h.update(t, logRecordMsg{summary: "stream dropped", level: slog.LevelWarn})
	first := h.model.noticeSerial
	h.update(t, logRecordMsg{summary: "snapshot failed", level: slog.LevelError})

	h.update(t, noticeFadeMsg{serial: first})
	if h.model.notice != "snapshot failed" || !h.model.noticeError {
		t.Errorf("an older fade cleared the newer notice: %q", h.model.notice)
	}
	h.update(t, noticeFadeMsg{serial: h.model.noticeSerial})
	if h.model.notice != "" {
		t.Errorf("notice = %q after its fade", h.model.notice)
	}
}

func ptr[T any](value T) *T {
	return &value
}
