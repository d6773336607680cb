// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// ProvisionalPrefix starts the ID of every job inserted locally
// before the service has announced it.
const ProvisionalPrefix = "local-"

// ChangeKind names the operation that produced a Change.
type ChangeKind string

const (
	ChangeSnapshot ChangeKind = "snapshot"
	ChangeEvent    ChangeKind = "event"
	ChangeInsert   ChangeKind = "insert"
	ChangeConfirm  ChangeKind = "confirm"
	ChangeDiscard  ChangeKind = "discard"
	ChangeOverlay  ChangeKind = "overlay"
	ChangeCommit   ChangeKind = "commit"
	ChangeRollback ChangeKind = "rollback"
	ChangeRemove   ChangeKind = "remove"
	ChangeReset    ChangeKind = "reset"
)

// Change is delivered to subscribers once per mutating call. Calls
// that change nothing deliver nothing.
type Change struct {
	Kind ChangeKind

	// IDs are the jobs the call touched, by their ID after the call.
	// Empty for ChangeReset.
	IDs []string

	// Revision increases by one per delivered Change.
	Revision uint64
}

// View is a job as the store presents it: the server-derived state
// with any optimistic overlay applied.
type View struct {
	job.Job

	// Provisional is set for a locally inserted job the service has
	// not yet announced.
	Provisional bool

	// Optimistic is set while an overlay is shown in place of the
	// server-derived status.
	Optimistic bool
}

var (
	// ErrNotFound is returned for operations on an unknown job ID.
	ErrNotFound = errors.New("jobstore: job not found")

	// ErrProvisional is returned when an operation needs a job the
	// service has already announced.
	ErrProvisional = errors.New("jobstore: job is not yet confirmed by the service")

	// ErrOverlayActive is returned by BeginOptimistic when the job
	// already has an overlay.
	ErrOverlayActive = errors.New("jobstore: an optimistic change is already pending for this job")

	// ErrTransition is returned by BeginOptimistic when the overlay
	// status is not reachable from the job's current status.
	ErrTransition = errors.New("jobstore: status transition not permitted")

	// ErrUnknownToken is returned when a token's overlay no longer
	// exists (already resolved, or the job was removed or reset).
	ErrUnknownToken = errors.New("jobstore: optimistic change no longer pending")
)

// Config holds configuration for creating a Store.
type Config struct {
	// Clock stamps completion and insertion times. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger records dropped and rejected inputs. If nil, slog.Default() is used.
	Logger *slog.Logger

	// NewID generates provisional IDs. If nil, ProvisionalPrefix plus
	// a random UUID is used.
	NewID func() string
}

// Store is the job synchronizer: the single owner of the job map.
// Snapshot loads, stream events, and local actions all reach the map
// through its methods, which serialize on one mutex. Safe for
// concurrent use.
type Store struct {
	clock  clock.Clock
	logger *slog.Logger
	newID  func() string

	mutex       sync.Mutex
	entries     map[string]*entry
	sequence    uint64
	revision    uint64
	nextToken   uint64
	nextSubID   int
	subscribers map[int]chan Change
}

type entry struct {
	base        job.Job
	provisional bool
	overlay     *overlay

	// sequence orders entries by first insertion; provisional
	// matching picks the oldest candidate by it.
	sequence uint64
}

type overlay struct {
	token  Token
	status job.Status
}

// New creates an empty store.
func New(config Config) *Store {
	store := &Store{
		clock:       config.Clock,
		logger:      config.Logger,
		newID:       config.NewID,
		entries:     make(map[string]*entry),
		subscribers: make(map[int]chan Change),
	}
	if store.clock == nil {
		store.clock = clock.Real()
	}
	if store.logger == nil {
		store.logger = slog.Default()
	}
	if store.newID == nil {
		store.newID = func() string { return ProvisionalPrefix + uuid.NewString() }
	}
	return store
}

// IsProvisional reports whether id is a locally generated ID.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Subscribe returns a channel of Changes and a function that
// unregisters it. The channel is buffered; when a slow subscriber's
// buffer is full, further Changes are dropped for it, so consumers
// should re-read List on every Change rather than track deltas.
// dispose closes the channel and is safe to call more than once.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	id := s.nextSubID
	s.nextSubID++
	channel := make(chan Change, 64)
	s.subscribers[id] = channel

	var once sync.Once
	return channel, func() {
		once.Do(func() {
			s.mutex.Lock()
			defer s.mutex.Unlock()
			delete(s.subscribers, id)
			close(channel)
		})
	}
}

// notifyLocked delivers one Change. Sends are non-blocking and
// happen under the mutex so a concurrent dispose cannot close a
// channel mid-send.
func (s *Store) notifyLocked(kind ChangeKind, ids []string) {
	s.revision++
	change := Change{Kind: kind, IDs: ids, Revision: s.revision}
	for _, subscriber := range s.subscribers {
		select {
		case subscriber <- change:
		default:
		}
	}
}

// Get returns the view of one job.
func (s *Store) Get(id string) (View, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	current, ok := s.entries[id]
	if !ok {
		return View{}, false
	}
	return current.view(), true
}

// List returns every job, newest first. Jobs without a creation time
// sort by when the store first saw them.
func (s *Store) List() []View {
	s.mutex.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, current := range s.entries {
		entries = append(entries, current)
	}
	views := make([]View, 0, len(entries))
	slices.SortFunc(entries, func(a, b *entry) int {
		if byTime := b.base.CreatedAt.Compare(a.base.CreatedAt); byTime != 0 {
			return byTime
		}
		return cmp.Compare(b.sequence, a.sequence)
	})
	for _, current := range entries {
		views = append(views, current.view())
	}
	s.mutex.Unlock()
	return views
}

// Len returns the number of jobs.
func (s *Store) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

// ApplySnapshot merges a full job list as one batch. Entries already
// in the store are merged under the transition rule, so a snapshot
// older than the stream cannot regress a job. Jobs missing from the
// snapshot are kept: the service has no delete broadcast, and a job
// announced by the stream after the snapshot was taken would
// otherwise vanish. Returns whether anything changed.
func (s *Store) ApplySnapshot(jobs []job.Job) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var touched []string
	for _, incoming := range jobs {
		id, changed := s.mergeLocked(incoming.Patch(), true)
		if changed {
			touched = append(touched, id)
		}
	}
	if len(touched) == 0 {
		return false
	}
	s.notifyLocked(ChangeSnapshot, touched)
	return true
}

// ApplyEvent upserts one stream event. Patches without an ID are
// dropped. Returns whether anything changed.
func (s *Store) ApplyEvent(patch job.Patch) bool {
	if patch.ID == "" {
		s.logger.Warn("dropping job event without id")
		return false
	}
	if patch.Status != nil && !patch.Status.Valid() {
		s.logger.Warn("dropping job event with unknown status", "job_id", patch.ID, "status", *patch.Status)
		return false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	id, changed := s.mergeLocked(patch, false)
	if !changed {
		return false
	}
	s.notifyLocked(ChangeEvent, []string{id})
	return true
}

// mergeLocked applies one server patch: to the job with its ID if
// known, else to the matching provisional job, else as a new job.
// Returns the job's ID and whether anything changed.
func (s *Store) mergeLocked(patch job.Patch, fromSnapshot bool) (string, bool) {
	now := s.clock.Now()

	if current, ok := s.entries[patch.ID]; ok {
		return patch.ID, s.mergeIntoLocked(current, patch, now)
	}

	if match := s.matchProvisionalLocked(patch, fromSnapshot); match != nil {
		localID := match.base.ID
		delete(s.entries, localID)
		match.provisional = false
		match.base.ID = patch.ID
		s.entries[patch.ID] = match
		s.mergeIntoLocked(match, patch, now)
		s.logger.Debug("provisional job confirmed", "local_id", localID, "job_id", patch.ID)
		return patch.ID, true
	}

	fresh := materialize(patch, now)
	if err := fresh.CheckInvariants(); err != nil {
		s.logger.Warn("dropping job that violates invariants", "job_id", patch.ID, "error", err)
		return patch.ID, false
	}
	s.sequence++
	s.entries[patch.ID] = &entry{base: fresh, sequence: s.sequence}
	return patch.ID, true
}

// mergeIntoLocked applies patch to a copy of the entry's base and
// keeps the result only if it satisfies the job invariants, so a bad
// patch never corrupts a stored job.
func (s *Store) mergeIntoLocked(current *entry, patch job.Patch, now time.Time) bool {
	candidate := current.base.Clone()
	outcome := applyPatch(&candidate, patch, now)
	if outcome.rejected {
		s.logger.Debug("ignoring status regression",
			"job_id", current.base.ID,
			"status", outcome.from,
			"incoming", outcome.to,
		)
	}
	if !outcome.changed {
		return false
	}
	if err := candidate.CheckInvariants(); err != nil {
		s.logger.Warn("dropping patch that violates invariants", "job_id", current.base.ID, "error", err)
		return false
	}
	current.base = candidate
	return true
}

// matchProvisionalLocked finds the oldest provisional job with the
// same fingerprint as patch. Snapshot entries in a terminal status
// never match: a finished job in a snapshot is history, not the
// submission still in flight.
func (s *Store) matchProvisionalLocked(patch job.Patch, fromSnapshot bool) *entry {
	if patch.CaseNumber == nil {
		return nil
	}
	if fromSnapshot && patch.Status != nil && patch.Status.Terminal() {
		return nil
	}
	fingerprint := patch.Job().Fingerprint()
	var oldest *entry
	for _, candidate := range s.entries {
		if !candidate.provisional || candidate.base.Fingerprint() != fingerprint {
			continue
		}
		if oldest == nil || candidate.sequence < oldest.sequence {
			oldest = candidate
		}
	}
	return oldest
}

// InsertProvisional adds a locally created job under a new
// provisional ID and returns the ID. The job is replaced in place
// when the service announces it (see ConfirmProvisional and the
// matching in ApplyEvent and ApplySnapshot).
func (s *Store) InsertProvisional(draft job.Job) (string, error) {
	if strings.TrimSpace(draft.CaseNumber) == "" {
		return "", errors.New("jobstore: provisional job needs a case number")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	draft = draft.Clone()
	draft.ID = s.newID()
	draft.Status = job.StatusQueued
	draft.Accuracy, draft.Issues, draft.Error, draft.CompletedAt = nil, nil, "", nil
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = s.clock.Now()
	}
	if _, exists := s.entries[draft.ID]; exists {
		return "", fmt.Errorf("jobstore: provisional id %s already in use", draft.ID)
	}

	s.sequence++
	s.entries[draft.ID] = &entry{base: draft, provisional: true, sequence: s.sequence}
	s.notifyLocked(ChangeInsert, []string{draft.ID})
	return draft.ID, nil
}

// ConfirmProvisional replaces provisional job localID with serverID,
// for when the create response names the new job. If the stream
// already announced serverID, the provisional copy is dropped.
// Returns whether anything changed.
func (s *Store) ConfirmProvisional(localID, serverID string) bool {
	if serverID == "" || localID == serverID {
		return false
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, ok := s.entries[localID]
	if !ok || !current.provisional {
		return false
	}
	delete(s.entries, localID)
	if _, announced := s.entries[serverID]; announced {
		s.notifyLocked(ChangeDiscard, []string{localID})
		return true
	}
	current.provisional = false
	current.base.ID = serverID
	s.entries[serverID] = current
	s.notifyLocked(ChangeConfirm, []string{serverID})
	return true
}

// DiscardProvisional removes an unconfirmed provisional job, for a
// create request that failed. Confirmed jobs are never removed this
// way. Returns whether anything changed.
func (s *Store) DiscardProvisional(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, ok := s.entries[id]
	if !ok || !current.provisional {
		return false
	}
	delete(s.entries, id)
	s.notifyLocked(ChangeDiscard, []string{id})
	return true
}

// Remove deletes a job after the service confirmed the deletion.
// Returns whether the job existed.
func (s *Store) Remove(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	s.notifyLocked(ChangeRemove, []string{id})
	return true
}

// Reset drops every job and overlay, for session teardown.
func (s *Store) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.entries) == 0 {
		return
	}
	s.entries = make(map[string]*entry)
	s.notifyLocked(ChangeReset, nil)
}

func (e *entry) view() View {
	current := View{Job: e.base.Clone(), Provisional: e.provisional}
	if e.overlay != nil && job.CanTransition(e.base.Status, e.overlay.status) {
		current.Status = e.overlay.status
		current.Optimistic = true
		current.Accuracy, current.Issues, current.Error, current.CompletedAt = nil, nil, "", nil
	}
	return current
}
