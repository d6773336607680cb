// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of an audit job as reported by the
// audit service.
type Status string

const (
	// StatusQueued means the job was accepted and waits for a worker.
	StatusQueued Status = "queued"
	// StatusProcessing means a worker has picked the job up.
	StatusProcessing Status = "processing"
	// StatusCompleted means the audit finished and produced a result
	// (accuracy and issues).
	StatusCompleted Status = "completed"
	// StatusFailed means the audit aborted with an error message.
	StatusFailed Status = "failed"
	// StatusStopped means the operator stopped the job.
	StatusStopped Status = "stopped"
	// StatusCanceled means the service canceled a queued job before a
	// worker picked it up.
	StatusCanceled Status = "canceled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusStopped,
	StatusCanceled,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Terminal reports whether s is a final status. A job in a terminal
// status never changes status again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped, StatusCanceled:
		return true
	default:
		return false
	}
}

// transitions is the permitted status graph. queued -> completed and
// queued -> failed are skip-ahead edges: the event stream has no
// replay guarantee, so the processing step may never be observed.
var transitions = map[Status][]Status{
	StatusQueued: {
		StatusProcessing,
		StatusCompleted,
		StatusFailed,
		StatusStopped,
		StatusCanceled,
	},
	StatusProcessing: {
		StatusCompleted,
		StatusFailed,
		StatusStopped,
	},
}

// CanTransition reports whether a job in status from may move to
// status to. Moving to the same status is not a transition and
// returns false; callers treat it as a field refresh.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Feature selects the audit pipeline the service runs on a job.
type Feature string

const (
	// FeatureGeneral runs the standard checks on each document.
	FeatureGeneral Feature = "general"
	// FeatureCrossCheck compares exactly two documents side by side.
	FeatureCrossCheck Feature = "cross-check"
)

// Valid reports whether f is a known feature.
func (f Feature) Valid() bool {
	return f == FeatureGeneral || f == FeatureCrossCheck
}

// RequiredFiles returns the exact number of documents the feature
// needs, or 0 when any positive number is accepted.
func (f Feature) RequiredFiles() int {
	if f == FeatureCrossCheck {
		return 2
	}
	return 0
}

// KnownBranches are the branches the dashboard offers by default.
// The set is extensible: any non-empty branch name is accepted.
var KnownBranches = []string{"Phoenix", "Peoria"}

// FileSet describes the documents attached to a job. The snapshot
// reports document names; some stream payloads only report a count.
type FileSet struct {
	Names []string `json:"names,omitempty"`
	Count int      `json:"count"`
}

// Equal reports whether two file sets describe the same documents.
func (f FileSet) Equal(other FileSet) bool {
	return f.Count == other.Count && slices.Equal(f.Names, other.Names)
}

// Job is one audit job as held by the client.
type Job struct {
	// ID is the server-assigned identifier. Provisional jobs created
	// locally before the server announces them carry a "local-" ID.
	ID string `json:"id"`

	// CaseNumber is the free-text case label entered at submission.
	CaseNumber string `json:"case_number"`

	// Branch is the branch the case belongs to (see KnownBranches).
	Branch string `json:"branch,omitempty"`

	// Feature is the audit pipeline.
	Feature Feature `json:"feature,omitempty"`

	// Description is optional free text entered at submission.
	Description string `json:"description,omitempty"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// Files are the uploaded documents.
	Files FileSet `json:"files"`

	// Accuracy is the audit score in percent. Set only when Status
	// is completed.
	Accuracy *float64 `json:"accuracy,omitempty"`

	// Issues are the findings of a completed audit, in report order.
	Issues []string `json:"issues,omitempty"`

	// Error is the failure message. Set only when Status is failed.
	Error string `json:"error,omitempty"`

	// CreatedAt is the submission time.
	CreatedAt time.Time `json:"created_at,omitzero"`

	// CompletedAt is set if and only if Status is completed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of j so callers can hand jobs across
// goroutines without sharing slices.
func (j Job) Clone() Job {
	clone := j
	clone.Files.Names = slices.Clone(j.Files.Names)
	clone.Issues = slices.Clone(j.Issues)
	if j.Accuracy != nil {
		accuracy := *j.Accuracy
		clone.Accuracy = &accuracy
	}
	if j.CompletedAt != nil {
		completedAt := *j.CompletedAt
		clone.CompletedAt = &completedAt
	}
	return clone
}

// Fingerprint identifies a submission independently of its ID. It is
// used to match a provisional local job with the job the server
// announces for it.
func (j Job) Fingerprint() string {
	return strings.Join([]string{
		strings.TrimSpace(j.CaseNumber),
		string(j.Feature),
		strings.TrimSpace(j.Branch),
	}, "\x00")
}

// ErrInvariant is wrapped by every CheckInvariants failure.
var ErrInvariant = errors.New("job invariant violated")

// CheckInvariants verifies the status-bound field rules: result
// fields only on completed jobs, the error only on failed jobs.
func (j Job) CheckInvariants() error {
	if j.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvariant)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: job %s has unknown status %q", ErrInvariant, j.ID, j.Status)
	}
	completed := j.Status == StatusCompleted
	if completed != (j.CompletedAt != nil) {
		return fmt.Errorf("%w: job %s status %s with completed_at=%v", ErrInvariant, j.ID, j.Status, j.CompletedAt)
	}
	if !completed && (j.Accuracy != nil || len(j.Issues) > 0) {
		return fmt.Errorf("%w: job %s has results in status %s", ErrInvariant, j.ID, j.Status)
	}
	if j.Status != StatusFailed && j.Error != "" {
		return fmt.Errorf("%w: job %s has error in status %s", ErrInvariant, j.ID, j.Status)
	}
	return nil
}
