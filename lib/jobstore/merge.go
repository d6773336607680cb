// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import (
	"slices"
	"time"

	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// mergeOutcome describes what applying one patch did to a job.
type mergeOutcome struct {
	changed bool

	// rejected is set when the patch carried a status change that
	// the transition graph does not permit. Its status-bound fields
	// were ignored; descriptive fields may still have been applied.
	rejected bool
	from, to job.Status
}

// applyPatch merges patch into target. Descriptive fields are
// last-writer-wins. The status moves only along the transition
// graph, and status-bound fields are taken only when they belong to
// the resulting status. now stamps CompletedAt when a job becomes
// completed without one.
func applyPatch(target *job.Job, patch job.Patch, now time.Time) mergeOutcome {
	var outcome mergeOutcome

	outcome.changed = setIfPresent(&target.CaseNumber, patch.CaseNumber) || outcome.changed
	outcome.changed = setIfPresent(&target.Branch, patch.Branch) || outcome.changed
	outcome.changed = setIfPresent(&target.Feature, patch.Feature) || outcome.changed
	outcome.changed = setIfPresent(&target.Description, patch.Description) || outcome.changed
	if patch.CreatedAt != nil && !patch.CreatedAt.Equal(target.CreatedAt) {
		target.CreatedAt = *patch.CreatedAt
		outcome.changed = true
	}
	if patch.Files != nil && !patch.Files.Equal(target.Files) {
		target.Files = job.FileSet{Names: slices.Clone(patch.Files.Names), Count: patch.Files.Count}
		outcome.changed = true
	}

	status := target.Status
	if patch.Status != nil && *patch.Status != target.Status {
		if !job.CanTransition(target.Status, *patch.Status) {
			outcome.rejected = true
			outcome.from, outcome.to = target.Status, *patch.Status
			return outcome
		}
		status = *patch.Status
	}

	if status != target.Status {
		target.Status = status
		clearStaleFields(target)
		outcome.changed = true
	}

	switch status {
	case job.StatusCompleted:
		if patch.Accuracy != nil && (target.Accuracy == nil || *target.Accuracy != *patch.Accuracy) {
			accuracy := *patch.Accuracy
			target.Accuracy = &accuracy
			outcome.changed = true
		}
		if patch.Issues != nil && (target.Issues == nil || !slices.Equal(target.Issues, *patch.Issues)) {
			target.Issues = slices.Clone(*patch.Issues)
			outcome.changed = true
		}
		if patch.CompletedAt != nil && (target.CompletedAt == nil || !target.CompletedAt.Equal(*patch.CompletedAt)) {
			completedAt := *patch.CompletedAt
			target.CompletedAt = &completedAt
			outcome.changed = true
		}
		if target.CompletedAt == nil {
			stamped := now
			target.CompletedAt = &stamped
			outcome.changed = true
		}
	case job.StatusFailed:
		outcome.changed = setIfPresent(&target.Error, patch.Error) || outcome.changed
	}

	return outcome
}

// clearStaleFields drops the fields that do not belong to the job's
// current status.
func clearStaleFields(target *job.Job) {
	if target.Status != job.StatusCompleted {
		target.Accuracy = nil
		target.Issues = nil
		target.CompletedAt = nil
	}
	if target.Status != job.StatusFailed {
		target.Error = ""
	}
}

// materialize builds a new job from a patch for an ID the store has
// not seen. A patch without a status describes a job the service has
// just accepted.
func materialize(patch job.Patch, now time.Time) job.Job {
	status := job.StatusQueued
	if patch.Status != nil {
		status = *patch.Status
	}
	fresh := job.Job{ID: patch.ID, Status: job.StatusQueued}
	seed := patch
	seed.Status = nil
	applyPatch(&fresh, seed, now)
	if status != job.StatusQueued {
		// Insert directly in the announced status: the job's earlier
		// history happened before this client saw it.
		fresh.Status = status
		clearStaleFields(&fresh)
		applyPatch(&fresh, job.Patch{
			ID:          patch.ID,
			Accuracy:    patch.Accuracy,
			Issues:      patch.Issues,
			Error:       patch.Error,
			CompletedAt: patch.CompletedAt,
		}, now)
	}
	return fresh
}

func setIfPresent[T comparable](target *T, value *T) bool {
	if value == nil || *target == *value {
		return false
	}
	*target = *value
	return true
}
