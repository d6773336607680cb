// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"slices"
	"time"
)

// Patch is a partial job keyed by ID. Every input to the job store
// (snapshot entry, stream event, local mutation) is expressed as a
// Patch; nil fields are absent and leave the stored value alone.
type Patch struct {
	ID string

	CaseNumber  *string
	Branch      *string
	Feature     *Feature
	Description *string
	CreatedAt   *time.Time
	Files       *FileSet

	Status      *Status
	Accuracy    *float64
	Issues      *[]string
	Error       *string
	CompletedAt *time.Time
}

// Patch returns a patch carrying every populated field of j.
func (j Job) Patch() Patch {
	patch := Patch{ID: j.ID}
	if j.CaseNumber != "" {
		patch.CaseNumber = ptr(j.CaseNumber)
	}
	if j.Branch != "" {
		patch.Branch = ptr(j.Branch)
	}
	if j.Feature != "" {
		patch.Feature = ptr(j.Feature)
	}
	if j.Description != "" {
		patch.Description = ptr(j.Description)
	}
	if !j.CreatedAt.IsZero() {
		patch.CreatedAt = ptr(j.CreatedAt)
	}
	if j.Files.Count > 0 || len(j.Files.Names) > 0 {
		patch.Files = ptr(FileSet{Names: slices.Clone(j.Files.Names), Count: j.Files.Count})
	}
	if j.Status != "" {
		patch.Status = ptr(j.Status)
	}
	if j.Accuracy != nil {
		patch.Accuracy = ptr(*j.Accuracy)
	}
	if j.Issues != nil {
		patch.Issues = ptr(slices.Clone(j.Issues))
	}
	if j.Error != "" {
		patch.Error = ptr(j.Error)
	}
	if j.CompletedAt != nil {
		patch.CompletedAt = ptr(*j.CompletedAt)
	}
	return patch
}

// ProgressPatch is the status-only nudge carried by job_progress.
func ProgressPatch(id string, status Status) Patch {
	return Patch{ID: id, Status: ptr(status)}
}

// FailurePatch is the patch carried by job_failed. An empty message
// is replaced with "Unknown error", matching the dashboard's display.
func FailurePatch(id, message string) Patch {
	if message == "" {
		message = "Unknown error"
	}
	return Patch{ID: id, Status: ptr(StatusFailed), Error: ptr(message)}
}

// Job materializes the patch as a new job. Used when the patch's ID
// is not yet known to the store.
func (p Patch) Job() Job {
	var materialized Job
	materialized.ID = p.ID
	if p.CaseNumber != nil {
		materialized.CaseNumber = *p.CaseNumber
	}
	if p.Branch != nil {
		materialized.Branch = *p.Branch
	}
	if p.Feature != nil {
		materialized.Feature = *p.Feature
	}
	if p.Description != nil {
		materialized.Description = *p.Description
	}
	if p.CreatedAt != nil {
		materialized.CreatedAt = *p.CreatedAt
	}
	if p.Files != nil {
		materialized.Files = FileSet{Names: slices.Clone(p.Files.Names), Count: p.Files.Count}
	}
	if p.Status != nil {
		materialized.Status = *p.Status
	}
	if p.Accuracy != nil {
		materialized.Accuracy = ptr(*p.Accuracy)
	}
	if p.Issues != nil {
		materialized.Issues = slices.Clone(*p.Issues)
	}
	if p.Error != nil {
		materialized.Error = *p.Error
	}
	if p.CompletedAt != nil {
		materialized.CompletedAt = ptr(*p.CompletedAt)
	}
	return materialized
}

func ptr[T any](value T) *T {
	return &value
}
