// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import (
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

var mergeNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ref[T any](value T) *T { return &value }

func TestApplyPatchRejectsRegression(t *testing.T) {
	completedAt := mergeNow.Add(-time.Hour)
	target := job.Job{
		ID:          "1",
		CaseNumber:  "C-1",
		Status:      job.StatusCompleted,
		Accuracy:    ref(91.5),
		CompletedAt: &completedAt,
	}

	outcome := applyPatch(&target, job.Patch{
		ID:          "1",
		Status:      ref(job.StatusProcessing),
		Description: ref("late description"),
	}, mergeNow)

	if !outcome.rejected {
		t.Fatal("completed -> processing should be rejected")
	}
	if outcome.from != job.StatusCompleted || outcome.to != job.StatusProcessing {
		t.Errorf("outcome transition = %s -> %s", outcome.from, outcome.to)
	}
	if !outcome.changed {
		t.Error("descriptive field should still be applied on a rejected status")
	}
	if target.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed", target.Status)
	}
	if target.Accuracy == nil || *target.Accuracy != 91.5 {
		t.Errorf("accuracy = %v, want 91.5", target.Accuracy)
	}
	if target.Description != "late description" {
		t.Errorf("description = %q", target.Description)
	}
}

func TestApplyPatchSameStatusRefreshesResult(t *testing.T) {
	completedAt := mergeNow.Add(-time.Minute)
	target := job.Job{ID: "1", Status: job.StatusCompleted, Accuracy: ref(80.0), CompletedAt: &completedAt}

	outcome := applyPatch(&target, job.Patch{
		ID:       "1",
		Status:   ref(job.StatusCompleted),
		Accuracy: ref(85.0),
		Issues:   ref([]string{"signature missing"}),
	}, mergeNow)

	if !outcome.changed || outcome.rejected {
		t.Fatalf("outcome = %+v, want changed and not rejected", outcome)
	}
	if *target.Accuracy != 85 {
		t.Errorf("accuracy = %v, want 85", *target.Accuracy)
	}
	if !slices.Equal(target.Issues, []string{"signature missing"}) {
		t.Errorf("issues = %v", target.Issues)
	}
	if !target.CompletedAt.Equal(completedAt) {
		t.Errorf("completed_at changed to %v", target.CompletedAt)
	}
}

func TestApplyPatchStampsCompletion(t *testing.T) {
	target := job.Job{ID: "1", Status: job.StatusQueued}

	outcome := applyPatch(&target, job.Patch{ID: "1", Status: ref(job.StatusCompleted), Accuracy: ref(99.0)}, mergeNow)

	if !outcome.changed {
		t.Fatal("queued -> completed should change the job")
	}
	if target.CompletedAt == nil || !target.CompletedAt.Equal(mergeNow) {
		t.Errorf("completed_at = %v, want %v", target.CompletedAt, mergeNow)
	}
	if err := target.CheckInvariants(); err != nil {
		t.Error(err)
	}
}

func TestApplyPatchIgnoresFieldsOfOtherStatus(t *testing.T) {
	target := job.Job{ID: "1", Status: job.StatusProcessing}

	applyPatch(&target, job.Patch{
		ID:       "1",
		Status:   ref(job.StatusFailed),
		Error:    ref("OCR timeout"),
		Accuracy: ref(10.0),
	}, mergeNow)

	if target.Status != job.StatusFailed || target.Error != "OCR timeout" {
		t.Errorf("job = %+v, want failed with error", target)
	}
	if target.Accuracy != nil || target.CompletedAt != nil {
		t.Errorf("failed job carries result fields: %+v", target)
	}
}

func TestApplyPatchNoOp(t *testing.T) {
	target := job.Job{ID: "1", CaseNumber: "C-1", Status: job.StatusQueued}
	outcome := applyPatch(&target, job.Patch{ID: "1", CaseNumber: ref("C-1"), Status: ref(job.StatusQueued)}, mergeNow)
	if outcome.changed || outcome.rejected {
		t.Errorf("outcome = %+v, want no change", outcome)
	}
}

func TestMaterialize(t *testing.T) {
	tests := []struct {
		name   string
		patch  job.Patch
		status job.Status
	}{
		{"no status", job.Patch{ID: "1", CaseNumber: ref("C-1")}, job.StatusQueued},
		{"processing", job.ProgressPatch("2", job.StatusProcessing), job.StatusProcessing},
		{"failed", job.FailurePatch("3", ""), job.StatusFailed},
		{"completed", job.Patch{ID: "4", Status: ref(job.StatusCompleted), Accuracy: ref(75.0)}, job.StatusCompleted},
		{"canceled", job.ProgressPatch("5", job.StatusCanceled), job.StatusCanceled},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fresh := materialize(test.patch, mergeNow)
			if fresh.ID != test.patch.ID {
				t.Errorf("id = %q, want %q", fresh.ID, test.patch.ID)
			}
			if fresh.Status != test.status {
				t.Errorf("status = %s, want %s", fresh.Status, test.status)
			}
			if err := fresh.CheckInvariants(); err != nil {
				t.Error(err)
			}
		})
	}

	failed := materialize(job.FailurePatch("3", ""), mergeNow)
	if failed.Error != "Unknown error" {
		t.Errorf("failed error = %q", failed.Error)
	}
	completed := materialize(job.Patch{ID: "4", Status: ref(job.StatusCompleted), Accuracy: ref(75.0)}, mergeNow)
	if completed.Accuracy == nil || *completed.Accuracy != 75 {
		t.Errorf("completed accuracy = %v", completed.Accuracy)
	}
}
