// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"time"

	"github.com/bureau-foundation/auditdesk/lib/jobstore"
)

// heatDecay is how long a changed row stays tinted. Heat starts at 1
// and falls linearly to 0 over it.
const heatDecay = 5 * time.Second

// heatTickInterval is the re-render interval while any row is hot.
const heatTickInterval = 100 * time.Millisecond

// heatKind picks the tint.
type heatKind int

const (
	heatPut heatKind = iota
	heatRevert
)

type heatEntry struct {
	ignition time.Time
	kind     heatKind
}

// heatTracker remembers when each job last changed.
type heatTracker struct {
	entries map[string]heatEntry
}

func newHeatTracker() *heatTracker {
	return &heatTracker{entries: make(map[string]heatEntry)}
}

// record ignites the jobs a store change touched. A reset forgets
// everything; a rollback glows as a revert.
func (tracker *heatTracker) record(change jobstore.Change, now time.Time) {
	switch change.Kind {
	case jobstore.ChangeReset:
		clear(tracker.entries)
		return
	case jobstore.ChangeRemove, jobstore.ChangeDiscard:
		for _, id := range change.IDs {
			delete(tracker.entries, id)
		}
		return
	}
	kind := heatPut
	if change.Kind == jobstore.ChangeRollback {
		kind = heatRevert
	}
	for _, id := range change.IDs {
		tracker.entries[id] = heatEntry{ignition: now, kind: kind}
	}
}

// heat returns the intensity for id, 0 when cold.
func (tracker *heatTracker) heat(id string, now time.Time) float64 {
	entry, ok := tracker.entries[id]
	if !ok {
		return 0
	}
	elapsed := now.Sub(entry.ignition)
	if elapsed >= heatDecay {
		return 0
	}
	return 1 - float64(elapsed)/float64(heatDecay)
}

func (tracker *heatTracker) kind(id string) heatKind {
	return tracker.entries[id].kind
}

// hasHot reports whether any row still glows, dropping cold entries.
func (tracker *heatTracker) hasHot(now time.Time) bool {
	hot := false
	for id, entry := range tracker.entries {
		if now.Sub(entry.ignition) < heatDecay {
			hot = true
			continue
		}
		delete(tracker.entries, id)
	}
	return hot
}
