// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import (
	"fmt"

	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// Token identifies one optimistic change. It is returned by
// BeginOptimistic and resolves the change exactly once through
// CommitOptimistic or RollbackOptimistic.
type Token struct {
	JobID  string
	serial uint64
}

// BeginOptimistic shows job id in status ahead of the service's
// confirmation. The overlay hides the server-derived status without
// replacing it: stream events keep merging underneath, and a
// rollback reveals whatever the service reported meanwhile. The
// overlay is not shown once the server-derived status can no longer
// reach status (for example, the job completed while a stop was in
// flight).
func (s *Store) BeginOptimistic(id string, status job.Status) (Token, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, ok := s.entries[id]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if current.provisional {
		return Token{}, fmt.Errorf("%w: %s", ErrProvisional, id)
	}
	if current.overlay != nil {
		return Token{}, fmt.Errorf("%w: %s", ErrOverlayActive, id)
	}
	if !job.CanTransition(current.base.Status, status) {
		return Token{}, fmt.Errorf("%w: %s from %s to %s", ErrTransition, id, current.base.Status, status)
	}

	s.nextToken++
	token := Token{JobID: id, serial: s.nextToken}
	current.overlay = &overlay{token: token, status: status}
	s.notifyLocked(ChangeOverlay, []string{id})
	return token, nil
}

// CommitOptimistic folds the overlay status into the server-derived
// state under the transition rule and removes the overlay. If the
// job reached a terminal status meanwhile, that status stands.
func (s *Store) CommitOptimistic(token Token) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current := s.overlayEntryLocked(token)
	if current == nil {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.JobID)
	}
	status := current.overlay.status
	current.overlay = nil
	s.mergeIntoLocked(current, job.Patch{ID: token.JobID, Status: &status}, s.clock.Now())
	s.notifyLocked(ChangeCommit, []string{token.JobID})
	return nil
}

// RollbackOptimistic removes the overlay; the job shows its
// server-derived state again.
func (s *Store) RollbackOptimistic(token Token) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current := s.overlayEntryLocked(token)
	if current == nil {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.JobID)
	}
	current.overlay = nil
	s.notifyLocked(ChangeRollback, []string{token.JobID})
	return nil
}

func (s *Store) overlayEntryLocked(token Token) *entry {
	current, ok := s.entries[token.JobID]
	if !ok || current.overlay == nil || current.overlay.token != token {
		return nil
	}
	return current
}
