// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"testing"
	"time"
)

type recordingTB struct {
	failed  bool
	message string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Fatalf(format string, args ...any) {
	r.failed = true
	r.message = fmt.Sprintf(format, args...)
}

func TestRequireReceiveReturnsValue(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "value"); got != 7 {
		t.Fatalf("RequireReceive = %d, want 7", got)
	}
}

func TestRequireClosedDrainsUntilClose(t *testing.T) {
	t.Parallel()

	ch := make(chan string, 2)
	ch <- "a"
	ch <- "b"
	close(ch)
	recorder := &recordingTB{}
	RequireClosed(recorder, ch, time.Second, "events")
	if recorder.failed {
		t.Fatalf("RequireClosed failed: %s", recorder.message)
	}
}

func TestRequireClosedTimesOut(t *testing.T) {
	t.Parallel()

	recorder := &recordingTB{}
	RequireClosed(recorder, make(chan struct{}), 10*time.Millisecond, "waiting for %s", "done")
	if !recorder.failed {
		t.Fatal("RequireClosed on an open channel did not fail")
	}
	if recorder.message != "timed out after 10ms waiting for close: waiting for done" {
		t.Fatalf("message = %q", recorder.message)
	}
}
