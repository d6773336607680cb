// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock reading start. Time moves only through
// Advance.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a Clock for tests. Waits registered through After,
// AfterFunc, and Sleep fire during Advance once their deadline is
// reached, in deadline order. AfterFunc callbacks run on the goroutine
// calling Advance and must not call Advance themselves.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*pendingWait
	changed *sync.Cond
}

type pendingWait struct {
	deadline time.Time
	channel  chan time.Time // After and Sleep
	callback func()         // AfterFunc
	done     bool
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a wait for d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&pendingWait{deadline: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc registers f to run after d. A non-positive d runs f
// before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{
			stop:  func() bool { return false },
			reset: func(time.Duration) bool { return false },
		}
	}

	c.mu.Lock()
	wait := &pendingWait{deadline: c.now.Add(d), callback: f}
	c.addLocked(wait)
	c.mu.Unlock()

	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if wait.done {
				return false
			}
			wait.done = true
			c.pending = slices.DeleteFunc(c.pending, func(other *pendingWait) bool { return other == wait })
			c.changed.Broadcast()
			return true
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasPending := !wait.done
			wait.deadline = c.now.Add(d)
			if !wasPending {
				wait.done = false
				c.addLocked(wait)
			}
			return wasPending
		},
	}
}

// Sleep blocks until the clock has been advanced by d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every wait whose
// deadline has been reached.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due, remaining []*pendingWait
	for _, wait := range c.pending {
		switch {
		case wait.done:
		case !wait.deadline.After(now):
			wait.done = true
			due = append(due, wait)
		default:
			remaining = append(remaining, wait)
		}
	}
	c.pending = remaining
	c.changed.Broadcast()
	c.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *pendingWait) int {
		return a.deadline.Compare(b.deadline)
	})
	for _, wait := range due {
		if wait.callback != nil {
			wait.callback()
			continue
		}
		select {
		case wait.channel <- now:
		default:
		}
	}
}

// WaitForTimers blocks until at least n waits are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of registered waits that have not
// fired or been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) addLocked(wait *pendingWait) {
	c.pending = append(c.pending, wait)
	c.changed.Broadcast()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, wait := range c.pending {
		if !wait.done {
			count++
		}
	}
	return count
}
