// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every component that waits:
// the snapshot loader's retry delays, the event stream's reconnect
// backoff and heartbeat deadline, and the job store's completion
// timestamps.
//
// Components hold a [Clock] in their config struct and default to
// [Real]. Tests pass a [FakeClock], which stands still until
// [FakeClock.Advance] is called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	loader := snapshot.New(snapshot.Config{Clock: fake, ...})
//	go loader.Load(ctx)
//	fake.WaitForTimers(1)          // the retry delay is registered
//	fake.Advance(500 * time.Millisecond)
//
// WaitForTimers closes the race between a goroutine registering a
// wait and the test advancing time past it.
package clock
