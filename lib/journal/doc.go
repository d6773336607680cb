// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal records the inputs of the job synchronizer (snapshots,
// stream events, store resets) and replays them into a store.
//
// A journal is a CBOR sequence of [Record] values written with the
// deterministic encoding of lib/codec, optionally wrapped in a zstd
// frame. Replaying a journal into an empty store reproduces the state
// the live client had, which is how ordering bugs reported from the
// field are diagnosed offline.
//
// Scenario files are the hand-written counterpart: JSONC documents
// listing snapshots and events in wire form (see [ParseScenario]).
// Both feed [Replay] through the [Source] interface.
package journal
