// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventstream follows the audit service's live job events.
//
// The service pushes events over Socket.IO (protocol v5) on Engine.IO
// (protocol v4), using the WebSocket transport only. [Dialer.Dial]
// opens one connection, performs both handshakes, and returns a
// [Stream] whose Events channel yields decoded job patches until the
// connection ends. A Stream is never restarted: [Dialer.Run] dials a
// fresh one after each disconnect, with exponential backoff, and
// invokes the OnReconnect hook so the caller can reload the snapshot
// to cover events lost during the outage.
//
// Every event payload is validated against a JSON Schema before it is
// decoded. Payloads that fail are dropped and counted; they never end
// the stream.
package eventstream
