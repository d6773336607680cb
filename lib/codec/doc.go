// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec fixes the CBOR configuration used for on-disk state:
// the synchronizer journal and its replay tooling.
//
// The split between formats follows the data's audience. Everything
// exchanged with the audit service, and everything the CLI prints, is
// JSON. Everything the client writes for itself is CBOR with Core
// Deterministic Encoding (RFC 8949 §4.2), so the same record always
// produces the same bytes and journals can be compared byte for byte.
//
//	data, err := codec.Marshal(record)
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// Types that are only ever CBOR use `cbor` struct tags. Types that are
// also JSON (the job model) keep their `json` tags, which the CBOR
// library honours as a fallback.
package codec
