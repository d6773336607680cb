// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the login password between the prompt and the
// login request.
//
// A [Password] lives in an anonymous mmap region outside the Go heap,
// so the garbage collector never copies it. The region is locked
// against swap where the process's memlock limit allows it and is
// excluded from core dumps. Close zeroes and unmaps it.
//
// [Prompt] reads a password from the terminal without echo and
// [ReadFile] reads one from a file or standard input, both straight
// into a Password.
package secret
