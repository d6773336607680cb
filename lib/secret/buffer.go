// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrEmpty is returned when there is no password to hold.
var ErrEmpty = errors.New("secret: password is empty")

// Password is a password held in memory outside the Go heap. It must
// not be copied. Reading it after Close panics.
type Password struct {
	mutex  sync.Mutex
	region []byte
	length int
	locked bool
	closed bool
}

// newPassword maps a zeroed region of size bytes.
func newPassword(size int) (*Password, error) {
	if size <= 0 {
		return nil, ErrEmpty
	}
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	password := &Password{region: region, length: size}

	// A low RLIMIT_MEMLOCK (common in containers) refuses the lock;
	// the password is then only kept out of the heap and core dumps.
	password.locked = unix.Mlock(region) == nil
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		password.release()
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	return password, nil
}

// FromBytes moves source into a Password and zeroes source.
func FromBytes(source []byte) (*Password, error) {
	defer Zero(source)
	password, err := newPassword(len(source))
	if err != nil {
		return nil, err
	}
	copy(password.region, source)
	return password, nil
}

// String returns a heap copy of the password, for the one call that
// needs it as a string (the login form).
func (p *Password) String() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		panic("secret: password read after Close")
	}
	return string(p.region[:p.length])
}

// Len returns the password length in bytes.
func (p *Password) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.length
}

// Locked reports whether the region is locked against swap.
func (p *Password) Locked() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.locked
}

// Close zeroes and unmaps the password. Idempotent.
func (p *Password) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.release()
}

func (p *Password) release() error {
	Zero(p.region)
	if p.locked {
		unix.Munlock(p.region)
	}
	err := unix.Munmap(p.region)
	p.region = nil
	if err != nil {
		return fmt.Errorf("secret: munmap: %w", err)
	}
	return nil
}

// Zero overwrites data with zeros.
func Zero(data []byte) {
	clear(data)
}
