// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/codec"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// Kind is the type of a journal record.
type Kind string

const (
	// KindSnapshot is a full job list applied as one batch.
	KindSnapshot Kind = "snapshot"
	// KindEvent is one decoded stream event.
	KindEvent Kind = "event"
	// KindReset is a store reset at a session transition.
	KindReset Kind = "reset"
)

// Record is one synchronizer input.
type Record struct {
	// Sequence numbers records from 1 in write order.
	Sequence uint64 `cbor:"seq"`

	// Time is when the input was applied.
	Time time.Time `cbor:"time"`

	Kind Kind `cbor:"kind"`

	// Generation is the session generation the input belonged to.
	Generation uint64 `cbor:"generation,omitempty"`

	// Event is the stream event name (KindEvent only).
	Event string `cbor:"event,omitempty"`

	// Jobs is the snapshot (KindSnapshot only).
	Jobs []job.Job `cbor:"jobs,omitempty"`

	// Patch is the event's patch (KindEvent only).
	Patch *job.Patch `cbor:"patch,omitempty"`
}

// zstdMagic starts every zstd frame (RFC 8878 §3.1.1).
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Writer appends records to a journal. Safe for concurrent use.
type Writer struct {
	mutex      sync.Mutex
	file       io.Closer
	compressor *zstd.Encoder
	encoder    *codec.Encoder
	clock      clock.Clock
	sequence   uint64
	closed     bool
}

// Create truncates or creates the journal at path. A ".zst" suffix
// selects zstd compression.
func Create(path string, clk clock.Clock) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	writer, err := NewWriter(file, strings.HasSuffix(path, ".zst"), clk)
	if err != nil {
		file.Close()
		return nil, err
	}
	writer.file = file
	return writer, nil
}

// NewWriter writes a journal to w. If clk is nil, clock.Real() is
// used. Close flushes but does not close w.
func NewWriter(w io.Writer, compress bool, clk clock.Clock) (*Writer, error) {
	if clk == nil {
		clk = clock.Real()
	}
	writer := &Writer{clock: clk}
	if compress {
		compressor, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("journal: creating zstd encoder: %w", err)
		}
		writer.compressor = compressor
		w = compressor
	}
	writer.encoder = codec.NewEncoder(w)
	return writer, nil
}

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("journal: writer closed")

// Append stamps record with the next sequence number and the current
// time and writes it.
func (w *Writer) Append(record Record) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.sequence++
	record.Sequence = w.sequence
	record.Time = w.clock.Now()
	if err := w.encoder.Encode(record); err != nil {
		return fmt.Errorf("journal: writing record %d: %w", record.Sequence, err)
	}
	return nil
}

// Snapshot appends a snapshot record.
func (w *Writer) Snapshot(generation uint64, jobs []job.Job) error {
	return w.Append(Record{Kind: KindSnapshot, Generation: generation, Jobs: jobs})
}

// Event appends an event record.
func (w *Writer) Event(generation uint64, name string, patch job.Patch) error {
	return w.Append(Record{Kind: KindEvent, Generation: generation, Event: name, Patch: &patch})
}

// Reset appends a reset record.
func (w *Writer) Reset(generation uint64) error {
	return w.Append(Record{Kind: KindReset, Generation: generation})
}

// Close flushes the journal and closes the file opened by Create.
// Idempotent.
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if w.compressor != nil {
		errs = append(errs, w.compressor.Close())
	}
	if w.file != nil {
		errs = append(errs, w.file.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("journal: closing: %w", err)
	}
	return nil
}

// Reader reads records back from a journal.
type Reader struct {
	decoder      *codec.Decoder
	decompressor *zstd.Decoder
	file         io.Closer
}

// Open opens the journal at path. Compression is detected from the
// content, not the name.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	reader, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	reader.file = file
	return reader, nil
}

// NewReader reads a journal, compressed or not, from r.
func NewReader(r io.Reader) (*Reader, error) {
	buffered := bufio.NewReader(r)
	reader := &Reader{}
	head, err := buffered.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("journal: reading header: %w", err)
	}
	var source io.Reader = buffered
	if bytes.Equal(head, zstdMagic) {
		decompressor, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("journal: creating zstd decoder: %w", err)
		}
		reader.decompressor = decompressor
		source = decompressor
	}
	reader.decoder = codec.NewDecoder(source)
	return reader, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var record Record
	if err := r.decoder.Decode(&record); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("journal: decoding record: %w", err)
	}
	return record, nil
}

// NextRaw returns the next record undecoded, or io.EOF after the last
// one. Used to print a journal in CBOR diagnostic notation.
func (r *Reader) NextRaw() ([]byte, error) {
	var raw codec.RawMessage
	if err := r.decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("journal: reading record: %w", err)
	}
	return raw, nil
}

// Close releases the decoder and closes the file opened by Open.
func (r *Reader) Close() error {
	if r.decompressor != nil {
		r.decompressor.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
