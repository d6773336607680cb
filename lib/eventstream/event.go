// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstream

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// Kind is a Socket.IO event name the service emits.
type Kind string

const (
	// KindNewJob announces a job accepted by the service, carrying
	// the full job.
	KindNewJob Kind = "new_job"

	// KindJobUpdate carries a partial job, typically the result of a
	// completed audit.
	KindJobUpdate Kind = "job_update"

	// KindJobProgress is a status-only nudge.
	KindJobProgress Kind = "job_progress"

	// KindJobFailed reports a failed audit with its error message.
	KindJobFailed Kind = "job_failed"
)

// Kinds lists every event the client understands.
var Kinds = []Kind{KindNewJob, KindJobUpdate, KindJobProgress, KindJobFailed}

// Event is one decoded job event.
type Event struct {
	Kind  Kind
	Patch job.Patch
}

// MalformedEventError describes an event payload that failed
// validation or decoding. Such events are dropped.
type MalformedEventError struct {
	Kind Kind
	Err  error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("eventstream: malformed %s event: %v", e.Kind, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// errUnknownEvent is returned by decode for event names outside
// Kinds. The stream ignores them.
var errUnknownEvent = errors.New("unknown event")

//go:embed schemas/*.json
var schemaFiles embed.FS

// decoder validates and decodes event payloads. Compiled schemas are
// safe for concurrent use.
type decoder struct {
	schemas map[Kind]*jsonschema.Schema
}

func newDecoder() (*decoder, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	entries, err := schemaFiles.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("eventstream: reading schemas: %w", err)
	}
	for _, entry := range entries {
		content, err := schemaFiles.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("eventstream: reading schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(entry.Name(), bytes.NewReader(content)); err != nil {
			return nil, fmt.Errorf("eventstream: adding schema %s: %w", entry.Name(), err)
		}
	}

	schemas := make(map[Kind]*jsonschema.Schema, len(Kinds))
	for _, kind := range Kinds {
		schema, err := compiler.Compile(string(kind) + ".json")
		if err != nil {
			return nil, fmt.Errorf("eventstream: compiling %s schema: %w", kind, err)
		}
		schemas[kind] = schema
	}
	return &decoder{schemas: schemas}, nil
}

// decode turns one event into a patch. Unknown event names return
// errUnknownEvent; everything else that cannot be used returns a
// *MalformedEventError.
func (d *decoder) decode(name string, payload json.RawMessage) (Event, error) {
	kind := Kind(name)
	schema, known := d.schemas[kind]
	if !known {
		return Event{}, errUnknownEvent
	}
	malformed := func(err error) (Event, error) {
		return Event{}, &MalformedEventError{Kind: kind, Err: err}
	}

	if len(payload) == 0 {
		return malformed(errors.New("missing payload"))
	}
	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return malformed(err)
	}
	if err := schema.Validate(document); err != nil {
		return malformed(err)
	}
	patch, err := job.DecodePatch(payload)
	if err != nil {
		return malformed(err)
	}

	switch kind {
	case KindNewJob:
		if patch.Status == nil {
			queued := job.StatusQueued
			patch.Status = &queued
		}
	case KindJobProgress:
		patch = job.ProgressPatch(patch.ID, *patch.Status)
	case KindJobFailed:
		message := ""
		if patch.Error != nil {
			message = *patch.Error
		}
		patch = job.FailurePatch(patch.ID, message)
	}
	return Event{Kind: kind, Patch: patch}, nil
}

var defaultDecoder = sync.OnceValues(newDecoder)

// DecodeEvent validates and decodes one event payload outside a
// stream, for journal replay and scenario files. Unknown event names
// are an error here.
func DecodeEvent(name string, payload json.RawMessage) (Event, error) {
	decoder, err := defaultDecoder()
	if err != nil {
		return Event{}, err
	}
	event, err := decoder.decode(name, payload)
	if errors.Is(err, errUnknownEvent) {
		return Event{}, fmt.Errorf("eventstream: unknown event %q", name)
	}
	return event, err
}
