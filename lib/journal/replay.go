// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/auditdesk/lib/eventstream"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// Source yields records in order and returns io.EOF after the last.
// *Reader implements it.
type Source interface {
	Next() (Record, error)
}

// Slice returns a Source over records.
func Slice(records []Record) Source {
	return &sliceSource{records: records}
}

type sliceSource struct {
	records []Record
	next    int
}

func (s *sliceSource) Next() (Record, error) {
	if s.next >= len(s.records) {
		return Record{}, io.EOF
	}
	record := s.records[s.next]
	s.next++
	return record, nil
}

// Stats counts what Replay applied.
type Stats struct {
	Records   int
	Snapshots int
	Events    int
	Resets    int

	// Changed counts records that changed the store.
	Changed int
}

// Replay applies every record from source to store, in order. It
// stops at the first read error. After each record, observe (if not
// nil) receives it together with whether it changed the store.
func Replay(store *jobstore.Store, source Source, observe func(Record, bool)) (Stats, error) {
	var stats Stats
	for {
		record, err := source.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		stats.Records++

		changed, err := apply(store, record)
		if err != nil {
			return stats, fmt.Errorf("journal: record %d: %w", record.Sequence, err)
		}
		switch record.Kind {
		case KindSnapshot:
			stats.Snapshots++
		case KindEvent:
			stats.Events++
		case KindReset:
			stats.Resets++
		}
		if changed {
			stats.Changed++
		}
		if observe != nil {
			observe(record, changed)
		}
	}
}

func apply(store *jobstore.Store, record Record) (bool, error) {
	switch record.Kind {
	case KindSnapshot:
		return store.ApplySnapshot(record.Jobs), nil
	case KindEvent:
		if record.Patch == nil {
			return false, errors.New("event record without a patch")
		}
		return store.ApplyEvent(*record.Patch), nil
	case KindReset:
		changed := store.Len() > 0
		store.Reset()
		return changed, nil
	default:
		return false, fmt.Errorf("unknown record kind %q", record.Kind)
	}
}

// scenario is the JSONC document read by ParseScenario.
type scenario struct {
	Steps []scenarioStep `json:"steps"`
}

type scenarioStep struct {
	Snapshot json.RawMessage `json:"snapshot"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
	Reset    bool            `json:"reset"`
}

// ParseScenario reads a hand-written scenario: a JSONC object whose
// "steps" array holds, in order, entries of one of three shapes:
//
//	{"snapshot": [ ...jobs as GET /user/jobs returns them... ]}
//	{"event": "job_progress", "data": {"id": 7, "status": "processing"}}
//	{"reset": true}
//
// Payloads go through the same decoding and validation as live input,
// so a malformed event fails the parse instead of being dropped.
// Comments and trailing commas are allowed.
func ParseScenario(data []byte) ([]Record, error) {
	var document scenario
	if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
		return nil, fmt.Errorf("journal: parsing scenario: %w", err)
	}

	records := make([]Record, 0, len(document.Steps))
	for index, step := range document.Steps {
		record, err := step.record()
		if err != nil {
			return nil, fmt.Errorf("journal: scenario step %d: %w", index+1, err)
		}
		record.Sequence = uint64(index + 1)
		records = append(records, record)
	}
	return records, nil
}

func (s scenarioStep) record() (Record, error) {
	shapes := 0
	if s.Snapshot != nil {
		shapes++
	}
	if s.Event != "" {
		shapes++
	}
	if s.Reset {
		shapes++
	}
	if shapes != 1 {
		return Record{}, errors.New(`step must have exactly one of "snapshot", "event", "reset"`)
	}

	switch {
	case s.Snapshot != nil:
		jobs, skipped, err := job.DecodeList(s.Snapshot)
		if err != nil {
			return Record{}, err
		}
		if len(skipped) > 0 {
			return Record{}, errors.Join(skipped...)
		}
		return Record{Kind: KindSnapshot, Jobs: jobs}, nil
	case s.Event != "":
		event, err := eventstream.DecodeEvent(s.Event, s.Data)
		if err != nil {
			return Record{}, err
		}
		return Record{Kind: KindEvent, Event: string(event.Kind), Patch: &event.Patch}, nil
	default:
		return Record{Kind: KindReset}, nil
	}
}
