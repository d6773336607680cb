// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is wrapped by every decode failure that makes a payload
// unusable: a missing ID or an unknown status. Callers drop such
// payloads and keep going.
var ErrMalformed = errors.New("malformed job payload")

// wireJob is the decoding target for job payloads from the snapshot
// endpoint and the event stream. The service is not consistent about
// field types (numeric or string IDs, accuracy stored as text, files
// as paths, objects or a count), so the loosely-typed fields are
// decoded by hand.
type wireJob struct {
	ID          json.RawMessage `json:"id"`
	CaseNumber  *string         `json:"case_number"`
	Branch      *string         `json:"branch"`
	Feature     *string         `json:"feature"`
	Description *string         `json:"description"`
	Status      *string         `json:"status"`
	Files       json.RawMessage `json:"files"`
	Accuracy    json.RawMessage `json:"accuracy"`
	Issues      json.RawMessage `json:"issues"`
	Error       *string         `json:"error"`
	CreatedAt   *string         `json:"created_at"`
	CompletedAt *string         `json:"completed_at"`
}

// DecodePatch decodes a job payload (full or partial) into a Patch.
// Fields that are absent or null are left nil. Returns an error
// wrapping ErrMalformed when the ID is missing or the status is not
// a known value.
func DecodePatch(data []byte) (Patch, error) {
	var wire wireJob
	if err := json.Unmarshal(data, &wire); err != nil {
		return Patch{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	id, err := decodeID(wire.ID)
	if err != nil {
		return Patch{}, err
	}

	patch := Patch{ID: id}
	patch.CaseNumber = wire.CaseNumber
	patch.Branch = wire.Branch
	patch.Description = wire.Description
	if wire.Feature != nil {
		patch.Feature = ptr(Feature(*wire.Feature))
	}
	if wire.Status != nil {
		status := Status(*wire.Status)
		if !status.Valid() {
			return Patch{}, fmt.Errorf("%w: job %s has unknown status %q", ErrMalformed, id, *wire.Status)
		}
		patch.Status = &status
	}
	if wire.Error != nil && *wire.Error != "" {
		patch.Error = wire.Error
	}
	if wire.CreatedAt != nil {
		if parsed, ok := ParseTimestamp(*wire.CreatedAt); ok {
			patch.CreatedAt = &parsed
		}
	}
	if wire.CompletedAt != nil {
		if parsed, ok := ParseTimestamp(*wire.CompletedAt); ok {
			patch.CompletedAt = &parsed
		}
	}
	if files, ok := decodeFiles(wire.Files); ok {
		patch.Files = &files
	}
	if accuracy, ok := decodeAccuracy(wire.Accuracy); ok {
		patch.Accuracy = &accuracy
	}
	if issues, ok := decodeIssues(wire.Issues); ok {
		patch.Issues = &issues
	}
	return patch, nil
}

// DecodeJob decodes a full job payload. The result always has an ID;
// a payload without a status is treated as queued, which is what the
// service assigns on submission.
func DecodeJob(data []byte) (Job, error) {
	patch, err := DecodePatch(data)
	if err != nil {
		return Job{}, err
	}
	if patch.Status == nil {
		patch.Status = ptr(StatusQueued)
	}
	decoded := patch.Job()
	normalizeStatusFields(&decoded)
	return decoded, nil
}

// DecodeList decodes a JSON array of jobs. Malformed entries are
// skipped and reported in the returned error slice; well-formed
// entries are returned in order.
func DecodeList(data []byte) ([]Job, []error, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decoding job list: %w", err)
	}
	jobs := make([]Job, 0, len(raw))
	var skipped []error
	for index, entry := range raw {
		decoded, err := DecodeJob(entry)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("entry %d: %w", index, err))
			continue
		}
		jobs = append(jobs, decoded)
	}
	return jobs, skipped, nil
}

// normalizeStatusFields clears result fields that do not belong to
// the job's status. The snapshot endpoint sends "issues": [] and
// "accuracy": null for jobs without a result.
func normalizeStatusFields(j *Job) {
	if j.Status != StatusCompleted {
		j.Accuracy = nil
		j.Issues = nil
		j.CompletedAt = nil
	}
	if j.Status != StatusFailed {
		j.Error = ""
	}
}

func decodeID(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return "", fmt.Errorf("%w: id: %v", ErrMalformed, err)
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return "", fmt.Errorf("%w: missing id", ErrMalformed)
		}
		return id, nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return "", fmt.Errorf("%w: id must be a string or number", ErrMalformed)
	}
	return number.String(), nil
}

// decodeFiles accepts a list of paths, a list of upload objects, or
// a bare count.
func decodeFiles(raw json.RawMessage) (FileSet, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return FileSet{}, false
	}
	if trimmed[0] != '[' {
		var count int
		if err := json.Unmarshal(trimmed, &count); err != nil || count < 0 {
			return FileSet{}, false
		}
		return FileSet{Count: count}, true
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return FileSet{}, false
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		var name string
		if err := json.Unmarshal(entry, &name); err == nil {
			names = append(names, displayFileName(name))
			continue
		}
		var upload struct {
			PermanentFileName string `json:"permanent_file_name"`
			FileName          string `json:"filename"`
			Name              string `json:"name"`
		}
		if err := json.Unmarshal(entry, &upload); err != nil {
			continue
		}
		switch {
		case upload.PermanentFileName != "":
			names = append(names, displayFileName(upload.PermanentFileName))
		case upload.FileName != "":
			names = append(names, upload.FileName)
		case upload.Name != "":
			names = append(names, upload.Name)
		}
	}
	return FileSet{Names: names, Count: len(entries)}, true
}

// displayFileName strips the storage directory and the 32-character
// hex prefix the service adds to stored uploads
// ("userdata/uploads/<hex>_report.pdf" -> "report.pdf").
func displayFileName(stored string) string {
	name := stored
	if index := strings.LastIndexAny(name, `/\`); index >= 0 {
		name = name[index+1:]
	}
	if len(name) > 33 && name[32] == '_' && isHex(name[:32]) {
		name = name[33:]
	}
	return name
}

func isHex(s string) bool {
	for _, character := range s {
		if !strings.ContainsRune("0123456789abcdef", character) {
			return false
		}
	}
	return true
}

// decodeAccuracy accepts a number or a numeric string, optionally
// with a trailing percent sign. The service stores accuracy as text.
func decodeAccuracy(raw json.RawMessage) (float64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%"))
		if text == "" {
			return 0, false
		}
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, false
		}
		return value, true
	}
	var value float64
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return 0, false
	}
	return value, true
}

// decodeIssues accepts a list of strings or a list of finding
// objects. Objects contribute their message text when they have one
// and their compact JSON otherwise, so no finding is silently lost.
func decodeIssues(raw json.RawMessage) ([]string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, false
	}
	issues := make([]string, 0, len(entries))
	for _, entry := range entries {
		var text string
		if err := json.Unmarshal(entry, &text); err == nil {
			issues = append(issues, text)
			continue
		}
		var finding map[string]any
		if err := json.Unmarshal(entry, &finding); err == nil {
			if message := findingMessage(finding); message != "" {
				issues = append(issues, message)
				continue
			}
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, entry); err == nil {
			issues = append(issues, compact.String())
		}
	}
	return issues, true
}

func findingMessage(finding map[string]any) string {
	for _, key := range []string{"issue", "message", "description", "text"} {
		if value, ok := finding[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// timestampLayouts covers what the service emits: RFC 3339 from
// isoformat() with an offset, naive isoformat() from datetime.now(),
// and the HTTP date format Flask's JSON provider uses for datetimes.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	http.TimeFormat,
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp parses a service timestamp. Naive timestamps are
// interpreted as UTC.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
