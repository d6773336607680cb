// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// JobList is the decoded response of GET /user/jobs.
type JobList struct {
	// Jobs are the well-formed entries, in server order.
	Jobs []job.Job

	// Skipped describes entries dropped as malformed. Each wraps
	// job.ErrMalformed.
	Skipped []error
}

// Jobs fetches the full job list for the logged-in user.
func (c *Client) Jobs(ctx context.Context) (JobList, error) {
	body, err := c.do(ctx, http.MethodGet, "/user/jobs", "", nil)
	if err != nil {
		return JobList{}, err
	}
	jobs, skipped, err := job.DecodeList(body)
	if err != nil {
		return JobList{}, fmt.Errorf("auditapi: %w", err)
	}
	for _, reason := range skipped {
		c.logger.Warn("dropping malformed job from snapshot", "error", reason)
	}
	return JobList{Jobs: jobs, Skipped: skipped}, nil
}

// Upload is one document attached to a new job.
type Upload struct {
	// Name is the file name sent to the service.
	Name string

	// Open returns the document content from the start. It may be
	// called more than once (validation reads the file before upload).
	Open func() (io.ReadCloser, error)
}

// FileUpload returns an Upload reading the file at path.
func FileUpload(path string) Upload {
	return Upload{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// NewJob is the form of POST /user/add_job.
type NewJob struct {
	CaseNumber  string
	Feature     job.Feature
	Branch      string
	Description string
	CreatedAt   time.Time
	Files       []Upload
}

// Submitted is what the service reported about an accepted job. The
// service does not promise a body; ID is empty when it sent none.
type Submitted struct {
	ID string
}

// AddJob submits a job as a multipart form. The request is not
// idempotent: a transport failure leaves it unknown whether the job
// was created.
func (c *Client) AddJob(ctx context.Context, request NewJob) (Submitted, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)

	fields := []struct{ name, value string }{
		{"case_number", request.CaseNumber},
		{"feature", string(request.Feature)},
		{"branch", request.Branch},
		{"description", request.Description},
	}
	if !request.CreatedAt.IsZero() {
		fields = append(fields, struct{ name, value string }{"created_at", request.CreatedAt.UTC().Format(time.RFC3339Nano)})
	}
	for _, field := range fields {
		if err := writer.WriteField(field.name, field.value); err != nil {
			return Submitted{}, fmt.Errorf("auditapi: writing form field %s: %w", field.name, err)
		}
	}
	for _, upload := range request.Files {
		if err := writeUpload(writer, upload); err != nil {
			return Submitted{}, err
		}
	}
	if err := writer.Close(); err != nil {
		return Submitted{}, fmt.Errorf("auditapi: closing multipart form: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/user/add_job", writer.FormDataContentType(), &buffer)
	if err != nil {
		return Submitted{}, err
	}

	var submitted Submitted
	if patch, decodeErr := job.DecodePatch(body); decodeErr == nil {
		submitted.ID = patch.ID
	}
	return submitted, nil
}

func writeUpload(writer *multipart.Writer, upload Upload) error {
	content, err := upload.Open()
	if err != nil {
		return fmt.Errorf("auditapi: opening %s: %w", upload.Name, err)
	}
	defer content.Close()

	part, err := writer.CreateFormFile("files", upload.Name)
	if err != nil {
		return fmt.Errorf("auditapi: adding %s to form: %w", upload.Name, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("auditapi: reading %s: %w", upload.Name, err)
	}
	return nil
}

// StopJob asks the service to stop a job. A job the service can no
// longer stop is answered with a 400 *APIError carrying its reason.
func (c *Client) StopJob(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/user/jobs/"+url.PathEscape(id)+"/stop", "", nil)
	return err
}

// DeleteJob asks the service to delete a finished job.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/user/jobs/"+url.PathEscape(id)+"/delete", "", nil)
	return err
}
