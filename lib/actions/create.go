// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package actions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// CreateRequest describes a new audit job.
type CreateRequest struct {
	CaseNumber  string
	Feature     job.Feature
	Branch      string
	Description string
	Files       []auditapi.Upload
}

// Create validates and submits a new job. All preconditions are
// checked before anything else happens; a failure returns a
// *ValidationError with no request sent and no state changed.
//
// On success the returned ID names the job in the store: the
// service's ID when its response carries one, otherwise a
// provisional ID that is replaced when the stream announces the job.
// If the request fails the provisional job is removed. Create is not
// retried: a lost response leaves it unknown whether the job was
// created.
func (c *Coordinator) Create(ctx context.Context, request CreateRequest) (string, error) {
	request.CaseNumber = strings.TrimSpace(request.CaseNumber)
	request.Branch = strings.TrimSpace(request.Branch)
	names, err := validateCreate(request)
	if err != nil {
		return "", err
	}

	c.mutex.Lock()
	epoch := c.epoch
	generation := c.sessionGeneration()
	c.mutex.Unlock()

	now := c.clock.Now()
	localID, err := c.store.InsertProvisional(job.Job{
		CaseNumber:  request.CaseNumber,
		Feature:     request.Feature,
		Branch:      request.Branch,
		Description: request.Description,
		CreatedAt:   now,
		Files:       job.FileSet{Names: names, Count: len(names)},
	})
	if err != nil {
		return "", fmt.Errorf("actions: inserting provisional job: %w", err)
	}

	submitted, requestErr := c.api.AddJob(ctx, auditapi.NewJob{
		CaseNumber:  request.CaseNumber,
		Feature:     request.Feature,
		Branch:      request.Branch,
		Description: request.Description,
		CreatedAt:   now,
		Files:       request.Files,
	})

	if !c.current(epoch, generation) {
		c.logger.Info("discarding create result from an ended session", "case_number", request.CaseNumber)
		return "", ErrDiscarded
	}
	if requestErr != nil {
		c.store.DiscardProvisional(localID)
		c.logger.Warn("create failed", "case_number", request.CaseNumber, "error", requestErr)
		c.expireOn(KindCreate, requestErr)
		return "", classify(KindCreate, "", requestErr)
	}
	id := localID
	if submitted.ID != "" {
		c.store.ConfirmProvisional(localID, submitted.ID)
		id = submitted.ID
	}
	c.logger.Info("job submitted", "case_number", request.CaseNumber, "local_id", localID, "job_id", submitted.ID)
	return id, nil
}

// validateCreate checks the submission preconditions in the order
// the dashboard reports them and returns the file names.
func validateCreate(request CreateRequest) ([]string, error) {
	if request.CaseNumber == "" {
		return nil, &ValidationError{Field: "case_number", Message: "case number is required"}
	}
	if !request.Feature.Valid() {
		return nil, &ValidationError{Field: "feature", Message: fmt.Sprintf("feature must be %q or %q", job.FeatureGeneral, job.FeatureCrossCheck)}
	}
	if len(request.Files) == 0 {
		return nil, &ValidationError{Field: "files", Message: "at least one file is required"}
	}
	if required := request.Feature.RequiredFiles(); required > 0 && len(request.Files) != required {
		return nil, &ValidationError{Field: "files", Message: fmt.Sprintf("%s needs exactly %d files, got %d", request.Feature, required, len(request.Files))}
	}

	names := make([]string, 0, len(request.Files))
	digests := make([][]byte, 0, len(request.Files))
	for _, upload := range request.Files {
		if strings.TrimSpace(upload.Name) == "" || upload.Open == nil {
			return nil, &ValidationError{Field: "files", Message: "file has no name or content"}
		}
		digest, err := digestUpload(upload)
		if err != nil {
			return nil, &ValidationError{Field: "files", Message: err.Error()}
		}
		names = append(names, upload.Name)
		digests = append(digests, digest)
	}

	if request.Feature == job.FeatureCrossCheck && bytes.Equal(digests[0], digests[1]) {
		return nil, &ValidationError{
			Field:   "files",
			Message: fmt.Sprintf("%s and %s have identical content; cross-check needs two different documents", names[0], names[1]),
		}
	}
	return names, nil
}

// digestUpload reads an upload in full and returns its BLAKE3 digest.
// Reading it also proves the file is readable before anything is
// sent.
func digestUpload(upload auditapi.Upload) ([]byte, error) {
	content, err := upload.Open()
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", upload.Name, err)
	}
	defer content.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, content); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", upload.Name, err)
	}
	return hasher.Sum(nil), nil
}
