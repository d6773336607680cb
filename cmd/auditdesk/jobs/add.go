// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/cmd/auditdesk/cli"
	"github.com/bureau-foundation/auditdesk/lib/actions"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

type addParams struct {
	cli.Connection
	cli.JSONOutput
	Case            string `json:"case_number"      flag:"case,c"           desc:"case number (required)"`
	Feature         string `json:"feature"          flag:"feature,f"        desc:"general, or cross-check for exactly two documents" default:"general"`
	Branch          string `json:"branch"           flag:"branch,b"         desc:"branch the case belongs to" default:"Phoenix"`
	Description     string `json:"description"      flag:"description"      desc:"job description (Markdown)"`
	DescriptionFile string `json:"description_file" flag:"description-file" desc:"read the description from a file"`
}

type addOutput struct {
	ID          string `json:"id"`
	Provisional bool   `json:"provisional"`
	CaseNumber  string `json:"case_number"`
}

func addCommand() *cli.Command {
	var params addParams

	return &cli.Command{
		Name:    "add",
		Summary: "Submit a new audit job",
		Description: fmt.Sprintf(`Upload documents for a new audit job.

The case number is required and at least one document must be given.
A cross-check compares exactly two documents, which must differ. All
of this is checked before anything is uploaded.

Known branches: %s. Any other branch name is passed through.`, strings.Join(job.KnownBranches, ", ")),
		Usage: "auditdesk jobs add --case <number> [flags] <file>...",
		Examples: []cli.Example{
			{
				Description: "Audit one scanned contract",
				Command:     "auditdesk jobs add --case C-2031 --branch Peoria contract.pdf",
			},
			{
				Description: "Cross-check a deed against its copy",
				Command:     "auditdesk jobs add --case C-2032 --feature cross-check deed.pdf deed-copy.pdf",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			request, err := buildCreateRequest(params, args)
			if err != nil {
				return err
			}

			environment, err := params.Open("jobs/add")
			if err != nil {
				return err
			}
			defer environment.Close()
			if _, err := environment.Authenticate(ctx); err != nil {
				return err
			}
			synchronizer, err := environment.NewSynchronizer(false, nil)
			if err != nil {
				return err
			}
			defer synchronizer.Close()

			id, err := synchronizer.Coordinator.Create(ctx, request)
			if err != nil {
				return environment.Fail(err)
			}
			output := addOutput{ID: id, Provisional: jobstore.IsProvisional(id), CaseNumber: request.CaseNumber}
			if done, err := params.EmitJSON(output); done {
				return err
			}
			if output.Provisional {
				fmt.Fprintf(os.Stdout, "Submitted %s; the service has not announced its job ID yet.\n", request.CaseNumber)
				return nil
			}
			fmt.Fprintf(os.Stdout, "Submitted %s as job %s\n", request.CaseNumber, id)
			return nil
		},
	}
}

// buildCreateRequest checks the arguments that are not the
// coordinator's business and reads the description file.
func buildCreateRequest(params addParams, paths []string) (actions.CreateRequest, error) {
	description := params.Description
	if params.DescriptionFile != "" {
		if description != "" {
			return actions.CreateRequest{}, cli.Validation("--description and --description-file are mutually exclusive")
		}
		data, err := os.ReadFile(params.DescriptionFile)
		if err != nil {
			return actions.CreateRequest{}, cli.Validation("reading description: %w", err)
		}
		description = string(data)
	}

	branch := strings.TrimSpace(params.Branch)
	if index := slices.IndexFunc(job.KnownBranches, func(known string) bool { return strings.EqualFold(known, branch) }); index >= 0 {
		branch = job.KnownBranches[index]
	}

	request := actions.CreateRequest{
		CaseNumber:  params.Case,
		Feature:     job.Feature(strings.ToLower(params.Feature)),
		Branch:      branch,
		Description: description,
	}
	for _, path := range paths {
		request.Files = append(request.Files, auditapi.FileUpload(path))
	}
	return request, nil
}
