// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type whoamiParams struct {
	Connection
	JSONOutput
	Verify bool `json:"verify" flag:"verify" desc:"check the session against the service"`
}

type whoamiOutput struct {
	Username    string    `json:"username"`
	Server      string    `json:"server"`
	SessionFile string    `json:"session_file"`
	SavedAt     time.Time `json:"saved_at"`
	Status      string    `json:"status,omitempty"`
}

// WhoAmICommand returns the "whoami" command.
func WhoAmICommand() *Command {
	var params whoamiParams

	return &Command{
		Name:    "whoami",
		Summary: "Show the saved session",
		Description: `Show the user and service of the saved session.

Without --verify only the session file is read. With --verify the
service is asked whether the session is still valid; an expired session
file is removed.`,
		Usage: "auditdesk whoami [flags]",
		Examples: []Example{
			{Description: "Check that the session still works", Command: "auditdesk whoami --verify"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return Validation("unexpected argument: %s", args[0])
			}
			environment, err := params.Open("whoami")
			if err != nil {
				return err
			}
			defer environment.Close()

			saved := environment.Restored
			if saved == nil {
				fmt.Fprintf(os.Stderr, "Not logged in to %s\n", environment.Config.Server.URL)
				return &ExitError{Code: 1}
			}
			output := whoamiOutput{
				Username:    saved.Username,
				Server:      saved.Server,
				SessionFile: environment.SessionPath,
				SavedAt:     saved.SavedAt,
			}

			var verifyErr error
			if params.Verify {
				ctx, cancel := context.WithTimeout(ctx, environment.Config.Server.RequestTimeout)
				defer cancel()
				status, err := environment.Authenticate(ctx)
				if err != nil {
					output.Status = "invalid"
					verifyErr = err
				} else {
					output.Status = "valid (verified as " + status.Username + ")"
				}
			}

			if done, err := params.EmitJSON(output); done {
				if err != nil {
					return err
				}
				return verifyErr
			}
			fmt.Fprintf(os.Stdout, "User:         %s\n", output.Username)
			fmt.Fprintf(os.Stdout, "Server:       %s\n", output.Server)
			fmt.Fprintf(os.Stdout, "Session file: %s\n", output.SessionFile)
			fmt.Fprintf(os.Stdout, "Logged in:    %s\n", output.SavedAt.Local().Format(time.DateTime))
			if output.Status != "" {
				fmt.Fprintf(os.Stdout, "Status:       %s\n", output.Status)
			}
			return verifyErr
		},
	}
}
