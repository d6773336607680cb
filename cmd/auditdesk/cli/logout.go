// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// LogoutCommand returns the "logout" command.
func LogoutCommand() *Command {
	var params struct{ Connection }

	return &Command{
		Name:    "logout",
		Summary: "End the saved session",
		Description: `End the session on the service and remove the session file.

The local session ends even when the service cannot be reached; the
command then reports the failure. Jobs keep running on the service.`,
		Usage:  "auditdesk logout [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return Validation("unexpected argument: %s", args[0])
			}
			environment, err := params.Open("logout")
			if err != nil {
				return err
			}
			defer environment.Close()

			if environment.Restored == nil {
				fmt.Fprintln(os.Stderr, "Not logged in.")
				return nil
			}

			ctx, cancel := context.WithTimeout(ctx, environment.Config.Server.RequestTimeout)
			defer cancel()
			requestErr := environment.Guard.Logout(ctx)
			if err := environment.ForgetSession(); err != nil {
				return err
			}
			if requestErr != nil {
				return Transient("logged out locally, but the service did not confirm: %w", requestErr)
			}
			fmt.Fprintf(os.Stderr, "Logged out %s\n", environment.Restored.Username)
			return nil
		},
	}
}
