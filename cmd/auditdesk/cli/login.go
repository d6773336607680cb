// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/secret"
)

type loginParams struct {
	Connection
	PasswordFile string `json:"-" flag:"password-file" desc:"file holding the password, or - for the first line of stdin (default: prompt)"`
}

// LoginCommand returns the "login" command.
func LoginCommand() *Command {
	var params loginParams

	return &Command{
		Name:    "login",
		Summary: "Log in to the audit service",
		Description: `Log in to the audit service and save the session locally.

The session cookie (never the password) is written to the session file,
$AUDITDESK_SESSION_FILE or $XDG_CONFIG_HOME/auditdesk/session.json, with
mode 0600. Later commands reuse it until "auditdesk logout" or until the
service expires it.

The password is prompted for without echo, or read from --password-file.`,
		Usage: "auditdesk login <username> [flags]",
		Examples: []Example{
			{
				Description: "Log in interactively",
				Command:     "auditdesk login auditor",
			},
			{
				Description: "Log in to a staging service with the password on stdin",
				Command:     "pass show audit | auditdesk login auditor --server https://audit.staging.example --password-file -",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return Validation("exactly one username is required").WithHint("Usage: auditdesk login <username> [flags]")
			}
			username := args[0]

			password, err := readPassword(params.PasswordFile)
			if err != nil {
				return err
			}
			defer password.Close()

			environment, err := params.Open("login")
			if err != nil {
				return err
			}
			defer environment.Close()
			if !password.Locked() {
				environment.Logger.Debug("password memory could not be locked against swap")
			}

			ctx, cancel := context.WithTimeout(ctx, environment.Config.Server.RequestTimeout)
			defer cancel()
			if err := environment.Guard.Login(ctx, auditapi.Credentials{Username: username, Password: password.String()}); err != nil {
				return Classify(err)
			}
			status := environment.Guard.Status()
			if err := environment.SaveSession(status.Username); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Logged in to %s as %s\n", environment.Config.Server.URL, status.Username)
			fmt.Fprintf(os.Stderr, "Session saved to %s\n", environment.SessionPath)
			return nil
		},
	}
}

func readPassword(passwordFile string) (*secret.Password, error) {
	if passwordFile != "" {
		password, err := secret.ReadFile(passwordFile, os.Stdin)
		if err != nil {
			return nil, Validation("reading password: %w", err)
		}
		return password, nil
	}
	password, err := secret.Prompt(os.Stdin, os.Stderr, "Password: ")
	if errors.Is(err, secret.ErrNoTerminal) {
		return nil, Validation("no terminal to prompt for a password").WithHint("Pass --password-file, or --password-file - to read stdin.")
	}
	if err != nil {
		return nil, Validation("%w", err)
	}
	return password, nil
}
