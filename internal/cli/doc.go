// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the tabsession command line and runs its commands.
//
// Every invocation is one tab. One-shot commands (login, status, refresh,
// extend ...) restore the shared session, act on it and exit; watch stays
// up with the manager's timers running and shows the expiry warning.
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	runner := cli.NewRunner(cli.StdStreams())
//	if err := runner.Run(ctx, cmd, args); err != nil {
//	    cli.DisplayError(os.Stderr, cmd.String(), err, args.JSON)
//	    os.Exit(cli.GetExitCode(err))
//	}
//
// Every command except watch accepts --json and writes the same envelope:
// {"success", "data", "error", "timestamp", "command"}.
package cli
