// tabsession - Session lifecycle manager shared by every terminal on an origin.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/tabsession/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRunner(cli.StdStreams()).Run(ctx, cmd, args); err != nil {
		w := os.Stderr
		if args.JSON {
			w = os.Stdout
		}
		cli.DisplayError(w, cmd.String(), err, args.JSON)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
