// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/jeranaias/tabsession/internal/config"
)

// Runner executes parsed commands.
type Runner struct {
	Streams Streams

	// Prompter supplies credentials for an interactive login. A terminal
	// prompter is used when nil.
	Prompter Prompter

	loadConfig func(Args) (*config.Config, error)
	opts       envOptions
}

// NewRunner returns a runner writing to streams.
func NewRunner(streams Streams) *Runner {
	return &Runner{Streams: streams, loadConfig: LoadConfig}
}

// Run executes cmd. The returned error has not been displayed yet.
func (r *Runner) Run(ctx context.Context, cmd Command, args Args) error {
	switch cmd {
	case CmdHelp:
		return r.runHelp(args)
	case CmdVersion:
		return r.runVersion(args)
	case CmdConfig:
		return r.runConfig(args)
	case CmdUnknown:
		return &ValidationError{
			Field:   "command",
			Value:   args.Name,
			Reason:  "unknown command",
			Example: "tabsession help",
		}
	}

	cfg, err := r.loadConfig(args)
	if err != nil {
		return err
	}

	opts := r.opts
	if cmd == CmdWatch {
		return r.runWatch(ctx, cfg, args, opts)
	}

	env, err := newEnv(ctx, cfg, args, r.Streams, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	switch cmd {
	case CmdLogin:
		return r.runLogin(ctx, env, args)
	case CmdOAuth:
		return r.runOAuth(ctx, env, args)
	case CmdLogout:
		return r.runLogout(ctx, env, args)
	case CmdStatus:
		return r.runStatus(ctx, env, args)
	case CmdInfo:
		return r.runInfo(ctx, env, args)
	case CmdCheck:
		return r.runCheck(ctx, env, args)
	case CmdRefresh:
		return r.runRefresh(ctx, env, args)
	case CmdExtend:
		return r.runExtend(ctx, env, args)
	case CmdToken:
		return r.runToken(ctx, env, args)
	}
	return fmt.Errorf("command %s is not runnable", cmd)
}

// emit writes data as a JSON envelope, or calls human unless quiet.
func (r *Runner) emit(args Args, command string, data any, human func(w io.Writer)) error {
	if args.JSON {
		return NewJSONResponse(command, data).Write(r.Streams.Out)
	}
	if !args.Quiet && human != nil {
		human(r.Streams.Out)
	}
	return nil
}

func (r *Runner) runVersion(args Args) error {
	data := VersionData{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	return r.emit(args, "version", data, PrintVersion)
}
