// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// watch_cmd.go - The live session view.
//
// watch is a long-lived tab: the manager's own timers enforce inactivity and
// re-validate the token, and key presses and mouse motion in the view count
// as activity. Terminal focus reports pause the validity check while the
// window is in the background. With --serve the tab also publishes its
// status and metrics over local HTTP.

package cli

import (
	"context"
	"errors"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/tabsession/internal/config"
	"github.com/jeranaias/tabsession/internal/server"
	"github.com/jeranaias/tabsession/internal/session"
	"github.com/jeranaias/tabsession/internal/ui/watch"
)

func (r *Runner) runWatch(ctx context.Context, cfg *config.Config, args Args, opts envOptions) error {
	if args.JSON {
		return &ValidationError{Field: "--json", Reason: "is not supported by watch", Example: "tabsession status --json"}
	}
	if err := RequiresTTY("watch the session"); err != nil {
		return err
	}

	p := NewArgParser(args.Raw)
	every, err := p.DurationFlag("every", cfg.Session.TickInterval.Std())
	if err != nil {
		return err
	}

	bridge := &watch.Bridge{}
	opts.live = true
	opts.navigator = bridge
	opts.warnings = bridge
	opts.alerter = bridge

	// Log lines would tear the alternate screen; keep them only when a log
	// file is configured.
	streams := r.Streams
	if cfg.Log.File == "" {
		streams.Err = io.Discard
	}

	env, err := newEnv(ctx, cfg, args, streams, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	unsubscribe := env.Manager.Subscribe(bridge.Changed)
	defer unsubscribe()

	if addr := p.Flag("serve"); addr != "" {
		stop, err := startStatusServer(ctx, env, addr)
		if err != nil {
			return NewCommandError("watch", "could not start the status server", err)
		}
		defer stop()
	}

	scfg := session.ConfigFrom(cfg.Session)
	scfg.TickInterval = every
	model := watch.New(env.Manager, scfg, cfg.API.LoginURL)

	restore, err := enableFocusReporting(r.Streams)
	if err != nil {
		return NewCommandError("watch", "could not prepare the terminal", err)
	}
	defer restore()

	prog := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(bridge.FocusReader(r.Streams.In)),
		tea.WithOutput(r.Streams.Out),
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
	)
	bridge.Attach(prog)

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return NewCommandError("watch", "the view stopped unexpectedly", err)
	}
	return nil
}

// enableFocusReporting puts a terminal input into raw mode and asks the
// terminal for focus reports. The input is wrapped before Bubble Tea sees
// it, so the raw mode it would set on a bare *os.File is applied here.
func enableFocusReporting(streams Streams) (restore func(), err error) {
	f, ok := streams.In.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}, nil
	}
	fd := int(f.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	_, _ = io.WriteString(streams.Out, watch.EnableFocusReporting)

	return func() {
		_, _ = io.WriteString(streams.Out, watch.DisableFocusReporting)
		_ = term.Restore(fd, state)
	}, nil
}

// startStatusServer serves the tab's status until the returned stop is
// called.
func startStatusServer(ctx context.Context, env *Env, addr string) (stop func(), err error) {
	server.Version = Version
	srv := server.New(addr, env.Manager.Status, env.Registry, env.Log).
		WithToken(os.Getenv("TABSESSION_STATUS_TOKEN"))
	if err := srv.Listen(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	return func() {
		cancel()
		if err := <-done; err != nil {
			env.Log.Warn().Err(err).Msg("status server stopped with error")
		}
	}, nil
}
