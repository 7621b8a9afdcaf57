// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// env.go - Wiring shared by every command that touches the session.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jeranaias/tabsession/internal/authapi"
	"github.com/jeranaias/tabsession/internal/config"
	"github.com/jeranaias/tabsession/internal/credentials"
	"github.com/jeranaias/tabsession/internal/fingerprint"
	"github.com/jeranaias/tabsession/internal/logging"
	"github.com/jeranaias/tabsession/internal/session"
	"github.com/jeranaias/tabsession/internal/storage"
	"github.com/jeranaias/tabsession/internal/telemetry"
)

// =============================================================================
// STREAMS
// =============================================================================

// Streams are the process's standard files, replaceable in tests.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams returns the process's real stdin, stdout and stderr.
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// =============================================================================
// CONFIG
// =============================================================================

// LoadConfig reads .env, the config file and the global flag overrides.
func LoadConfig(args Args) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	applyFlagOverrides(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyFlagOverrides lets global flags win over the file and environment.
func applyFlagOverrides(cfg *config.Config, args Args) {
	if args.Storage != "" {
		cfg.Storage.Backend = args.Storage
	}
	if args.Origin != "" {
		cfg.Storage.Origin = args.Origin
	}
	if args.APIURL != "" {
		cfg.API.BaseURL = args.APIURL
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
	cfg.SetDefaults()
}

// =============================================================================
// ENV
// =============================================================================

// Env is one tab: the session manager and everything it is built from.
type Env struct {
	Config   *config.Config
	Log      zerolog.Logger
	Backend  storage.Backend
	Store    *credentials.Store
	API      *authapi.Client
	Metrics  *telemetry.Metrics
	Registry *prometheus.Registry
	Manager  *session.Manager
	Login    *loginPrompt
	Streams  Streams

	closeLog func() error
}

// envOptions tune how an Env is built.
type envOptions struct {
	// live keeps the manager's own inactivity and validity timers running.
	live bool

	// Replace the manager's UI collaborators.
	navigator session.Navigator
	warnings  session.WarningListener
	alerter   session.Alerter

	// Test seams.
	openBackend func() storage.Backend
	prefs       credentials.PreferenceStore
	httpClient  *http.Client
}

// newEnv wires the session stack for cfg and initializes the manager.
func newEnv(ctx context.Context, cfg *config.Config, args Args, streams Streams, opts envOptions) (*Env, error) {
	logOut, closeLog, err := openLogOutput(cfg, streams)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, logOut).
		With().Str("origin", cfg.Storage.Origin).Logger()

	env := &Env{
		Config:   cfg,
		Log:      log,
		Streams:  streams,
		closeLog: closeLog,
	}

	var backend storage.Backend
	if opts.openBackend != nil {
		backend = opts.openBackend()
	} else if backend, err = openBackend(ctx, cfg, log); err != nil {
		env.Close()
		return nil, err
	}
	env.Backend = backend

	prefs := opts.prefs
	if prefs == nil {
		path, err := cfg.PreferencePath()
		if err != nil {
			env.Close()
			return nil, err
		}
		prefs = credentials.NewFilePreferences(path, nil)
	}

	gen := fingerprint.NewGenerator(fingerprint.SystemSource{})
	env.Store = credentials.NewStore(backend, prefs, gen, log)

	env.API = authapi.NewClient(cfg.API.BaseURL, log).
		WithTimeout(cfg.API.Timeout.Std()).
		WithUserAgent("tabsession/" + Version)
	if opts.httpClient != nil {
		env.API = env.API.WithHTTPClient(opts.httpClient)
	}

	env.Registry = prometheus.NewRegistry()
	env.Metrics, err = telemetry.NewMetrics(env.Registry)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Login = &loginPrompt{}
	navigator := opts.navigator
	if navigator == nil {
		navigator = env.Login
	}
	alerter := opts.alerter
	if alerter == nil {
		alerter = newStderrAlerter(streams.Err, args.JSON || args.Quiet)
	}

	scfg := session.ConfigFrom(cfg.Session)
	scfg.ExternalTick = !opts.live

	env.Manager, err = session.NewManager(scfg, session.Deps{
		Store:       env.Store,
		API:         env.API,
		Fingerprint: fingerprint.NewChecker(gen, env.Store, log),
		Navigator:   navigator,
		Warnings:    opts.warnings,
		Alerter:     alerter,
		Metrics:     env.Metrics,
		Log:         log,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	if err := env.Manager.Init(ctx); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// openBackend opens the configured storage for the origin.
func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.Backend, error) {
	opts := storage.Options{
		Kind:         cfg.Storage.Backend,
		RedisURL:     cfg.Storage.RedisURL,
		Namespace:    "tabsession:" + cfg.Storage.Origin + ":",
		PollInterval: cfg.Storage.PollInterval.Std(),
	}
	if cfg.Storage.Backend == storage.KindSQLite {
		dir, err := cfg.OriginDir()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		opts.Dir = dir
	}
	return storage.Open(ctx, opts, log), nil
}

// openLogOutput returns the log destination: the configured file or stderr.
func openLogOutput(cfg *config.Config, streams Streams) (io.Writer, func() error, error) {
	if cfg.Log.File == "" {
		return streams.Err, func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, f.Close, nil
}

// Close disposes the manager and releases storage. Safe on a partial Env.
func (e *Env) Close() {
	if e.Manager != nil {
		e.Manager.Dispose()
	}
	if e.Registry != nil {
		logMetrics(e.Log, e.Registry)
	}
	if e.Backend != nil {
		if err := e.Backend.Close(); err != nil {
			e.Log.Debug().Err(err).Msg("storage close")
		}
	}
	if e.closeLog != nil {
		_ = e.closeLog()
	}
}

// logMetrics writes every non-zero counter at debug level.
func logMetrics(log zerolog.Logger, g prometheus.Gatherer) {
	if log.GetLevel() > zerolog.DebugLevel {
		return
	}
	families, err := g.Gather()
	if err != nil {
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			c := m.GetCounter()
			if c == nil || c.GetValue() == 0 {
				continue
			}
			ev := log.Debug().Str("metric", mf.GetName()).Float64("value", c.GetValue())
			for _, lp := range m.GetLabel() {
				ev = ev.Str(lp.GetName(), lp.GetValue())
			}
			ev.Msg("session metric")
		}
	}
}

// =============================================================================
// COLLABORATORS FOR ONE-SHOT COMMANDS
// =============================================================================

// loginPrompt remembers why the session ended so the command can print
// where to log in again.
type loginPrompt struct {
	mu     sync.Mutex
	reason session.Reason
}

// Redirect implements session.Navigator.
func (l *loginPrompt) Redirect(reason session.Reason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reason == "" {
		l.reason = reason
	}
}

// Reason returns the first redirect reason, or "".
func (l *loginPrompt) Reason() session.Reason {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// stderrAlerter prints manager alerts as warnings.
type stderrAlerter struct {
	w      io.Writer
	silent bool
}

func newStderrAlerter(w io.Writer, silent bool) *stderrAlerter {
	return &stderrAlerter{w: w, silent: silent}
}

// Error implements session.Alerter.
func (a *stderrAlerter) Error(msg string) {
	if a.silent || a.w == nil {
		return
	}
	fmt.Fprintln(a.w, WarningStyle.Render("! "+msg))
}
