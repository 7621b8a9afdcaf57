// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration inspection and editing.
//
// Command: config [subcommand]
//
// Subcommands:
//   show (default)      Effective configuration, secrets redacted
//   get <key>           One value, e.g. session.warning_lead
//   set <key> <value>   Write a value to the config file
//   path                Config file location
//   keys                Every settable key

package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/jeranaias/tabsession/internal/config"
)

func (r *Runner) runConfig(args Args) error {
	p := NewArgParser(args.Raw)

	switch p.Subcommand() {
	case "", "show":
		cfg, err := r.loadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			safe := *cfg
			if safe.Storage.RedisURL != "" {
				safe.Storage.RedisURL = "[REDACTED]"
			}
			return NewJSONResponse("config", safe).Write(r.Streams.Out)
		}
		fmt.Fprint(r.Streams.Out, cfg.String())
		return nil

	case "get":
		key := p.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "tabsession config get session.warning_lead")
		}
		cfg, err := r.loadConfig(args)
		if err != nil {
			return err
		}
		val, err := cfg.Get(key)
		if err != nil {
			return &ValidationError{Field: "key", Value: key, Reason: err.Error(), Example: "tabsession config keys"}
		}
		return r.emit(args, "config", map[string]any{"key": key, "value": val}, func(w io.Writer) {
			fmt.Fprintln(w, val)
		})

	case "set":
		key, value := p.Positional(1), p.Positional(2)
		if key == "" || p.PositionalCount() < 3 {
			return ErrMissingArgument("key and value", "tabsession config set session.warning_lead 10m")
		}
		path, err := r.configPath(args)
		if err != nil {
			return err
		}
		if err := setConfigValue(path, key, value); err != nil {
			return err
		}
		return r.emit(args, "config", ActionData{Action: "set", Message: key + " = " + value}, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s = %s\n", SuccessStyle.Render("✓"), key, value)
			fmt.Fprintln(w, DimStyle.Render("Saved to "+path))
		})

	case "path":
		path, err := r.configPath(args)
		if err != nil {
			return err
		}
		return r.emit(args, "config", map[string]string{"path": path}, func(w io.Writer) {
			fmt.Fprintln(w, path)
		})

	case "keys":
		keys := config.GetAllKeys()
		return r.emit(args, "config", keys, func(w io.Writer) {
			fmt.Fprintln(w, strings.Join(keys, "\n"))
		})

	default:
		return &ValidationError{
			Field:   "config subcommand",
			Value:   p.Subcommand(),
			Reason:  "must be one of show, get, set, path, keys",
			Example: "tabsession config show",
		}
	}
}

func (r *Runner) configPath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

// setConfigValue updates one key in the file at path. Environment overrides
// are not applied, so they never leak into the saved file.
func setConfigValue(path, key, value string) error {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: key, Value: value, Reason: err.Error()}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return config.SaveTOML(cfg, path)
}
