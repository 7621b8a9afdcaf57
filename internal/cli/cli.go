// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing for tabsession.

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdWatch Command = iota
	CmdLogin
	CmdOAuth
	CmdLogout
	CmdStatus
	CmdInfo
	CmdCheck
	CmdRefresh
	CmdExtend
	CmdToken
	CmdConfig
	CmdVersion
	CmdHelp
	CmdUnknown
)

var commandNames = map[Command]string{
	CmdWatch:   "watch",
	CmdLogin:   "login",
	CmdOAuth:   "oauth",
	CmdLogout:  "logout",
	CmdStatus:  "status",
	CmdInfo:    "info",
	CmdCheck:   "check",
	CmdRefresh: "refresh",
	CmdExtend:  "extend",
	CmdToken:   "token",
	CmdConfig:  "config",
	CmdVersion: "version",
	CmdHelp:    "help",
}

// String returns the command name used on the command line.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	JSON       bool   // Output in JSON format
	Quiet      bool   // Only print errors
	Verbose    bool   // Debug logging to stderr
	ConfigPath string // Explicit config file
	Storage    string // Overrides storage.backend
	Origin     string // Overrides storage.origin
	APIURL     string // Overrides api.base_url

	// Name is the word the user typed for the command.
	Name string

	// Raw holds the arguments after the command word.
	Raw []string
}

const usageText = `tabsession - session lifecycle manager for the command line

Keeps one login shared by every terminal ("tab") on this machine, times it
out after inactivity, and refreshes or ends it against the auth API.

Usage:
  tabsession                        Watch the session (default)
  tabsession login [email]          Log in with email and password
    --remember                      Keep the session for 24h of inactivity
    --no-remember                   Use the 2h timeout even if --remember was used last time
    --password-stdin                Read the password from stdin
  tabsession oauth <callback-url>   Finish an OAuth login from the redirect URL
    --remember, --no-remember       As for login
  tabsession logout                 Log out everywhere on this origin
  tabsession status, s              Show the session state
  tabsession info                   Show the server's view of the session
  tabsession check                  Validate the session against the server
  tabsession refresh                Exchange the refresh token for a new access token
  tabsession extend                 Ask the server to extend the session
  tabsession token                  Print the access token for scripts
  tabsession watch                  Live view with the expiry warning
    --every DURATION                Redraw interval (default: tick interval)
    --serve ADDR                    Publish /status and /metrics on ADDR
  tabsession config [show|get|set|path|keys]
                                    Configuration
  tabsession version                Version information
  tabsession help [session|tabs]    This help, or a guide to sessions or tabs

Global Flags:
  --json            Output in JSON format
  -q, --quiet       Only print errors
  -v, --verbose     Debug logging to stderr
  --config PATH     Config file (default: ~/.tabsession/config.toml)
  --storage KIND    Storage backend: sqlite, redis, memory
  --origin ORIGIN   Application origin whose session is shared
  --api URL         Auth API base URL

Environment:
  TABSESSION_API_URL, TABSESSION_LOGIN_URL, TABSESSION_STORAGE,
  TABSESSION_STORAGE_DIR, TABSESSION_ORIGIN, TABSESSION_REDIS_URL,
  TABSESSION_INACTIVITY_TIMEOUT, TABSESSION_REMEMBER_ME_TIMEOUT,
  TABSESSION_WARNING_LEAD, TABSESSION_LOG_LEVEL, TABSESSION_LOG_FORMAT,
  TABSESSION_STATUS_TOKEN (bearer token required by watch --serve)
  A .env file in the working directory is loaded first.

Examples:
  tabsession login alice@example.com --remember
  echo "$PW" | tabsession login alice@example.com --password-stdin
  tabsession oauth "https://app.example.com/auth/callback?token=...&refresh_token=..."
  tabsession status --json
  tabsession config set session.warning_lead 10m
  tabsession --storage redis --origin https://app.example.com watch

Version: %s
`

// PrintUsage writes the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "tabsession version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
}

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		args.Name = CmdWatch.String()
		return CmdWatch, args
	}

	name := strings.ToLower(remaining[0])
	args.Name = name
	args.Raw = remaining[1:]

	switch name {
	case "watch", "w":
		return CmdWatch, args
	case "login":
		return CmdLogin, args
	case "oauth", "callback":
		return CmdOAuth, args
	case "logout":
		return CmdLogout, args
	case "status", "s":
		return CmdStatus, args
	case "info":
		return CmdInfo, args
	case "check", "validate":
		return CmdCheck, args
	case "refresh":
		return CmdRefresh, args
	case "extend":
		return CmdExtend, args
	case "token":
		return CmdToken, args
	case "config":
		return CmdConfig, args
	case "version", "--version", "-V":
		return CmdVersion, args
	case "help", "--help", "-h":
		return CmdHelp, args
	default:
		return CmdUnknown, args
	}
}

// parseGlobalFlags strips the global flags wherever they appear.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var (
		remaining []string
		args      Args
	)

	valueFlags := map[string]*string{
		"--config":  &args.ConfigPath,
		"--storage": &args.Storage,
		"--origin":  &args.Origin,
		"--api":     &args.APIURL,
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch arg {
		case "--json":
			args.JSON = true
			continue
		case "-q", "--quiet":
			args.Quiet = true
			continue
		case "-v", "--verbose":
			args.Verbose = true
			continue
		}

		if dst, ok := valueFlags[arg]; ok {
			if i+1 < len(argv) {
				i++
				*dst = argv[i]
			}
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			if dst, known := valueFlags[name]; known {
				*dst = value
				continue
			}
		}
		remaining = append(remaining, arg)
	}

	return remaining, args
}
