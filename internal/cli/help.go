// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// helpTopics are the long-form guides shown by "tabsession help <topic>".
var helpTopics = map[string]string{
	"session": `# Session lifecycle

A session starts **active** when you log in. Every terminal that runs
tabsession against the same origin shares it.

| State | Meaning |
|-------|---------|
| active | Logged in and recently used |
| warning | Inactive for a while; expiry is near |
| expired | Ended by inactivity or by the server |
| unauthenticated | No session |

## Timeouts

By default:

- Without *remember me* the session ends after **2h** of inactivity.
- With ` + "`--remember`" + ` it ends after **24h**.
- The choice is reused by the next login until ` + "`--no-remember`" + ` is given.
- A warning with a countdown appears **5 minutes** before expiry.
  Press ` + "`e`" + ` in ` + "`tabsession watch`" + ` to extend, or just keep working.

## Tokens

The access token is re-checked every 5 minutes and refreshed when the
server rejects it or it is about to expire. When a refresh is refused the
session ends and you are sent to the login page with a reason:
` + "`timeout`" + `, ` + "`security`" + `, ` + "`device`" + ` or ` + "`expired`" + `.
`,

	"tabs": `# Tabs

Each tabsession process is a tab with its own ID. Tabs on one origin share
storage, so:

- **login** in one tab is picked up by every running ` + "`watch`" + `.
- **logout** or expiry in one tab ends the session in all of them, and each
  tab redirects exactly once.
- **extend** in one tab resets the countdown everywhere.

Storage backends:

- ` + "`sqlite`" + ` (default): a journal under ` + "`~/.tabsession/origins/`" + `, shared by
  processes on this machine.
- ` + "`redis`" + `: shared across machines through pub/sub.
- ` + "`memory`" + `: one process only; used when storage is unavailable.
`,
}

func (r *Runner) runHelp(args Args) error {
	topic := strings.ToLower(NewArgParser(args.Raw).Subcommand())
	if topic == "" {
		PrintUsage(r.Streams.Out)
		return nil
	}

	doc, ok := helpTopics[topic]
	if !ok {
		return &ValidationError{Field: "help topic", Value: topic, Reason: "must be session or tabs"}
	}

	out, err := renderMarkdown(doc, GetTerminalWidth())
	if err != nil {
		out = doc
	}
	fmt.Fprint(r.Streams.Out, out)
	return nil
}

// renderMarkdown renders doc for the terminal, or as plain text when colour
// is off.
func renderMarkdown(doc string, width int) (string, error) {
	style := glamour.WithAutoStyle()
	if !ColorsEnabled() {
		style = glamour.WithStandardStyle("notty")
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width-4))
	if err != nil {
		return "", err
	}
	return renderer.Render(doc)
}
