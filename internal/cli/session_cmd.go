// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session_cmd.go - One-shot session commands.
//
// Each command runs as its own tab: it restores the shared session, acts on
// it and exits. Changes reach running watch views through storage.
//
// Commands:
//   login [email] [--remember | --no-remember] [--password-stdin]
//   oauth <callback-url> [--remember | --no-remember]
//   logout
//   status
//   info
//   check
//   refresh
//   extend
//   token

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jeranaias/tabsession/internal/authapi"
	"github.com/jeranaias/tabsession/internal/session"
)

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

func (r *Runner) runLogin(ctx context.Context, env *Env, args Args) error {
	p := NewArgParser(args.Raw, "remember", "no-remember", "password-stdin")
	remember := rememberChoice(p, env)

	email := p.Positional(0)
	if email == "" {
		email = p.Flag("email")
	}

	prompter := r.Prompter
	if prompter == nil && (email == "" || !p.BoolFlag("password-stdin")) {
		if err := RequiresTTY("log in"); err != nil {
			return err
		}
		prompter = newTerminalPrompter(r.Streams.Err)
	}

	var err error
	if email == "" {
		if email, err = prompter.Email(); err != nil {
			return err
		}
		if email == "" {
			return ErrMissingArgument("email", "tabsession login alice@example.com")
		}
	}

	var password string
	if p.BoolFlag("password-stdin") {
		password, err = readSecretLine(r.Streams.In)
	} else {
		password, err = prompter.Password()
	}
	if err != nil {
		return err
	}

	if err := env.Manager.Login(ctx, email, password, remember); err != nil {
		return NewCommandError("login", loginFailure(err), err)
	}

	st := env.Manager.Status(ctx)
	return r.emit(args, "login", newStatusData(st), func(w io.Writer) {
		name := st.User.Email
		if st.User.Name != "" {
			name = st.User.Name
		}
		fmt.Fprintf(w, "%s Logged in as %s\n", SuccessStyle.Render("✓"), name)
		fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("Session times out after %s of inactivity.", session.FormatDuration(st.Threshold))))
	})
}

// rememberChoice resolves --remember and --no-remember. Without either flag
// the choice from the last login is reused while the preference lasts.
func rememberChoice(p *ArgParser, env *Env) bool {
	switch {
	case p.BoolFlag("remember"):
		return true
	case p.BoolFlag("no-remember"):
		return false
	}
	remember, _ := env.Store.RememberedIntent()
	return remember
}

// loginFailure is the short reason shown for a failed login.
func loginFailure(err error) string {
	var apiErr *authapi.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		return apiErr.Detail
	case errors.Is(err, authapi.ErrUnauthorized):
		return "invalid email or password"
	case errors.Is(err, authapi.ErrNetwork):
		return "could not reach the auth server"
	default:
		return "could not start the session"
	}
}

func (r *Runner) runOAuth(ctx context.Context, env *Env, args Args) error {
	p := NewArgParser(args.Raw, "remember", "no-remember")
	callback := p.Positional(0)
	if callback == "" {
		return ErrMissingArgument("callback-url", `tabsession oauth "https://app.example.com/auth/callback?token=..."`)
	}

	if err := env.Manager.CompleteOAuth(ctx, callback, rememberChoice(p, env)); err != nil {
		return NewCommandError("oauth", "could not complete the login", err)
	}

	st := env.Manager.Status(ctx)
	return r.emit(args, "oauth", newStatusData(st), func(w io.Writer) {
		fmt.Fprintf(w, "%s Logged in as %s\n", SuccessStyle.Render("✓"), st.User.Email)
	})
}

func (r *Runner) runLogout(ctx context.Context, env *Env, args Args) error {
	wasActive := env.Manager.State().IsAuthenticated()
	if err := env.Manager.Logout(ctx); err != nil {
		return NewCommandError("logout", "could not clear the session", err)
	}

	msg := "Logged out"
	if !wasActive {
		msg = "No active session"
	}
	return r.emit(args, "logout", ActionData{Action: "logout", Message: msg}, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("✓"), msg)
	})
}

// =============================================================================
// INSPECTION
// =============================================================================

func (r *Runner) runStatus(ctx context.Context, env *Env, args Args) error {
	st := env.Manager.Status(ctx)
	return r.emit(args, "status", newStatusData(st), func(w io.Writer) {
		printStatus(w, st)
	})
}

// printStatus renders a status block.
func printStatus(w io.Writer, st session.Status) {
	fmt.Fprintln(w, TitleStyle.Render("Session"))
	fmt.Fprintln(w, RenderField("State", RenderState(st.State.String())))
	if st.User.ID != "" || st.User.Email != "" {
		user := st.User.Email
		if st.User.Name != "" {
			user = st.User.Name + " <" + st.User.Email + ">"
		}
		fmt.Fprintln(w, RenderField("User", user))
	}
	if st.State.IsAuthenticated() {
		fmt.Fprintln(w, RenderField("Expires in", session.FormatDuration(st.Remaining)))
		fmt.Fprintln(w, RenderField("Timeout", fmt.Sprintf("%s (remember me: %v)", session.FormatDuration(st.Threshold), st.RememberMe)))
	}
	if !st.TokenExpiry.IsZero() {
		fmt.Fprintln(w, RenderField("Token expires", st.TokenExpiry.Local().Format(time.RFC1123)))
	}
	fmt.Fprintln(w, RenderField("Storage", st.Backend))
}

func (r *Runner) runInfo(ctx context.Context, env *Env, args Args) error {
	if !env.Manager.State().IsAuthenticated() {
		return session.ErrNoSession
	}
	info, ok := env.Manager.SessionInfo(ctx)
	if !ok {
		return NewCommandError("info", "the server did not return session information", nil)
	}

	return r.emit(args, "info", info, func(w io.Writer) {
		fmt.Fprintln(w, TitleStyle.Render("Server session"))
		keys := make([]string, 0, len(info))
		for k := range info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintln(w, RenderField(k, fmt.Sprint(info[k])))
		}
	})
}

// =============================================================================
// TOKEN OPERATIONS
// =============================================================================

func (r *Runner) runCheck(ctx context.Context, env *Env, args Args) error {
	if env.Manager.CheckValidity(ctx) {
		return r.emit(args, "check", ActionData{Action: "check", Message: "Session is valid"}, func(w io.Writer) {
			fmt.Fprintf(w, "%s Session is valid\n", SuccessStyle.Render("✓"))
		})
	}

	if env.Manager.State().IsAuthenticated() {
		// Soft failure: the session is kept for the next check.
		return NewCommandError("check", "the server could not confirm the session", authapi.ErrNetwork)
	}
	r.printLoginHint(env, args)
	if env.Login.Reason() != "" {
		return session.ErrExpired
	}
	return session.ErrNoSession
}

func (r *Runner) runRefresh(ctx context.Context, env *Env, args Args) error {
	if err := env.Manager.Refresh(ctx); err != nil {
		r.printLoginHint(env, args)
		return err
	}
	st := env.Manager.Status(ctx)
	return r.emit(args, "refresh", newStatusData(st), func(w io.Writer) {
		fmt.Fprintf(w, "%s Access token refreshed\n", SuccessStyle.Render("✓"))
		if !st.TokenExpiry.IsZero() {
			fmt.Fprintln(w, RenderField("Token expires", st.TokenExpiry.Local().Format(time.RFC1123)))
		}
	})
}

func (r *Runner) runExtend(ctx context.Context, env *Env, args Args) error {
	if err := env.Manager.ExtendSession(ctx); err != nil {
		return err
	}
	st := env.Manager.Status(ctx)
	return r.emit(args, "extend", newStatusData(st), func(w io.Writer) {
		fmt.Fprintf(w, "%s Session extended, expires in %s\n", SuccessStyle.Render("✓"), session.FormatDuration(st.Remaining))
	})
}

// runToken prints the access token, refreshing it first when it is about to
// expire.
func (r *Runner) runToken(ctx context.Context, env *Env, args Args) error {
	token, ok := env.Manager.AccessToken(ctx)
	if !ok {
		return session.ErrNoSession
	}

	if exp, known := authapi.TokenExpiry(token); known && time.Until(exp) < env.Config.Session.RefreshSkew.Std() {
		if err := env.Manager.HandleUnauthorized(ctx); err != nil {
			r.printLoginHint(env, args)
			return err
		}
		if token, ok = env.Manager.AccessToken(ctx); !ok {
			return session.ErrNoSession
		}
	}

	if args.JSON {
		return NewJSONResponse("token", map[string]string{"access_token": token}).Write(r.Streams.Out)
	}
	fmt.Fprintln(r.Streams.Out, token)
	return nil
}

// printLoginHint tells the user where to log in after the session ended.
func (r *Runner) printLoginHint(env *Env, args Args) {
	reason := env.Login.Reason()
	if reason == "" || args.Quiet || args.JSON || env.Config.API.LoginURL == "" {
		return
	}
	fmt.Fprintf(r.Streams.Err, "Log in again: %s\n", session.LoginURL(env.Config.API.LoginURL, reason))
}
