// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the session lifecycle manager for one tab.
//
// A Manager ties together the credential store, the inactivity monitor,
// the refresh protocol against the auth API and the cross-tab notifier.
// Every process (or every Manager with its own origin) sharing a storage
// backend is a tab: a login or logout in one is seen by all the others.
//
// # Key Types
//
//   - Manager: session owner with Init/Dispose lifecycle
//   - Monitor: Unauthenticated -> Active -> Warning -> Expired state machine
//   - Navigator: collaborator that sends the user to the login surface
//   - WarningListener: collaborator that shows the expiry countdown
//
// # Usage
//
//	mgr, err := session.NewManager(session.DefaultConfig(), session.Deps{
//	    Store: store,
//	    API:   authapi.NewClient(baseURL, log),
//	    Navigator: session.NavigatorFunc(func(r session.Reason) {
//	        openBrowser(session.LoginURL(loginURL, r))
//	    }),
//	})
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Init(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Dispose()
//
// Report user activity:
//
//	mgr.RecordActivity(activity.SignalKeyPress)
//
// # Timeouts
//
// The idle threshold is 2 hours, or 24 hours with remember-me. The warning
// starts 5 minutes before expiry and reports the exact time left on every
// tick. Expiry clears the stored session and redirects with reason
// "timeout" exactly once.
package session
