// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package crosstab turns writes made by sibling tabs into events.
//
// A Notifier watches the shared storage backend and hands every change made
// by another tab to all subscribers. A tab's own writes are never delivered
// back to it; the writer updates its own state on its local call path.
//
// # Usage
//
//	n := crosstab.NewNotifier(backend, log)
//	unsubscribe := n.Subscribe(func(ev crosstab.Event) {
//	    if ev.Key == "access_token" && ev.Removed {
//	        // logged out elsewhere
//	    }
//	})
//	defer unsubscribe()
//
//	if err := n.Start(ctx); err != nil {
//	    return err
//	}
//	defer n.Close()
package crosstab
