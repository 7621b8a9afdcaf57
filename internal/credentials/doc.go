// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credentials persists the session record and the remember-me
// preference.
//
// The record lives in a storage.Backend that every tab of the origin shares.
// It is read as a whole: a token without a user profile, or a profile
// without a token, reads as no session. The preference lives apart from the
// record and outlives logout.
//
// # Usage
//
//	store := credentials.NewStore(backend, credentials.NewFilePreferences(path, nil), fp, log)
//	if err := store.Save(ctx, rec, rememberMe); err != nil {
//	    return err
//	}
//
//	rec, ok := store.Read(ctx)
//	_ = store.Clear(ctx)
package credentials
