// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-vault.
//
// go-vault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package masterpassword

import "errors"

var (
	// ErrConfigRequired is returned when NewManager is called without a config.
	ErrConfigRequired = errors.New("masterpassword: config is required")

	// ErrStorageRequired is returned when the config has no storage backend.
	ErrStorageRequired = errors.New("masterpassword: storage is required")

	// ErrSessionRequired is returned when the config has no session.
	ErrSessionRequired = errors.New("masterpassword: session is required")

	// ErrEmptyPassword is returned when saving an empty master password.
	ErrEmptyPassword = errors.New("masterpassword: password cannot be empty")

	// ErrPrivateKeyExists is returned by Save when the vault already holds a
	// protected private key. Save never overwrites it.
	ErrPrivateKeyExists = errors.New("masterpassword: private key already exists")
)
