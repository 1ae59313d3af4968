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

package secrets

import "errors"

var (
	// ErrConfigRequired is returned when NewVault is called without a config.
	ErrConfigRequired = errors.New("secrets: config is required")

	// ErrStorageRequired is returned when the config has no storage backend.
	ErrStorageRequired = errors.New("secrets: storage is required")

	// ErrKeysRequired is returned when the config has no keyring provider.
	ErrKeysRequired = errors.New("secrets: keyring provider is required")

	// ErrSecretNotFound is returned when no secret exists for an id.
	ErrSecretNotFound = errors.New("secrets: secret not found")

	// ErrInvalidSecret is returned when a stored secret cannot be decoded
	// or does not match its file name.
	ErrInvalidSecret = errors.New("secrets: invalid secret")
)
