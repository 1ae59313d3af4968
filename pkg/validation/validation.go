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

// Package validation provides input validation for names that end up in
// file paths or logs: storage keys, vault names and device serials.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidInput is wrapped by every validation failure
var ErrInvalidInput = errors.New("validation: invalid input")

var (
	// vaultPattern matches safe vault names
	vaultPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

	// serialPattern matches token serial numbers (decimal or hex)
	serialPattern = regexp.MustCompile(`^[a-zA-Z0-9\-]+$`)
)

// ValidateStorageKey validates a slash separated storage key such as
// "vaults/default/public_key.pem". It rejects empty keys, null bytes,
// absolute paths and parent directory references.
func ValidateStorageKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidInput)
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("%w: key contains null byte", ErrInvalidInput)
	}
	if strings.HasPrefix(key, "/") || filepath.IsAbs(key) {
		return fmt.Errorf("%w: key cannot be an absolute path", ErrInvalidInput)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("%w: key contains path traversal attempt", ErrInvalidInput)
		}
	}
	return nil
}

// ValidateVaultName validates a vault name. Vault names become a single
// directory component.
func ValidateVaultName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: vault name cannot be empty", ErrInvalidInput)
	}
	if len(name) > 64 {
		return fmt.Errorf("%w: vault name too long (max 64 characters)", ErrInvalidInput)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: vault name cannot be %q", ErrInvalidInput, name)
	}
	if !vaultPattern.MatchString(name) {
		return fmt.Errorf("%w: vault name contains invalid characters (allowed: a-z, A-Z, 0-9, -, _, .)", ErrInvalidInput)
	}
	return nil
}

// ValidateSerial validates a hardware token serial number
func ValidateSerial(serial string) error {
	if serial == "" {
		return fmt.Errorf("%w: serial cannot be empty", ErrInvalidInput)
	}
	if len(serial) > 32 {
		return fmt.Errorf("%w: serial too long (max 32 characters)", ErrInvalidInput)
	}
	if !serialPattern.MatchString(serial) {
		return fmt.Errorf("%w: serial contains invalid characters (allowed: a-z, A-Z, 0-9, -)", ErrInvalidInput)
	}
	return nil
}

// SanitizeForLog strips control characters from strings read from devices
// or disk before they are logged.
func SanitizeForLog(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	if len(s) > 1000 {
		s = s[:1000] + "...[truncated]"
	}
	return s
}
