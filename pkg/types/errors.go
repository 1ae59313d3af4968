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

// Package types defines the error taxonomy shared by every vault component.
//
// Each failure domain has exactly one sentinel. Components wrap a sentinel
// with context using fmt.Errorf("%w: ...") so callers can classify any error
// with errors.Is regardless of which layer produced it.
package types

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed is returned when an AEAD tag does not verify:
	// wrong passphrase, corrupted data or truncated input.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrWrongPassword is the user-facing master password mismatch. It
	// deliberately hides the underlying cause.
	ErrWrongPassword = errors.New("wrong password")

	// ErrKeyFormat is returned for malformed PEM or DER key material.
	ErrKeyFormat = errors.New("invalid key format")

	// ErrDeviceNotFound is returned when no attached token matches a serial.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDevicePinFailed is returned when the token rejects a PIN, including
	// device-imposed lockout.
	ErrDevicePinFailed = errors.New("device PIN verification failed")

	// ErrDeviceProtocol covers malformed challenges, unexpected key algorithms
	// and raw-operation unpadding failures. See DeviceProtocolError.
	ErrDeviceProtocol = errors.New("device protocol error")

	// ErrIO is returned for storage read/write failures.
	ErrIO = errors.New("i/o error")

	// ErrSerialization is returned when a record cannot be encoded or decoded.
	ErrSerialization = errors.New("serialization error")

	// ErrSessionLock is returned when the session guard has been poisoned by
	// a panic in a previous operation.
	ErrSessionLock = errors.New("session lock unavailable")

	// ErrNoMasterPassword is returned when an operation needs the unlocked
	// master password and the session is not authenticated.
	ErrNoMasterPassword = errors.New("no master password in session")
)

// DeviceProtocolError carries the specific cause of a device protocol failure.
// It matches both ErrDeviceProtocol and Cause with errors.Is.
type DeviceProtocolError struct {
	Op    string
	Cause error
}

// NewDeviceProtocolError returns a DeviceProtocolError for op.
func NewDeviceProtocolError(op string, cause error) *DeviceProtocolError {
	return &DeviceProtocolError{Op: op, Cause: cause}
}

func (e *DeviceProtocolError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", ErrDeviceProtocol, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", ErrDeviceProtocol, e.Op, e.Cause)
}

// Unwrap exposes both the taxonomy sentinel and the sub-cause.
func (e *DeviceProtocolError) Unwrap() []error {
	return []error{ErrDeviceProtocol, e.Cause}
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrSessionLock, "session_lock"},
	{ErrNoMasterPassword, "no_master_password"},
	{ErrWrongPassword, "wrong_password"},
	{ErrAuthenticationFailed, "authentication_failed"},
	{ErrKeyFormat, "key_format"},
	{ErrDeviceNotFound, "device_not_found"},
	{ErrDevicePinFailed, "device_pin_failed"},
	{ErrDeviceProtocol, "device_protocol"},
	{ErrSerialization, "serialization"},
	{ErrIO, "io"},
}

// Kind returns the taxonomy label for err, "none" for nil and "unknown" for
// errors outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return "none"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}
