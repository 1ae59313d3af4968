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

package yubikey

import "errors"

var (
	// ErrConfigRequired is returned when a constructor is called without a config.
	ErrConfigRequired = errors.New("yubikey: config is required")

	// ErrProviderRequired is returned when no token provider is configured.
	ErrProviderRequired = errors.New("yubikey: provider is required")

	// ErrRegistryRequired is returned when a bridge has no device registry.
	ErrRegistryRequired = errors.New("yubikey: registry is required")

	// ErrStorageRequired is returned when the registry has no storage backend.
	ErrStorageRequired = errors.New("yubikey: storage is required")

	// ErrPasswordRequired is returned when the registry has no master password source.
	ErrPasswordRequired = errors.New("yubikey: master password source is required")

	// ErrInvalidState is returned when an operation is attempted in the wrong
	// device state, for example decrypting before PIN verification.
	ErrInvalidState = errors.New("yubikey: invalid device state")

	// ErrInvalidChallenge is returned when a challenge length does not match
	// the digest size of the authentication key.
	ErrInvalidChallenge = errors.New("yubikey: invalid challenge")

	// ErrUnsupportedAlgorithm is returned for keys other than RSA 1024/2048
	// and ECC P-256/P-384.
	ErrUnsupportedAlgorithm = errors.New("yubikey: unsupported algorithm")

	// ErrCertificateNotFound is returned when a slot holds no certificate.
	ErrCertificateNotFound = errors.New("yubikey: certificate not found")

	// ErrNotBound is returned when no public key is registered for a serial.
	ErrNotBound = errors.New("yubikey: device not bound")

	// ErrEmptyPlaintext is returned when asked to encrypt nothing.
	ErrEmptyPlaintext = errors.New("yubikey: plaintext is empty")

	// ErrInvalidSignature is returned when a token signature does not verify
	// against the slot certificate.
	ErrInvalidSignature = errors.New("yubikey: signature verification failed")

	// ErrLibraryNotFound is returned when no PKCS#11 module can be located.
	ErrLibraryNotFound = errors.New("yubikey: PKCS#11 library not found")

	// ErrPKCS11Unavailable is returned by NewPKCS11Provider in builds without
	// the pkcs11 build tag.
	ErrPKCS11Unavailable = errors.New("yubikey: built without PKCS#11 support")
)

// Sub-causes of a failed PKCS#1 v1.5 unpad. They are wrapped in a
// types.DeviceProtocolError.
var (
	ErrBlockTooShort    = errors.New("yubikey: padded block shorter than 11 bytes")
	ErrInvalidHeader    = errors.New("yubikey: padded block does not start with 00 02")
	ErrPaddingTooShort  = errors.New("yubikey: padding string shorter than 8 bytes")
	ErrMissingSeparator = errors.New("yubikey: padding separator not found")
	ErrEmptyMessage     = errors.New("yubikey: padded block carries no message")
)
