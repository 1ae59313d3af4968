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

package ecies

import "errors"

var (
	// ErrDecryptionFailed is returned for truncated blobs, malformed
	// ephemeral points, tag mismatches and failed key agreement. Except for
	// key agreement failures, which carry the agreement error instead, it
	// also matches types.ErrAuthenticationFailed.
	ErrDecryptionFailed = errors.New("ecies: decryption failed")

	// ErrUnsupportedCurve is returned for curves other than P-256 and P-384.
	ErrUnsupportedCurve = errors.New("ecies: unsupported curve")

	// ErrInvalidKey is returned for malformed private scalars or public points.
	// It always also matches types.ErrKeyFormat.
	ErrInvalidKey = errors.New("ecies: invalid key")

	// ErrInvalidDigest is returned when a digest length does not match the curve.
	ErrInvalidDigest = errors.New("ecies: digest length does not match curve")
)
