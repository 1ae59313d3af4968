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

// Package kdf provides the key derivation functions used by the vault:
// PBKDF2 for password-derived envelope keys and HKDF for ECDH shared secrets.
package kdf

import (
	"crypto"
	"errors"
)

// Algorithm identifies a key derivation function.
type Algorithm string

const (
	// AlgorithmHKDF is the HMAC-based Extract-and-Expand KDF (RFC 5869)
	AlgorithmHKDF Algorithm = "HKDF"

	// AlgorithmPBKDF2 is the Password-Based KDF 2 (RFC 8018)
	AlgorithmPBKDF2 Algorithm = "PBKDF2"
)

const (
	// PBKDF2Iterations is the fixed iteration count for envelope keys.
	// Changing it breaks every stored blob.
	PBKDF2Iterations = 100000

	// SaltLength is the envelope salt length in bytes
	SaltLength = 16

	// KeyLength is the AES-256 key length in bytes
	KeyLength = 32
)

// String returns the algorithm name
func (a Algorithm) String() string {
	return string(a)
}

// Params contains parameters for key derivation
type Params struct {
	Algorithm Algorithm

	// Salt is required for PBKDF2 and optional for HKDF
	Salt []byte

	// Info is the HKDF context string
	Info []byte

	// Iterations is the PBKDF2 work factor
	Iterations int

	// KeyLength is the number of output bytes
	KeyLength int

	// Hash is the underlying hash function
	Hash crypto.Hash
}

// Adapter derives key material from input key material
type Adapter interface {
	DeriveKey(ikm []byte, params *Params) ([]byte, error)
	Algorithm() Algorithm
	ValidateParams(params *Params) error
}

var (
	// ErrInvalidSalt indicates the salt is missing or too short
	ErrInvalidSalt = errors.New("kdf: invalid salt")

	// ErrInvalidKeyLength indicates the requested key length is invalid
	ErrInvalidKeyLength = errors.New("kdf: invalid key length")

	// ErrInvalidIterations indicates the iteration count is below the minimum
	ErrInvalidIterations = errors.New("kdf: invalid iterations")

	// ErrInvalidHash indicates the hash function is unset or not linked
	ErrInvalidHash = errors.New("kdf: invalid or unsupported hash function")

	// ErrInvalidIKM indicates empty HKDF input key material
	ErrInvalidIKM = errors.New("kdf: invalid input key material")

	// ErrUnsupportedAlgorithm indicates params for a different algorithm
	ErrUnsupportedAlgorithm = errors.New("kdf: unsupported algorithm")
)

// EnvelopeParams returns the PBKDF2 parameters used for envelope keys.
func EnvelopeParams(salt []byte) *Params {
	return &Params{
		Algorithm:  AlgorithmPBKDF2,
		Salt:       salt,
		Iterations: PBKDF2Iterations,
		KeyLength:  KeyLength,
		Hash:       crypto.SHA256,
	}
}

func validateHash(h crypto.Hash) error {
	if h == 0 || !h.Available() {
		return ErrInvalidHash
	}
	return nil
}
