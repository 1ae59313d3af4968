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

package kdf

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFAdapter implements Adapter using HKDF. Use it for high-entropy inputs
// such as ECDH shared secrets, never for passwords.
type HKDFAdapter struct{}

// NewHKDFAdapter creates a new HKDF adapter
func NewHKDFAdapter() *HKDFAdapter {
	return &HKDFAdapter{}
}

// DeriveKey derives params.KeyLength bytes using HKDF
func (h *HKDFAdapter) DeriveKey(ikm []byte, params *Params) ([]byte, error) {
	if err := h.ValidateParams(params); err != nil {
		return nil, err
	}
	if len(ikm) == 0 {
		return nil, ErrInvalidIKM
	}

	r := hkdf.New(params.Hash.New, ikm, params.Salt, params.Info)
	key := make([]byte, params.KeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Algorithm returns AlgorithmHKDF
func (h *HKDFAdapter) Algorithm() Algorithm {
	return AlgorithmHKDF
}

// ValidateParams validates HKDF parameters
func (h *HKDFAdapter) ValidateParams(params *Params) error {
	if params == nil {
		return ErrInvalidKeyLength
	}
	if params.Algorithm != AlgorithmHKDF {
		return ErrUnsupportedAlgorithm
	}
	if params.KeyLength <= 0 {
		return ErrInvalidKeyLength
	}
	if err := validateHash(params.Hash); err != nil {
		return err
	}
	if params.KeyLength > 255*params.Hash.Size() {
		return ErrInvalidKeyLength
	}
	return nil
}
