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

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Adapter implements Adapter using PBKDF2
type PBKDF2Adapter struct{}

// NewPBKDF2Adapter creates a new PBKDF2 adapter
func NewPBKDF2Adapter() *PBKDF2Adapter {
	return &PBKDF2Adapter{}
}

// DeriveKey derives a key using PBKDF2. An empty password is valid input.
func (p *PBKDF2Adapter) DeriveKey(ikm []byte, params *Params) ([]byte, error) {
	if err := p.ValidateParams(params); err != nil {
		return nil, err
	}
	return pbkdf2.Key(ikm, params.Salt, params.Iterations, params.KeyLength, params.Hash.New), nil
}

// Algorithm returns AlgorithmPBKDF2
func (p *PBKDF2Adapter) Algorithm() Algorithm {
	return AlgorithmPBKDF2
}

// ValidateParams validates PBKDF2 parameters
func (p *PBKDF2Adapter) ValidateParams(params *Params) error {
	if params == nil {
		return ErrInvalidKeyLength
	}
	if params.Algorithm != AlgorithmPBKDF2 {
		return ErrUnsupportedAlgorithm
	}
	if params.KeyLength <= 0 {
		return ErrInvalidKeyLength
	}
	if len(params.Salt) < SaltLength {
		return ErrInvalidSalt
	}
	if params.Iterations < PBKDF2Iterations {
		return ErrInvalidIterations
	}
	return validateHash(params.Hash)
}
