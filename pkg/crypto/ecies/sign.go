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

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/jeremyhahn/go-vault/pkg/types"
)

// Sign hashes message with the curve-matched digest and returns a raw
// r||s signature (64 bytes for P-256, 96 for P-384).
func Sign(curve Curve, privateKey, message []byte) ([]byte, error) {
	priv, err := parsePrivate(curve, privateKey)
	if err != nil {
		return nil, err
	}
	h := curve.Hash().New()
	h.Write(message)

	r, s, err := ecdsa.Sign(rand.Reader, priv, h.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("ecies: sign failed: %w", err)
	}

	size := curve.coordinateSize()
	sig := make([]byte, 2*size)
	r.FillBytes(sig[:size])
	s.FillBytes(sig[size:])
	return sig, nil
}

// Verify checks a raw r||s signature over message.
func Verify(curve Curve, publicKey, message, signature []byte) (bool, error) {
	h := curve.Hash().New()
	h.Write(message)
	return VerifyDigest(curve, publicKey, h.Sum(nil), signature)
}

// VerifyDigest checks a raw r||s signature over a precomputed digest.
func VerifyDigest(curve Curve, publicKey, digest, signature []byte) (bool, error) {
	pub, err := parsePublic(curve, publicKey)
	if err != nil {
		return false, err
	}
	if len(digest) != curve.DigestSize() {
		return false, ErrInvalidDigest
	}
	if len(signature) != curve.SignatureSize() {
		return false, nil
	}
	size := curve.coordinateSize()
	r := new(big.Int).SetBytes(signature[:size])
	s := new(big.Int).SetBytes(signature[size:])
	return ecdsa.Verify(pub, digest, r, s), nil
}

func parsePrivate(curve Curve, raw []byte) (*ecdsa.PrivateKey, error) {
	c, err := curve.elliptic()
	if err != nil {
		return nil, err
	}
	priv, err := ecdsa.ParseRawPrivateKey(c, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", types.ErrKeyFormat, ErrInvalidKey, err)
	}
	return priv, nil
}

func parsePublic(curve Curve, raw []byte) (*ecdsa.PublicKey, error) {
	c, err := curve.elliptic()
	if err != nil {
		return nil, err
	}
	pub, err := ecdsa.ParseUncompressedPublicKey(c, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", types.ErrKeyFormat, ErrInvalidKey, err)
	}
	return pub, nil
}
