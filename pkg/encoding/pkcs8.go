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

// Package encoding converts keys to and from PKCS#8, SPKI and PEM.
package encoding

import (
	"crypto"
	"crypto/x509"
	"fmt"

	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/youmark/pkcs8"
)

// EncodePKCS8 encodes an unencrypted private key to PKCS#8 DER.
//
// Supported key types: *rsa.PrivateKey, *ecdsa.PrivateKey
func EncodePKCS8(privateKey crypto.PrivateKey) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("%w: %w", types.ErrKeyFormat, ErrInvalidPrivateKey)
	}

	der, err := pkcs8.MarshalPrivateKey(privateKey, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal PKCS#8: %v", types.ErrKeyFormat, err)
	}
	return der, nil
}

// DecodePKCS8 decodes unencrypted PKCS#8 DER to a private key.
func DecodePKCS8(data []byte) (crypto.PrivateKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", types.ErrKeyFormat, ErrInvalidData)
	}

	key, err := pkcs8.ParsePKCS8PrivateKey(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse PKCS#8: %v", types.ErrKeyFormat, err)
	}

	privKey, ok := key.(crypto.PrivateKey)
	if !ok || privKey == nil {
		return nil, fmt.Errorf("%w: %w", types.ErrKeyFormat, ErrInvalidPrivateKey)
	}
	return privKey, nil
}

// EncodePublicKeyPKIX encodes a public key to SubjectPublicKeyInfo DER.
func EncodePublicKeyPKIX(publicKey crypto.PublicKey) ([]byte, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("%w: %w", types.ErrKeyFormat, ErrInvalidPublicKey)
	}

	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal PKIX public key: %v", types.ErrKeyFormat, err)
	}
	return der, nil
}

// DecodePublicKeyPKIX decodes SubjectPublicKeyInfo DER to a public key.
func DecodePublicKeyPKIX(data []byte) (crypto.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", types.ErrKeyFormat, ErrInvalidData)
	}

	pubKey, err := x509.ParsePKIXPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse PKIX public key: %v", types.ErrKeyFormat, err)
	}
	return pubKey, nil
}
