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

// Package ecies provides a minimal Elliptic Curve Integrated Encryption
// Scheme over P-256 and P-384, plus ECDSA signing with curve-matched digests.
//
// ECIES combines:
//  1. ECDH between a fresh ephemeral key and the recipient key
//  2. HKDF (SHA-256 for P-256, SHA-384 for P-384, no salt, info
//     "aes-256-gcm-key-nonce") expanded to 44 bytes: key[32] || nonce[12]
//  3. AES-256-GCM
//
// The encryption format is raw bytes:
//
//	[ephemeral_public_key || ciphertext || tag]
//
// where ephemeral_public_key is an uncompressed point of 65 bytes (P-256)
// or 97 bytes (P-384). Decryption locates it by that fixed length.
//
// Keys are exchanged as raw bytes: private keys as big-endian scalars and
// public keys as uncompressed points.
package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"fmt"

	"github.com/jeremyhahn/go-vault/pkg/kdf"
	"github.com/jeremyhahn/go-vault/pkg/types"
)

const (
	aesKeySize = 32
	nonceSize  = 12
	tagSize    = 16
	okmSize    = aesKeySize + nonceSize
)

// Info is the HKDF context string binding derived keys to this construction.
var Info = []byte("aes-256-gcm-key-nonce")

var hkdfAdapter = kdf.NewHKDFAdapter()

// AgreeFunc performs ECDH between the holder's private key and the ephemeral
// public key found in a blob, returning the raw shared secret. It lets a
// hardware token stand in for a software private key.
type AgreeFunc func(ephemeral *ecdh.PublicKey) ([]byte, error)

// Generate creates a keypair and returns the private scalar and the
// uncompressed public point.
func Generate(curve Curve) (privateKey, publicKey []byte, err error) {
	c, err := curve.ecdh()
	if err != nil {
		return nil, nil, err
	}
	key, err := c.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("ecies: failed to generate key: %w", err)
	}
	return key.Bytes(), key.PublicKey().Bytes(), nil
}

// Encrypt seals plaintext to the uncompressed public point recipient.
func Encrypt(curve Curve, plaintext, recipient []byte) ([]byte, error) {
	c, err := curve.ecdh()
	if err != nil {
		return nil, err
	}
	pub, err := c.NewPublicKey(recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", types.ErrKeyFormat, ErrInvalidKey, err)
	}

	ephemeral, err := c.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ecies: failed to generate ephemeral key: %w", err)
	}
	shared, err := ephemeral.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecies: ECDH failed: %w", err)
	}

	aead, nonce, err := deriveAEAD(curve, shared)
	if err != nil {
		return nil, err
	}

	ephemeralBytes := ephemeral.PublicKey().Bytes()
	out := make([]byte, 0, len(ephemeralBytes)+len(plaintext)+tagSize)
	out = append(out, ephemeralBytes...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a blob with the raw private scalar privateKey.
func Decrypt(curve Curve, blob, privateKey []byte) ([]byte, error) {
	c, err := curve.ecdh()
	if err != nil {
		return nil, err
	}
	priv, err := c.NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", types.ErrKeyFormat, ErrInvalidKey, err)
	}
	return DecryptWith(curve, blob, func(ephemeral *ecdh.PublicKey) ([]byte, error) {
		return priv.ECDH(ephemeral)
	})
}

// DecryptWith opens a blob, delegating the ECDH step to agree.
func DecryptWith(curve Curve, blob []byte, agree AgreeFunc) ([]byte, error) {
	c, err := curve.ecdh()
	if err != nil {
		return nil, err
	}

	pointSize := curve.PointSize()
	if len(blob) < pointSize {
		return nil, decryptionError("blob too short: got %d bytes, need at least %d", len(blob), pointSize)
	}

	ephemeral, err := c.NewPublicKey(blob[:pointSize])
	if err != nil {
		return nil, decryptionError("malformed ephemeral public key: %v", err)
	}

	shared, err := agree(ephemeral)
	if err != nil {
		return nil, fmt.Errorf("%w: ECDH failed: %w", ErrDecryptionFailed, err)
	}

	aead, nonce, err := deriveAEAD(curve, shared)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, blob[pointSize:], nil)
	if err != nil {
		return nil, decryptionError("authentication error: %v", err)
	}
	return plaintext, nil
}

// deriveAEAD expands the shared secret into an AES-256-GCM cipher and its nonce.
func deriveAEAD(curve Curve, shared []byte) (cipher.AEAD, []byte, error) {
	okm, err := hkdfAdapter.DeriveKey(shared, &kdf.Params{
		Algorithm: kdf.AlgorithmHKDF,
		Info:      Info,
		KeyLength: okmSize,
		Hash:      curve.Hash(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ecies: key derivation failed: %w", err)
	}
	defer clear(okm[:aesKeySize])

	block, err := aes.NewCipher(okm[:aesKeySize])
	if err != nil {
		return nil, nil, fmt.Errorf("ecies: failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("ecies: failed to create GCM: %w", err)
	}
	return aead, okm[aesKeySize:], nil
}

func decryptionError(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", types.ErrAuthenticationFailed, ErrDecryptionFailed, fmt.Sprintf(format, args...))
}
