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

// Package keyring provides the software RSA keypair that protects a vault.
//
// Keys are 2048-bit RSA. Private keys travel as PKCS#8 PEM, public keys as
// SPKI PEM. Encryption uses PKCS#1 v1.5 padding and signatures use
// PKCS#1 v1.5 over SHA-256 digests.
package keyring

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-vault/pkg/encoding"
	"github.com/jeremyhahn/go-vault/pkg/types"
)

// KeySize is the RSA modulus size in bits
const KeySize = 2048

var (
	// ErrPublicOnly is returned when a private key operation is attempted on
	// a keyring that only holds a public key.
	ErrPublicOnly = errors.New("keyring: private key not available")

	// ErrNotRSA is returned when PEM input holds a non-RSA key.
	ErrNotRSA = errors.New("keyring: key is not RSA")

	// ErrInvalidDigest is returned when a digest is not 32 bytes.
	ErrInvalidDigest = errors.New("keyring: digest must be a SHA-256 hash")
)

// Keyring is an RSA keypair. A keyring loaded from a public key can only
// encrypt and verify.
type Keyring struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// Generate creates a new 2048-bit keyring.
func Generate() (*Keyring, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("keyring: failed to generate RSA key: %w", err)
	}
	return &Keyring{private: key, public: &key.PublicKey}, nil
}

// New wraps an existing RSA private key.
func New(key *rsa.PrivateKey) *Keyring {
	return &Keyring{private: key, public: &key.PublicKey}
}

// NewPublic wraps an RSA public key.
func NewPublic(key *rsa.PublicKey) *Keyring {
	return &Keyring{public: key}
}

// FromPEM parses a PKCS#8 private key PEM.
func FromPEM(pemText string) (*Keyring, error) {
	key, err := encoding.DecodePrivateKeyPEM(pemText)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %w", types.ErrKeyFormat, ErrNotRSA)
	}
	return New(rsaKey), nil
}

// FromPublicPEM parses an SPKI public key PEM.
func FromPublicPEM(pemText string) (*Keyring, error) {
	key, err := encoding.DecodePublicKeyPEM(pemText)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %w", types.ErrKeyFormat, ErrNotRSA)
	}
	return NewPublic(rsaKey), nil
}

// HasPrivate reports whether the keyring can decrypt and sign.
func (k *Keyring) HasPrivate() bool {
	return k.private != nil
}

// PublicKey returns the RSA public key.
func (k *Keyring) PublicKey() *rsa.PublicKey {
	return k.public
}

// PrivatePEM returns the private key as PKCS#8 PEM.
func (k *Keyring) PrivatePEM() (string, error) {
	if k.private == nil {
		return "", ErrPublicOnly
	}
	return encoding.EncodePrivateKeyPEM(k.private)
}

// PublicPEM returns the public key as SPKI PEM.
func (k *Keyring) PublicPEM() (string, error) {
	return encoding.EncodePublicKeyPEM(k.public)
}

// Encrypt encrypts plaintext with PKCS#1 v1.5 padding. The plaintext may be
// at most 245 bytes for a 2048-bit key.
func (k *Keyring) Encrypt(plaintext []byte) ([]byte, error) {
	return EncryptPKCS1v15(k.public, plaintext)
}

// Decrypt decrypts a PKCS#1 v1.5 ciphertext.
func (k *Keyring) Decrypt(ciphertext []byte) ([]byte, error) {
	if k.private == nil {
		return nil, ErrPublicOnly
	}
	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, k.private, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

// EncryptString encrypts s and returns the base64 ciphertext.
func (k *Keyring) EncryptString(s string) (string, error) {
	ct, err := k.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptString decrypts a base64 ciphertext produced by EncryptString.
func (k *Keyring) DecryptString(s string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", types.ErrSerialization, err)
	}
	pt, err := k.Decrypt(ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Sign signs a SHA-256 digest with PKCS#1 v1.5.
func (k *Keyring) Sign(digest []byte) ([]byte, error) {
	if k.private == nil {
		return nil, ErrPublicOnly
	}
	if len(digest) != sha256.Size {
		return nil, ErrInvalidDigest
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.private, crypto.SHA256, digest)
	if err != nil {
		return nil, fmt.Errorf("keyring: sign failed: %w", err)
	}
	return sig, nil
}

// SignMessage hashes message with SHA-256 and signs the digest.
func (k *Keyring) SignMessage(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return k.Sign(digest[:])
}

// Verify reports whether signature is a valid PKCS#1 v1.5 signature of digest.
func (k *Keyring) Verify(digest, signature []byte) bool {
	return VerifyPKCS1v15(k.public, digest, signature)
}

// EncryptPKCS1v15 encrypts plaintext to an arbitrary RSA public key. The
// hardware bridge uses it with keys extracted from device certificates.
func EncryptPKCS1v15(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: nil public key", types.ErrKeyFormat)
	}
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
	if err != nil {
		return nil, fmt.Errorf("keyring: encrypt failed: %w", err)
	}
	return ct, nil
}

// VerifyPKCS1v15 verifies a PKCS#1 v1.5 signature over a SHA-256 digest.
func VerifyPKCS1v15(pub *rsa.PublicKey, digest, signature []byte) bool {
	if pub == nil || len(digest) != sha256.Size {
		return false
	}
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest, signature) == nil
}
