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

// Package envelope implements password-derived authenticated encryption.
//
// An Envelope is a 256-bit AES-GCM key derived from a password and a 16 byte
// salt with PBKDF2-HMAC-SHA256 (100,000 iterations). Sealed blobs are
// self-describing:
//
//	base64( salt[16] || nonce[12] || ciphertext || tag[16] )
//
// so a blob can always be opened again from the password alone.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-vault/pkg/kdf"
	"github.com/jeremyhahn/go-vault/pkg/types"
)

const (
	// SaltSize is the length of the embedded derivation salt
	SaltSize = kdf.SaltLength

	// NonceSize is the AES-GCM nonce length
	NonceSize = 12

	// HeaderSize is the minimum decoded blob length
	HeaderSize = SaltSize + NonceSize
)

var pbkdf2Adapter = kdf.NewPBKDF2Adapter()

// Envelope is a derived key bound to its salt. The key is never persisted.
type Envelope struct {
	salt []byte
	aead cipher.AEAD
}

// Derive derives an Envelope from password and salt. A nil salt draws 16
// fresh random bytes. The same (password, salt) pair always yields the same key.
func Derive(password, salt []byte) (*Envelope, error) {
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("envelope: failed to generate salt: %w", err)
		}
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("envelope: salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	key, err := pbkdf2Adapter.DeriveKey(password, kdf.EnvelopeParams(salt))
	if err != nil {
		return nil, fmt.Errorf("envelope: key derivation failed: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("envelope: failed to create GCM: %w", err)
	}

	return &Envelope{
		salt: bytes.Clone(salt),
		aead: aead,
	}, nil
}

// Salt returns a copy of the derivation salt.
func (e *Envelope) Salt() []byte {
	return bytes.Clone(e.salt)
}

// Seal encrypts plaintext under a fresh random nonce and returns the
// base64 blob. Two calls with the same plaintext never return the same blob.
func (e *Envelope) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("envelope: failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, HeaderSize+len(plaintext)+e.aead.Overhead())
	out = append(out, e.salt...)
	out = append(out, nonce...)
	out = e.aead.Seal(out, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a blob produced by Seal. The blob's embedded salt must match
// this envelope's salt; use the package level Open to re-derive from a
// password instead.
func (e *Envelope) Open(blob string) ([]byte, error) {
	salt, nonce, ciphertext, err := split(blob)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(salt, e.salt) {
		return nil, fmt.Errorf("%w: salt mismatch", types.ErrAuthenticationFailed)
	}
	return e.open(nonce, ciphertext)
}

func (e *Envelope) open(nonce, ciphertext []byte) ([]byte, error) {
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

// Seal derives a new envelope with a fresh salt and seals plaintext.
func Seal(password, plaintext []byte) (string, error) {
	env, err := Derive(password, nil)
	if err != nil {
		return "", err
	}
	return env.Seal(plaintext)
}

// Open re-derives the envelope from password and the salt embedded in blob,
// then decrypts it.
func Open(password []byte, blob string) ([]byte, error) {
	salt, nonce, ciphertext, err := split(blob)
	if err != nil {
		return nil, err
	}
	env, err := Derive(password, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrAuthenticationFailed, err)
	}
	return env.open(nonce, ciphertext)
}

// split decodes blob and slices out salt, nonce and ciphertext||tag.
func split(blob string) (salt, nonce, ciphertext []byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: invalid base64: %v", types.ErrAuthenticationFailed, err)
	}
	if len(raw) < HeaderSize {
		return nil, nil, nil, fmt.Errorf("%w: blob too short (%d bytes)", types.ErrAuthenticationFailed, len(raw))
	}
	return raw[:SaltSize], raw[SaltSize:HeaderSize], raw[HeaderSize:], nil
}
