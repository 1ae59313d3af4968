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
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-vault/pkg/kdf"
	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var curves = []Curve{P256, P384}

// TestGenerate tests raw key sizes per curve
func TestGenerate(t *testing.T) {
	tests := []struct {
		curve      Curve
		scalarSize int
		pointSize  int
	}{
		{P256, 32, 65},
		{P384, 48, 97},
	}

	for _, tt := range tests {
		t.Run(tt.curve.String(), func(t *testing.T) {
			priv, pub, err := Generate(tt.curve)
			require.NoError(t, err)
			assert.Len(t, priv, tt.scalarSize)
			assert.Len(t, pub, tt.pointSize)
			assert.Equal(t, byte(0x04), pub[0])
			assert.Equal(t, tt.pointSize, tt.curve.PointSize())
		})
	}
}

// TestEncryptDecrypt tests the ECIES round trip for both curves
func TestEncryptDecrypt(t *testing.T) {
	for _, curve := range curves {
		t.Run(curve.String(), func(t *testing.T) {
			priv, pub, err := Generate(curve)
			require.NoError(t, err)

			for _, plaintext := range [][]byte{
				[]byte("Hello, ECIES!"),
				{},
				[]byte(strings.Repeat("x", 4096)),
			} {
				blob, err := Encrypt(curve, plaintext, pub)
				require.NoError(t, err)
				assert.Len(t, blob, curve.PointSize()+len(plaintext)+tagSize)

				decrypted, err := Decrypt(curve, blob, priv)
				require.NoError(t, err)
				assert.Equal(t, string(plaintext), string(decrypted))
			}
		})
	}
}

// TestEncrypt_Layout tests that the blob is ephemeral point || ct || tag with
// the key and nonce taken from a 44 byte HKDF expansion
func TestEncrypt_Layout(t *testing.T) {
	recipient, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	plaintext := []byte("layout check")
	blob, err := Encrypt(P256, plaintext, recipient.PublicKey().Bytes())
	require.NoError(t, err)

	ephemeral, err := ecdh.P256().NewPublicKey(blob[:65])
	require.NoError(t, err)
	shared, err := recipient.ECDH(ephemeral)
	require.NoError(t, err)

	okm, err := kdf.NewHKDFAdapter().DeriveKey(shared, &kdf.Params{
		Algorithm: kdf.AlgorithmHKDF,
		Info:      []byte("aes-256-gcm-key-nonce"),
		KeyLength: 44,
		Hash:      P256.Hash(),
	})
	require.NoError(t, err)

	aead, nonce, err := deriveAEAD(P256, shared)
	require.NoError(t, err)
	assert.Equal(t, okm[32:], nonce)

	got, err := aead.Open(nil, okm[32:], blob[65:], nil)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

// TestDecrypt_WrongKey tests that another key fails with a decryption error
func TestDecrypt_WrongKey(t *testing.T) {
	for _, curve := range curves {
		t.Run(curve.String(), func(t *testing.T) {
			_, pub, err := Generate(curve)
			require.NoError(t, err)
			otherPriv, _, err := Generate(curve)
			require.NoError(t, err)

			blob, err := Encrypt(curve, []byte("secret"), pub)
			require.NoError(t, err)

			_, err = Decrypt(curve, blob, otherPriv)
			assert.ErrorIs(t, err, ErrDecryptionFailed)
			assert.ErrorIs(t, err, types.ErrAuthenticationFailed)
		})
	}
}

// TestDecrypt_FixedLengthFraming tests truncated and malformed inputs
func TestDecrypt_FixedLengthFraming(t *testing.T) {
	for _, curve := range curves {
		t.Run(curve.String(), func(t *testing.T) {
			priv, pub, err := Generate(curve)
			require.NoError(t, err)
			blob, err := Encrypt(curve, []byte("framing"), pub)
			require.NoError(t, err)

			inputs := map[string][]byte{
				"empty":            {},
				"one short":        blob[:curve.PointSize()-1],
				"point only":       blob[:curve.PointSize()],
				"bad point prefix": append([]byte{0x05}, blob[1:]...),
				"tampered tag":     append(append([]byte(nil), blob[:len(blob)-1]...), blob[len(blob)-1]^0xff),
			}

			for name, input := range inputs {
				assert.NotPanics(t, func() {
					_, err := Decrypt(curve, input, priv)
					assert.ErrorIs(t, err, ErrDecryptionFailed, name)
				}, name)
			}
		})
	}
}

// TestDecrypt_CurveMismatch tests that a P-384 blob does not open as P-256
func TestDecrypt_CurveMismatch(t *testing.T) {
	_, pub384, err := Generate(P384)
	require.NoError(t, err)
	priv256, _, err := Generate(P256)
	require.NoError(t, err)

	blob, err := Encrypt(P384, []byte("mismatch"), pub384)
	require.NoError(t, err)

	_, err = Decrypt(P256, blob, priv256)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

// TestDecryptWith tests delegating ECDH to an external agreement function
func TestDecryptWith(t *testing.T) {
	priv, pub, err := Generate(P384)
	require.NoError(t, err)
	blob, err := Encrypt(P384, []byte("hardware"), pub)
	require.NoError(t, err)

	key, err := ecdh.P384().NewPrivateKey(priv)
	require.NoError(t, err)

	got, err := DecryptWith(P384, blob, func(e *ecdh.PublicKey) ([]byte, error) {
		return key.ECDH(e)
	})
	require.NoError(t, err)
	assert.Equal(t, "hardware", string(got))

	_, err = DecryptWith(P384, blob, func(*ecdh.PublicKey) ([]byte, error) {
		return nil, errors.New("token removed")
	})
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

// TestInvalidKeys tests KeyFormat failures for malformed key bytes
func TestInvalidKeys(t *testing.T) {
	_, err := Encrypt(P256, []byte("x"), []byte{0x04, 0x01})
	assert.ErrorIs(t, err, types.ErrKeyFormat)

	_, err = Decrypt(P256, make([]byte, 100), []byte{0x01})
	assert.ErrorIs(t, err, types.ErrKeyFormat)

	_, err = Sign(P384, make([]byte, 10), []byte("m"))
	assert.ErrorIs(t, err, types.ErrKeyFormat)

	_, err = Encrypt(Curve(9), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedCurve)
}

// TestSignVerify tests ECDSA with curve-matched digests
func TestSignVerify(t *testing.T) {
	for _, curve := range curves {
		t.Run(curve.String(), func(t *testing.T) {
			priv, pub, err := Generate(curve)
			require.NoError(t, err)

			sig, err := Sign(curve, priv, []byte("message"))
			require.NoError(t, err)
			assert.Len(t, sig, curve.SignatureSize())

			ok, err := Verify(curve, pub, []byte("message"), sig)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = Verify(curve, pub, []byte("tampered"), sig)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = Verify(curve, pub, []byte("message"), sig[:10])
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

// TestVerifyDigest tests verification against a precomputed digest
func TestVerifyDigest(t *testing.T) {
	priv, pub, err := Generate(P384)
	require.NoError(t, err)
	sig, err := Sign(P384, priv, []byte("challenge"))
	require.NoError(t, err)

	digest := sha512.Sum384([]byte("challenge"))
	ok, err := VerifyDigest(P384, pub, digest[:], sig)
	require.NoError(t, err)
	assert.True(t, ok)

	short := sha256.Sum256([]byte("challenge"))
	_, err = VerifyDigest(P384, pub, short[:], sig)
	assert.ErrorIs(t, err, ErrInvalidDigest)
}

// TestCurveForKey tests curve detection from ECDSA keys
func TestCurveForKey(t *testing.T) {
	k256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	k384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	k521, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	require.NoError(t, err)

	c, err := CurveForKey(&k256.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, P256, c)
	assert.Equal(t, 32, c.DigestSize())

	c, err = CurveForKey(&k384.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, P384, c)
	assert.Equal(t, 48, c.DigestSize())

	_, err = CurveForKey(&k521.PublicKey)
	assert.ErrorIs(t, err, ErrUnsupportedCurve)
	_, err = CurveForKey(nil)
	assert.ErrorIs(t, err, ErrUnsupportedCurve)
}
