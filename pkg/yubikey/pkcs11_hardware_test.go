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

//go:build pkcs11 && yubikey

package yubikey

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"os"
	"testing"

	"github.com/jeremyhahn/go-vault/pkg/crypto/ecies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hardwareDevice opens the first connected token or skips the test. The
// PIN comes from YUBIKEY_PIN and defaults to the factory PIN.
func hardwareDevice(t *testing.T) (*Device, string) {
	t.Helper()
	lib, err := ResolveLibrary(nil)
	if err != nil {
		t.Skipf("no PKCS#11 library: %v", err)
	}
	provider, err := NewPKCS11Provider(lib, nil)
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })

	tokens, err := provider.Tokens()
	require.NoError(t, err)
	if len(tokens) == 0 {
		t.Skip("no token connected")
	}

	d := NewDevice(provider, tokens[0].Serial, nil)
	require.NoError(t, d.Open())
	t.Cleanup(func() { d.Close() })

	pin := os.Getenv("YUBIKEY_PIN")
	if pin == "" {
		pin = "123456"
	}
	return d, pin
}

// TestHardware_Decrypt tests decryption with the key management slot
func TestHardware_Decrypt(t *testing.T) {
	d, pin := hardwareDevice(t)

	pub, _, err := d.PublicKey(SlotKeyManagement)
	if errors.Is(err, ErrCertificateNotFound) {
		t.Skip("key management slot is empty")
	}
	require.NoError(t, err)

	var ct []byte
	switch key := pub.(type) {
	case *rsa.PublicKey:
		ct, err = rsa.EncryptPKCS1v15(rand.Reader, key, []byte("hardware round trip"))
	case *ecdsa.PublicKey:
		curve, cerr := ecies.CurveForKey(key)
		require.NoError(t, cerr)
		point, perr := key.ECDH()
		require.NoError(t, perr)
		ct, err = ecies.Encrypt(curve, []byte("hardware round trip"), point.Bytes())
	}
	require.NoError(t, err)

	require.NoError(t, d.Login(pin))
	pt, err := d.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "hardware round trip", string(pt))
}

// TestHardware_Authenticate tests challenge signing with the
// authentication slot
func TestHardware_Authenticate(t *testing.T) {
	d, pin := hardwareDevice(t)

	_, alg, err := d.PublicKey(SlotAuthentication)
	if errors.Is(err, ErrCertificateNotFound) {
		t.Skip("authentication slot is empty")
	}
	require.NoError(t, err)

	challenge := make([]byte, alg.ChallengeSize())
	_, err = rand.Read(challenge)
	require.NoError(t, err)

	sig, err := d.Authenticate(pin, challenge)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}
