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

package yubikey

import (
	"crypto/elliptic"
	"sync"
	"testing"

	"github.com/jeremyhahn/go-vault/pkg/encoding"
	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T, tokens ...*softToken) (*Bridge, *softProvider) {
	t.Helper()
	registry, _ := newTestRegistry(t, &passwordSource{password: []byte("secret")})
	provider := newSoftProvider(tokens...)
	b, err := NewBridge(&Config{Provider: provider, Registry: registry})
	require.NoError(t, err)
	return b, provider
}

// TestNewBridge tests config validation
func TestNewBridge(t *testing.T) {
	_, err := NewBridge(nil)
	assert.ErrorIs(t, err, ErrConfigRequired)
	_, err = NewBridge(&Config{})
	assert.ErrorIs(t, err, ErrProviderRequired)
	_, err = NewBridge(&Config{Provider: newSoftProvider()})
	assert.ErrorIs(t, err, ErrRegistryRequired)
}

// TestBridge_Devices tests listing connected tokens
func TestBridge_Devices(t *testing.T) {
	withKey := newSoftToken(t, "1001", rsaKey(t), nil)
	empty := newSoftToken(t, "1002", nil, nil)
	b, _ := newTestBridge(t, withKey, empty)

	infos, err := b.Devices()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	bySerial := map[string]*Info{}
	for _, info := range infos {
		bySerial[info.Serial] = info
	}
	assert.Equal(t, "YubiKey 1001", bySerial["1001"].Name)
	assert.Equal(t, "5.4.3", bySerial["1001"].FirmwareVersion)
	assert.Equal(t, AlgorithmRSA2048, bySerial["1001"].Algorithm)
	assert.NotEmpty(t, bySerial["1001"].PublicKeyPEM)
	assert.Empty(t, bySerial["1002"].PublicKeyPEM)
}

// TestBridge_RSARoundTrip tests bind, encrypt without the device and
// decrypt on the device
func TestBridge_RSARoundTrip(t *testing.T) {
	tok := newSoftToken(t, "1001", rsaKey(t), nil)
	b, provider := newTestBridge(t, tok)

	require.NoError(t, b.Bind("1001", ""))
	info, err := b.Registry().Get("1001")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmRSA2048, info.Algorithm)
	assert.Equal(t, "5.4.3", info.FirmwareVersion)

	// Encryption uses the cached key; the device is not opened.
	opens := provider.opens
	ct, err := b.Encrypt("1001", []byte("top secret"))
	require.NoError(t, err)
	assert.Equal(t, opens, provider.opens)
	assert.Len(t, ct, 256)

	pt, err := b.Decrypt("1001", "123456", ct)
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(pt))

	_, err = b.Decrypt("1001", "000000", ct)
	assert.ErrorIs(t, err, types.ErrDevicePinFailed)
	assert.False(t, tok.inUse.Load(), "device must be closed after use")
}

// TestBridge_ECRoundTrip tests hardware encryption with an EC key
func TestBridge_ECRoundTrip(t *testing.T) {
	tok := newSoftToken(t, "2001", ecKey(t, elliptic.P384()), nil)
	b, _ := newTestBridge(t, tok)

	require.NoError(t, b.Bind("2001", ""))
	ct, err := b.Encrypt("2001", []byte("ec data"))
	require.NoError(t, err)
	assert.Equal(t, byte(0x04), ct[0])

	pt, err := b.Decrypt("2001", "123456", ct)
	require.NoError(t, err)
	assert.Equal(t, "ec data", string(pt))
}

// TestBridge_BindAbsentDevice tests binding with a supplied public key
func TestBridge_BindAbsentDevice(t *testing.T) {
	b, _ := newTestBridge(t)

	key := rsaKey(t)
	pemText, err := encoding.EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)

	require.NoError(t, b.Bind("4242", pemText))
	info, err := b.Registry().Get("4242")
	require.NoError(t, err)
	assert.Equal(t, "YubiKey 4242", info.Name)

	_, err = b.Encrypt("4242", []byte("data"))
	require.NoError(t, err)

	// Without a key the absent device cannot be bound.
	assert.ErrorIs(t, b.Bind("4343", ""), types.ErrDeviceNotFound)
	assert.ErrorIs(t, b.Bind("4444", "not a pem"), types.ErrKeyFormat)
}

// TestBridge_EncryptErrors tests encryption without a binding
func TestBridge_EncryptErrors(t *testing.T) {
	b, _ := newTestBridge(t)

	_, err := b.Encrypt("nope", []byte("data"))
	assert.ErrorIs(t, err, types.ErrDeviceNotFound)
	_, err = b.Encrypt("nope", nil)
	assert.ErrorIs(t, err, ErrEmptyPlaintext)
}

// TestBridge_Challenge tests challenge generation and authentication
func TestBridge_Challenge(t *testing.T) {
	p384 := newSoftToken(t, "3001", nil, ecKey(t, elliptic.P384()))
	rsa := newSoftToken(t, "3002", nil, rsaKey(t))
	b, _ := newTestBridge(t, p384, rsa)

	c1, err := b.GenerateChallenge()
	require.NoError(t, err)
	assert.Len(t, c1, 32)
	c2, err := b.GenerateChallenge()
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)

	challenge, err := b.GenerateChallengeFor("3001")
	require.NoError(t, err)
	assert.Len(t, challenge, 48)

	sig, err := b.Authenticate("3001", "123456", challenge)
	require.NoError(t, err)
	assert.Len(t, sig, 96)

	_, err = b.Authenticate("3001", "123456", c1)
	assert.ErrorIs(t, err, ErrInvalidChallenge)

	challenge, err = b.GenerateChallengeFor("3002")
	require.NoError(t, err)
	assert.Len(t, challenge, 32)
	sig, err = b.Authenticate("3002", "123456", challenge)
	require.NoError(t, err)
	assert.Len(t, sig, 256)

	_, err = b.GenerateChallengeFor("missing")
	assert.ErrorIs(t, err, types.ErrDeviceNotFound)
}

// TestBridge_SerializesPerSerial tests that concurrent callers never
// share an open device
func TestBridge_SerializesPerSerial(t *testing.T) {
	tok := newSoftToken(t, "5001", nil, ecKey(t, elliptic.P256()))
	b, _ := newTestBridge(t, tok)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			challenge, err := b.GenerateChallenge()
			assert.NoError(t, err)
			_, err = b.Authenticate("5001", "123456", challenge)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, tok.overlapped.Load(), "device sessions interleaved")
}
