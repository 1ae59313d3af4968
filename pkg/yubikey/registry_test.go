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
	"testing"

	"github.com/jeremyhahn/go-vault/pkg/storage"
	"github.com/jeremyhahn/go-vault/pkg/storage/file"
	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, password *passwordSource) (*Registry, storage.Backend) {
	t.Helper()
	store, err := file.New(afero.NewMemMapFs(), "/vault")
	require.NoError(t, err)
	r, err := NewRegistry(&RegistryConfig{Storage: store, Password: password})
	require.NoError(t, err)
	return r, store
}

// TestNewRegistry tests config validation
func TestNewRegistry(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.ErrorIs(t, err, ErrConfigRequired)
	_, err = NewRegistry(&RegistryConfig{})
	assert.ErrorIs(t, err, ErrStorageRequired)

	store, err := file.New(afero.NewMemMapFs(), "/vault")
	require.NoError(t, err)
	_, err = NewRegistry(&RegistryConfig{Storage: store})
	assert.ErrorIs(t, err, ErrPasswordRequired)
}

// TestRegistry_PutGetList tests upserts, lookups and removal
func TestRegistry_PutGetList(t *testing.T) {
	r, store := newTestRegistry(t, &passwordSource{password: []byte("secret")})

	infos, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, err = r.Get("1234")
	assert.ErrorIs(t, err, ErrNotBound)
	assert.ErrorIs(t, err, types.ErrDeviceNotFound)

	require.NoError(t, r.Put(&Info{Serial: "1234", Name: DefaultName("1234"), PublicKeyPEM: "pem-1"}))
	require.NoError(t, r.Put(&Info{Serial: "5678", Name: DefaultName("5678")}))
	require.NoError(t, r.Put(&Info{Serial: "1234", Name: "renamed", PublicKeyPEM: "pem-2"}))

	infos, err = r.List()
	require.NoError(t, err)
	assert.Len(t, infos, 2)

	info, err := r.Get("1234")
	require.NoError(t, err)
	assert.Equal(t, "renamed", info.Name)
	assert.Equal(t, "pem-2", info.PublicKeyPEM)

	// The record is sealed on disk.
	blob, err := store.Get(storage.DeviceRegistryKey)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "renamed")

	require.NoError(t, r.Remove("1234"))
	require.NoError(t, r.Remove("unknown"))
	infos, err = r.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "5678", infos[0].Serial)

	assert.ErrorIs(t, r.Put(&Info{}), types.ErrSerialization)
}

// TestRegistry_WrongPassword tests that the registry cannot be read under
// another master password
func TestRegistry_WrongPassword(t *testing.T) {
	pw := &passwordSource{password: []byte("secret")}
	r, _ := newTestRegistry(t, pw)
	require.NoError(t, r.Put(&Info{Serial: "1"}))

	pw.password = []byte("other")
	_, err := r.List()
	assert.ErrorIs(t, err, types.ErrAuthenticationFailed)

	pw.err = types.ErrNoMasterPassword
	_, err = r.Get("1")
	assert.ErrorIs(t, err, types.ErrNoMasterPassword)
}

// TestNewInfo tests the record built from a token
func TestNewInfo(t *testing.T) {
	info := NewInfo(Token{Serial: "13062801", Firmware: DecodeFirmwareVersion(5, 43)})
	assert.Equal(t, "YubiKey 13062801", info.Name)
	assert.Equal(t, "5.4.3", info.FirmwareVersion)
	assert.Equal(t, DefaultFormFactor, info.FormFactor)
	assert.False(t, info.IsFIPS)
}
