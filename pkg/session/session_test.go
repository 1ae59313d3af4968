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

package session

import (
	"sync"
	"testing"

	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestState_Transitions tests Unauthenticated -> Authenticated -> Unauthenticated
func TestState_Transitions(t *testing.T) {
	s := New(nil)

	ok, err := s.IsAuthenticated()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.MasterPassword()
	assert.ErrorIs(t, err, types.ErrNoMasterPassword)

	input := []byte("secret")
	require.NoError(t, s.Authenticate(input))
	assert.Equal(t, make([]byte, 6), input, "caller slice should be wiped")

	ok, err = s.IsAuthenticated()
	require.NoError(t, err)
	assert.True(t, ok)

	buf, err := s.MasterPassword()
	require.NoError(t, err)
	assert.Equal(t, "secret", string(buf.Bytes()))
	buf.Destroy()

	require.NoError(t, s.LogOut())
	ok, err = s.IsAuthenticated()
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.WithMasterPassword(func([]byte) error { return nil })
	assert.ErrorIs(t, err, types.ErrNoMasterPassword)
}

// TestState_ReAuthenticate tests that a second Authenticate replaces the password
func TestState_ReAuthenticate(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Authenticate([]byte("first")))
	require.NoError(t, s.Authenticate([]byte("second")))

	var got string
	require.NoError(t, s.WithMasterPassword(func(p []byte) error {
		got = string(p)
		return nil
	}))
	assert.Equal(t, "second", got)
}

// TestState_EmptyPassword tests that an empty password is refused
func TestState_EmptyPassword(t *testing.T) {
	s := New(nil)
	assert.ErrorIs(t, s.Authenticate(nil), types.ErrNoMasterPassword)

	ok, err := s.IsAuthenticated()
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestState_Poisoned tests that a panic under the guard is reported as
// ErrSessionLock and not as "not authenticated"
func TestState_Poisoned(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Authenticate([]byte("secret")))

	err := s.guard(func() error { panic("boom") })
	assert.ErrorIs(t, err, types.ErrSessionLock)

	_, err = s.IsAuthenticated()
	assert.ErrorIs(t, err, types.ErrSessionLock)
	_, err = s.MasterPassword()
	assert.ErrorIs(t, err, types.ErrSessionLock)
	assert.ErrorIs(t, s.LogOut(), types.ErrSessionLock)
	assert.ErrorIs(t, s.Authenticate([]byte("again")), types.ErrSessionLock)
}

// TestState_Concurrent tests concurrent readers and writers
func TestState_Concurrent(t *testing.T) {
	s := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, s.Authenticate([]byte("secret")))
			} else {
				_, err := s.IsAuthenticated()
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	ok, err := s.IsAuthenticated()
	require.NoError(t, err)
	assert.True(t, ok)
}
