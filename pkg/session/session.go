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

// Package session holds the process-wide authentication state.
//
// A State is either unauthenticated or authenticated with an unlocked master
// password. The password is kept in a memguard enclave (encrypted at rest in
// memory) and only decrypted into a locked buffer for the duration of a
// single operation.
//
// The guard is held only while reading or replacing the enclave, never
// across filesystem or hardware work. A panic raised while the guard is
// held poisons the state; every later call returns types.ErrSessionLock.
package session

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/jeremyhahn/go-vault/pkg/logging"
	"github.com/jeremyhahn/go-vault/pkg/types"
)

// State is the authentication state machine.
type State struct {
	mu       sync.Mutex
	logger   *logging.Logger
	password *memguard.Enclave
	poisoned bool
}

// New returns an unauthenticated State.
func New(logger *logging.Logger) *State {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &State{logger: logger}
}

// Authenticate transitions to Authenticated, replacing any previously
// unlocked password. The caller's slice is wiped.
func (s *State) Authenticate(password []byte) error {
	if len(password) == 0 {
		return fmt.Errorf("session: %w", types.ErrNoMasterPassword)
	}
	return s.guard(func() error {
		s.password = memguard.NewEnclave(password)
		s.logger.Debug("session: authenticated")
		return nil
	})
}

// LogOut transitions to Unauthenticated and drops the unlocked password.
func (s *State) LogOut() error {
	return s.guard(func() error {
		s.password = nil
		s.logger.Debug("session: logged out")
		return nil
	})
}

// IsAuthenticated reports whether a master password is unlocked.
func (s *State) IsAuthenticated() (bool, error) {
	var ok bool
	err := s.guard(func() error {
		ok = s.password != nil
		return nil
	})
	return ok, err
}

// MasterPassword opens the unlocked password into a locked buffer. The
// caller must Destroy the buffer when done. Returns types.ErrNoMasterPassword
// when unauthenticated.
func (s *State) MasterPassword() (*memguard.LockedBuffer, error) {
	var buf *memguard.LockedBuffer
	err := s.guard(func() error {
		if s.password == nil {
			return types.ErrNoMasterPassword
		}
		b, err := s.password.Open()
		if err != nil {
			return fmt.Errorf("session: failed to open password enclave: %w", err)
		}
		buf = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// WithMasterPassword copies the unlocked password out of the guard, calls fn
// with it and wipes the copy afterwards. fn runs without the guard held.
func (s *State) WithMasterPassword(fn func(password []byte) error) error {
	buf, err := s.MasterPassword()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// guard runs fn under the lock. A panic in fn poisons the state.
func (s *State) guard(fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return types.ErrSessionLock
	}

	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
			s.password = nil
			s.logger.Errorf("session: guard poisoned by panic: %v", r)
			err = fmt.Errorf("%w: %v", types.ErrSessionLock, r)
		}
	}()

	return fn()
}
