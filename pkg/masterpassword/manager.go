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

// Package masterpassword stores and verifies the master password and keeps
// the vault's RSA private key sealed under it.
//
// The master password record is the password sealed under an envelope
// derived from itself. Verification opens the record and compares the
// recovered bytes with the input, so no separate hash is stored.
package masterpassword

import (
	"bytes"
	"crypto/subtle"
	"fmt"

	"github.com/jeremyhahn/go-vault/pkg/envelope"
	"github.com/jeremyhahn/go-vault/pkg/keyring"
	"github.com/jeremyhahn/go-vault/pkg/logging"
	"github.com/jeremyhahn/go-vault/pkg/session"
	"github.com/jeremyhahn/go-vault/pkg/storage"
	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/jeremyhahn/go-vault/pkg/validation"
)

// DefaultVault is the vault used when none is configured
const DefaultVault = "default"

// Config configures a Manager
type Config struct {
	Storage storage.Backend
	Session *session.State
	Vault   string
	Logger  *logging.Logger
}

// Manager orchestrates the master password record and the sealed keyring.
type Manager struct {
	store   storage.Backend
	session *session.State
	vault   string
	logger  *logging.Logger
}

// NewManager creates a Manager
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if config.Storage == nil {
		return nil, ErrStorageRequired
	}
	if config.Session == nil {
		return nil, ErrSessionRequired
	}
	vault := config.Vault
	if vault == "" {
		vault = DefaultVault
	}
	if err := validation.ValidateVaultName(vault); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Manager{
		store:   config.Storage,
		session: config.Session,
		vault:   vault,
		logger:  logger,
	}, nil
}

// Vault returns the vault name this manager protects
func (m *Manager) Vault() string {
	return m.vault
}

// IsInitialized reports whether a master password record exists
func (m *Manager) IsInitialized() (bool, error) {
	return m.store.Exists(storage.MasterPasswordKey)
}

// Save seals password into the master password record, generates a keyring
// (or imports externalPrivateKeyPEM when non-empty), seals the private key
// under a fresh envelope, writes the public key in the clear and
// authenticates the session. Save refuses with ErrPrivateKeyExists before
// writing anything if the vault already holds a private key.
//
// The master password record is shared by every vault under the root. When
// it already exists, password must open it; a new vault never replaces the
// password of the others. If a write fails, the keys written so far are
// removed so Save can be retried.
func (m *Manager) Save(password []byte, externalPrivateKeyPEM string) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}

	privKey := storage.VaultKey(m.vault, storage.PrivateKeyFile)
	exists, err := m.store.Exists(privKey)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: vault %q", ErrPrivateKeyExists, m.vault)
	}

	haveRecord, err := m.store.Exists(storage.MasterPasswordKey)
	if err != nil {
		return err
	}
	if haveRecord {
		if err := m.openRecord(password); err != nil {
			return fmt.Errorf("%w: master password is already set", err)
		}
	}

	var kr *keyring.Keyring
	if externalPrivateKeyPEM != "" {
		kr, err = keyring.FromPEM(externalPrivateKeyPEM)
		if err != nil {
			return fmt.Errorf("masterpassword: invalid external private key: %w", err)
		}
		m.logger.Info("masterpassword: importing external private key", "vault", m.vault)
	} else {
		kr, err = keyring.Generate()
		if err != nil {
			return err
		}
		m.logger.Info("masterpassword: generated new keyring", "vault", m.vault)
	}

	privPEM, err := kr.PrivatePEM()
	if err != nil {
		return err
	}
	pemBytes := []byte(privPEM)
	sealedKey, err := envelope.Seal(password, pemBytes)
	clear(pemBytes)
	if err != nil {
		return err
	}

	pubPEM, err := kr.PublicPEM()
	if err != nil {
		return err
	}

	writes := []write{
		{key: privKey, value: []byte(sealedKey)},
		{key: storage.VaultKey(m.vault, storage.PublicKeyFile), value: []byte(pubPEM), opts: &storage.Options{Permissions: 0644}},
	}
	if !haveRecord {
		record, err := envelope.Seal(password, password)
		if err != nil {
			return err
		}
		writes = append(writes, write{key: storage.MasterPasswordKey, value: []byte(record)})
	}
	if err := m.putAll(writes); err != nil {
		return err
	}

	return m.session.Authenticate(bytes.Clone(password))
}

type write struct {
	key   string
	value []byte
	opts  *storage.Options
}

// putAll stores every write in order. On failure the keys already stored
// are deleted again.
func (m *Manager) putAll(writes []write) error {
	for i, w := range writes {
		if err := m.store.Put(w.key, w.value, w.opts); err != nil {
			for j := i - 1; j >= 0; j-- {
				m.logger.MaybeError(m.store.Delete(writes[j].key))
			}
			m.logger.Warn("masterpassword: save rolled back", "vault", m.vault, "key", w.key)
			return err
		}
	}
	return nil
}

// Verify opens the master password record with password. On success the
// session becomes authenticated. Every failure to open or match the record
// is reported as types.ErrWrongPassword.
func (m *Manager) Verify(password []byte) error {
	if err := m.openRecord(password); err != nil {
		return err
	}
	return m.session.Authenticate(bytes.Clone(password))
}

// openRecord checks password against the stored record.
func (m *Manager) openRecord(password []byte) error {
	record, err := m.store.Get(storage.MasterPasswordKey)
	if err != nil {
		m.logger.Debugf("masterpassword: verify failed to read record: %v", err)
		return types.ErrWrongPassword
	}

	recovered, err := envelope.Open(password, string(record))
	if err != nil {
		m.logger.Debugf("masterpassword: verify failed to open record: %v", err)
		return types.ErrWrongPassword
	}
	defer clear(recovered)

	if subtle.ConstantTimeCompare(recovered, password) != 1 {
		return types.ErrWrongPassword
	}
	return nil
}

// Keyring resolves the vault keyring from the session: it opens the sealed
// private key with the unlocked master password. The keyring is not cached.
func (m *Manager) Keyring() (*keyring.Keyring, error) {
	var kr *keyring.Keyring
	err := m.session.WithMasterPassword(func(password []byte) error {
		blob, err := m.store.Get(storage.VaultKey(m.vault, storage.PrivateKeyFile))
		if err != nil {
			return err
		}
		pemBytes, err := envelope.Open(password, string(blob))
		if err != nil {
			return err
		}
		defer clear(pemBytes)

		kr, err = keyring.FromPEM(string(pemBytes))
		return err
	})
	if err != nil {
		return nil, err
	}
	return kr, nil
}

// PublicKeyring loads the vault public key. No password is required.
func (m *Manager) PublicKeyring() (*keyring.Keyring, error) {
	data, err := m.store.Get(storage.VaultKey(m.vault, storage.PublicKeyFile))
	if err != nil {
		return nil, err
	}
	return keyring.FromPublicPEM(string(data))
}

// WithMasterPassword runs fn with a temporary copy of the unlocked master
// password. It returns types.ErrNoMasterPassword when unauthenticated.
func (m *Manager) WithMasterPassword(fn func(password []byte) error) error {
	return m.session.WithMasterPassword(fn)
}
