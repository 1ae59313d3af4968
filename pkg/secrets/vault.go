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

// Package secrets stores individual secrets, one sealed file per secret,
// inside a named vault.
//
// Secrets are sealed with a per-vault data key. The data key is a random
// 32-byte value that is kept on disk only in its RSA-wrapped form, so every
// read or write requires the vault keyring resolved from the master
// password session.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-vault/pkg/envelope"
	"github.com/jeremyhahn/go-vault/pkg/keyring"
	"github.com/jeremyhahn/go-vault/pkg/logging"
	"github.com/jeremyhahn/go-vault/pkg/storage"
	"github.com/jeremyhahn/go-vault/pkg/types"
)

// DataKeySize is the length of the random per-vault data key
const DataKeySize = 32

// KeyringProvider resolves the vault keyring. masterpassword.Manager
// implements it.
type KeyringProvider interface {
	Keyring() (*keyring.Keyring, error)
}

// Config configures a Vault
type Config struct {
	Storage storage.Backend
	Keys    KeyringProvider
	Vault   string
	Logger  *logging.Logger
}

// Vault provides CRUD over the secrets of one named vault.
type Vault struct {
	mu     sync.Mutex
	store  storage.Backend
	keys   KeyringProvider
	name   string
	logger *logging.Logger
}

// NewVault creates a Vault
func NewVault(config *Config) (*Vault, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if config.Storage == nil {
		return nil, ErrStorageRequired
	}
	if config.Keys == nil {
		return nil, ErrKeysRequired
	}
	name := config.Vault
	if name == "" {
		name = "default"
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Vault{
		store:  config.Storage,
		keys:   config.Keys,
		name:   name,
		logger: logger,
	}, nil
}

// Name returns the vault name
func (v *Vault) Name() string {
	return v.name
}

// Save seals secret and writes it to its own file, replacing any previous
// version with the same id. A secret without an id is assigned one.
func (v *Vault) Save(secret *Secret) error {
	if secret == nil {
		return fmt.Errorf("%w: nil secret", ErrInvalidSecret)
	}
	if secret.ID == uuid.Nil {
		secret.ID = uuid.New()
	}

	dataKey, err := v.dataKey(true)
	if err != nil {
		return err
	}
	defer clear(dataKey)

	plaintext, err := secret.Marshal()
	if err != nil {
		return err
	}
	defer clear(plaintext)

	blob, err := envelope.Seal(dataKey, plaintext)
	if err != nil {
		return err
	}
	if err := v.store.Put(v.secretKey(secret.ID), []byte(blob), nil); err != nil {
		return err
	}

	v.logger.Debug("secrets: saved secret", "vault", v.name, "id", secret.ID.String())
	return nil
}

// Find returns the secret stored under id.
func (v *Vault) Find(id uuid.UUID) (*Secret, error) {
	exists, err := v.store.Exists(v.secretKey(id))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %w: %s", ErrSecretNotFound, types.ErrIO, id)
	}

	dataKey, err := v.dataKey(false)
	if err != nil {
		return nil, err
	}
	defer clear(dataKey)

	return v.read(dataKey, id)
}

// All returns every secret in the vault exactly once, in file name order.
// One unreadable or undecryptable secret fails the whole call.
func (v *Vault) All() ([]*Secret, error) {
	ids, err := v.ids()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Secret{}, nil
	}

	dataKey, err := v.dataKey(false)
	if err != nil {
		return nil, err
	}
	defer clear(dataKey)

	secrets := make([]*Secret, 0, len(ids))
	for _, id := range ids {
		s, err := v.read(dataKey, id)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, s)
	}
	return secrets, nil
}

// Count returns the number of secrets in the vault. It reads file names
// only and does not need the master password.
func (v *Vault) Count() (int, error) {
	ids, err := v.ids()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Delete removes the secret stored under id.
func (v *Vault) Delete(id uuid.UUID) error {
	err := v.store.Delete(v.secretKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrSecretNotFound, err)
	}
	if err != nil {
		return err
	}
	v.logger.Debug("secrets: deleted secret", "vault", v.name, "id", id.String())
	return nil
}

func (v *Vault) read(dataKey []byte, id uuid.UUID) (*Secret, error) {
	blob, err := v.store.Get(v.secretKey(id))
	if err != nil {
		return nil, err
	}
	plaintext, err := envelope.Open(dataKey, string(blob))
	if err != nil {
		return nil, fmt.Errorf("secrets: failed to open secret %s: %w", id, err)
	}
	defer clear(plaintext)

	s, err := UnmarshalSecret(plaintext)
	if err != nil {
		return nil, err
	}
	if s.ID != id {
		return nil, fmt.Errorf("%w: %w: secret %s stored as %s", types.ErrSerialization, ErrInvalidSecret, s.ID, id)
	}
	return s, nil
}

// ids lists the secret ids stored in the vault. Files without the secret
// extension are ignored; a file with the extension but a malformed id is
// a serialization error.
func (v *Vault) ids() ([]uuid.UUID, error) {
	prefix := storage.VaultKey(v.name, storage.SecretsDir) + "/"
	keys, err := v.store.List(prefix)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(keys))
	for _, key := range keys {
		base := path.Base(key)
		if path.Dir(key)+"/" != prefix || !strings.HasSuffix(base, storage.SecretExt) {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(base, storage.SecretExt))
		if err != nil {
			return nil, fmt.Errorf("%w: %w: bad file name %q", types.ErrSerialization, ErrInvalidSecret, base)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// dataKey unwraps the vault data key with the resolved keyring. When create
// is set and the vault has no data key yet, a new one is generated and
// stored in its wrapped form.
func (v *Vault) dataKey(create bool) ([]byte, error) {
	kr, err := v.keys.Keyring()
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	keyPath := storage.VaultKey(v.name, storage.DataKeyFile)
	wrapped, err := v.store.Get(keyPath)
	switch {
	case err == nil:
		encoded, err := kr.DecryptString(string(wrapped))
		if err != nil {
			return nil, fmt.Errorf("secrets: failed to unwrap data key: %w", err)
		}
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(key) != DataKeySize {
			return nil, fmt.Errorf("%w: secrets: malformed data key", types.ErrSerialization)
		}
		return key, nil
	case !errors.Is(err, storage.ErrNotFound) || !create:
		return nil, err
	}

	key := make([]byte, DataKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("secrets: failed to generate data key: %w", err)
	}
	ciphertext, err := kr.EncryptString(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		return nil, err
	}
	if err := v.store.Put(keyPath, []byte(ciphertext), nil); err != nil {
		return nil, err
	}
	v.logger.Info("secrets: created vault data key", "vault", v.name)
	return key, nil
}

func (v *Vault) secretKey(id uuid.UUID) string {
	return storage.VaultKey(v.name, storage.SecretsDir, id.String()+storage.SecretExt)
}
