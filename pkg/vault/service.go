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

// Package vault is the entry point of go-vault. A Service wires the master
// password session, the secret store and the hardware token bridge over a
// single data directory and exposes the operations a front end calls.
//
// Example Usage:
//
//	svc, err := vault.NewService(&vault.Config{RootDir: "/var/lib/vault"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	if err := svc.SaveMasterPassword("correct horse", ""); err != nil {
//	    log.Fatal(err)
//	}
//	id, err := svc.CreateSecret("password", "github", "hunter2")
package vault

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-vault/pkg/logging"
	"github.com/jeremyhahn/go-vault/pkg/masterpassword"
	"github.com/jeremyhahn/go-vault/pkg/metrics"
	"github.com/jeremyhahn/go-vault/pkg/secrets"
	"github.com/jeremyhahn/go-vault/pkg/session"
	"github.com/jeremyhahn/go-vault/pkg/storage"
	"github.com/jeremyhahn/go-vault/pkg/storage/file"
	"github.com/jeremyhahn/go-vault/pkg/yubikey"
	"github.com/spf13/afero"
)

var (
	ErrConfigRequired  = errors.New("vault: config is required")
	ErrRootDirRequired = errors.New("vault: root directory is required")
)

// Config configures a Service
type Config struct {
	// Fs is the filesystem holding RootDir. Nil uses the OS filesystem.
	Fs afero.Fs

	// RootDir is the application data directory
	RootDir string

	// Vault is the vault name. Empty uses masterpassword.DefaultVault.
	Vault string

	// Provider enumerates and opens hardware tokens. Nil disables device
	// access; bound public keys remain usable for HardwareEncrypt.
	Provider yubikey.Provider

	Logger *logging.Logger
}

var _ metrics.Source = (*Service)(nil)

// Service exposes the vault operations over one data directory. It also
// serves as a metrics.Source for metrics.StartCollector.
type Service struct {
	store    storage.Backend
	session  *session.State
	manager  *masterpassword.Manager
	secrets  *secrets.Vault
	bridge   *yubikey.Bridge
	provider yubikey.Provider
	logger   *logging.Logger
}

// NewService creates a Service. The session starts unauthenticated.
func NewService(config *Config) (*Service, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if config.RootDir == "" {
		return nil, ErrRootDirRequired
	}
	fs := config.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	provider := config.Provider
	if provider == nil {
		provider = absentProvider{}
	}

	store, err := file.New(fs, config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open storage: %w", err)
	}

	sess := session.New(logger)
	manager, err := masterpassword.NewManager(&masterpassword.Config{
		Storage: store,
		Session: sess,
		Vault:   config.Vault,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	secretVault, err := secrets.NewVault(&secrets.Config{
		Storage: store,
		Keys:    manager,
		Vault:   manager.Vault(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	registry, err := yubikey.NewRegistry(&yubikey.RegistryConfig{
		Storage:  store,
		Password: manager,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	bridge, err := yubikey.NewBridge(&yubikey.Config{
		Provider: provider,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("vault: service ready", "root", config.RootDir, "vault", manager.Vault())
	return &Service{
		store:    store,
		session:  sess,
		manager:  manager,
		secrets:  secretVault,
		bridge:   bridge,
		provider: provider,
		logger:   logger,
	}, nil
}

// SaveMasterPassword initializes the vault: it creates or imports the vault
// keypair, seals the private key and the verification record under
// password, and authenticates the session. An existing private key is never
// replaced.
func (s *Service) SaveMasterPassword(password, externalPrivateKeyPEM string) (err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpSaveMasterPassword, start, err) }(time.Now())
	if err := s.manager.Save([]byte(password), externalPrivateKeyPEM); err != nil {
		return err
	}
	metrics.SetAuthenticated(true)
	return nil
}

// VerifyMasterPassword authenticates the session when password matches the
// stored record. Any failure is reported as types.ErrWrongPassword.
func (s *Service) VerifyMasterPassword(password string) (err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpVerifyMasterPassword, start, err) }(time.Now())
	if err := s.manager.Verify([]byte(password)); err != nil {
		return err
	}
	metrics.SetAuthenticated(true)
	return nil
}

// LogOut forgets the master password
func (s *Service) LogOut() (err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpLogOut, start, err) }(time.Now())
	if err := s.session.LogOut(); err != nil {
		return err
	}
	metrics.SetAuthenticated(false)
	return nil
}

// IsAuthenticated reports whether the session holds a master password
func (s *Service) IsAuthenticated() (bool, error) {
	return s.session.IsAuthenticated()
}

// CreateSecret stores a new secret and returns its id
func (s *Service) CreateSecret(kind, name, value string) (id uuid.UUID, err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpCreateSecret, start, err) }(time.Now())
	secret := secrets.NewSecret(kind, name, value)
	if err := s.secrets.Save(secret); err != nil {
		return uuid.Nil, err
	}
	return secret.ID, nil
}

// GetSecret returns the secret stored under id
func (s *Service) GetSecret(id uuid.UUID) (secret *secrets.Secret, err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpGetSecret, start, err) }(time.Now())
	return s.secrets.Find(id)
}

// ListSecrets returns every secret in the vault. One unreadable secret
// fails the whole listing.
func (s *Service) ListSecrets() (list []*secrets.Secret, err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpListSecrets, start, err) }(time.Now())
	list, err = s.secrets.All()
	if err == nil {
		metrics.SetSecretsTotal(s.secrets.Name(), len(list))
	}
	return list, err
}

// DeleteSecret removes the secret stored under id
func (s *Service) DeleteSecret(id uuid.UUID) (err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpDeleteSecret, start, err) }(time.Now())
	return s.secrets.Delete(id)
}

// ListHardwareDevices lists connected tokens
func (s *Service) ListHardwareDevices() (infos []*yubikey.Info, err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpListDevices, start, err) }(time.Now())
	return s.bridge.Devices()
}

// BindHardwareDevice records the key management public key of serial. An
// empty publicKeyPEM reads the key from the connected device.
func (s *Service) BindHardwareDevice(serial, publicKeyPEM string) (err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpBindDevice, start, err) }(time.Now())
	return s.bridge.Bind(serial, publicKeyPEM)
}

// HardwareEncrypt encrypts plaintext to the bound key of serial
func (s *Service) HardwareEncrypt(serial string, plaintext []byte) (ciphertext []byte, err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpHardwareEncrypt, start, err) }(time.Now())
	return s.bridge.Encrypt(serial, plaintext)
}

// HardwareDecrypt decrypts ciphertext on the device after verifying pin
func (s *Service) HardwareDecrypt(serial, pin string, ciphertext []byte) (plaintext []byte, err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpHardwareDecrypt, start, err) }(time.Now())
	return s.bridge.Decrypt(serial, pin, ciphertext)
}

// HardwareGenerateChallenge returns a random 32-byte challenge
func (s *Service) HardwareGenerateChallenge() (challenge []byte, err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpHardwareChallenge, start, err) }(time.Now())
	return s.bridge.GenerateChallenge()
}

// HardwareGenerateChallengeFor returns a random challenge sized for the
// authentication key of serial
func (s *Service) HardwareGenerateChallengeFor(serial string) (challenge []byte, err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpHardwareChallenge, start, err) }(time.Now())
	return s.bridge.GenerateChallengeFor(serial)
}

// HardwareAuthenticate signs challenge with the authentication key of serial
func (s *Service) HardwareAuthenticate(serial, pin string, challenge []byte) (signature []byte, err error) {
	defer func(start time.Time) { err = metrics.Observe(metrics.OpHardwareAuthenticate, start, err) }(time.Now())
	return s.bridge.Authenticate(serial, pin, challenge)
}

// VaultName returns the name of the open vault
func (s *Service) VaultName() string {
	return s.secrets.Name()
}

// SecretCount returns the number of stored secrets
func (s *Service) SecretCount() (int, error) {
	return s.secrets.Count()
}

// DeviceCount returns the number of bound hardware devices
func (s *Service) DeviceCount() (int, error) {
	infos, err := s.bridge.Registry().List()
	if err != nil {
		return 0, err
	}
	return len(infos), nil
}

// Close logs out and releases the token provider and storage
func (s *Service) Close() error {
	return errors.Join(
		s.session.LogOut(),
		s.provider.Close(),
		s.store.Close(),
	)
}
