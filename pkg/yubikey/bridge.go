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
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jeremyhahn/go-vault/pkg/crypto/ecies"
	"github.com/jeremyhahn/go-vault/pkg/encoding"
	"github.com/jeremyhahn/go-vault/pkg/keyring"
	"github.com/jeremyhahn/go-vault/pkg/logging"
	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/jeremyhahn/go-vault/pkg/validation"
)

// DefaultChallengeSize is the length of a challenge generated without
// knowledge of the target device
const DefaultChallengeSize = sha256.Size

// Config configures a Bridge
type Config struct {
	Provider Provider
	Registry *Registry
	Logger   *logging.Logger
}

// Bridge runs hardware operations against devices by serial number. Each
// operation opens the device, uses it and closes it again while holding a
// per-serial lock, so two callers never interleave on the same token.
type Bridge struct {
	provider Provider
	registry *Registry
	logger   *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBridge creates a Bridge
func NewBridge(config *Config) (*Bridge, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if config.Provider == nil {
		return nil, ErrProviderRequired
	}
	if config.Registry == nil {
		return nil, ErrRegistryRequired
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Bridge{
		provider: config.Provider,
		registry: config.Registry,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// Registry returns the device registry
func (b *Bridge) Registry() *Registry {
	return b.registry
}

// Devices lists connected tokens. The public key of the key management
// slot is read from each token when a certificate is present.
func (b *Bridge) Devices() ([]*Info, error) {
	tokens, err := b.provider.Tokens()
	if err != nil {
		return nil, err
	}

	infos := make([]*Info, 0, len(tokens))
	for _, token := range tokens {
		info := NewInfo(token)
		err := b.withDevice(token.Serial, func(d *Device) error {
			pub, alg, err := d.PublicKey(SlotKeyManagement)
			if err != nil {
				return err
			}
			pemText, err := encoding.EncodePublicKeyPEM(pub)
			if err != nil {
				return err
			}
			info.PublicKeyPEM = pemText
			info.Algorithm = alg
			return nil
		})
		if err != nil {
			b.logger.Debug("yubikey: no key management key",
				"serial", token.Serial,
				"label", validation.SanitizeForLog(token.Label),
				"error", err.Error())
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Bind records the public key for serial in the registry. An empty
// publicKeyPEM is read from the device's key management certificate.
func (b *Bridge) Bind(serial, publicKeyPEM string) error {
	info := &Info{
		Serial:     serial,
		Name:       DefaultName(serial),
		FormFactor: DefaultFormFactor,
	}

	err := b.withDevice(serial, func(d *Device) error {
		token, err := d.Token()
		if err != nil {
			return err
		}
		info = NewInfo(token)
		if publicKeyPEM == "" {
			publicKeyPEM, err = d.PublicKeyPEM(SlotKeyManagement)
		}
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, types.ErrDeviceNotFound) && publicKeyPEM != "":
		// Binding an absent device only needs the supplied key.
	default:
		return err
	}

	pub, err := encoding.DecodePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return err
	}
	alg, err := AlgorithmForKey(pub)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrKeyFormat, err)
	}

	info.PublicKeyPEM = publicKeyPEM
	info.Algorithm = alg
	return b.registry.Put(info)
}

// Encrypt encrypts plaintext to the bound public key of serial. The device
// does not need to be present. RSA keys produce a PKCS#1 v1.5 ciphertext;
// EC keys produce an ECIES blob.
func (b *Bridge) Encrypt(serial string, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, ErrEmptyPlaintext
	}
	info, err := b.registry.Get(serial)
	if err != nil {
		return nil, err
	}
	if info.PublicKeyPEM == "" {
		return nil, fmt.Errorf("%w: %w: serial %s has no public key", types.ErrDeviceNotFound, ErrNotBound, serial)
	}
	pub, err := encoding.DecodePublicKeyPEM(info.PublicKeyPEM)
	if err != nil {
		return nil, err
	}

	switch key := pub.(type) {
	case *rsa.PublicKey:
		return keyring.EncryptPKCS1v15(key, plaintext)
	case *ecdsa.PublicKey:
		curve, err := ecies.CurveForKey(key)
		if err != nil {
			return nil, err
		}
		point, err := key.ECDH()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrKeyFormat, err)
		}
		return ecies.Encrypt(curve, plaintext, point.Bytes())
	default:
		return nil, fmt.Errorf("%w: %w: %T", types.ErrKeyFormat, ErrUnsupportedAlgorithm, pub)
	}
}

// Decrypt verifies pin on the device and decrypts ciphertext with its key
// management slot.
func (b *Bridge) Decrypt(serial, pin string, ciphertext []byte) ([]byte, error) {
	var plaintext []byte
	err := b.withDevice(serial, func(d *Device) error {
		if err := d.Login(pin); err != nil {
			return err
		}
		var err error
		plaintext, err = d.Decrypt(ciphertext)
		return err
	})
	return plaintext, err
}

// GenerateChallenge returns DefaultChallengeSize random bytes.
func (b *Bridge) GenerateChallenge() ([]byte, error) {
	return randomChallenge(DefaultChallengeSize)
}

// GenerateChallengeFor returns a random challenge sized for the
// authentication key of serial: 48 bytes for P-384, 32 otherwise.
func (b *Bridge) GenerateChallengeFor(serial string) ([]byte, error) {
	var size int
	err := b.withDevice(serial, func(d *Device) error {
		_, alg, err := d.PublicKey(SlotAuthentication)
		size = alg.ChallengeSize()
		return err
	})
	if err != nil {
		return nil, err
	}
	return randomChallenge(size)
}

// Authenticate signs challenge with the authentication slot of serial
// after verifying pin. The challenge length is checked before the PIN is
// sent to the device.
func (b *Bridge) Authenticate(serial, pin string, challenge []byte) ([]byte, error) {
	var sig []byte
	err := b.withDevice(serial, func(d *Device) error {
		var err error
		sig, err = d.Authenticate(pin, challenge)
		return err
	})
	return sig, err
}

// withDevice opens the device for serial under its lock, runs fn and
// closes the device.
func (b *Bridge) withDevice(serial string, fn func(d *Device) error) (err error) {
	lock := b.lockFor(serial)
	lock.Lock()
	defer lock.Unlock()

	d := NewDevice(b.provider, serial, b.logger)
	if err := d.Open(); err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(d)
}

func (b *Bridge) lockFor(serial string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.locks[serial]
	if !ok {
		lock = &sync.Mutex{}
		b.locks[serial] = lock
	}
	return lock
}

func randomChallenge(size int) ([]byte, error) {
	challenge := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, challenge); err != nil {
		return nil, fmt.Errorf("yubikey: failed to generate challenge: %w", err)
	}
	return challenge, nil
}
