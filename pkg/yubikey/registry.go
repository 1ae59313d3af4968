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
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jeremyhahn/go-vault/pkg/envelope"
	"github.com/jeremyhahn/go-vault/pkg/logging"
	"github.com/jeremyhahn/go-vault/pkg/storage"
	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/jeremyhahn/go-vault/pkg/validation"
)

// DefaultFormFactor is reported when the token does not expose one
const DefaultFormFactor = "YubiKey"

// Info is the locally persisted record of a hardware device.
type Info struct {
	Serial          string    `json:"serial"`
	Name            string    `json:"name"`
	FirmwareVersion string    `json:"version,omitempty"`
	IsFIPS          bool      `json:"is_fips"`
	FormFactor      string    `json:"form_factor"`
	PublicKeyPEM    string    `json:"pub_key,omitempty"`
	Algorithm       Algorithm `json:"algorithm,omitempty"`
}

// NewInfo builds the record for a connected token.
func NewInfo(token Token) *Info {
	return &Info{
		Serial:          token.Serial,
		Name:            DefaultName(token.Serial),
		FirmwareVersion: token.Firmware.String(),
		FormFactor:      DefaultFormFactor,
	}
}

// DefaultName returns the display name of a device
func DefaultName(serial string) string {
	return "YubiKey " + serial
}

// PasswordSource runs fn with the unlocked master password.
// session.State and masterpassword.Manager implement it.
type PasswordSource interface {
	WithMasterPassword(fn func(password []byte) error) error
}

// RegistryConfig configures a Registry
type RegistryConfig struct {
	Storage  storage.Backend
	Password PasswordSource
	Logger   *logging.Logger
}

// Registry persists Info records, sealed as one JSON list under the master
// password.
type Registry struct {
	mu       sync.Mutex
	store    storage.Backend
	password PasswordSource
	logger   *logging.Logger
}

// NewRegistry creates a Registry
func NewRegistry(config *RegistryConfig) (*Registry, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}
	if config.Storage == nil {
		return nil, ErrStorageRequired
	}
	if config.Password == nil {
		return nil, ErrPasswordRequired
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Registry{
		store:    config.Storage,
		password: config.Password,
		logger:   logger,
	}, nil
}

// List returns every bound device. An empty registry is not an error.
func (r *Registry) List() ([]*Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Get returns the record for serial or an error matching ErrNotBound and
// types.ErrDeviceNotFound.
func (r *Registry) Get(serial string) (*Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Serial == serial {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: %w: serial %s", types.ErrDeviceNotFound, ErrNotBound, serial)
}

// Put inserts or replaces the record with the same serial.
func (r *Registry) Put(info *Info) error {
	if info == nil {
		return fmt.Errorf("%w: yubikey: nil device record", types.ErrSerialization)
	}
	if err := validation.ValidateSerial(info.Serial); err != nil {
		return fmt.Errorf("%w: yubikey: %w", types.ErrSerialization, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	infos, err := r.load()
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(infos, func(i *Info) bool { return i.Serial == info.Serial })
	if idx >= 0 {
		infos[idx] = info
	} else {
		infos = append(infos, info)
	}
	if err := r.save(infos); err != nil {
		return err
	}
	r.logger.Info("yubikey: device bound", "serial", info.Serial, "algorithm", info.Algorithm.String())
	return nil
}

// Remove deletes the record for serial. Removing an unknown serial is a no-op.
func (r *Registry) Remove(serial string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos, err := r.load()
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(infos, func(i *Info) bool { return i.Serial == serial })
	return r.save(kept)
}

func (r *Registry) load() ([]*Info, error) {
	blob, err := r.store.Get(storage.DeviceRegistryKey)
	if errors.Is(err, storage.ErrNotFound) {
		return []*Info{}, nil
	}
	if err != nil {
		return nil, err
	}

	var infos []*Info
	err = r.password.WithMasterPassword(func(password []byte) error {
		data, err := envelope.Open(password, string(blob))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &infos); err != nil {
			return fmt.Errorf("%w: yubikey: malformed device registry: %v", types.ErrSerialization, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if infos == nil {
		infos = []*Info{}
	}
	return infos, nil
}

func (r *Registry) save(infos []*Info) error {
	data, err := json.Marshal(infos)
	if err != nil {
		return fmt.Errorf("%w: yubikey: %v", types.ErrSerialization, err)
	}
	return r.password.WithMasterPassword(func(password []byte) error {
		blob, err := envelope.Seal(password, data)
		if err != nil {
			return err
		}
		return r.store.Put(storage.DeviceRegistryKey, []byte(blob), nil)
	})
}
