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

package vault

import (
	"fmt"

	"github.com/jeremyhahn/go-vault/internal/config"
	"github.com/jeremyhahn/go-vault/pkg/logging"
	"github.com/jeremyhahn/go-vault/pkg/metrics"
	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/jeremyhahn/go-vault/pkg/yubikey"
	"github.com/spf13/afero"
)

// absentProvider stands in when hardware access is disabled
type absentProvider struct{}

func (absentProvider) Tokens() ([]yubikey.Token, error) {
	return []yubikey.Token{}, nil
}

func (absentProvider) Open(serial string) (yubikey.Session, error) {
	return nil, fmt.Errorf("%w: hardware access is disabled (serial %s)", types.ErrDeviceNotFound, serial)
}

func (absentProvider) Close() error {
	return nil
}

// NewServiceFromConfig builds the logger, applies the metrics setting and,
// when hardware is enabled, loads the PKCS#11 module before creating the
// Service.
func NewServiceFromConfig(fs afero.Fs, cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	logger := logging.New(&logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	var provider yubikey.Provider
	if cfg.Hardware.Enabled {
		library, err := yubikey.ResolveLibrary(&yubikey.LibraryOptions{Path: cfg.Hardware.Library})
		if err != nil {
			return nil, err
		}
		provider, err = yubikey.NewPKCS11Provider(library, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("vault: hardware tokens enabled", "library", library)
	}

	svc, err := NewService(&Config{
		Fs:       fs,
		RootDir:  cfg.RootDir,
		Vault:    cfg.Vault,
		Provider: provider,
		Logger:   logger,
	})
	if err != nil && provider != nil {
		provider.Close()
	}
	return svc, err
}
