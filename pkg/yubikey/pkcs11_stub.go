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

//go:build !pkcs11

package yubikey

import "github.com/jeremyhahn/go-vault/pkg/logging"

// NewPKCS11Provider returns ErrPKCS11Unavailable. Build with the pkcs11 tag
// to talk to hardware tokens.
func NewPKCS11Provider(library string, logger *logging.Logger) (Provider, error) {
	return nil, ErrPKCS11Unavailable
}
