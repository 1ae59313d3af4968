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

package storage

import "path"

// Well-known keys below the vault root directory.
const (
	// MasterPasswordKey holds the self-verifying master password record
	MasterPasswordKey = "master_password"

	// DeviceRegistryKey holds the sealed list of bound hardware devices
	DeviceRegistryKey = "settings/yubikeys.enc"

	// PrivateKeyFile is the sealed PKCS#8 private key inside a vault
	PrivateKeyFile = "private_key.enc"

	// PublicKeyFile is the SPKI public key inside a vault
	PublicKeyFile = "public_key.pem"

	// DataKeyFile is the RSA-wrapped data key inside a vault
	DataKeyFile = "vault.key"

	// SecretsDir holds one sealed file per secret inside a vault
	SecretsDir = "secrets"

	// SecretExt is the extension of sealed secret files
	SecretExt = ".enc"
)

// VaultKey joins parts below the directory of the named vault.
func VaultKey(vault string, parts ...string) string {
	return path.Join(append([]string{"vaults", vault}, parts...)...)
}
