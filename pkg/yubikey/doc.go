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

// Package yubikey bridges the vault to a PIV hardware token such as a
// YubiKey.
//
// A Device moves through three states. It starts Closed, becomes Open once
// the token with the requested serial number has been found, and becomes
// Authenticated after PIN verification. Reading slot certificates only
// needs an Open device; decrypting and signing need an Authenticated one.
//
// The key management slot (9d) protects data. An RSA key there decrypts
// PKCS#1 v1.5 ciphertexts through a raw RSA operation on the token followed
// by unpadding in software. An EC key there decrypts ECIES blobs by
// performing the ECDH step on the token. The authentication slot (9a) signs
// challenges.
//
// The token is reached through a Provider. The PKCS#11 provider, built with
// the pkcs11 build tag, loads a YKCS11 or OpenSC module located by
// ResolveLibrary:
//
//	lib, err := yubikey.ResolveLibrary(&yubikey.LibraryOptions{})
//	if err != nil {
//		return err
//	}
//	provider, err := yubikey.NewPKCS11Provider(lib, logger)
//	if err != nil {
//		return err
//	}
//	defer provider.Close()
//
// Public keys of bound devices are kept in a Registry sealed under the
// master password, so encryption works without the device present.
package yubikey
