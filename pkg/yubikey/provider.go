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
	"crypto/x509"
	"fmt"
)

// FirmwareVersion represents YubiKey firmware version
type FirmwareVersion struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// String returns the version as major.minor.patch
func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// DecodeFirmwareVersion decodes the PKCS#11 token firmware version. YubiKey
// packs minor and patch into the minor byte: firmware 5.4.3 is reported as
// major 5, minor 43.
func DecodeFirmwareVersion(major, minorEncoded uint8) FirmwareVersion {
	if minorEncoded >= 10 {
		return FirmwareVersion{Major: major, Minor: minorEncoded / 10, Patch: minorEncoded % 10}
	}
	return FirmwareVersion{Major: major, Minor: minorEncoded}
}

// Token describes a connected hardware token.
type Token struct {
	Serial   string
	Label    string
	Model    string
	Firmware FirmwareVersion
}

// Provider discovers tokens and opens sessions to them.
type Provider interface {
	// Tokens lists the connected tokens.
	Tokens() ([]Token, error)

	// Open opens an exclusive session to the token with the given serial.
	// It returns an error matching types.ErrDeviceNotFound when no such
	// token is connected.
	Open(serial string) (Session, error)

	// Close releases the provider.
	Close() error
}

// Session is an open reader session to one token. Sessions are stateful and
// must not be shared between goroutines.
type Session interface {
	// Token returns the token this session is connected to.
	Token() Token

	// Certificate reads the certificate stored in slot. No PIN is needed.
	Certificate(slot PIVSlot) (*x509.Certificate, error)

	// Login verifies the user PIN. Rejected or locked PINs return an error
	// matching types.ErrDevicePinFailed.
	Login(pin string) error

	// RawDecrypt applies the slot's RSA private key to block without any
	// padding handling.
	RawDecrypt(slot PIVSlot, block []byte) ([]byte, error)

	// Sign signs digest with the slot key. RSA keys produce a PKCS#1 v1.5
	// signature; EC keys produce a raw r||s signature.
	Sign(slot PIVSlot, alg Algorithm, digest []byte) ([]byte, error)

	// ECDH derives the shared secret between the slot's EC private key and
	// the uncompressed peer point.
	ECDH(slot PIVSlot, point []byte) ([]byte, error)

	// Close ends the session.
	Close() error
}
