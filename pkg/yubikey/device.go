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
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/jeremyhahn/go-vault/pkg/crypto/ecies"
	"github.com/jeremyhahn/go-vault/pkg/encoding"
	"github.com/jeremyhahn/go-vault/pkg/logging"
	"github.com/jeremyhahn/go-vault/pkg/types"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// State is the lifecycle state of a Device.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateAuthenticated
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Device is a single hardware token addressed by serial number. A Device
// is not safe for concurrent use; the Bridge serializes access per serial.
type Device struct {
	provider Provider
	serial   string
	session  Session
	state    State
	logger   *logging.Logger
}

// NewDevice returns a closed Device for serial.
func NewDevice(provider Provider, serial string, logger *logging.Logger) *Device {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Device{
		provider: provider,
		serial:   serial,
		logger:   logger,
	}
}

// Serial returns the device serial number
func (d *Device) Serial() string {
	return d.serial
}

// State returns the current state
func (d *Device) State() State {
	return d.state
}

// Open finds the token by serial and opens a session to it.
func (d *Device) Open() error {
	if d.state != StateClosed {
		return fmt.Errorf("%w: open from %s", ErrInvalidState, d.state)
	}
	session, err := d.provider.Open(d.serial)
	if err != nil {
		return err
	}
	d.session = session
	d.state = StateOpen
	d.logger.Debug("yubikey: device opened", "serial", d.serial)
	return nil
}

// Token returns information about the open token
func (d *Device) Token() (Token, error) {
	if d.state == StateClosed {
		return Token{}, fmt.Errorf("%w: device is closed", ErrInvalidState)
	}
	return d.session.Token(), nil
}

// Certificate reads the certificate in slot. It needs an open device but
// no PIN.
func (d *Device) Certificate(slot PIVSlot) (*x509.Certificate, error) {
	if d.state == StateClosed {
		return nil, fmt.Errorf("%w: device is closed", ErrInvalidState)
	}
	if !slot.IsValid() {
		return nil, fmt.Errorf("%w: %w: slot %s", types.ErrDeviceProtocol, ErrCertificateNotFound, slot)
	}
	cert, err := d.session.Certificate(slot)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, fmt.Errorf("%w: %w: slot %s", types.ErrDeviceProtocol, ErrCertificateNotFound, slot)
	}
	return cert, nil
}

// PublicKey returns the public key and algorithm of the key in slot, taken
// from the slot certificate.
func (d *Device) PublicKey(slot PIVSlot) (crypto.PublicKey, Algorithm, error) {
	cert, err := d.Certificate(slot)
	if err != nil {
		return nil, "", err
	}
	alg, err := AlgorithmForKey(cert.PublicKey)
	if err != nil {
		return nil, "", types.NewDeviceProtocolError("public key", err)
	}
	return cert.PublicKey, alg, nil
}

// PublicKeyPEM returns the SPKI PEM of the key in slot.
func (d *Device) PublicKeyPEM(slot PIVSlot) (string, error) {
	pub, _, err := d.PublicKey(slot)
	if err != nil {
		return "", err
	}
	return encoding.EncodePublicKeyPEM(pub)
}

// Login verifies pin and moves the device to Authenticated.
func (d *Device) Login(pin string) error {
	switch d.state {
	case StateClosed:
		return fmt.Errorf("%w: login on closed device", ErrInvalidState)
	case StateAuthenticated:
		return nil
	}
	if err := d.session.Login(pin); err != nil {
		return err
	}
	d.state = StateAuthenticated
	d.logger.Debug("yubikey: PIN verified", "serial", d.serial)
	return nil
}

// Decrypt decrypts ciphertext with the key management slot. RSA keys take a
// PKCS#1 v1.5 ciphertext; EC keys take an ECIES blob.
func (d *Device) Decrypt(ciphertext []byte) ([]byte, error) {
	if err := d.requireAccess("decrypt", SlotKeyManagement); err != nil {
		return nil, err
	}
	pub, alg, err := d.PublicKey(SlotKeyManagement)
	if err != nil {
		return nil, err
	}

	if alg.IsRSA() {
		return d.decryptRSA(pub.(*rsa.PublicKey), ciphertext)
	}

	curve, err := alg.Curve()
	if err != nil {
		return nil, types.NewDeviceProtocolError("decrypt", err)
	}
	return ecies.DecryptWith(curve, ciphertext, func(ephemeral *ecdh.PublicKey) ([]byte, error) {
		return d.session.ECDH(SlotKeyManagement, ephemeral.Bytes())
	})
}

// decryptRSA runs the raw RSA operation on the token and unpads the result.
func (d *Device) decryptRSA(pub *rsa.PublicKey, ciphertext []byte) ([]byte, error) {
	size := pub.Size()
	if len(ciphertext) != size {
		return nil, types.NewDeviceProtocolError("decrypt",
			fmt.Errorf("ciphertext is %d bytes, modulus is %d", len(ciphertext), size))
	}

	block, err := d.session.RawDecrypt(SlotKeyManagement, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(block) > size {
		return nil, types.NewDeviceProtocolError("decrypt",
			fmt.Errorf("raw result is %d bytes, modulus is %d", len(block), size))
	}
	// Tokens may drop the leading zero byte of the result.
	if len(block) < size {
		padded := make([]byte, size)
		copy(padded[size-len(block):], block)
		block = padded
	}
	defer clear(block)

	return UnpadPKCS1v15(block)
}

// Sign signs challenge with the authentication slot. The challenge is
// signed as a digest and must be ChallengeSize bytes for the slot
// algorithm. The signature is checked against the slot certificate before
// it is returned.
func (d *Device) Sign(challenge []byte) ([]byte, error) {
	if err := d.requireAccess("sign", SlotAuthentication); err != nil {
		return nil, err
	}
	pub, alg, err := d.PublicKey(SlotAuthentication)
	if err != nil {
		return nil, err
	}
	if err := CheckChallenge(alg, challenge); err != nil {
		return nil, err
	}

	sig, err := d.session.Sign(SlotAuthentication, alg, challenge)
	if err != nil {
		return nil, err
	}
	if !VerifySignature(pub, alg, challenge, sig) {
		return nil, types.NewDeviceProtocolError("sign", ErrInvalidSignature)
	}
	return sig, nil
}

// Authenticate answers a challenge: it checks the challenge length against
// the authentication key before the PIN is sent, logs in and signs.
func (d *Device) Authenticate(pin string, challenge []byte) ([]byte, error) {
	_, alg, err := d.PublicKey(SlotAuthentication)
	if err != nil {
		return nil, err
	}
	if err := CheckChallenge(alg, challenge); err != nil {
		return nil, err
	}
	if err := d.Login(pin); err != nil {
		return nil, err
	}
	return d.Sign(challenge)
}

// Close ends the session and returns the device to Closed.
func (d *Device) Close() error {
	if d.state == StateClosed {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	d.state = StateClosed
	d.logger.Debug("yubikey: device closed", "serial", d.serial)
	return err
}

// requireAccess checks that the device state allows a private key
// operation on slot.
func (d *Device) requireAccess(op string, slot PIVSlot) error {
	if !slot.IsValid() {
		return fmt.Errorf("%w: %s on unknown slot %s", ErrInvalidState, op, slot)
	}
	if d.state == StateClosed {
		return fmt.Errorf("%w: %s on closed device", ErrInvalidState, op)
	}
	if slot.RequiresPIN() && d.state != StateAuthenticated {
		return fmt.Errorf("%w: %s requires PIN verification (state %s)", ErrInvalidState, op, d.state)
	}
	return nil
}

// CheckChallenge verifies that challenge has the length the algorithm
// signs directly.
func CheckChallenge(alg Algorithm, challenge []byte) error {
	if want := alg.ChallengeSize(); len(challenge) != want {
		return types.NewDeviceProtocolError("challenge",
			fmt.Errorf("%w: got %d bytes, want %d for %s", ErrInvalidChallenge, len(challenge), want, alg))
	}
	return nil
}

// VerifySignature checks a token signature over digest. RSA signatures are
// PKCS#1 v1.5; EC signatures are raw r||s.
func VerifySignature(pub crypto.PublicKey, alg Algorithm, digest, sig []byte) bool {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(key, alg.Hash(), digest, sig) == nil
	case *ecdsa.PublicKey:
		der, err := MarshalECDSASignature(sig)
		if err != nil {
			return false
		}
		return ecdsa.VerifyASN1(key, digest, der)
	default:
		return false
	}
}

// MarshalECDSASignature converts a raw r||s signature into the ASN.1 DER
// ECDSA-Sig-Value form.
func MarshalECDSASignature(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: raw ECDSA signature has odd length %d", types.ErrKeyFormat, len(raw))
	}
	half := len(raw) / 2

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addASN1Unsigned(b, raw[:half])
		addASN1Unsigned(b, raw[half:])
	})
	return b.Bytes()
}

// addASN1Unsigned adds a big-endian unsigned value as an ASN.1 INTEGER.
func addASN1Unsigned(b *cryptobyte.Builder, v []byte) {
	for len(v) > 1 && v[0] == 0 {
		v = v[1:]
	}
	b.AddASN1(asn1.INTEGER, func(b *cryptobyte.Builder) {
		if len(v) > 0 && v[0]&0x80 != 0 {
			b.AddUint8(0)
		}
		b.AddBytes(v)
	})
}
