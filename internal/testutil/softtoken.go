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

// Package testutil provides a software PIV token for exercising the
// hardware code paths without a device.
package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/jeremyhahn/go-vault/pkg/yubikey"
)

// DefaultPIN is the PIN of every SoftToken
const DefaultPIN = "123456"

// SoftToken holds keys and self-signed certificates for the key
// management and authentication slots.
type SoftToken struct {
	Token yubikey.Token
	PIN   string

	keys  map[yubikey.PIVSlot]crypto.Signer
	certs map[yubikey.PIVSlot]*x509.Certificate
}

// NewSoftToken creates a token for serial. km and auth populate the key
// management and authentication slots; either may be nil.
func NewSoftToken(serial string, km, auth crypto.Signer) (*SoftToken, error) {
	tok := &SoftToken{
		Token: yubikey.Token{
			Serial:   serial,
			Label:    "YubiKey PIV #" + serial,
			Model:    "YubiKey YK5",
			Firmware: yubikey.DecodeFirmwareVersion(5, 72),
		},
		PIN:   DefaultPIN,
		keys:  make(map[yubikey.PIVSlot]crypto.Signer),
		certs: make(map[yubikey.PIVSlot]*x509.Certificate),
	}
	for slot, key := range map[yubikey.PIVSlot]crypto.Signer{
		yubikey.SlotKeyManagement:  km,
		yubikey.SlotAuthentication: auth,
	} {
		if key == nil {
			continue
		}
		cert, err := SelfSigned(key, serial)
		if err != nil {
			return nil, err
		}
		tok.keys[slot] = key
		tok.certs[slot] = cert
	}
	return tok, nil
}

// SelfSigned issues a one-hour self-signed certificate for key
func SelfSigned(key crypto.Signer, commonName string) (*x509.Certificate, error) {
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

// SoftProvider serves SoftTokens by serial
type SoftProvider struct {
	mu     sync.Mutex
	tokens map[string]*SoftToken
}

// NewSoftProvider returns a provider for tokens
func NewSoftProvider(tokens ...*SoftToken) *SoftProvider {
	p := &SoftProvider{tokens: make(map[string]*SoftToken)}
	for _, tok := range tokens {
		p.tokens[tok.Token.Serial] = tok
	}
	return p
}

// Unplug removes the token with serial
func (p *SoftProvider) Unplug(serial string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, serial)
}

func (p *SoftProvider) Tokens() ([]yubikey.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]yubikey.Token, 0, len(p.tokens))
	for _, tok := range p.tokens {
		out = append(out, tok.Token)
	}
	return out, nil
}

func (p *SoftProvider) Open(serial string) (yubikey.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tok, ok := p.tokens[serial]
	if !ok {
		return nil, fmt.Errorf("%w: serial %s", types.ErrDeviceNotFound, serial)
	}
	return &softSession{tok: tok}, nil
}

func (p *SoftProvider) Close() error {
	return nil
}

type softSession struct {
	tok      *SoftToken
	loggedIn bool
}

func (s *softSession) Token() yubikey.Token {
	return s.tok.Token
}

func (s *softSession) Certificate(slot yubikey.PIVSlot) (*x509.Certificate, error) {
	return s.tok.certs[slot], nil
}

func (s *softSession) Login(pin string) error {
	if pin != s.tok.PIN {
		return fmt.Errorf("%w: CKR_PIN_INCORRECT", types.ErrDevicePinFailed)
	}
	s.loggedIn = true
	return nil
}

func (s *softSession) RawDecrypt(slot yubikey.PIVSlot, block []byte) ([]byte, error) {
	if !s.loggedIn {
		return nil, fmt.Errorf("%w: CKR_USER_NOT_LOGGED_IN", types.ErrDevicePinFailed)
	}
	key, ok := s.tok.keys[slot].(*rsa.PrivateKey)
	if !ok {
		return nil, types.NewDeviceProtocolError("raw decrypt", fmt.Errorf("no RSA key in slot %s", slot))
	}
	c := new(big.Int).SetBytes(block)
	return new(big.Int).Exp(c, key.D, key.N).Bytes(), nil
}

func (s *softSession) Sign(slot yubikey.PIVSlot, alg yubikey.Algorithm, digest []byte) ([]byte, error) {
	if !s.loggedIn {
		return nil, fmt.Errorf("%w: CKR_USER_NOT_LOGGED_IN", types.ErrDevicePinFailed)
	}
	switch key := s.tok.keys[slot].(type) {
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(rand.Reader, key, alg.Hash(), digest)
	case *ecdsa.PrivateKey:
		r, ss, err := ecdsa.Sign(rand.Reader, key, digest)
		if err != nil {
			return nil, err
		}
		size := (key.Curve.Params().BitSize + 7) / 8
		sig := make([]byte, 2*size)
		r.FillBytes(sig[:size])
		ss.FillBytes(sig[size:])
		return sig, nil
	default:
		return nil, types.NewDeviceProtocolError("sign", fmt.Errorf("no key in slot %s", slot))
	}
}

func (s *softSession) ECDH(slot yubikey.PIVSlot, point []byte) ([]byte, error) {
	if !s.loggedIn {
		return nil, fmt.Errorf("%w: CKR_USER_NOT_LOGGED_IN", types.ErrDevicePinFailed)
	}
	key, ok := s.tok.keys[slot].(*ecdsa.PrivateKey)
	if !ok {
		return nil, types.NewDeviceProtocolError("derive", fmt.Errorf("no EC key in slot %s", slot))
	}
	priv, err := key.ECDH()
	if err != nil {
		return nil, err
	}
	peer, err := priv.Curve().NewPublicKey(point)
	if err != nil {
		return nil, err
	}
	return priv.ECDH(peer)
}

func (s *softSession) Close() error {
	return nil
}
