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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/stretchr/testify/require"
)

// softToken is a software PIV token used in place of hardware.
type softToken struct {
	token Token
	pin   string
	keys  map[PIVSlot]crypto.Signer
	certs map[PIVSlot]*x509.Certificate

	// corruptDecrypt flips the header of raw decrypt results
	corruptDecrypt bool
	// badSignature returns signatures that do not verify
	badSignature bool

	inUse      atomic.Bool
	overlapped atomic.Bool
	logins     atomic.Int32
}

func newSoftToken(t *testing.T, serial string, km, auth crypto.Signer) *softToken {
	t.Helper()
	tok := &softToken{
		token: Token{
			Serial:   serial,
			Label:    "YubiKey PIV #" + serial,
			Model:    "YubiKey YK5",
			Firmware: DecodeFirmwareVersion(5, 43),
		},
		pin:   "123456",
		keys:  make(map[PIVSlot]crypto.Signer),
		certs: make(map[PIVSlot]*x509.Certificate),
	}
	if km != nil {
		tok.keys[SlotKeyManagement] = km
		tok.certs[SlotKeyManagement] = selfSigned(t, km)
	}
	if auth != nil {
		tok.keys[SlotAuthentication] = auth
		tok.certs[SlotAuthentication] = selfSigned(t, auth)
	}
	return tok
}

func selfSigned(t *testing.T, key crypto.Signer) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func ecKey(t *testing.T, curve elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	return key
}

// softProvider serves softTokens by serial.
type softProvider struct {
	mu     sync.Mutex
	tokens map[string]*softToken
	opens  int
}

func newSoftProvider(tokens ...*softToken) *softProvider {
	p := &softProvider{tokens: make(map[string]*softToken)}
	for _, tok := range tokens {
		p.tokens[tok.token.Serial] = tok
	}
	return p
}

func (p *softProvider) Tokens() ([]Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Token, 0, len(p.tokens))
	for _, tok := range p.tokens {
		out = append(out, tok.token)
	}
	return out, nil
}

func (p *softProvider) Open(serial string) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tok, ok := p.tokens[serial]
	if !ok {
		return nil, fmt.Errorf("%w: serial %s", types.ErrDeviceNotFound, serial)
	}
	if !tok.inUse.CompareAndSwap(false, true) {
		tok.overlapped.Store(true)
	}
	p.opens++
	return &softSession{tok: tok}, nil
}

func (p *softProvider) Close() error {
	return nil
}

type softSession struct {
	tok      *softToken
	loggedIn bool
}

func (s *softSession) Token() Token {
	return s.tok.token
}

func (s *softSession) Certificate(slot PIVSlot) (*x509.Certificate, error) {
	return s.tok.certs[slot], nil
}

func (s *softSession) Login(pin string) error {
	s.tok.logins.Add(1)
	if pin != s.tok.pin {
		return fmt.Errorf("%w: CKR_PIN_INCORRECT", types.ErrDevicePinFailed)
	}
	s.loggedIn = true
	return nil
}

func (s *softSession) RawDecrypt(slot PIVSlot, block []byte) ([]byte, error) {
	if !s.loggedIn {
		return nil, fmt.Errorf("%w: not logged in", types.ErrDeviceProtocol)
	}
	key, ok := s.tok.keys[slot].(*rsa.PrivateKey)
	if !ok {
		return nil, types.NewDeviceProtocolError("raw decrypt", fmt.Errorf("no RSA key"))
	}
	c := new(big.Int).SetBytes(block)
	// Bytes drops the leading zero of a well-formed block.
	m := new(big.Int).Exp(c, key.D, key.N).Bytes()
	if s.tok.corruptDecrypt && len(m) > 0 {
		m[0] ^= 0xff
	}
	return m, nil
}

func (s *softSession) Sign(slot PIVSlot, alg Algorithm, digest []byte) ([]byte, error) {
	if !s.loggedIn {
		return nil, fmt.Errorf("%w: not logged in", types.ErrDeviceProtocol)
	}
	var sig []byte
	switch key := s.tok.keys[slot].(type) {
	case *rsa.PrivateKey:
		var err error
		sig, err = rsa.SignPKCS1v15(rand.Reader, key, alg.Hash(), digest)
		if err != nil {
			return nil, err
		}
	case *ecdsa.PrivateKey:
		r, ss, err := ecdsa.Sign(rand.Reader, key, digest)
		if err != nil {
			return nil, err
		}
		size := (key.Curve.Params().BitSize + 7) / 8
		sig = make([]byte, 2*size)
		r.FillBytes(sig[:size])
		ss.FillBytes(sig[size:])
	default:
		return nil, fmt.Errorf("no key in slot %s", slot)
	}
	if s.tok.badSignature {
		sig[len(sig)-1] ^= 0x01
	}
	return sig, nil
}

func (s *softSession) ECDH(slot PIVSlot, point []byte) ([]byte, error) {
	if !s.loggedIn {
		return nil, fmt.Errorf("%w: not logged in", types.ErrDeviceProtocol)
	}
	key, ok := s.tok.keys[slot].(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("no EC key in slot %s", slot)
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
	s.tok.inUse.Store(false)
	return nil
}

// passwordSource is a fixed master password for registry tests.
type passwordSource struct {
	password []byte
	err      error
}

func (p *passwordSource) WithMasterPassword(fn func([]byte) error) error {
	if p.err != nil {
		return p.err
	}
	return fn(append([]byte{}, p.password...))
}
