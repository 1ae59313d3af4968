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

//go:build pkcs11

package yubikey

import (
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-vault/pkg/logging"
	"github.com/jeremyhahn/go-vault/pkg/types"
	pkcs11lib "github.com/miekg/pkcs11"
)

// sha256DigestInfo is the DER DigestInfo prefix for a SHA-256 digest.
// CKM_RSA_PKCS signs the DigestInfo as given.
var sha256DigestInfo = []byte{
	0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
	0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
}

// PKCS11Provider reaches PIV tokens through a PKCS#11 module such as
// YKCS11 or OpenSC.
type PKCS11Provider struct {
	mu     sync.Mutex
	ctx    *pkcs11lib.Ctx
	logger *logging.Logger
}

// NewPKCS11Provider loads and initializes the PKCS#11 module at library.
func NewPKCS11Provider(library string, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	ctx := pkcs11lib.New(library)
	if ctx == nil {
		return nil, fmt.Errorf("%w: %w: failed to load PKCS#11 library: %s", types.ErrDeviceNotFound, ErrLibraryNotFound, library)
	}
	err := ctx.Initialize()
	if err != nil && err != pkcs11lib.Error(pkcs11lib.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
		ctx.Destroy()
		return nil, mapError("initialize", err)
	}
	logger.Debug("yubikey: PKCS#11 module loaded", "library", library)
	return &PKCS11Provider{ctx: ctx, logger: logger}, nil
}

// Tokens lists tokens present in any slot.
func (p *PKCS11Provider) Tokens() ([]Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		return nil, fmt.Errorf("%w: provider is closed", ErrInvalidState)
	}
	slots, err := p.ctx.GetSlotList(true)
	if err != nil {
		return nil, mapError("get slot list", err)
	}

	tokens := make([]Token, 0, len(slots))
	for _, slot := range slots {
		info, err := p.ctx.GetTokenInfo(slot)
		if err != nil {
			p.logger.Debug("yubikey: skipping slot", "slot", slot, "error", err.Error())
			continue
		}
		tokens = append(tokens, tokenFromInfo(info))
	}
	return tokens, nil
}

// Open opens a read/write session to the token with serial.
func (p *PKCS11Provider) Open(serial string) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		return nil, fmt.Errorf("%w: provider is closed", ErrInvalidState)
	}
	slots, err := p.ctx.GetSlotList(true)
	if err != nil {
		return nil, mapError("get slot list", err)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no token present", types.ErrDeviceNotFound)
	}

	for _, slot := range slots {
		info, err := p.ctx.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		token := tokenFromInfo(info)
		if token.Serial != serial {
			continue
		}
		handle, err := p.ctx.OpenSession(slot, pkcs11lib.CKF_SERIAL_SESSION|pkcs11lib.CKF_RW_SESSION)
		if err != nil {
			return nil, mapError("open session", err)
		}
		return &pkcs11Session{ctx: p.ctx, handle: handle, token: token}, nil
	}
	return nil, fmt.Errorf("%w: serial %s", types.ErrDeviceNotFound, serial)
}

// Close finalizes and unloads the module.
func (p *PKCS11Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		return nil
	}
	err := p.ctx.Finalize()
	p.ctx.Destroy()
	p.ctx = nil
	if err != nil {
		return mapError("finalize", err)
	}
	return nil
}

func tokenFromInfo(info pkcs11lib.TokenInfo) Token {
	return Token{
		Serial:   strings.TrimSpace(info.SerialNumber),
		Label:    strings.TrimSpace(info.Label),
		Model:    strings.TrimSpace(info.Model),
		Firmware: DecodeFirmwareVersion(info.FirmwareVersion.Major, info.FirmwareVersion.Minor),
	}
}

type pkcs11Session struct {
	ctx    *pkcs11lib.Ctx
	handle pkcs11lib.SessionHandle
	token  Token
}

func (s *pkcs11Session) Token() Token {
	return s.token
}

func (s *pkcs11Session) Certificate(slot PIVSlot) (*x509.Certificate, error) {
	obj, found, err := s.findObject(pkcs11lib.CKO_CERTIFICATE, slot)
	if err != nil || !found {
		return nil, err
	}
	attrs, err := s.ctx.GetAttributeValue(s.handle, obj, []*pkcs11lib.Attribute{
		pkcs11lib.NewAttribute(pkcs11lib.CKA_VALUE, nil),
	})
	if err != nil {
		return nil, mapError("read certificate", err)
	}
	cert, err := x509.ParseCertificate(attrs[0].Value)
	if err != nil {
		return nil, types.NewDeviceProtocolError("parse certificate", err)
	}
	return cert, nil
}

func (s *pkcs11Session) Login(pin string) error {
	err := s.ctx.Login(s.handle, pkcs11lib.CKU_USER, pin)
	if err != nil && err != pkcs11lib.Error(pkcs11lib.CKR_USER_ALREADY_LOGGED_IN) {
		return mapError("login", err)
	}
	return nil
}

func (s *pkcs11Session) RawDecrypt(slot PIVSlot, block []byte) ([]byte, error) {
	key, err := s.privateKey(slot)
	if err != nil {
		return nil, err
	}
	mech := []*pkcs11lib.Mechanism{pkcs11lib.NewMechanism(pkcs11lib.CKM_RSA_X_509, nil)}
	if err := s.ctx.DecryptInit(s.handle, mech, key); err != nil {
		return nil, mapError("decrypt init", err)
	}
	out, err := s.ctx.Decrypt(s.handle, block)
	if err != nil {
		return nil, mapError("decrypt", err)
	}
	return out, nil
}

func (s *pkcs11Session) Sign(slot PIVSlot, alg Algorithm, digest []byte) ([]byte, error) {
	key, err := s.privateKey(slot)
	if err != nil {
		return nil, err
	}

	var mech []*pkcs11lib.Mechanism
	input := digest
	if alg.IsRSA() {
		mech = []*pkcs11lib.Mechanism{pkcs11lib.NewMechanism(pkcs11lib.CKM_RSA_PKCS, nil)}
		input = append(append([]byte{}, sha256DigestInfo...), digest...)
	} else {
		mech = []*pkcs11lib.Mechanism{pkcs11lib.NewMechanism(pkcs11lib.CKM_ECDSA, nil)}
	}

	if err := s.ctx.SignInit(s.handle, mech, key); err != nil {
		return nil, mapError("sign init", err)
	}
	sig, err := s.ctx.Sign(s.handle, input)
	if err != nil {
		return nil, mapError("sign", err)
	}
	return sig, nil
}

func (s *pkcs11Session) ECDH(slot PIVSlot, point []byte) ([]byte, error) {
	key, err := s.privateKey(slot)
	if err != nil {
		return nil, err
	}

	// The shared secret is the x coordinate of the agreed point.
	valueLen := (len(point) - 1) / 2
	params := pkcs11lib.NewECDH1DeriveParams(pkcs11lib.CKD_NULL, nil, point)
	mech := []*pkcs11lib.Mechanism{pkcs11lib.NewMechanism(pkcs11lib.CKM_ECDH1_DERIVE, params)}
	template := []*pkcs11lib.Attribute{
		pkcs11lib.NewAttribute(pkcs11lib.CKA_CLASS, pkcs11lib.CKO_SECRET_KEY),
		pkcs11lib.NewAttribute(pkcs11lib.CKA_KEY_TYPE, pkcs11lib.CKK_GENERIC_SECRET),
		pkcs11lib.NewAttribute(pkcs11lib.CKA_TOKEN, false),
		pkcs11lib.NewAttribute(pkcs11lib.CKA_SENSITIVE, false),
		pkcs11lib.NewAttribute(pkcs11lib.CKA_EXTRACTABLE, true),
		pkcs11lib.NewAttribute(pkcs11lib.CKA_VALUE_LEN, valueLen),
	}

	derived, err := s.ctx.DeriveKey(s.handle, mech, key, template)
	if err != nil {
		return nil, mapError("derive", err)
	}
	defer s.ctx.DestroyObject(s.handle, derived)

	attrs, err := s.ctx.GetAttributeValue(s.handle, derived, []*pkcs11lib.Attribute{
		pkcs11lib.NewAttribute(pkcs11lib.CKA_VALUE, nil),
	})
	if err != nil {
		return nil, mapError("read shared secret", err)
	}
	return attrs[0].Value, nil
}

func (s *pkcs11Session) Close() error {
	if err := s.ctx.CloseSession(s.handle); err != nil {
		return mapError("close session", err)
	}
	return nil
}

func (s *pkcs11Session) privateKey(slot PIVSlot) (pkcs11lib.ObjectHandle, error) {
	obj, found, err := s.findObject(pkcs11lib.CKO_PRIVATE_KEY, slot)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, types.NewDeviceProtocolError("find key", fmt.Errorf("no private key in slot %s", slot))
	}
	return obj, nil
}

// findObject finds the object of class stored for slot. Objects are
// addressed by the CKA_ID YKCS11 assigns to each PIV slot.
func (s *pkcs11Session) findObject(class uint, slot PIVSlot) (pkcs11lib.ObjectHandle, bool, error) {
	id, err := slot.CKAID()
	if err != nil {
		return 0, false, types.NewDeviceProtocolError("find object", err)
	}
	template := []*pkcs11lib.Attribute{
		pkcs11lib.NewAttribute(pkcs11lib.CKA_CLASS, class),
		pkcs11lib.NewAttribute(pkcs11lib.CKA_ID, id),
	}
	if err := s.ctx.FindObjectsInit(s.handle, template); err != nil {
		return 0, false, mapError("find objects init", err)
	}
	handles, _, err := s.ctx.FindObjects(s.handle, 1)
	if err != nil {
		s.ctx.FindObjectsFinal(s.handle)
		return 0, false, mapError("find objects", err)
	}
	if err := s.ctx.FindObjectsFinal(s.handle); err != nil {
		return 0, false, mapError("find objects final", err)
	}
	if len(handles) == 0 {
		return 0, false, nil
	}
	return handles[0], true, nil
}

// mapError sorts PKCS#11 return values into the error taxonomy.
func mapError(op string, err error) error {
	var rv pkcs11lib.Error
	if errors.As(err, &rv) {
		switch rv {
		case pkcs11lib.CKR_PIN_INCORRECT, pkcs11lib.CKR_PIN_LOCKED,
			pkcs11lib.CKR_PIN_LEN_RANGE, pkcs11lib.CKR_PIN_INVALID,
			pkcs11lib.CKR_PIN_EXPIRED:
			return fmt.Errorf("%w: %s: %v", types.ErrDevicePinFailed, op, err)
		case pkcs11lib.CKR_TOKEN_NOT_PRESENT, pkcs11lib.CKR_DEVICE_REMOVED,
			pkcs11lib.CKR_SLOT_ID_INVALID:
			return fmt.Errorf("%w: %s: %v", types.ErrDeviceNotFound, op, err)
		}
	}
	return types.NewDeviceProtocolError(op, err)
}
