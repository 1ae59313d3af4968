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

package encoding

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/jeremyhahn/go-vault/pkg/types"
)

// PEM block types
const (
	PEMTypePrivateKey  = "PRIVATE KEY"
	PEMTypePublicKey   = "PUBLIC KEY"
	PEMTypeCertificate = "CERTIFICATE"
)

// EncodePrivateKeyPEM encodes a private key as PKCS#8 PEM with LF line endings.
func EncodePrivateKeyPEM(privateKey crypto.PrivateKey) (string, error) {
	der, err := EncodePKCS8(privateKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: PEMTypePrivateKey, Bytes: der})), nil
}

// DecodePrivateKeyPEM decodes a PKCS#8 PEM private key.
func DecodePrivateKeyPEM(data string) (crypto.PrivateKey, error) {
	der, err := decodeBlock(data, PEMTypePrivateKey)
	if err != nil {
		return nil, err
	}
	return DecodePKCS8(der)
}

// EncodePublicKeyPEM encodes a public key as SPKI PEM. The result always
// ends with "-----END PUBLIC KEY-----\n".
func EncodePublicKeyPEM(publicKey crypto.PublicKey) (string, error) {
	der, err := EncodePublicKeyPKIX(publicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: PEMTypePublicKey, Bytes: der})), nil
}

// DecodePublicKeyPEM decodes an SPKI PEM public key.
func DecodePublicKeyPEM(data string) (crypto.PublicKey, error) {
	der, err := decodeBlock(data, PEMTypePublicKey)
	if err != nil {
		return nil, err
	}
	return DecodePublicKeyPKIX(der)
}

// DecodeCertificatePEM decodes a PEM X.509 certificate.
func DecodeCertificatePEM(data string) (*x509.Certificate, error) {
	der, err := decodeBlock(data, PEMTypeCertificate)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse certificate: %v", types.ErrKeyFormat, err)
	}
	return cert, nil
}

func decodeBlock(data, blockType string) ([]byte, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("%w: %w", types.ErrKeyFormat, ErrInvalidPEMEncoding)
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("%w: %w: got %q, want %q",
			types.ErrKeyFormat, ErrUnexpectedPEMType, block.Type, blockType)
	}
	return block.Bytes, nil
}
