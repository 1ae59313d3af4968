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
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/jeremyhahn/go-vault/pkg/crypto/ecies"
)

// Algorithm identifies a PIV key type.
type Algorithm string

const (
	AlgorithmRSA1024 Algorithm = "RSA1024"
	AlgorithmRSA2048 Algorithm = "RSA2048"
	AlgorithmECCP256 Algorithm = "ECCP256"
	AlgorithmECCP384 Algorithm = "ECCP384"
)

// String returns the algorithm name
func (a Algorithm) String() string {
	return string(a)
}

// IsRSA reports whether the algorithm is an RSA key type
func (a Algorithm) IsRSA() bool {
	return a == AlgorithmRSA1024 || a == AlgorithmRSA2048
}

// ChallengeSize returns the challenge length the authentication key signs
// directly as a digest: 48 bytes for P-384, 32 bytes otherwise.
func (a Algorithm) ChallengeSize() int {
	if a == AlgorithmECCP384 {
		return sha512.Size384
	}
	return sha256.Size
}

// Hash returns the digest algorithm that matches ChallengeSize
func (a Algorithm) Hash() crypto.Hash {
	if a == AlgorithmECCP384 {
		return crypto.SHA384
	}
	return crypto.SHA256
}

// Curve returns the ECIES curve of an ECC algorithm
func (a Algorithm) Curve() (ecies.Curve, error) {
	switch a {
	case AlgorithmECCP256:
		return ecies.P256, nil
	case AlgorithmECCP384:
		return ecies.P384, nil
	default:
		return 0, fmt.Errorf("%w: %s is not an ECC algorithm", ErrUnsupportedAlgorithm, a)
	}
}

// AlgorithmForKey maps a public key to its PIV algorithm.
func AlgorithmForKey(pub crypto.PublicKey) (Algorithm, error) {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		switch key.N.BitLen() {
		case 1024:
			return AlgorithmRSA1024, nil
		case 2048:
			return AlgorithmRSA2048, nil
		}
		return "", fmt.Errorf("%w: RSA %d", ErrUnsupportedAlgorithm, key.N.BitLen())
	case *ecdsa.PublicKey:
		switch key.Curve {
		case elliptic.P256():
			return AlgorithmECCP256, nil
		case elliptic.P384():
			return AlgorithmECCP384, nil
		}
		return "", fmt.Errorf("%w: curve %s", ErrUnsupportedAlgorithm, key.Curve.Params().Name)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedAlgorithm, pub)
	}
}
