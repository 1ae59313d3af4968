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

package ecies

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
)

// Curve selects one of the two supported curve strengths.
type Curve int

const (
	// P256 is NIST P-256 with SHA-256
	P256 Curve = iota + 1

	// P384 is NIST P-384 with SHA-384
	P384
)

// String returns the NIST curve name
func (c Curve) String() string {
	switch c {
	case P256:
		return "P-256"
	case P384:
		return "P-384"
	default:
		return fmt.Sprintf("Curve(%d)", int(c))
	}
}

// CurveForKey returns the Curve of an ECDSA public key.
func CurveForKey(pub *ecdsa.PublicKey) (Curve, error) {
	if pub == nil || pub.Curve == nil {
		return 0, ErrUnsupportedCurve
	}
	switch pub.Curve {
	case elliptic.P256():
		return P256, nil
	case elliptic.P384():
		return P384, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurve, pub.Curve.Params().Name)
	}
}

// PointSize is the length of an uncompressed point: 65 or 97 bytes.
func (c Curve) PointSize() int {
	return 1 + 2*c.coordinateSize()
}

// ScalarSize is the length of a raw private scalar.
func (c Curve) ScalarSize() int {
	return c.coordinateSize()
}

// SignatureSize is the length of a raw r||s signature.
func (c Curve) SignatureSize() int {
	return 2 * c.coordinateSize()
}

// Hash returns the curve-matched digest: SHA-256 for P-256, SHA-384 for P-384.
func (c Curve) Hash() crypto.Hash {
	if c == P384 {
		return crypto.SHA384
	}
	return crypto.SHA256
}

// DigestSize is the output length of Hash.
func (c Curve) DigestSize() int {
	return c.Hash().Size()
}

func (c Curve) coordinateSize() int {
	switch c {
	case P256:
		return 32
	case P384:
		return 48
	default:
		return 0
	}
}

func (c Curve) ecdh() (ecdh.Curve, error) {
	switch c {
	case P256:
		return ecdh.P256(), nil
	case P384:
		return ecdh.P384(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, c)
	}
}

func (c Curve) elliptic() (elliptic.Curve, error) {
	switch c {
	case P256:
		return elliptic.P256(), nil
	case P384:
		return elliptic.P384(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, c)
	}
}
