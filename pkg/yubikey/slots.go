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
	"fmt"
)

// PIVSlot represents a YubiKey PIV slot identifier
type PIVSlot byte

// Standard PIV slots defined by NIST SP 800-73-4.
const (
	// SlotAuthentication (9a) - PIV Authentication. Signs challenges.
	SlotAuthentication PIVSlot = 0x9a

	// SlotSignature (9c) - Digital Signature
	SlotSignature PIVSlot = 0x9c

	// SlotKeyManagement (9d) - Key Management. Decrypts data.
	SlotKeyManagement PIVSlot = 0x9d

	// SlotCardAuth (9e) - Card Authentication. Does not require a PIN.
	SlotCardAuth PIVSlot = 0x9e
)

// String returns a human-readable name for the PIV slot
func (s PIVSlot) String() string {
	switch s {
	case SlotAuthentication:
		return "PIV Authentication (9a)"
	case SlotSignature:
		return "Digital Signature (9c)"
	case SlotKeyManagement:
		return "Key Management (9d)"
	case SlotCardAuth:
		return "Card Authentication (9e)"
	default:
		return fmt.Sprintf("Unknown Slot (%02x)", byte(s))
	}
}

// IsValid returns true if the slot is one of the primary PIV slots
func (s PIVSlot) IsValid() bool {
	switch s {
	case SlotAuthentication, SlotSignature, SlotKeyManagement, SlotCardAuth:
		return true
	default:
		return false
	}
}

// RequiresPIN returns true if the slot requires PIN for operations
func (s PIVSlot) RequiresPIN() bool {
	return s != SlotCardAuth
}

// CKAID returns the PKCS#11 CKA_ID that YKCS11 assigns to the slot's
// objects.
func (s PIVSlot) CKAID() ([]byte, error) {
	switch s {
	case SlotAuthentication:
		return []byte{0x01}, nil
	case SlotSignature:
		return []byte{0x02}, nil
	case SlotKeyManagement:
		return []byte{0x03}, nil
	case SlotCardAuth:
		return []byte{0x04}, nil
	default:
		return nil, fmt.Errorf("yubikey: no CKA_ID for slot 0x%02x", byte(s))
	}
}
