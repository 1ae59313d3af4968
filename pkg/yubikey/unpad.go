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
	"bytes"

	"github.com/jeremyhahn/go-vault/pkg/types"
)

// minPaddedBlock is 00 02, eight padding bytes and the 00 separator
const minPaddedBlock = 11

// UnpadPKCS1v15 strips PKCS#1 v1.5 encryption padding from the output of
// a raw RSA operation:
//
//	00 02 PS... 00 M
//
// PS must hold at least eight nonzero bytes. Failures are returned as a
// *types.DeviceProtocolError whose cause is one of ErrBlockTooShort,
// ErrInvalidHeader, ErrPaddingTooShort, ErrMissingSeparator or
// ErrEmptyMessage.
func UnpadPKCS1v15(block []byte) ([]byte, error) {
	if len(block) < minPaddedBlock {
		return nil, types.NewDeviceProtocolError("unpad", ErrBlockTooShort)
	}
	if block[0] != 0x00 || block[1] != 0x02 {
		return nil, types.NewDeviceProtocolError("unpad", ErrInvalidHeader)
	}

	sep := bytes.IndexByte(block[2:], 0x00)
	if sep < 0 {
		return nil, types.NewDeviceProtocolError("unpad", ErrMissingSeparator)
	}
	if sep < 8 {
		return nil, types.NewDeviceProtocolError("unpad", ErrPaddingTooShort)
	}

	msg := block[2+sep+1:]
	if len(msg) == 0 {
		return nil, types.NewDeviceProtocolError("unpad", ErrEmptyMessage)
	}
	return bytes.Clone(msg), nil
}
