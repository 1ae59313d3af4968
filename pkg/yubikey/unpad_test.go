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
	"testing"

	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paddedBlock(ps int, msg []byte) []byte {
	block := []byte{0x00, 0x02}
	block = append(block, bytes.Repeat([]byte{0xaa}, ps)...)
	block = append(block, 0x00)
	return append(block, msg...)
}

// TestUnpadPKCS1v15 tests the unpadding boundary cases
func TestUnpadPKCS1v15(t *testing.T) {
	tests := []struct {
		name  string
		block []byte
		want  []byte
		cause error
	}{
		{
			name:  "TooShort",
			block: []byte{0x00, 0x02, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0x00},
			cause: ErrBlockTooShort,
		},
		{
			name:  "BadFirstByte",
			block: append([]byte{0x01}, paddedBlock(8, []byte("m"))[1:]...),
			cause: ErrInvalidHeader,
		},
		{
			name:  "SignatureBlockType",
			block: append([]byte{0x00, 0x01}, paddedBlock(8, []byte("m"))[2:]...),
			cause: ErrInvalidHeader,
		},
		{
			name:  "PaddingTooShort",
			block: paddedBlock(7, []byte("message")),
			cause: ErrPaddingTooShort,
		},
		{
			name:  "NoSeparator",
			block: append([]byte{0x00, 0x02}, bytes.Repeat([]byte{0xaa}, 20)...),
			cause: ErrMissingSeparator,
		},
		{
			name:  "EmptyMessage",
			block: paddedBlock(12, nil),
			cause: ErrEmptyMessage,
		},
		{
			name:  "MinimumPadding",
			block: paddedBlock(8, []byte("m")),
			want:  []byte("m"),
		},
		{
			name:  "Valid",
			block: paddedBlock(200, []byte("hardware secret")),
			want:  []byte("hardware secret"),
		},
		{
			name:  "MessageContainsZero",
			block: paddedBlock(10, []byte{0x01, 0x00, 0x02}),
			want:  []byte{0x01, 0x00, 0x02},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnpadPKCS1v15(tt.block)
			if tt.cause != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.cause)
				assert.ErrorIs(t, err, types.ErrDeviceProtocol)

				var perr *types.DeviceProtocolError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, "unpad", perr.Op)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
