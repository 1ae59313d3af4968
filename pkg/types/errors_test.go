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

package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDeviceProtocolError_Is tests that both the sentinel and the cause match
func TestDeviceProtocolError_Is(t *testing.T) {
	cause := errors.New("padding too short")
	err := fmt.Errorf("decrypt: %w", NewDeviceProtocolError("unpad", cause))

	assert.ErrorIs(t, err, ErrDeviceProtocol)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrDevicePinFailed)

	var dpe *DeviceProtocolError
	assert.True(t, errors.As(err, &dpe))
	assert.Equal(t, "unpad", dpe.Op)
	assert.Contains(t, err.Error(), "padding too short")
}

// TestKind tests taxonomy classification
func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"unknown", errors.New("boom"), "unknown"},
		{"wrapped auth", fmt.Errorf("%w: tag mismatch", ErrAuthenticationFailed), "authentication_failed"},
		{"io", fmt.Errorf("read: %w", ErrIO), "io"},
		{"protocol", NewDeviceProtocolError("sign", errors.New("x")), "device_protocol"},
		{"session lock", ErrSessionLock, "session_lock"},
		{"no master password", ErrNoMasterPassword, "no_master_password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}
