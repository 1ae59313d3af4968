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

package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// TestMetricsEnabled tests toggling collection
func TestMetricsEnabled(t *testing.T) {
	assert.True(t, IsEnabled(), "metrics are enabled by default")

	Disable()
	assert.False(t, IsEnabled())

	Enable()
	assert.True(t, IsEnabled())
}

// TestRecordOperation tests the operation counter and histogram
func TestRecordOperation(t *testing.T) {
	Enable()
	OperationsTotal.Reset()
	OperationDuration.Reset()

	RecordOperation(OpCreateSecret, StatusSuccess, 0.01)
	RecordOperation(OpCreateSecret, StatusSuccess, 0.02)
	RecordOperation(OpHardwareDecrypt, StatusError, 1.5)

	assert.Equal(t, 2, testutil.CollectAndCount(OperationsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(OperationDuration))
	assert.Equal(t, 2.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(OpCreateSecret, StatusSuccess)))
}

// TestRecordOperationWhenDisabled tests that nothing is recorded while disabled
func TestRecordOperationWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()
	OperationsTotal.Reset()

	RecordOperation(OpGetSecret, StatusSuccess, 0.1)
	assert.Equal(t, 0, testutil.CollectAndCount(OperationsTotal))
}

// TestObserve tests status and error kind labelling
func TestObserve(t *testing.T) {
	Enable()
	OperationsTotal.Reset()
	ErrorsTotal.Reset()

	assert.NoError(t, Observe(OpListSecrets, time.Now(), nil))

	wrapped := fmt.Errorf("vault: %w", types.ErrWrongPassword)
	err := Observe(OpVerifyMasterPassword, time.Now(), wrapped)
	assert.Same(t, wrapped, err)

	Observe(OpHardwareDecrypt, time.Now(), fmt.Errorf("%w: CKR_PIN_INCORRECT", types.ErrDevicePinFailed))
	Observe(OpHardwareDecrypt, time.Now(), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(OpListSecrets, StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpVerifyMasterPassword, "wrong_password")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpHardwareDecrypt, "device_pin_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpHardwareDecrypt, "unknown")))
	assert.Equal(t, 2.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(OpHardwareDecrypt, StatusError)))
}

// TestGauges tests the inventory gauges
func TestGauges(t *testing.T) {
	Enable()

	SetSecretsTotal("default", 7)
	SetHardwareDevices(2)
	SetAuthenticated(true)
	assert.Equal(t, 7.0, testutil.ToFloat64(SecretsTotal.WithLabelValues("default")))
	assert.Equal(t, 2.0, testutil.ToFloat64(HardwareDevices))
	assert.Equal(t, 1.0, testutil.ToFloat64(Authenticated))

	SetAuthenticated(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(Authenticated))
}
