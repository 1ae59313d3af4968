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

// Package metrics provides Prometheus instrumentation for vault operations:
// operation counters and latency histograms, error counters keyed by error
// kind, and gauges for stored secrets and bound hardware devices.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all vault metrics
	Namespace = "vault"

	// Label names
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelVault     = "vault"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpSaveMasterPassword   = "save_master_password"
	OpVerifyMasterPassword = "verify_master_password"
	OpLogOut               = "log_out"
	OpCreateSecret         = "create_secret"
	OpGetSecret            = "get_secret"
	OpListSecrets          = "list_secrets"
	OpDeleteSecret         = "delete_secret"
	OpListDevices          = "list_hardware_devices"
	OpBindDevice           = "bind_hardware_device"
	OpHardwareEncrypt      = "hardware_encrypt"
	OpHardwareDecrypt      = "hardware_decrypt"
	OpHardwareChallenge    = "hardware_generate_challenge"
	OpHardwareAuthenticate = "hardware_authenticate"
)

var (
	// OperationsTotal counts vault operations by name and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of vault operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks operation latency in seconds. Hardware
	// operations and RSA key generation dominate the upper buckets.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of vault operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelOperation},
	)

	// ErrorsTotal counts failures by operation and error kind (see types.Kind).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// SecretsTotal is the number of secrets stored in each vault.
	SecretsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "secrets_total",
			Help:      "Number of secrets stored in each vault",
		},
		[]string{LabelVault},
	)

	// HardwareDevices is the number of hardware devices bound in the registry.
	HardwareDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "hardware_devices",
			Help:      "Number of bound hardware devices",
		},
	)

	// Authenticated is 1 while a master password is held by the session.
	Authenticated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "session_authenticated",
			Help:      "Whether the session holds a master password (1) or not (0)",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records an operation with its status and duration in seconds.
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records a failed operation under the kind of err.
func RecordError(operation string, err error) {
	if !enabled.Load() || err == nil {
		return
	}
	ErrorsTotal.WithLabelValues(operation, types.Kind(err)).Inc()
}

// Observe records the outcome of an operation that started at start and
// returns err unchanged.
//
// Example:
//
//	func (s *Service) GetSecret(id uuid.UUID) (secret *secrets.Secret, err error) {
//	    defer func(start time.Time) { err = metrics.Observe(metrics.OpGetSecret, start, err) }(time.Now())
//	    return s.secrets.Find(id)
//	}
func Observe(operation string, start time.Time, err error) error {
	status := StatusSuccess
	if err != nil {
		status = StatusError
		RecordError(operation, err)
	}
	RecordOperation(operation, status, time.Since(start).Seconds())
	return err
}

// SetSecretsTotal sets the secret count for a vault.
func SetSecretsTotal(vault string, count int) {
	if !enabled.Load() {
		return
	}
	SecretsTotal.WithLabelValues(vault).Set(float64(count))
}

// SetHardwareDevices sets the bound device count.
func SetHardwareDevices(count int) {
	if !enabled.Load() {
		return
	}
	HardwareDevices.Set(float64(count))
}

// SetAuthenticated sets the session gauge.
func SetAuthenticated(authenticated bool) {
	if !enabled.Load() {
		return
	}
	value := 0.0
	if authenticated {
		value = 1.0
	}
	Authenticated.Set(value)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
