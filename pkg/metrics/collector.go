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
	"context"
	"time"
)

// Source reports the inventory sampled by a Collector. Values that fail
// to load are skipped for that tick.
type Source interface {
	VaultName() string
	SecretCount() (int, error)
	DeviceCount() (int, error)
	IsAuthenticated() (bool, error)
}

// Collector periodically samples a Source into the inventory gauges.
type Collector struct {
	ctx      context.Context
	cancel   context.CancelFunc
	source   Source
	interval time.Duration
}

// NewCollector creates a collector that samples source every interval.
//
// Example:
//
//	collector := metrics.NewCollector(ctx, service, 30*time.Second)
//	go collector.Start()
//	defer collector.Stop()
func NewCollector(ctx context.Context, source Source, interval time.Duration) *Collector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &Collector{
		ctx:      collectorCtx,
		cancel:   cancel,
		source:   source,
		interval: interval,
	}
}

// Start samples immediately and then on every tick until Stop is called
// or the parent context is cancelled. It blocks.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Stop halts the collector.
func (c *Collector) Stop() {
	c.cancel()
}

// Collect performs a single sample.
func (c *Collector) Collect() {
	if !IsEnabled() {
		return
	}
	if ok, err := c.source.IsAuthenticated(); err == nil {
		SetAuthenticated(ok)
	}
	if n, err := c.source.SecretCount(); err == nil {
		SetSecretsTotal(c.source.VaultName(), n)
	}
	if n, err := c.source.DeviceCount(); err == nil {
		SetHardwareDevices(n)
	}
}

// StartCollector creates a collector and runs it in a goroutine. It stops
// when ctx is cancelled.
func StartCollector(ctx context.Context, source Source, interval time.Duration) *Collector {
	collector := NewCollector(ctx, source, interval)
	go collector.Start()
	return collector
}
