// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey-auth.
//
// go-passkey-auth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"context"
	"runtime"
	"time"
)

// ResourceCollector samples process gauges on a fixed interval.
type ResourceCollector struct {
	interval time.Duration
	started  time.Time
}

// NewResourceCollector creates a collector sampling every interval.
//
// Example:
//
//	go metrics.NewResourceCollector(30 * time.Second).Run(ctx)
func NewResourceCollector(interval time.Duration) *ResourceCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ResourceCollector{
		interval: interval,
		started:  time.Now(),
	}
}

// Run samples immediately and then on every tick until ctx is done.
func (rc *ResourceCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	rc.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rc.collect()
		}
	}
}

func (rc *ResourceCollector) collect() {
	if !IsEnabled() {
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	Goroutines.Set(float64(runtime.NumGoroutine()))
	MemoryAllocBytes.Set(float64(mem.Alloc))
	ServerUptime.Set(time.Since(rc.started).Seconds())
}
