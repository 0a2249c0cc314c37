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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewResourceCollector(t *testing.T) {
	rc := NewResourceCollector(0)
	if rc.interval != 30*time.Second {
		t.Errorf("Expected default interval of 30s, got %v", rc.interval)
	}
	if rc.started.IsZero() {
		t.Error("Expected started time to be set")
	}
}

func TestResourceCollector_Run(t *testing.T) {
	Enable()
	Goroutines.Set(0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewResourceCollector(time.Hour).Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(Goroutines) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected collector to stop after cancel")
	}

	if testutil.ToFloat64(Goroutines) == 0 {
		t.Error("Expected goroutine gauge to be set")
	}
	if testutil.ToFloat64(MemoryAllocBytes) == 0 {
		t.Error("Expected memory gauge to be set")
	}
}
