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

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMemoryCapacity bounds MemoryAuditAdapter when no capacity is given.
const DefaultMemoryCapacity = 1024

// MemoryAuditAdapter keeps the most recent events in a ring buffer.
// Events are lost on restart.
type MemoryAuditAdapter struct {
	mu     sync.RWMutex
	events []*AuditEvent
	next   int
	full   bool
}

// NewMemoryAuditAdapter creates an adapter holding up to capacity events.
// A capacity below 1 selects DefaultMemoryCapacity.
func NewMemoryAuditAdapter(capacity int) *MemoryAuditAdapter {
	if capacity < 1 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryAuditAdapter{events: make([]*AuditEvent, capacity)}
}

// LogEvent stores a copy of event, evicting the oldest when full.
func (m *MemoryAuditAdapter) LogEvent(_ context.Context, event *AuditEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e := *event
	m.mu.Lock()
	m.events[m.next] = &e
	m.next = (m.next + 1) % len(m.events)
	if m.next == 0 {
		m.full = true
	}
	m.mu.Unlock()
	return nil
}

// GetEvents returns matching events, newest first.
func (m *MemoryAuditAdapter) GetEvents(_ context.Context, query *EventQuery) ([]*AuditEvent, error) {
	if query == nil {
		query = &EventQuery{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*AuditEvent
	for i := 0; i < m.lenLocked(); i++ {
		idx := (m.next - 1 - i + len(m.events)) % len(m.events)
		event := m.events[idx]
		if !query.Matches(event) {
			continue
		}
		e := *event
		results = append(results, &e)
		if query.Limit > 0 && len(results) == query.Limit {
			break
		}
	}
	return results, nil
}

// Len returns the number of stored events.
func (m *MemoryAuditAdapter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lenLocked()
}

func (m *MemoryAuditAdapter) lenLocked() int {
	if m.full {
		return len(m.events)
	}
	return m.next
}
