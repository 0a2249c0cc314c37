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
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	EventAccountRegister EventType = "account.register"
	EventLogin           EventType = "auth.login"
	EventTokenRefresh    EventType = "auth.refresh"
	EventPasskeyRegister EventType = "passkey.register"
	EventCloneDetected   EventType = "passkey.clone_detected"
)

// EventOutcome indicates the result of an operation
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "success"
	OutcomeFailure EventOutcome = "failure"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	// ID is a unique identifier for this audit event
	ID string

	// Timestamp when the event occurred
	Timestamp time.Time

	// EventType categorizes the event
	EventType EventType

	// Outcome indicates whether the operation succeeded
	Outcome EventOutcome

	// PrincipalID is the user the event concerns, when known
	PrincipalID string

	// Method is the sign-in method: password, passkey or refresh
	Method string

	// Reason is a short failure description. Never a secret.
	Reason string

	// RequestID correlates this event with a request
	RequestID string

	// Metadata stores additional context
	Metadata map[string]string
}

// AuditAdapter provides audit logging capabilities.
type AuditAdapter interface {
	// LogEvent records an audit event
	LogEvent(ctx context.Context, event *AuditEvent) error
}

// EventQuery filters events held by MemoryAuditAdapter.
type EventQuery struct {
	// EventTypes filters by event type
	EventTypes []EventType

	// Outcomes filters by outcome
	Outcomes []EventOutcome

	// PrincipalID filters by principal ID
	PrincipalID string

	// StartTime filters events at or after this time
	StartTime *time.Time

	// Limit limits the number of results (newest first)
	Limit int
}

// Matches reports whether event satisfies q.
func (q *EventQuery) Matches(event *AuditEvent) bool {
	if len(q.EventTypes) > 0 && !contains(q.EventTypes, event.EventType) {
		return false
	}
	if len(q.Outcomes) > 0 && !contains(q.Outcomes, event.Outcome) {
		return false
	}
	if q.PrincipalID != "" && q.PrincipalID != event.PrincipalID {
		return false
	}
	if q.StartTime != nil && event.Timestamp.Before(*q.StartTime) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// NopAuditAdapter discards all events.
type NopAuditAdapter struct{}

// LogEvent does nothing.
func (NopAuditAdapter) LogEvent(context.Context, *AuditEvent) error { return nil }
