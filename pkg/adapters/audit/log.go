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
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/logger"
)

// LogAuditAdapter writes events as structured log records.
type LogAuditAdapter struct {
	log logger.Logger
}

// NewLogAuditAdapter creates an adapter writing through log.
func NewLogAuditAdapter(log logger.Logger) *LogAuditAdapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogAuditAdapter{log: log.With(logger.String("log_type", "audit"))}
}

// LogEvent writes event at info level, or warn for failures.
func (a *LogAuditAdapter) LogEvent(ctx context.Context, event *AuditEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	fields := []logger.Field{
		logger.String("event_id", event.ID),
		logger.String("event_type", string(event.EventType)),
		logger.String("outcome", string(event.Outcome)),
		logger.String("timestamp", event.Timestamp.UTC().Format(time.RFC3339Nano)),
	}
	if event.PrincipalID != "" {
		fields = append(fields, logger.String("principal_id", event.PrincipalID))
	}
	if event.Method != "" {
		fields = append(fields, logger.String("method", event.Method))
	}
	if event.Reason != "" {
		fields = append(fields, logger.String("reason", event.Reason))
	}
	for k, v := range event.Metadata {
		fields = append(fields, logger.String(k, v))
	}

	if event.Outcome == OutcomeFailure {
		a.log.WarnContext(ctx, "audit event", fields...)
	} else {
		a.log.InfoContext(ctx, "audit event", fields...)
	}
	return nil
}
