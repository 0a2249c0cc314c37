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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-passkey-auth/pkg/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestSlogAdapter_ContextAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Level: LevelDebug, Format: "json", Output: &buf})
	ctx := correlation.WithCorrelationID(context.Background(), "req-42")

	log.DebugContext(ctx, "debug message", String("key", "value"))
	log.InfoContext(ctx, "info message")
	log.WarnContext(ctx, "warn message")
	log.ErrorContext(ctx, "error message", Error(errors.New("boom")))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, "req-42", e["correlation_id"])
	}
	assert.Equal(t, "value", entries[0]["key"])
	assert.Equal(t, "boom", entries[3]["error"])
}

func TestSlogAdapter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Level: LevelWarn, Format: "json", Output: &buf})

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["msg"])
}

func TestSlogAdapter_WithDoesNotDuplicateFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Format: "json", Output: &buf})

	child := log.With(String("component", "auth")).WithError(errors.New("bad"))
	child.Info("hello", Int("n", 3))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, `"component"`))
	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "auth", entries[0]["component"])
	assert.Equal(t, "bad", entries[0]["error"])
	assert.EqualValues(t, 3, entries[0]["n"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "verbose", want: LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewNop(t *testing.T) {
	var l Logger = NewNop()
	l.Info("discarded")
	l.With(String("a", "b")).ErrorContext(context.Background(), "discarded")
}
