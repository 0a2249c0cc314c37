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

// Package metrics provides Prometheus instrumentation for the authentication
// service: sign-in outcomes, passkey ceremonies, token issuance, clone
// detections and HTTP traffic.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the Prometheus namespace for all service metrics
	Namespace = "passkey_auth"

	// Label names
	LabelMethod     = "method"
	LabelStatus     = "status"
	LabelCeremony   = "ceremony"
	LabelStage      = "stage"
	LabelKind       = "kind"
	LabelProtocol   = "protocol"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"

	// Sign-in methods
	MethodPassword = "password"
	MethodPasskey  = "passkey"
	MethodRefresh  = "refresh"

	// Ceremony stages
	StageOptions = "options"
	StageVerify  = "verify"
)

var (
	// LoginAttemptsTotal counts sign-in attempts by method and outcome.
	// Rejections are credential failures, errors are infrastructure failures.
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "login_attempts_total",
			Help:      "Total number of sign-in attempts by method and status",
		},
		[]string{LabelMethod, LabelStatus},
	)

	// CeremoniesTotal counts WebAuthn ceremony steps.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "webauthn",
			Name:      "ceremonies_total",
			Help:      "Total number of WebAuthn ceremony steps by ceremony, stage and status",
		},
		[]string{LabelCeremony, LabelStage, LabelStatus},
	)

	// CloneDetectionsTotal counts assertions rejected because the signature
	// counter did not advance.
	CloneDetectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "webauthn",
			Name:      "clone_detections_total",
			Help:      "Total number of assertions rejected as possible cloned authenticators",
		},
	)

	// ChallengesPrunedTotal counts expired challenges removed by the cleanup loop.
	ChallengesPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "webauthn",
			Name:      "challenges_pruned_total",
			Help:      "Total number of expired challenges removed",
		},
	)

	// TokensIssuedTotal counts issued tokens by kind.
	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tokens_issued_total",
			Help:      "Total number of issued tokens by kind",
		},
		[]string{LabelKind},
	)

	// ActiveConnections tracks in-flight requests by protocol.
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of in-flight requests by protocol",
		},
		[]string{LabelProtocol},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	// Password hashing dominates sign-in latency, hence the wide upper buckets.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelMethod},
	)

	// Goroutines tracks the current number of goroutines.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordLogin records the outcome of a sign-in attempt.
//
// Example:
//
//	metrics.RecordLogin(metrics.MethodPassword, metrics.StatusRejected)
func RecordLogin(method, status string) {
	if !enabled.Load() {
		return
	}
	LoginAttemptsTotal.WithLabelValues(method, status).Inc()
}

// RecordCeremony records one step of a WebAuthn ceremony.
func RecordCeremony(ceremony, stage, status string) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, stage, status).Inc()
}

// RecordCloneDetection records a rejected assertion whose counter did not advance.
func RecordCloneDetection() {
	if !enabled.Load() {
		return
	}
	CloneDetectionsTotal.Inc()
}

// RecordChallengesPruned adds n to the pruned challenge counter.
func RecordChallengesPruned(n int64) {
	if !enabled.Load() || n <= 0 {
		return
	}
	ChallengesPrunedTotal.Add(float64(n))
}

// RecordTokenIssued records an issued token of the given kind.
func RecordTokenIssued(kind string) {
	if !enabled.Load() {
		return
	}
	TokensIssuedTotal.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
