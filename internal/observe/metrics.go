// Package observe provides observability primitives for Fabula:
// OpenTelemetry metrics and HTTP middleware for the dev server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. Recording is best-effort and
// never affects engine semantics; a nil *Metrics is safe to call.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Fabula metrics.
const meterName = "github.com/MrWong99/fabula"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SessionDuration tracks wall time from first tick to clean completion
	// of a playback session.
	SessionDuration metric.Float64Histogram

	// SessionsStarted counts playback sessions begun. Use with attribute:
	//   attribute.String("dialogue", ...)
	SessionsStarted metric.Int64Counter

	// SessionsCompleted counts sessions that ran all lines to the end.
	SessionsCompleted metric.Int64Counter

	// SessionsCancelled counts sessions cancelled by Stop or by a
	// superseding Play call.
	SessionsCancelled metric.Int64Counter

	// LinesShown counts line-shown notifications.
	LinesShown metric.Int64Counter

	// Skips counts player skip signals that truncated a reveal.
	Skips metric.Int64Counter

	// PhasesCompleted counts phase completions.
	PhasesCompleted metric.Int64Counter

	// ActiveSessions tracks whether a session is live (0 or 1 per engine).
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks dev-server request processing time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// sessionBuckets defines histogram bucket boundaries (in seconds) sized for
// dialogue sessions, which run from a couple of seconds to a few minutes.
var sessionBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 320,
}

// requestBuckets defines bucket boundaries (in seconds) for dev-server
// HTTP requests.
var requestBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionDuration, err = m.Float64Histogram("fabula.session.duration",
		metric.WithDescription("Duration of completed dialogue playback sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("fabula.sessions.started",
		metric.WithDescription("Playback sessions begun."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("fabula.sessions.completed",
		metric.WithDescription("Playback sessions that ran to the end."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCancelled, err = m.Int64Counter("fabula.sessions.cancelled",
		metric.WithDescription("Playback sessions cancelled before completion."),
	); err != nil {
		return nil, err
	}
	if met.LinesShown, err = m.Int64Counter("fabula.lines.shown",
		metric.WithDescription("Dialogue lines fully revealed."),
	); err != nil {
		return nil, err
	}
	if met.Skips, err = m.Int64Counter("fabula.lines.skipped",
		metric.WithDescription("Reveals truncated by a player skip."),
	); err != nil {
		return nil, err
	}
	if met.PhasesCompleted, err = m.Int64Counter("fabula.phases.completed",
		metric.WithDescription("Story phases completed."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("fabula.sessions.active",
		metric.WithDescription("Live playback sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("fabula.http.request.duration",
		metric.WithDescription("Dev-server HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(requestBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}
