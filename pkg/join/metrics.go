package join

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks channel workflow statistics.
// All counters use atomic operations so they can be read off the event loop.
type Metrics struct {
	startTime time.Time

	Joins    atomic.Int64 // join_channel requests sent
	Switches atomic.Int64 // switch_channel requests sent

	Succeeded atomic.Int64 // successful answers
	Failed    atomic.Int64 // protocol error answers
	Abandoned atomic.Int64 // requests that never got an answer

	InFlight atomic.Int64 // requests awaiting their continuation
	Released atomic.Int64 // request states released

	LogoutNotices    atomic.Int64 // channel_logout notices sent
	ExpiredAcks      atomic.Int64 // expired item batches confirmed
	NotificationAcks atomic.Int64 // notifications confirmed
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	UptimeSeconds int64 `json:"uptime_seconds"`

	Joins    int64 `json:"joins"`
	Switches int64 `json:"switches"`

	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Abandoned int64 `json:"abandoned"`

	InFlight int64 `json:"in_flight"`
	Released int64 `json:"released"`

	LogoutNotices    int64 `json:"logout_notices"`
	ExpiredAcks      int64 `json:"expired_acks"`
	NotificationAcks int64 `json:"notification_acks"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:    int64(time.Since(m.startTime).Seconds()),
		Joins:            m.Joins.Load(),
		Switches:         m.Switches.Load(),
		Succeeded:        m.Succeeded.Load(),
		Failed:           m.Failed.Load(),
		Abandoned:        m.Abandoned.Load(),
		InFlight:         m.InFlight.Load(),
		Released:         m.Released.Load(),
		LogoutNotices:    m.LogoutNotices.Load(),
		ExpiredAcks:      m.ExpiredAcks.Load(),
		NotificationAcks: m.NotificationAcks.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("channel metrics",
		"joins", s.Joins,
		"switches", s.Switches,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"abandoned", s.Abandoned,
		"in_flight", s.InFlight,
	)
}
