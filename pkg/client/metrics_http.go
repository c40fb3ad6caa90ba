package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CuBnIcK/warfacebot/pkg/join"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format and /healthz. It runs in the
// background and shuts down when ctx is cancelled. An empty addr disables it.
func StartMetricsHTTP(ctx context.Context, addr string, m *join.Metrics) {
	if addr == "" {
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           MetricsHandler(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}

// MetricsHandler serves /metrics and /healthz for m.
func MetricsHandler(m *join.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeMetrics(w, m.Snapshot())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func writeMetrics(w http.ResponseWriter, s join.MetricsSnapshot) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	write("warfacebot_uptime_seconds", "Client uptime in seconds.", "gauge", s.UptimeSeconds)

	write("warfacebot_channel_joins_total", "join_channel requests sent.", "counter", s.Joins)
	write("warfacebot_channel_switches_total", "switch_channel requests sent.", "counter", s.Switches)
	write("warfacebot_channel_succeeded_total", "Successful channel answers.", "counter", s.Succeeded)
	write("warfacebot_channel_failed_total", "Channel requests answered with an error.", "counter", s.Failed)
	write("warfacebot_channel_abandoned_total", "Channel requests that never got an answer.", "counter", s.Abandoned)
	write("warfacebot_channel_in_flight", "Channel requests awaiting an answer.", "gauge", s.InFlight)

	write("warfacebot_channel_logouts_total", "channel_logout notices sent.", "counter", s.LogoutNotices)
	write("warfacebot_expired_item_acks_total", "Expired item batches confirmed.", "counter", s.ExpiredAcks)
	write("warfacebot_notification_acks_total", "Notifications confirmed.", "counter", s.NotificationAcks)
}
