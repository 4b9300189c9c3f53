package core

// scheduler.go runs the background store health check.
//
// The monitor pings the store immediately and then every interval, keeping
// the latest result for the readiness endpoint. A failed ping flips the
// service to not ready but never stops the monitor; it keeps checking so
// the service recovers on its own when the store comes back.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultHealthInterval is used when no interval is configured.
const DefaultHealthInterval = 30 * time.Second

// HealthStatus is the result of the most recent store check.
type HealthStatus struct {
	Ready     bool          `json:"ready"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency_ns"`
	Error     string        `json:"error,omitempty"`
}

// StartHealthMonitor pings the store until ctx is cancelled.
func (s *Service) StartHealthMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	slog.Info("store health monitor started", "interval", interval)

	s.CheckHealth(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("store health monitor stopped")
			return
		case <-ticker.C:
			s.CheckHealth(ctx)
		}
	}
}

// CheckHealth pings the store once and records the outcome.
func (s *Service) CheckHealth(ctx context.Context) HealthStatus {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := s.store.Ping(pingCtx)
	status := HealthStatus{
		Ready:     err == nil,
		CheckedAt: time.Now(),
		Latency:   time.Since(start),
	}
	if err != nil {
		status.Error = err.Error()
	}

	prev := s.health.Swap(&status)
	wasReady := prev == nil || prev.Ready

	if err != nil {
		storeUp.Set(0)
		if wasReady {
			slog.Error("store health check failed", "error", err)
		}
	} else {
		storeUp.Set(1)
		if !wasReady {
			slog.Info("store health restored", "latency_ms", status.Latency.Milliseconds())
		}
	}
	return status
}

// Health returns the latest check result. Before the first check the
// service reports not ready.
func (s *Service) Health() HealthStatus {
	if h := s.health.Load(); h != nil {
		return *h
	}
	return HealthStatus{Error: "not checked yet"}
}

// Ready reports whether the last store check succeeded.
func (s *Service) Ready() bool {
	return s.Health().Ready
}
