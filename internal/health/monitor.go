// Package health tracks reachability of the remote recording service.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Prober checks whether the remote service answers. Satisfied by the cloud
// client's Health method.
type Prober interface {
	Health(ctx context.Context) error
}

// Monitor polls the remote service at a fixed interval and keeps an online
// flag readers can consult without blocking. A recording never depends on
// the monitor; it only informs the UI and the auto-promotion decision.
type Monitor struct {
	probe    Prober
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	online   atomic.Bool
}

func NewMonitor(probe Prober, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

// Online reports the result of the most recent probe. False until the first
// probe succeeds.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Check runs a single probe immediately and updates the online flag.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.probe.Health(probeCtx)
	was := m.online.Swap(err == nil)
	if err != nil {
		if was {
			m.logger.Warn("remote service unreachable", zap.Error(err))
		}
		return false
	}
	if !was {
		m.logger.Info("remote service reachable")
	}
	return true
}

// Run probes until the context is cancelled. Call it from its own goroutine.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
