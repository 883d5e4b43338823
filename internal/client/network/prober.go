package network

import (
	"context"
	"log/slog"
	"time"
)

// HealthChecker is anything that can tell whether the backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Reporter receives raw connectivity observations
type Reporter interface {
	Report(online bool)
}

// Prober периодически опрашивает health endpoint backend и передаёт сырой
// сигнал в Monitor. Это единственный источник сигнала связности в daemon.
type Prober struct {
	checker  HealthChecker
	reporter Reporter
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewProber creates a prober
func NewProber(checker HealthChecker, reporter Reporter, interval, timeout time.Duration, logger *slog.Logger) *Prober {
	return &Prober{
		checker:  checker,
		reporter: reporter,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Check performs one probe and reports its outcome
func (p *Prober) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.checker.Health(probeCtx)
	if err != nil && ctx.Err() == nil {
		p.logger.Debug("Health probe failed", "error", err)
	}
	online := err == nil
	if ctx.Err() == nil {
		p.reporter.Report(online)
	}
	return online
}

// Run probes immediately and then on every interval until ctx is done
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
