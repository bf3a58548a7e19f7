package workers

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
)

type Workers struct {
	workers []Worker
}

// NewWorkers builds the reaper and the store health probe from cfg, followed
// by extra. A job whose interval is not positive is not started.
func NewWorkers(maintenance Maintenance, health HealthReporter, cfg config.Workers, log *logger.Logger, extra ...Worker) *Workers {
	w := &Workers{}
	if cfg.ReaperInterval > 0 {
		w.workers = append(w.workers, &reaper{
			maintenance: maintenance,
			interval:    cfg.ReaperInterval,
			staleAfter:  cfg.ProcessingStaleAfter,
			logger:      log,
		})
	}
	if cfg.HealthInterval > 0 {
		w.workers = append(w.workers, &healthProbe{
			maintenance: maintenance,
			health:      health,
			interval:    cfg.HealthInterval,
			logger:      log,
		})
	}
	w.workers = append(w.workers, extra...)
	return w
}

// Run starts every worker and waits for all of them. The first failing
// worker cancels the others and its error is returned.
func (w *Workers) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, worker := range w.workers {
		g.Go(func() error {
			return worker.Run(ctx)
		})
	}
	return g.Wait()
}

// reaper reverts mutations left in processing by a crashed or timed out
// request so a later session evaluates them again.
type reaper struct {
	maintenance Maintenance
	interval    time.Duration
	staleAfter  time.Duration
	logger      *logger.Logger
}

func (r *reaper) Run(ctx context.Context) error {
	return tick(ctx, r.interval, func(ctx context.Context) {
		if _, err := r.maintenance.ReapProcessing(ctx, r.staleAfter); err != nil && ctx.Err() == nil {
			r.logger.Warn().Err(err).Str("func", "*reaper.Run").Msg("error reverting stale mutations")
		}
	})
}

// healthProbe pings the store and reports the result to the health service.
// It probes once on start.
type healthProbe struct {
	maintenance Maintenance
	health      HealthReporter
	interval    time.Duration
	logger      *logger.Logger

	healthy *bool
}

func (p *healthProbe) Run(ctx context.Context) error {
	p.probe(ctx)
	return tick(ctx, p.interval, p.probe)
}

func (p *healthProbe) probe(ctx context.Context) {
	err := p.maintenance.ProbeStore(ctx)
	if ctx.Err() != nil {
		return
	}
	healthy := err == nil

	if p.healthy == nil || *p.healthy != healthy {
		if healthy {
			p.logger.Info().Str("func", "*healthProbe.probe").Msg("store is reachable")
		} else {
			p.logger.Error().Err(err).Str("func", "*healthProbe.probe").Msg("store is unreachable")
		}
	}
	p.healthy = &healthy

	if p.health != nil {
		p.health.SetHealthy(healthy)
	}
}

func tick(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fn(ctx)
		}
	}
}
