package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crowdocs/crowdocs/internal/workunits"
	"github.com/crowdocs/crowdocs/pkg/lifecycle"
	"github.com/crowdocs/crowdocs/pkg/repository"
)

// Drivers schedules the engine's recurring passes: one interval driver
// per phase submitting and advancing units, plus one collector driver
// absorbing finished crowd work across all phases.
type Drivers struct {
	engine *Engine

	phaseInterval   time.Duration
	collectInterval time.Duration
	pageSize        int
	workers         int
}

func NewDrivers(e *Engine, config *Config) *Drivers {
	return &Drivers{
		engine:          e,
		phaseInterval:   config.PhaseIntervalDuration(),
		collectInterval: config.CollectIntervalDuration(),
		pageSize:        config.PageSize,
		workers:         config.Workers,
	}
}

// Start registers one worker per phase and the collector worker with the
// lifecycle coordinator. Shutdown cancels the workers' context; a pass
// already in flight finishes within the coordinator's grace period.
func (d *Drivers) Start(lc *lifecycle.Coordinator) {
	for _, phase := range workunits.Phases {
		lc.Go(d.phaseLoop(phase))
	}
	lc.Go(d.collectLoop)
}

func (d *Drivers) phaseLoop(phase workunits.Phase) func(ctx context.Context) {
	return func(ctx context.Context) {
		d.loop(ctx, d.phaseInterval, func(ctx context.Context) {
			d.phasePass(ctx, phase)
		})
	}
}

func (d *Drivers) collectLoop(ctx context.Context) {
	d.loop(ctx, d.collectInterval, d.collectPass)
}

func (d *Drivers) loop(ctx context.Context, interval time.Duration, pass func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass(ctx)
		}
	}
}

// phasePass loads one bounded page of active units in the phase and
// processes them through a small worker pool. A unit's failure is logged
// and never aborts the page.
func (d *Drivers) phasePass(ctx context.Context, phase workunits.Phase) {
	units, err := d.engine.units.ListByPhase(ctx, phase, d.pageSize)
	if err != nil {
		d.engine.logger.Error("phase page load failed", "phase", phase, "error", err)
		return
	}

	d.fanOut(ctx, units, d.engine.ProcessUnit)
}

// collectPass polls every unit with in-flight crowd work, bounded the
// same way as phase passes.
func (d *Drivers) collectPass(ctx context.Context) {
	units, err := d.engine.units.ListInFlight(ctx, d.pageSize)
	if err != nil {
		d.engine.logger.Error("collector page load failed", "error", err)
		return
	}

	d.fanOut(ctx, units, d.engine.Collect)
}

func (d *Drivers) fanOut(
	ctx context.Context,
	units []workunits.WorkUnit,
	process func(context.Context, *workunits.WorkUnit) error,
) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i := range units {
		unit := units[i]
		g.Go(func() error {
			if err := process(ctx, &unit); err != nil {
				if errors.Is(err, repository.ErrStaleVersion) {
					d.engine.logger.Warn("unit save lost version race, retrying next pass", "unit", unit.ID)
					return nil
				}
				d.engine.logger.Error("unit processing failed", "unit", unit.ID, "error", err)
			}
			return nil
		})
	}

	g.Wait()
}
