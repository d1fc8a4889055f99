// Package engine drives work units through the annotation pipeline: it
// submits crowd tasks, collects their results, applies review overrides,
// and advances each unit's phase until it finalizes.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/crowdocs/crowdocs/internal/crowd"
	"github.com/crowdocs/crowdocs/internal/documents"
	"github.com/crowdocs/crowdocs/internal/workflows"
	"github.com/crowdocs/crowdocs/internal/workunits"
)

// OutputStore is the slice of blob storage the engine needs to persist
// generated output documents.
type OutputStore interface {
	UploadJSON(ctx context.Context, key string, v any) error
}

// Engine owns all work unit processing. One Engine serves every phase
// driver and the collector; it holds no per-unit state of its own.
type Engine struct {
	units     workunits.System
	documents documents.System
	crowd     crowd.Provider
	outputs   OutputStore
	workflows *workflows.Registry
	logger    *slog.Logger
	now       func() time.Time
}

func New(
	units workunits.System,
	docs documents.System,
	provider crowd.Provider,
	outputs OutputStore,
	registry *workflows.Registry,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		units:     units,
		documents: docs,
		crowd:     provider,
		outputs:   outputs,
		workflows: registry,
		logger:    logger.With("system", "engine"),
		now:       time.Now,
	}
}

// ProcessUnit runs one pass over a single unit: the escalation scan, task
// submission for the current phase, and at most one phase transition. The
// caller persists the unit afterwards; a stale-version save means another
// pass got there first and this one's work is discarded.
func (e *Engine) ProcessUnit(ctx context.Context, unit *workunits.WorkUnit) error {
	if unit.Done || unit.Flagged {
		return nil
	}

	escalated := e.scanEscalation(ctx, unit)

	eligible := e.orchestrate(ctx, unit)

	if !escalated && eligible == 0 && len(unit.InProgress) == 0 {
		if err := e.advance(ctx, unit); err != nil {
			return err
		}
	}

	return e.units.Save(ctx, unit)
}
