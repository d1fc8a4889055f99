// Package intake registers scanned documents as work units. Each
// registration copies the workflow template's task groups onto a fresh
// unit in CLASSIFICATION so the engine picks it up on its next pass.
package intake

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/crowdocs/crowdocs/internal/crowd"
	"github.com/crowdocs/crowdocs/internal/workflows"
	"github.com/crowdocs/crowdocs/internal/workunits"
)

// Registration describes one scanned document to process. ID and
// SourceURL come from the external file-storage platform; Data, when
// present, is the raw PDF used for page counting.
type Registration struct {
	ID           int64
	SourceURL    string
	WorkflowName string
	Data         []byte
}

type System struct {
	units     workunits.System
	workflows *workflows.Registry
	crowd     crowd.Provider
	logger    *slog.Logger
	now       func() time.Time
}

func New(units workunits.System, registry *workflows.Registry, provider crowd.Provider, logger *slog.Logger) *System {
	return &System{
		units:     units,
		workflows: registry,
		crowd:     provider,
		logger:    logger.With("system", "intake"),
		now:       time.Now,
	}
}

// Register creates one work unit. A registration that names an unknown
// workflow still creates the unit, flagged out of processing, so the
// document is never silently dropped.
func (s *System) Register(ctx context.Context, reg Registration) (*workunits.WorkUnit, error) {
	unit := &workunits.WorkUnit{
		ID:           reg.ID,
		WorkflowName: reg.WorkflowName,
		SourceURL:    reg.SourceURL,
		Phase:        workunits.PhaseClassification,
		Context:      workunits.NewContext(),
		StartTime:    s.now(),
	}

	template, err := s.workflows.Find(reg.WorkflowName)
	if err != nil {
		unit.Flagged = true
		unit.FlagReason = err.Error()
		s.logger.Error("registration flagged", "unit", reg.ID, "workflow", reg.WorkflowName, "error", err)
	} else {
		unit.TaskGroups = template.TaskGroups
		s.pingJobs(ctx, template)
	}

	if len(reg.Data) > 0 && isPDF(reg.SourceURL) {
		if pages, err := api.PageCount(bytes.NewReader(reg.Data), nil); err != nil {
			s.logger.Warn("page count failed", "unit", reg.ID, "error", err)
		} else {
			unit.PageCount = &pages
		}
	}

	created, err := s.units.Create(ctx, unit)
	if err != nil {
		return nil, fmt.Errorf("register unit %d: %w", reg.ID, err)
	}

	s.logger.Info("unit registered", "unit", created.ID, "workflow", created.WorkflowName, "flagged", created.Flagged)
	return created, nil
}

// RegisterBatch registers a set of documents concurrently. One bad
// registration does not stop the rest; the first error is returned after
// the batch completes.
func (s *System) RegisterBatch(ctx context.Context, regs []Registration) ([]*workunits.WorkUnit, error) {
	units := make([]*workunits.WorkUnit, len(regs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, reg := range regs {
		g.Go(func() error {
			unit, err := s.Register(ctx, reg)
			if err != nil {
				return err
			}
			units[i] = unit
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return compact(units), err
	}
	return units, nil
}

// pingJobs verifies the template's crowd jobs exist. A failed ping is a
// warning only; the orchestrator surfaces the hard failure per task.
func (s *System) pingJobs(ctx context.Context, template *workflows.Template) {
	seen := map[string]bool{}
	for _, g := range template.TaskGroups {
		for _, t := range g.Tasks {
			if seen[t.JobID] {
				continue
			}
			seen[t.JobID] = true
			if err := s.crowd.JobPing(ctx, t.JobID); err != nil {
				s.logger.Warn("crowd job unreachable", "workflow", template.Name, "job", t.JobID, "error", err)
			}
		}
	}
}

func isPDF(sourceURL string) bool {
	return strings.HasSuffix(strings.ToLower(sourceURL), ".pdf")
}

func compact(units []*workunits.WorkUnit) []*workunits.WorkUnit {
	out := units[:0]
	for _, u := range units {
		if u != nil {
			out = append(out, u)
		}
	}
	return out
}
