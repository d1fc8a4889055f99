package engine

import (
	"context"

	"github.com/crowdocs/crowdocs/internal/crowd"
	"github.com/crowdocs/crowdocs/internal/workunits"
	"github.com/crowdocs/crowdocs/pkg/expr"
)

// Collect polls every in-progress crowd unit once. Unfinished polls are
// no-ops; finished results merge into the unit's context and result
// lists, or route through the override processor for REVIEW and
// ESCALATION units. The caller persists the unit afterwards.
func (e *Engine) Collect(ctx context.Context, unit *workunits.WorkUnit) error {
	if unit.Done || unit.Flagged {
		return nil
	}

	changed := false

	// FinishCrowdWork mutates InProgress, so iterate a snapshot.
	pending := make([]workunits.CrowdWorkUnit, len(unit.InProgress))
	copy(pending, unit.InProgress)

	for _, entry := range pending {
		result, err := e.crowd.UnitResult(ctx, entry.TaskID, entry.ExternalUnitID)
		if err != nil {
			e.logger.Error("crowd poll failed",
				"unit", unit.ID, "task", entry.TaskName, "external", entry.ExternalUnitID, "error", err)
			continue
		}
		if !result.Done {
			continue
		}

		if unit.Phase.Terminal() {
			e.applyOverrides(ctx, unit, entry, result)
		} else {
			e.absorb(unit, entry, result)
		}

		now := e.now()
		unit.FinishCrowdWork(entry.ExternalUnitID, now)
		unit.Context.SetTaskEnd(entry.TaskID, now)
		unit.Cost += result.Cost
		changed = true

		e.logger.Info("crowd unit finished",
			"unit", unit.ID, "task", entry.TaskName, "judgements", result.JudgementCount)
	}

	if !changed {
		return nil
	}
	return e.units.Save(ctx, unit)
}

// absorb is the default result path for the three data phases: record
// the judgement count, merge fields with confidence into the context,
// run the task's transformations, and append to the phase result list.
func (e *Engine) absorb(unit *workunits.WorkUnit, entry workunits.CrowdWorkUnit, result *crowd.Result) {
	unit.Context.SetJudgementCount(entry.TaskID, result.JudgementCount)

	fields := make([]workunits.ResultField, 0, len(result.Fields))
	for _, f := range result.Fields {
		if unit.Phase == workunits.PhaseTaxonomy {
			unit.Context.SetTaxonomyField(f.Name, f.Value, f.Confidence)
		} else {
			unit.Context.SetField(f.Name, f.Value, f.Confidence)
		}
		fields = append(fields, workunits.ResultField{
			Name:       f.Name,
			Value:      f.Value,
			Confidence: f.Confidence,
		})
	}

	e.transform(unit, entry)

	unit.AppendResult(unit.Phase, workunits.PhaseResult{
		TaskID:         entry.TaskID,
		TaskName:       entry.TaskName,
		JudgementCount: result.JudgementCount,
		Cost:           result.Cost,
		Fields:         fields,
		ReceivedAt:     e.now(),
	})
}

// transform runs the task's transformation expressions against the
// context. Each expression either lands its $add/$set changes or is
// skipped with a log entry; one bad expression never blocks the rest.
func (e *Engine) transform(unit *workunits.WorkUnit, entry workunits.CrowdWorkUnit) {
	for _, expression := range entry.Transformation {
		mutation, err := expr.Transform(expression, unit.Context.Eval())
		if err != nil {
			e.logger.Warn("transformation skipped",
				"unit", unit.ID, "task", entry.TaskName, "expression", expression, "error", err)
			continue
		}

		for k, v := range mutation.Add {
			unit.Context[k] = v
		}
		for k, v := range mutation.Set {
			unit.Context[k] = v
		}
	}
}
