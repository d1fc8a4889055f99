package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/crowdocs/crowdocs/internal/workunits"
	"github.com/crowdocs/crowdocs/pkg/expr"
)

// orchestrate submits a crowd unit for every task of the current phase
// that just became eligible. It returns the number of eligible tasks it
// found, counting submissions that failed, so the caller knows whether
// the phase still has work outstanding. Running it again on unchanged
// state finds nothing eligible and submits nothing.
func (e *Engine) orchestrate(ctx context.Context, unit *workunits.WorkUnit) int {
	group, ok := groupFor(unit, unit.Phase)
	if !ok {
		return 0
	}

	if !e.conditionMet(unit, group.EntryCondition) {
		return 0
	}

	eligible := 0
	for _, task := range group.Tasks {
		if !e.taskEligible(unit, task) {
			continue
		}
		eligible++

		if err := e.submit(ctx, unit, task); err != nil {
			e.logger.Error("task submission failed",
				"unit", unit.ID, "task", task.Name, "job", task.JobID, "error", err)
		}
	}

	return eligible
}

func (e *Engine) submit(ctx context.Context, unit *workunits.WorkUnit, task workunits.Task) error {
	inputs := taskInputs(unit, task)

	externalID, err := e.crowd.CreateUnit(ctx, task.JobID, unit.SourceURL, inputs)
	if err != nil {
		return err
	}

	now := e.now()
	unit.InProgress = append(unit.InProgress, workunits.CrowdWorkUnit{
		TaskID:         task.JobID,
		TaskName:       task.Name,
		ExternalUnitID: externalID,
		Transformation: task.Transformation,
		StartTime:      now,
	})
	unit.Context.SetTaskStart(task.JobID, now)

	e.logger.Info("crowd unit submitted",
		"unit", unit.ID, "task", task.Name, "job", task.JobID, "external", externalID)
	return nil
}

// taskEligible applies the three gates from the task definition: every
// predecessor judged, the task's own entry condition true, and the task
// not already submitted.
func (e *Engine) taskEligible(unit *workunits.WorkUnit, task workunits.Task) bool {
	for _, p := range task.Predecessors {
		if !unit.Context.HasJudgement(p) {
			return false
		}
	}
	if !e.conditionMet(unit, task.EntryCondition) {
		return false
	}
	return !unit.HasTask(task.JobID)
}

// conditionMet evaluates an entry condition against the unit's context,
// failing closed. An empty condition is an open gate.
func (e *Engine) conditionMet(unit *workunits.WorkUnit, condition string) bool {
	if condition == "" {
		return true
	}

	ok, err := expr.Evaluate(condition, unit.Context.Eval())
	if err != nil {
		e.logger.Warn("entry condition failed closed",
			"unit", unit.ID, "condition", condition, "error", err)
		return false
	}
	return ok
}

// taskInputs projects the context onto the task's input whitelist.
func taskInputs(unit *workunits.WorkUnit, task workunits.Task) map[string]string {
	inputs := make(map[string]string, len(task.Inputs))
	for _, name := range task.Inputs {
		if v, ok := unit.Context[name]; ok {
			inputs[name] = stringify(v)
		}
	}
	return inputs
}

func groupFor(unit *workunits.WorkUnit, phase workunits.Phase) (workunits.TaskGroup, bool) {
	for _, g := range unit.TaskGroups {
		if g.Phase == phase {
			return g, true
		}
	}
	return workunits.TaskGroup{}, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
