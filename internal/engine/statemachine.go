package engine

import (
	"context"
	"fmt"

	"github.com/crowdocs/crowdocs/internal/documents"
	"github.com/crowdocs/crowdocs/internal/workflows"
	"github.com/crowdocs/crowdocs/internal/workunits"
)

// advance applies the phase transition rule. It runs at most one
// transition per pass and only when the caller has established that the
// current phase has no crowd work outstanding.
func (e *Engine) advance(ctx context.Context, unit *workunits.WorkUnit) error {
	switch unit.Phase {
	case workunits.PhaseClassification:
		return e.leaveClassification(ctx, unit)

	case workunits.PhaseTaxonomy:
		if err := e.commitTaxonomy(ctx, unit); err != nil {
			return err
		}
		e.moveTo(unit, workunits.PhaseExtraction)

	case workunits.PhaseExtraction:
		e.moveTo(unit, workunits.PhaseReview)

	case workunits.PhaseReview, workunits.PhaseEscalation:
		return e.finalize(ctx, unit)
	}

	return nil
}

// leaveClassification consults the dedup store. A novel classification
// key means this unit owns taxonomy work; an existing ready key lets it
// reuse the cached taxonomy and skip straight to extraction; an existing
// key that is not ready yet means another unit is still computing the
// taxonomy, so wait.
func (e *Engine) leaveClassification(ctx context.Context, unit *workunits.WorkUnit) error {
	fields := unit.ClassificationFields()
	if len(fields) == 0 {
		// No classification tasks produced fields; nothing to dedup on.
		e.moveTo(unit, workunits.PhaseTaxonomy)
		return nil
	}

	doc, created, err := e.documents.FindOrCreate(ctx, fields)
	if err != nil {
		return fmt.Errorf("dedup lookup for unit %d: %w", unit.ID, err)
	}

	switch {
	case created:
		e.moveTo(unit, workunits.PhaseTaxonomy)
	case !doc.Ready:
		e.logger.Info("unit waiting on dedup document", "unit", unit.ID, "key", doc.Key)
	default:
		e.adoptTaxonomy(unit, doc)
		e.moveTo(unit, workunits.PhaseExtraction)
	}

	return nil
}

// adoptTaxonomy copies a ready document's cached taxonomy results and
// fields onto the unit as if it had run the taxonomy phase itself.
func (e *Engine) adoptTaxonomy(unit *workunits.WorkUnit, doc *documents.Document) {
	unit.TaxonomyResults = append(unit.TaxonomyResults, doc.TaxonomyResults...)

	for _, r := range doc.TaxonomyResults {
		for _, f := range r.Fields {
			unit.Context.SetTaxonomyField(f.Name, f.Value, f.Confidence)
		}
	}

	e.logger.Info("cached taxonomy adopted", "unit", unit.ID, "key", doc.Key)
}

// commitTaxonomy publishes the unit's taxonomy results to the dedup
// store so later units with the same classification key can skip the
// phase. MarkReady recreates the row if it was deleted underneath us.
func (e *Engine) commitTaxonomy(ctx context.Context, unit *workunits.WorkUnit) error {
	fields := unit.ClassificationFields()
	if len(fields) == 0 {
		return nil
	}

	if err := e.documents.MarkReady(ctx, fields, taxonomyData(unit), unit.TaxonomyResults); err != nil {
		return fmt.Errorf("taxonomy commit for unit %d: %w", unit.ID, err)
	}
	return nil
}

// finalize generates and persists the output document, then marks the
// unit done. An upload failure leaves the unit active so the next pass
// retries; a missing workflow template flags it out of processing.
func (e *Engine) finalize(ctx context.Context, unit *workunits.WorkUnit) error {
	template, err := e.workflows.Find(unit.WorkflowName)
	if err != nil {
		unit.Flagged = true
		unit.FlagReason = err.Error()
		e.logger.Error("unit flagged", "unit", unit.ID, "error", err)
		return nil
	}

	key := outputKey(template, unit)
	if err := e.outputs.UploadJSON(ctx, key, buildOutput(unit)); err != nil {
		return fmt.Errorf("persist output for unit %d: %w", unit.ID, err)
	}

	end := e.now()
	unit.Done = true
	unit.EndTime = &end

	e.logger.Info("unit finalized", "unit", unit.ID, "phase", unit.Phase, "output", key, "cost", unit.Cost)
	return nil
}

// scanEscalation checks the unit's ESCALATION task group entry condition
// on every pass. Only units in one of the three data phases jump; the
// jump cancels all in-flight crowd work before switching phases.
func (e *Engine) scanEscalation(ctx context.Context, unit *workunits.WorkUnit) bool {
	group, ok := groupFor(unit, workunits.PhaseEscalation)
	if !ok || group.EntryCondition == "" {
		return false
	}
	if !e.conditionMet(unit, group.EntryCondition) {
		return false
	}
	if !unit.Phase.Escalatable() {
		return false
	}

	for _, entry := range unit.InProgress {
		if err := e.crowd.CancelUnit(ctx, entry.TaskID, entry.ExternalUnitID); err != nil {
			e.logger.Error("escalation cancel failed",
				"unit", unit.ID, "task", entry.TaskName, "external", entry.ExternalUnitID, "error", err)
		}
	}
	unit.ClearInProgress()

	e.logger.Warn("unit escalated", "unit", unit.ID, "from", unit.Phase)
	unit.Phase = workunits.PhaseEscalation
	return true
}

func (e *Engine) moveTo(unit *workunits.WorkUnit, phase workunits.Phase) {
	e.logger.Info("phase transition", "unit", unit.ID, "from", unit.Phase, "to", phase)
	unit.Phase = phase
}

// taxonomyData flattens the unit's classification and taxonomy fields
// into the merge map a dedup document carries as data.
func taxonomyData(unit *workunits.WorkUnit) map[string]any {
	data := map[string]any{}
	for name, value := range unit.ClassificationFields() {
		data[name] = value
	}
	for name, value := range workunits.FlattenFields(unit.TaxonomyResults) {
		data[name] = value
	}
	return data
}

func outputKey(template *workflows.Template, unit *workunits.WorkUnit) string {
	prefix := template.OutputPrefix
	if prefix == "" {
		prefix = "outputs"
	}
	return fmt.Sprintf("%s/%d.json", prefix, unit.ID)
}
