package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/crowdocs/crowdocs/internal/crowd"
	"github.com/crowdocs/crowdocs/internal/documents"
	"github.com/crowdocs/crowdocs/internal/workunits"
)

// Review and escalation tasks speak a field-name protocol instead of
// producing plain data: command fields carry boolean strings and trigger
// side effects, data fields are namespaced by the phase they override.
const (
	cmdReplaceClassification = "replace-classification"
	cmdReplaceTaxonomy       = "replace-taxonomy"
	cmdReplaceExtraction     = "replace-extraction"
	cmdUseAsTaxonomy         = "use-as-taxonomy"
)

var phasePrefixes = map[string]workunits.Phase{
	"classification__": workunits.PhaseClassification,
	"taxonomy__":       workunits.PhaseTaxonomy,
	"extraction__":     workunits.PhaseExtraction,
}

// applyOverrides interprets a finished review or escalation result.
// Unknown fields and malformed boolean values are logged and dropped,
// never fatal.
func (e *Engine) applyOverrides(
	ctx context.Context,
	unit *workunits.WorkUnit,
	entry workunits.CrowdWorkUnit,
	result *crowd.Result,
) {
	replace := map[workunits.Phase]bool{}
	useAsTaxonomy := false
	data := map[workunits.Phase][]workunits.ResultField{}

	for _, f := range result.Fields {
		switch f.Name {
		case cmdReplaceClassification, cmdReplaceTaxonomy, cmdReplaceExtraction, cmdUseAsTaxonomy:
			value, ok := parseCommandBool(f.Value)
			if !ok {
				e.logger.Warn("override command ignored, bad boolean",
					"unit", unit.ID, "field", f.Name, "value", f.Value)
				continue
			}
			switch f.Name {
			case cmdReplaceClassification:
				replace[workunits.PhaseClassification] = value
			case cmdReplaceTaxonomy:
				replace[workunits.PhaseTaxonomy] = value
			case cmdReplaceExtraction:
				replace[workunits.PhaseExtraction] = value
			case cmdUseAsTaxonomy:
				useAsTaxonomy = value
			}
		default:
			phase, name, ok := splitDataField(f.Name)
			if !ok {
				e.logger.Warn("override field ignored, unknown name",
					"unit", unit.ID, "field", f.Name)
				continue
			}
			data[phase] = append(data[phase], workunits.ResultField{
				Name:       name,
				Value:      f.Value,
				Confidence: f.Confidence,
			})
		}
	}

	// The pre-override classification key is needed to drop the old
	// dedup row when classification gets replaced below.
	priorClassification := unit.ClassificationFields()

	for phase, fields := range data {
		override := workunits.PhaseResult{
			TaskID:         entry.TaskID,
			TaskName:       entry.TaskName,
			JudgementCount: result.JudgementCount,
			Fields:         fields,
			ReceivedAt:     e.now(),
		}

		if replace[phase] {
			e.evictPhaseFields(unit, phase)
			unit.SetResults(phase, []workunits.PhaseResult{override})
		} else {
			unit.AppendResult(phase, override)
		}

		for _, f := range fields {
			if phase == workunits.PhaseTaxonomy {
				unit.Context.SetTaxonomyField(f.Name, f.Value, f.Confidence)
			} else {
				unit.Context.SetField(f.Name, f.Value, f.Confidence)
			}
		}
	}

	if useAsTaxonomy {
		e.commitTaxonomyOverride(ctx, unit, priorClassification, replace[workunits.PhaseClassification])
	}
}

// evictPhaseFields removes every context entry the phase's prior results
// contributed, so a wholesale replacement leaves no stale values behind.
func (e *Engine) evictPhaseFields(unit *workunits.WorkUnit, phase workunits.Phase) {
	for _, r := range unit.Results(phase) {
		for _, f := range r.Fields {
			unit.Context.RemoveField(f.Name)
		}
	}
	if phase == workunits.PhaseTaxonomy {
		unit.Context.ClearTaxonomy()
	}
}

// commitTaxonomyOverride writes the unit's (possibly just-replaced)
// taxonomy results into the dedup store. When classification was also
// replaced, the row under the old key is deleted first so no orphaned
// dedup key keeps serving stale taxonomy data.
func (e *Engine) commitTaxonomyOverride(
	ctx context.Context,
	unit *workunits.WorkUnit,
	priorClassification map[string]string,
	classificationReplaced bool,
) {
	if classificationReplaced && len(priorClassification) > 0 {
		oldKey := documents.Key(priorClassification)
		if err := e.documents.Delete(ctx, oldKey); err != nil && !errors.Is(err, documents.ErrNotFound) {
			e.logger.Error("stale dedup document removal failed",
				"unit", unit.ID, "key", oldKey, "error", err)
			return
		}
	}

	fields := unit.ClassificationFields()
	if len(fields) == 0 {
		e.logger.Warn("taxonomy override skipped, no classification fields", "unit", unit.ID)
		return
	}

	if err := e.documents.MarkReady(ctx, fields, taxonomyData(unit), unit.TaxonomyResults); err != nil {
		e.logger.Error("taxonomy override commit failed", "unit", unit.ID, "error", err)
	}
}

func parseCommandBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

func splitDataField(name string) (workunits.Phase, string, bool) {
	for prefix, phase := range phasePrefixes {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			return phase, rest, true
		}
	}
	return "", "", false
}
