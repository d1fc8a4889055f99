package engine

import (
	"time"

	"github.com/crowdocs/crowdocs/internal/workunits"
)

// OutputField is one annotated value in the generated output document.
type OutputField struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Confidence     float64 `json:"confidence"`
	SourceTaskName string  `json:"sourceTaskName"`
}

// OutputDocument is the normalized result emitted when a unit finalizes:
// one section per data phase, each a flat field list where later tasks
// override earlier ones for the same field name.
type OutputDocument struct {
	WorkUnitID     int64         `json:"workUnitId"`
	WorkflowName   string        `json:"workflowName"`
	Classification []OutputField `json:"classification"`
	Taxonomy       []OutputField `json:"taxonomy"`
	Extraction     []OutputField `json:"extraction"`
	Cost           float64       `json:"cost"`
	StartTime      time.Time     `json:"startTime"`
	EndTime        *time.Time    `json:"endTime,omitempty"`
}

func buildOutput(unit *workunits.WorkUnit) *OutputDocument {
	return &OutputDocument{
		WorkUnitID:     unit.ID,
		WorkflowName:   unit.WorkflowName,
		Classification: flattenSection(unit.ClassificationResults),
		Taxonomy:       flattenSection(unit.TaxonomyResults),
		Extraction:     flattenSection(unit.ExtractionResults),
		Cost:           unit.Cost,
		StartTime:      unit.StartTime,
		EndTime:        unit.EndTime,
	}
}

// flattenSection collapses a phase's result list into one field list.
// A field keeps the position of its first appearance but carries the
// value, confidence, and source task of its last.
func flattenSection(results []workunits.PhaseResult) []OutputField {
	fields := []OutputField{}
	index := map[string]int{}

	for _, r := range results {
		for _, f := range r.Fields {
			out := OutputField{
				Name:           f.Name,
				Value:          f.Value,
				Confidence:     f.Confidence,
				SourceTaskName: r.TaskName,
			}
			if i, ok := index[f.Name]; ok {
				fields[i] = out
				continue
			}
			index[f.Name] = len(fields)
			fields = append(fields, out)
		}
	}

	return fields
}
