package workunits

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/crowdocs/crowdocs/pkg/query"
	"github.com/crowdocs/crowdocs/pkg/repository"
)

var projection = query.
	NewProjection("work_units", "w").
	Map("id", "ID").
	Map("workflow_name", "WorkflowName").
	Map("source_url", "SourceURL").
	Map("phase", "Phase").
	Map("done", "Done").
	Map("flagged", "Flagged").
	Map("flag_reason", "FlagReason").
	Map("page_count", "PageCount").
	Map("task_groups", "TaskGroups").
	Map("context", "Context").
	Map("in_progress", "InProgress").
	Map("finished", "Finished").
	Map("classification_results", "ClassificationResults").
	Map("taxonomy_results", "TaxonomyResults").
	Map("extraction_results", "ExtractionResults").
	Map("cost", "Cost").
	Map("start_time", "StartTime").
	Map("end_time", "EndTime").
	Map("version", "Version")

var defaultSort = query.SortField{
	Field: "StartTime",
}

// Filters contains optional filtering criteria for work unit queries.
// Nil fields are ignored.
type Filters struct {
	Phase    *string `json:"phase,omitempty"`
	Workflow *string `json:"workflow,omitempty"`
	Done     *bool   `json:"done,omitempty"`
	Flagged  *bool   `json:"flagged,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Phase", f.Phase).
		WhereEquals("WorkflowName", f.Workflow).
		WhereEquals("Done", f.Done).
		WhereEquals("Flagged", f.Flagged)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if p := values.Get("phase"); p != "" {
		f.Phase = &p
	}

	if w := values.Get("workflow"); w != "" {
		f.Workflow = &w
	}

	if d := values.Get("done"); d != "" {
		if v, err := strconv.ParseBool(d); err == nil {
			f.Done = &v
		}
	}

	if fl := values.Get("flagged"); fl != "" {
		if v, err := strconv.ParseBool(fl); err == nil {
			f.Flagged = &v
		}
	}

	return f
}

func scanWorkUnit(s repository.Scanner) (WorkUnit, error) {
	var (
		u         WorkUnit
		groups    []byte
		ctx       []byte
		inProg    []byte
		finished  []byte
		classRes  []byte
		taxRes    []byte
		extracRes []byte
	)

	err := s.Scan(
		&u.ID,
		&u.WorkflowName,
		&u.SourceURL,
		&u.Phase,
		&u.Done,
		&u.Flagged,
		&u.FlagReason,
		&u.PageCount,
		&groups,
		&ctx,
		&inProg,
		&finished,
		&classRes,
		&taxRes,
		&extracRes,
		&u.Cost,
		&u.StartTime,
		&u.EndTime,
		&u.Version,
	)
	if err != nil {
		return u, err
	}

	for _, col := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"task_groups", groups, &u.TaskGroups},
		{"context", ctx, &u.Context},
		{"in_progress", inProg, &u.InProgress},
		{"finished", finished, &u.Finished},
		{"classification_results", classRes, &u.ClassificationResults},
		{"taxonomy_results", taxRes, &u.TaxonomyResults},
		{"extraction_results", extracRes, &u.ExtractionResults},
	} {
		if err := json.Unmarshal(col.data, col.dst); err != nil {
			return u, fmt.Errorf("decode %s for unit %d: %w", col.name, u.ID, err)
		}
	}

	if u.Context == nil {
		u.Context = NewContext()
	}

	return u, nil
}

func marshalColumns(u *WorkUnit) (map[string][]byte, error) {
	cols := map[string]any{
		"task_groups":            orEmptyGroups(u.TaskGroups),
		"context":                u.Context,
		"in_progress":            orEmptyCrowd(u.InProgress),
		"finished":               orEmptyCrowd(u.Finished),
		"classification_results": orEmptyResults(u.ClassificationResults),
		"taxonomy_results":       orEmptyResults(u.TaxonomyResults),
		"extraction_results":     orEmptyResults(u.ExtractionResults),
	}

	out := make(map[string][]byte, len(cols))
	for name, v := range cols {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s for unit %d: %w", name, u.ID, err)
		}
		out[name] = data
	}
	return out, nil
}

// Nil slices marshal as JSON null; the columns store empty arrays instead.
func orEmptyGroups(v []TaskGroup) []TaskGroup {
	if v == nil {
		return []TaskGroup{}
	}
	return v
}

func orEmptyCrowd(v []CrowdWorkUnit) []CrowdWorkUnit {
	if v == nil {
		return []CrowdWorkUnit{}
	}
	return v
}

func orEmptyResults(v []PhaseResult) []PhaseResult {
	if v == nil {
		return []PhaseResult{}
	}
	return v
}
