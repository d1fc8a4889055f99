// Package workunits implements the work unit domain: one scanned document
// moving through the crowd-annotation pipeline. It provides the aggregate
// model, evaluation context, data access, and optimistic-concurrency saves.
package workunits

import (
	"time"
)

// Task is one crowd job inside a task group. Tasks are template data,
// immutable once copied onto a unit.
type Task struct {
	JobID          string   `json:"job_id" toml:"job_id"`
	Name           string   `json:"name" toml:"name"`
	Predecessors   []string `json:"predecessors,omitempty" toml:"predecessors,omitempty"`
	EntryCondition string   `json:"entry_condition,omitempty" toml:"entry_condition,omitempty"`
	Inputs         []string `json:"inputs,omitempty" toml:"inputs,omitempty"`
	Transformation []string `json:"transformation,omitempty" toml:"transformation,omitempty"`
}

// TaskGroup is an ordered set of tasks gated by a shared entry condition
// for one phase.
type TaskGroup struct {
	Phase          Phase  `json:"phase" toml:"phase"`
	EntryCondition string `json:"entry_condition,omitempty" toml:"entry_condition,omitempty"`
	Tasks          []Task `json:"tasks" toml:"tasks"`
}

// CrowdWorkUnit tracks one externally executed micro-task instance.
type CrowdWorkUnit struct {
	TaskID         string     `json:"task_id"`
	TaskName       string     `json:"task_name"`
	ExternalUnitID string     `json:"external_unit_id"`
	Done           bool       `json:"done"`
	Transformation []string   `json:"transformation,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// ResultField is a single named value with its judgement confidence.
type ResultField struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// PhaseResult is the record of one finished task within a phase. Later
// results override earlier ones per field name when flattened for output.
type PhaseResult struct {
	TaskID         string        `json:"task_id"`
	TaskName       string        `json:"task_name"`
	JudgementCount int           `json:"judgement_count"`
	Cost           float64       `json:"cost"`
	Fields         []ResultField `json:"fields"`
	ReceivedAt     time.Time     `json:"received_at"`
}

// WorkUnit is one document being processed. The numeric ID originates from
// the external file-storage platform. Version implements optimistic
// concurrency: Save fails with a stale-version error when it does not match
// the stored row.
type WorkUnit struct {
	ID           int64       `json:"id"`
	WorkflowName string      `json:"workflow_name"`
	SourceURL    string      `json:"source_url"`
	Phase        Phase       `json:"phase"`
	Done         bool        `json:"done"`
	Flagged      bool        `json:"flagged"`
	FlagReason   string      `json:"flag_reason,omitempty"`
	PageCount    *int        `json:"page_count,omitempty"`
	TaskGroups   []TaskGroup `json:"task_groups"`
	Context      Context     `json:"context"`

	InProgress []CrowdWorkUnit `json:"in_progress"`
	Finished   []CrowdWorkUnit `json:"finished"`

	ClassificationResults []PhaseResult `json:"classification_results"`
	TaxonomyResults       []PhaseResult `json:"taxonomy_results"`
	ExtractionResults     []PhaseResult `json:"extraction_results"`

	Cost      float64    `json:"cost"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Version int64 `json:"version"`
}

// Results returns the result list for the given phase. REVIEW and
// ESCALATION results land in the list named by their command prefixes, so
// only the three data phases have lists of their own.
func (u *WorkUnit) Results(phase Phase) []PhaseResult {
	switch phase {
	case PhaseClassification:
		return u.ClassificationResults
	case PhaseTaxonomy:
		return u.TaxonomyResults
	case PhaseExtraction:
		return u.ExtractionResults
	}
	return nil
}

// SetResults replaces the result list for the given phase.
func (u *WorkUnit) SetResults(phase Phase, results []PhaseResult) {
	switch phase {
	case PhaseClassification:
		u.ClassificationResults = results
	case PhaseTaxonomy:
		u.TaxonomyResults = results
	case PhaseExtraction:
		u.ExtractionResults = results
	}
}

// AppendResult appends a result record to the given phase's list.
func (u *WorkUnit) AppendResult(phase Phase, r PhaseResult) {
	u.SetResults(phase, append(u.Results(phase), r))
}

// ClassificationFields flattens the classification results into a field
// map, last write wins. This map is the unit's dedup key source.
func (u *WorkUnit) ClassificationFields() map[string]string {
	return FlattenFields(u.ClassificationResults)
}

// FlattenFields flattens a result list into name→value, later tasks
// overriding earlier ones.
func FlattenFields(results []PhaseResult) map[string]string {
	fields := make(map[string]string)
	for _, r := range results {
		for _, f := range r.Fields {
			fields[f.Name] = f.Value
		}
	}
	return fields
}

// HasTask reports whether the task already has a crowd-work entry in either
// the in-progress or finished set.
func (u *WorkUnit) HasTask(taskID string) bool {
	for _, c := range u.InProgress {
		if c.TaskID == taskID {
			return true
		}
	}
	for _, c := range u.Finished {
		if c.TaskID == taskID {
			return true
		}
	}
	return false
}

// FinishCrowdWork marks the in-progress entry with the given external unit
// id done and moves it to the finished set. Returns false if no such entry
// is in progress.
func (u *WorkUnit) FinishCrowdWork(externalUnitID string, endTime time.Time) bool {
	for i, c := range u.InProgress {
		if c.ExternalUnitID != externalUnitID {
			continue
		}
		c.Done = true
		c.EndTime = &endTime
		u.Finished = append(u.Finished, c)
		u.InProgress = append(u.InProgress[:i], u.InProgress[i+1:]...)
		return true
	}
	return false
}

// ClearInProgress drops all in-progress crowd work. Used by the escalation
// jump after the external units are cancelled.
func (u *WorkUnit) ClearInProgress() {
	u.InProgress = nil
}

// TaskByID finds a task definition in the unit's task groups.
func (u *WorkUnit) TaskByID(taskID string) (Task, bool) {
	for _, g := range u.TaskGroups {
		for _, t := range g.Tasks {
			if t.JobID == taskID {
				return t, true
			}
		}
	}
	return Task{}, false
}
