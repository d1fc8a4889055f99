package workunits

import (
	"fmt"
	"maps"
	"time"
)

// Context is the per-unit evaluation context: the key/value map conditions
// evaluate against and results merge into. Field values live alongside a
// `<field>_confidence` entry; per-task bookkeeping uses `J<taskId>_*` keys;
// taxonomy fields are additionally nested under the TAXONOMY sub-map.
type Context map[string]any

const taxonomyKey = "TAXONOMY"

const confidenceSuffix = "_confidence"

// NewContext returns an empty evaluation context.
func NewContext() Context {
	return Context{}
}

// Clone returns a deep copy: nested maps are copied, scalars shared.
func (c Context) Clone() Context {
	clone := make(Context, len(c))
	for k, v := range c {
		if m, ok := v.(map[string]any); ok {
			clone[k] = maps.Clone(m)
			continue
		}
		clone[k] = v
	}
	return clone
}

// SetField stores a field value and its confidence.
func (c Context) SetField(name, value string, confidence float64) {
	c[name] = value
	c[name+confidenceSuffix] = confidence
}

// SetTaxonomyField stores a field at the top level and under the TAXONOMY
// sub-map.
func (c Context) SetTaxonomyField(name, value string, confidence float64) {
	c.SetField(name, value, confidence)
	c.Taxonomy()[name] = value
}

// RemoveField deletes a field value and its confidence entry, including the
// TAXONOMY sub-map copy if present.
func (c Context) RemoveField(name string) {
	delete(c, name)
	delete(c, name+confidenceSuffix)
	if m, ok := c[taxonomyKey].(map[string]any); ok {
		delete(m, name)
	}
}

// Taxonomy returns the nested TAXONOMY sub-map, creating it if needed.
func (c Context) Taxonomy() map[string]any {
	if m, ok := c[taxonomyKey].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	c[taxonomyKey] = m
	return m
}

// ClearTaxonomy drops the nested TAXONOMY sub-map.
func (c Context) ClearTaxonomy() {
	delete(c, taxonomyKey)
}

// JudgementCountKey returns the context key recording how many judgements
// the task received.
func JudgementCountKey(taskID string) string {
	return fmt.Sprintf("J%s_judgement_count", taskID)
}

// StartTimeKey returns the context key for a task's submission time.
func StartTimeKey(taskID string) string {
	return fmt.Sprintf("J%s_startTime", taskID)
}

// EndTimeKey returns the context key for a task's completion time.
func EndTimeKey(taskID string) string {
	return fmt.Sprintf("J%s_endTime", taskID)
}

// SetJudgementCount records the judgement count for a task.
func (c Context) SetJudgementCount(taskID string, count int) {
	c[JudgementCountKey(taskID)] = float64(count)
}

// HasJudgement reports whether a task has a recorded judgement count.
// Predecessor gating in task eligibility depends on this.
func (c Context) HasJudgement(taskID string) bool {
	_, ok := c[JudgementCountKey(taskID)]
	return ok
}

// SetTaskStart stamps a task's submission time.
func (c Context) SetTaskStart(taskID string, t time.Time) {
	c[StartTimeKey(taskID)] = t.UTC().Format(time.RFC3339)
}

// SetTaskEnd stamps a task's completion time.
func (c Context) SetTaskEnd(taskID string, t time.Time) {
	c[EndTimeKey(taskID)] = t.UTC().Format(time.RFC3339)
}

// Eval exposes the context to the expression evaluator.
func (c Context) Eval() map[string]any {
	return c
}
