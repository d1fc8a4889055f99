// Package documents implements the deduplication store: a shared document
// row keyed by classification field values, letting work units that
// classified identically reuse one taxonomy result instead of repeating
// the phase.
package documents

import (
	"sort"
	"strings"
	"time"

	"github.com/crowdocs/crowdocs/internal/workunits"
)

// Document is one dedup cache row. At most one row exists per key; a row
// with Ready=false blocks dependent units from leaving classification
// until the first unit's taxonomy commit lands.
type Document struct {
	Key             string                  `json:"key"`
	Fields          map[string]string       `json:"fields"`
	Data            map[string]any          `json:"data"`
	Ready           bool                    `json:"ready"`
	TaxonomyResults []workunits.PhaseResult `json:"taxonomy_results"`
	Version         int64                   `json:"version"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// Separators for the canonical key encoding. The unit separator cannot
// occur in crowd-sourced field values, so the encoding is collision-free.
const (
	pairSep  = "\x1f"
	valueSep = "="
)

// Key canonicalizes a flattened classification field map: names sorted
// lexicographically, name=value pairs joined by the unit separator.
func Key(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = name + valueSep + fields[name]
	}
	return strings.Join(pairs, pairSep)
}
