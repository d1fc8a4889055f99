package engine

import (
	"testing"

	"github.com/crowdocs/crowdocs/internal/crowd"
	"github.com/crowdocs/crowdocs/internal/documents"
	"github.com/crowdocs/crowdocs/internal/workunits"
)

// reviewUnit is a unit sitting in REVIEW with one review task in flight
// and prior classification and taxonomy results on record.
func reviewUnit(id int64) *workunits.WorkUnit {
	u := classifiedUnit(id, "NE")
	u.Phase = workunits.PhaseReview
	u.Context.SetTaxonomyField("hasAccount", "Yes", 0.85)
	u.TaxonomyResults = []workunits.PhaseResult{{
		TaskID:         "200",
		TaskName:       "taxonomy-base",
		JudgementCount: 3,
		Fields: []workunits.ResultField{
			{Name: "hasAccount", Value: "Yes", Confidence: 0.85},
		},
		ReceivedAt: testTime,
	}}
	u.InProgress = []workunits.CrowdWorkUnit{{
		TaskID:         "400",
		TaskName:       "review",
		ExternalUnitID: "ext-review",
		StartTime:      testTime,
	}}
	return u
}

func TestReviewReplaceTaxonomy(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewUnit(1))

	f.provider.finish("ext-review", &crowd.Result{
		JudgementCount: 1,
		Fields: []crowd.Field{
			{Name: "replace-taxonomy", Value: "true"},
			{Name: "taxonomy__x", Value: "5", Confidence: 1},
		},
	})

	unit := f.collect(t, 1)

	if len(unit.TaxonomyResults) != 1 {
		t.Fatalf("taxonomy results %d, want 1", len(unit.TaxonomyResults))
	}
	fields := unit.TaxonomyResults[0].Fields
	if len(fields) != 1 || fields[0].Name != "x" || fields[0].Value != "5" {
		t.Fatalf("taxonomy result fields %+v, want exactly x=5", fields)
	}

	if _, ok := unit.Context["hasAccount"]; ok {
		t.Error("replaced taxonomy field hasAccount still in context")
	}
	if got := unit.Context["x"]; got != "5" {
		t.Errorf("context x = %v, want 5", got)
	}
	if got := unit.Context.Taxonomy()["x"]; got != "5" {
		t.Errorf("TAXONOMY.x = %v, want 5", got)
	}
	if _, ok := unit.Context.Taxonomy()["hasAccount"]; ok {
		t.Error("TAXONOMY.hasAccount survived the replacement")
	}

	// Classification untouched.
	if got := unit.Context["state"]; got != "NE" {
		t.Errorf("classification field disturbed: state = %v", got)
	}
	if len(unit.InProgress) != 0 {
		t.Errorf("review entry still in progress: %+v", unit.InProgress)
	}
}

func TestReviewAppendWithoutReplace(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewUnit(1))

	f.provider.finish("ext-review", &crowd.Result{
		Fields: []crowd.Field{
			{Name: "extraction__amount", Value: "120.50", Confidence: 1},
		},
	})

	unit := f.collect(t, 1)

	if len(unit.ExtractionResults) != 1 {
		t.Fatalf("extraction results %d, want 1", len(unit.ExtractionResults))
	}
	if got := unit.Context["amount"]; got != "120.50" {
		t.Errorf("context amount = %v, want 120.50", got)
	}
	// Without replace-taxonomy the prior results stay.
	if len(unit.TaxonomyResults) != 1 {
		t.Errorf("taxonomy results disturbed: %d", len(unit.TaxonomyResults))
	}
}

func TestReviewUseAsTaxonomyRecreatesDocument(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewUnit(1))

	oldKey := documents.Key(map[string]string{"state": "NE"})
	if _, _, err := f.docs.FindOrCreate(t.Context(), map[string]string{"state": "NE"}); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	f.provider.finish("ext-review", &crowd.Result{
		Fields: []crowd.Field{
			{Name: "replace-classification", Value: "true"},
			{Name: "classification__state", Value: "CA", Confidence: 1},
			{Name: "replace-taxonomy", Value: "true"},
			{Name: "taxonomy__hasAccount", Value: "No", Confidence: 1},
			{Name: "use-as-taxonomy", Value: "true"},
		},
	})

	unit := f.collect(t, 1)

	if _, err := f.docs.Find(t.Context(), oldKey); err != documents.ErrNotFound {
		t.Errorf("stale document under old key survived: %v", err)
	}

	doc, err := f.docs.Find(t.Context(), documents.Key(map[string]string{"state": "CA"}))
	if err != nil {
		t.Fatalf("document under new key missing: %v", err)
	}
	if !doc.Ready {
		t.Error("recreated document not ready")
	}
	if len(doc.TaxonomyResults) != 1 || doc.TaxonomyResults[0].Fields[0].Value != "No" {
		t.Errorf("document taxonomy results %+v", doc.TaxonomyResults)
	}

	if got := unit.Context["state"]; got != "CA" {
		t.Errorf("context state = %v, want CA", got)
	}
}

func TestReviewIgnoresUnknownAndMalformedFields(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewUnit(1))

	f.provider.finish("ext-review", &crowd.Result{
		Fields: []crowd.Field{
			{Name: "replace-taxonomy", Value: "yep"},
			{Name: "mystery-field", Value: "42"},
			{Name: "taxonomy__", Value: "empty name"},
		},
	})

	unit := f.collect(t, 1)

	// The malformed boolean means no replacement happened.
	if len(unit.TaxonomyResults) != 1 || unit.TaxonomyResults[0].Fields[0].Name != "hasAccount" {
		t.Errorf("taxonomy results disturbed: %+v", unit.TaxonomyResults)
	}
	if _, ok := unit.Context["mystery-field"]; ok {
		t.Error("unknown field leaked into context")
	}
	if len(unit.InProgress) != 0 {
		t.Error("review entry not moved to finished")
	}
}
