package engine

import (
	"testing"

	"github.com/crowdocs/crowdocs/internal/documents"
	"github.com/crowdocs/crowdocs/internal/workunits"
)

// classifiedUnit is a unit whose classification phase has fully run,
// leaving one field behind.
func classifiedUnit(id int64, state string) *workunits.WorkUnit {
	u := &workunits.WorkUnit{
		ID:       id,
		Phase:    workunits.PhaseClassification,
		Finished: []workunits.CrowdWorkUnit{finishedEntry("100", "classify")},
		ClassificationResults: []workunits.PhaseResult{{
			TaskID:         "100",
			TaskName:       "classify",
			JudgementCount: 3,
			Fields: []workunits.ResultField{
				{Name: "state", Value: state, Confidence: 0.9},
			},
			ReceivedAt: testTime,
		}},
		Context: workunits.Context{"state": state, "state_confidence": 0.9},
	}
	u.Context.SetJudgementCount("100", 3)
	return u
}

// completeTaxonomy marks the taxonomy tasks finished and records their
// results on the stored unit.
func completeTaxonomy(t *testing.T, f *fixture, id int64) {
	t.Helper()

	unit := f.reload(t, id)
	unit.InProgress = nil
	unit.Finished = append(unit.Finished,
		finishedEntry("200", "taxonomy-base"),
		finishedEntry("201", "taxonomy-detail"),
	)
	unit.Context.SetJudgementCount("200", 3)
	unit.Context.SetJudgementCount("201", 3)
	unit.Context.SetTaxonomyField("hasAccount", "Yes", 0.85)
	unit.TaxonomyResults = append(unit.TaxonomyResults, workunits.PhaseResult{
		TaskID:         "200",
		TaskName:       "taxonomy-base",
		JudgementCount: 3,
		Fields: []workunits.ResultField{
			{Name: "hasAccount", Value: "Yes", Confidence: 0.85},
		},
		ReceivedAt: testTime,
	})

	if err := f.units.Save(t.Context(), unit); err != nil {
		t.Fatalf("save unit %d: %v", id, err)
	}
}

func TestAdvanceClassificationNewKey(t *testing.T) {
	f := newFixture(t)
	f.create(t, classifiedUnit(1, "NE"))

	unit := f.process(t, 1)

	if unit.Phase != workunits.PhaseTaxonomy {
		t.Fatalf("phase %s, want TAXONOMY", unit.Phase)
	}

	doc, err := f.docs.Find(t.Context(), documents.Key(map[string]string{"state": "NE"}))
	if err != nil {
		t.Fatalf("dedup document not created: %v", err)
	}
	if doc.Ready {
		t.Error("freshly created document is already ready")
	}
}

func TestAdvanceClassificationWaitsOnPendingDocument(t *testing.T) {
	f := newFixture(t)
	f.create(t, classifiedUnit(1, "NE"))
	f.create(t, classifiedUnit(2, "NE"))

	f.process(t, 1)
	unit := f.process(t, 2)

	if unit.Phase != workunits.PhaseClassification {
		t.Errorf("second unit advanced to %s before the document was ready", unit.Phase)
	}
}

func TestAdvanceTaxonomyCommitAndAdoption(t *testing.T) {
	f := newFixture(t)
	f.create(t, classifiedUnit(1, "NE"))
	f.create(t, classifiedUnit(2, "NE"))

	// Unit 1 claims the key; unit 2 waits on it.
	f.process(t, 1)
	f.process(t, 2)

	completeTaxonomy(t, f, 1)
	unit := f.process(t, 1)

	if unit.Phase != workunits.PhaseExtraction {
		t.Fatalf("unit 1 phase %s, want EXTRACTION", unit.Phase)
	}

	doc, err := f.docs.Find(t.Context(), documents.Key(map[string]string{"state": "NE"}))
	if err != nil {
		t.Fatalf("find document: %v", err)
	}
	if !doc.Ready {
		t.Fatal("document not ready after taxonomy commit")
	}
	if doc.Data["hasAccount"] != "Yes" {
		t.Errorf("document data missing taxonomy field: %v", doc.Data)
	}

	// Unit 2 now adopts the cached taxonomy and skips the phase.
	other := f.process(t, 2)

	if other.Phase != workunits.PhaseExtraction {
		t.Fatalf("unit 2 phase %s, want EXTRACTION", other.Phase)
	}
	if got := other.Context["hasAccount"]; got != "Yes" {
		t.Errorf("unit 2 context hasAccount = %v, want Yes", got)
	}
	if got := other.Context.Taxonomy()["hasAccount"]; got != "Yes" {
		t.Errorf("unit 2 TAXONOMY.hasAccount = %v, want Yes", got)
	}
	if len(other.TaxonomyResults) != 1 {
		t.Errorf("unit 2 taxonomy results %d, want 1", len(other.TaxonomyResults))
	}
	if got := f.provider.createdCount(); got != 0 {
		t.Errorf("dedup path submitted %d crowd units, want 0", got)
	}
}

func TestPhaseMonotonicity(t *testing.T) {
	f := newFixture(t)
	f.create(t, &workunits.WorkUnit{
		ID:         1,
		Phase:      workunits.PhaseClassification,
		TaskGroups: []workunits.TaskGroup{},
	})

	want := []workunits.Phase{
		workunits.PhaseTaxonomy,
		workunits.PhaseExtraction,
		workunits.PhaseReview,
		workunits.PhaseReview,
	}

	for i, phase := range want {
		unit := f.process(t, 1)
		if unit.Phase != phase {
			t.Fatalf("pass %d: phase %s, want %s", i+1, unit.Phase, phase)
		}
	}

	unit := f.reload(t, 1)
	if !unit.Done {
		t.Error("unit not done after review completed")
	}
	if unit.EndTime == nil {
		t.Error("end time not stamped")
	}
	if _, ok := f.outputs.saved["invoices/1.json"]; !ok {
		t.Errorf("output not persisted, saved keys: %v", f.outputs.saved)
	}
}

func TestEscalationCancelsInFlight(t *testing.T) {
	f := newFixture(t)
	f.create(t, &workunits.WorkUnit{ID: 1, Phase: workunits.PhaseTaxonomy})

	unit := f.process(t, 1)
	external := unit.InProgress[0].ExternalUnitID

	unit = f.reload(t, 1)
	unit.Context["needs_help"] = "Yes"
	if err := f.units.Save(t.Context(), unit); err != nil {
		t.Fatalf("save: %v", err)
	}

	unit = f.process(t, 1)

	if unit.Phase != workunits.PhaseEscalation {
		t.Fatalf("phase %s, want ESCALATION", unit.Phase)
	}
	if len(f.provider.cancelled) != 1 || f.provider.cancelled[0] != external {
		t.Errorf("cancelled %v, want [%s]", f.provider.cancelled, external)
	}
	for _, entry := range unit.InProgress {
		if entry.TaskID != "500" {
			t.Errorf("stale in-progress entry survived escalation: %+v", entry)
		}
	}
	if len(unit.InProgress) != 1 {
		t.Errorf("escalation task not submitted, in-progress: %+v", unit.InProgress)
	}
}

func TestEscalationDoesNotFireFromReview(t *testing.T) {
	f := newFixture(t)
	f.create(t, &workunits.WorkUnit{
		ID:         1,
		Phase:      workunits.PhaseReview,
		TaskGroups: []workunits.TaskGroup{testTemplate().TaskGroups[4]},
		Context:    workunits.Context{"needs_help": "Yes"},
	})

	unit := f.process(t, 1)

	if unit.Phase != workunits.PhaseReview {
		t.Errorf("phase %s, want REVIEW", unit.Phase)
	}
	if !unit.Done {
		t.Error("review unit with no tasks did not finalize")
	}
}

func TestFinalizeUploadFailureBlocksDone(t *testing.T) {
	f := newFixture(t)
	f.create(t, &workunits.WorkUnit{
		ID:         1,
		Phase:      workunits.PhaseReview,
		TaskGroups: []workunits.TaskGroup{},
	})

	f.outputs.err = errBoom

	unit := f.reload(t, 1)
	if err := f.engine.ProcessUnit(t.Context(), unit); err == nil {
		t.Fatal("expected error from failed output upload")
	}

	unit = f.reload(t, 1)
	if unit.Done {
		t.Fatal("unit marked done despite output failure")
	}

	f.outputs.err = nil
	unit = f.process(t, 1)

	if !unit.Done {
		t.Error("unit not done after successful retry")
	}
}

func TestFinalizeMissingWorkflowFlags(t *testing.T) {
	f := newFixture(t)
	f.create(t, &workunits.WorkUnit{
		ID:           1,
		WorkflowName: "ghost",
		Phase:        workunits.PhaseReview,
		TaskGroups:   []workunits.TaskGroup{},
	})

	unit := f.process(t, 1)

	if !unit.Flagged {
		t.Fatal("unit with unknown workflow not flagged")
	}
	if unit.Done {
		t.Error("flagged unit marked done")
	}

	// Flagged units are skipped entirely on later passes.
	f.process(t, 1)
	if got := f.provider.createdCount(); got != 0 {
		t.Errorf("flagged unit submitted %d crowd units", got)
	}
}
