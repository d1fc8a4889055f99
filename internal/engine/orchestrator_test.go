package engine

import (
	"errors"
	"testing"

	"github.com/crowdocs/crowdocs/internal/crowd"
	"github.com/crowdocs/crowdocs/internal/workunits"
)

var errBoom = errors.New("boom")

func TestOrchestrateSubmitsEligibleTask(t *testing.T) {
	f := newFixture(t)
	f.create(t, &workunits.WorkUnit{
		ID:      1,
		Phase:   workunits.PhaseClassification,
		Context: workunits.Context{"hint": "invoice"},
	})

	unit := f.process(t, 1)

	if got := f.provider.createdCount(); got != 1 {
		t.Fatalf("created %d crowd units, want 1", got)
	}
	if f.provider.created[0].JobID != "100" {
		t.Errorf("submitted job %s, want 100", f.provider.created[0].JobID)
	}
	if f.provider.created[0].Inputs["hint"] != "invoice" {
		t.Errorf("inputs missing whitelisted field: %v", f.provider.created[0].Inputs)
	}
	if len(unit.InProgress) != 1 {
		t.Fatalf("in-progress has %d entries, want 1", len(unit.InProgress))
	}
	if unit.InProgress[0].TaskID != "100" {
		t.Errorf("in-progress task %s, want 100", unit.InProgress[0].TaskID)
	}
	if _, ok := unit.Context[workunits.StartTimeKey("100")]; !ok {
		t.Error("task start time not stamped in context")
	}
	if unit.Phase != workunits.PhaseClassification {
		t.Errorf("phase advanced to %s with work in flight", unit.Phase)
	}
}

func TestOrchestrateIdempotentOnUnchangedState(t *testing.T) {
	f := newFixture(t)
	f.create(t, &workunits.WorkUnit{ID: 1, Phase: workunits.PhaseClassification})

	f.process(t, 1)
	f.process(t, 1)

	if got := f.provider.createdCount(); got != 1 {
		t.Fatalf("created %d crowd units after two passes, want 1", got)
	}
}

func TestOrchestratePredecessorGate(t *testing.T) {
	f := newFixture(t)
	f.create(t, &workunits.WorkUnit{ID: 1, Phase: workunits.PhaseTaxonomy})

	unit := f.process(t, 1)

	if got := f.provider.createdCount(); got != 1 {
		t.Fatalf("created %d crowd units, want 1 (detail task gated)", got)
	}
	if f.provider.created[0].JobID != "200" {
		t.Errorf("submitted job %s, want 200", f.provider.created[0].JobID)
	}

	// Judging the base task opens the gate for the detail task.
	f.provider.finish(unit.InProgress[0].ExternalUnitID, &crowd.Result{JudgementCount: 3})

	f.collect(t, 1)
	f.process(t, 1)

	if got := f.provider.createdCount(); got != 2 {
		t.Fatalf("created %d crowd units, want 2", got)
	}
	if f.provider.created[1].JobID != "201" {
		t.Errorf("second submission %s, want 201", f.provider.created[1].JobID)
	}
}

func TestOrchestrateEntryConditionNeverSubmits(t *testing.T) {
	f := newFixture(t)

	template := testTemplate()
	template.TaskGroups[2].Tasks[0].EntryCondition = `TAXONOMY.hasAccount == "Yes"`

	f.create(t, &workunits.WorkUnit{
		ID:         1,
		Phase:      workunits.PhaseExtraction,
		TaskGroups: template.TaskGroups,
		Context: workunits.Context{
			"TAXONOMY": map[string]any{"hasAccount": "No"},
		},
	})

	unit := f.process(t, 1)

	if got := f.provider.createdCount(); got != 0 {
		t.Fatalf("created %d crowd units, want 0", got)
	}

	// With nothing eligible the phase completes without the task.
	if unit.Phase != workunits.PhaseReview {
		t.Errorf("phase %s, want REVIEW", unit.Phase)
	}
}

func TestOrchestrateSubmissionFailureIsolated(t *testing.T) {
	f := newFixture(t)
	f.provider.createErr = errBoom

	f.create(t, &workunits.WorkUnit{ID: 1, Phase: workunits.PhaseClassification})
	unit := f.process(t, 1)

	if len(unit.InProgress) != 0 {
		t.Fatalf("in-progress has %d entries after failed submission", len(unit.InProgress))
	}
	// The task stays eligible, so the phase must not advance past it.
	if unit.Phase != workunits.PhaseClassification {
		t.Errorf("phase %s, want CLASSIFICATION", unit.Phase)
	}

	f.provider.createErr = nil
	unit = f.process(t, 1)

	if got := f.provider.createdCount(); got != 1 {
		t.Fatalf("created %d crowd units after retry, want 1", got)
	}
}
