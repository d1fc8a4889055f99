package workunits

import (
	"errors"
	"testing"
	"time"

	"github.com/crowdocs/crowdocs/pkg/repository"
)

func TestFlattenFieldsLastWriteWins(t *testing.T) {
	results := []PhaseResult{
		{
			TaskName: "first",
			Fields: []ResultField{
				{Name: "state", Value: "NE"},
				{Name: "type", Value: "invoice"},
			},
		},
		{
			TaskName: "second",
			Fields: []ResultField{
				{Name: "state", Value: "CA"},
			},
		},
	}

	fields := FlattenFields(results)

	if fields["state"] != "CA" {
		t.Errorf("state = %s, want CA (later task overrides)", fields["state"])
	}
	if fields["type"] != "invoice" {
		t.Errorf("type = %s, want invoice", fields["type"])
	}
}

func TestHasTask(t *testing.T) {
	u := &WorkUnit{
		InProgress: []CrowdWorkUnit{{TaskID: "100"}},
		Finished:   []CrowdWorkUnit{{TaskID: "200"}},
	}

	tests := []struct {
		taskID string
		want   bool
	}{
		{"100", true},
		{"200", true},
		{"300", false},
	}

	for _, tt := range tests {
		if got := u.HasTask(tt.taskID); got != tt.want {
			t.Errorf("HasTask(%s) = %v, want %v", tt.taskID, got, tt.want)
		}
	}
}

func TestFinishCrowdWork(t *testing.T) {
	u := &WorkUnit{
		InProgress: []CrowdWorkUnit{
			{TaskID: "100", ExternalUnitID: "ext-1"},
			{TaskID: "200", ExternalUnitID: "ext-2"},
		},
	}

	end := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	if !u.FinishCrowdWork("ext-1", end) {
		t.Fatal("FinishCrowdWork returned false for in-progress entry")
	}
	if u.FinishCrowdWork("ext-1", end) {
		t.Error("FinishCrowdWork succeeded twice for the same entry")
	}

	if len(u.InProgress) != 1 || u.InProgress[0].ExternalUnitID != "ext-2" {
		t.Errorf("in-progress after finish: %+v", u.InProgress)
	}
	if len(u.Finished) != 1 {
		t.Fatalf("finished after finish: %+v", u.Finished)
	}
	if !u.Finished[0].Done || u.Finished[0].EndTime == nil || !u.Finished[0].EndTime.Equal(end) {
		t.Errorf("finished entry not closed out: %+v", u.Finished[0])
	}
}

func TestMemorySaveVersionConflict(t *testing.T) {
	m := NewMemory()

	created, err := m.Create(t.Context(), &WorkUnit{ID: 1, Phase: PhaseClassification})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := m.Find(t.Context(), created.ID)
	second, _ := m.Find(t.Context(), created.ID)

	first.Phase = PhaseTaxonomy
	if err := m.Save(t.Context(), first); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second.Phase = PhaseExtraction
	if err := m.Save(t.Context(), second); !errors.Is(err, repository.ErrStaleVersion) {
		t.Fatalf("second save err = %v, want ErrStaleVersion", err)
	}

	stored, _ := m.Find(t.Context(), created.ID)
	if stored.Phase != PhaseTaxonomy {
		t.Errorf("stale save overwrote the row: phase %s", stored.Phase)
	}
}

func TestMemoryListByPhaseExcludesDoneAndFlagged(t *testing.T) {
	m := NewMemory()

	for _, u := range []*WorkUnit{
		{ID: 1, Phase: PhaseTaxonomy},
		{ID: 2, Phase: PhaseTaxonomy, Done: true},
		{ID: 3, Phase: PhaseTaxonomy, Flagged: true},
		{ID: 4, Phase: PhaseExtraction},
	} {
		if _, err := m.Create(t.Context(), u); err != nil {
			t.Fatalf("create %d: %v", u.ID, err)
		}
	}

	units, err := m.ListByPhase(t.Context(), PhaseTaxonomy, 10)
	if err != nil {
		t.Fatalf("ListByPhase: %v", err)
	}
	if len(units) != 1 || units[0].ID != 1 {
		t.Errorf("ListByPhase = %+v, want only unit 1", units)
	}
}
