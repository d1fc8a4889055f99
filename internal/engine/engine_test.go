package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/crowdocs/crowdocs/internal/crowd"
	"github.com/crowdocs/crowdocs/internal/documents"
	"github.com/crowdocs/crowdocs/internal/workflows"
	"github.com/crowdocs/crowdocs/internal/workunits"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type createdUnit struct {
	JobID     string
	SourceURL string
	Inputs    map[string]string
}

type fakeProvider struct {
	mu           sync.Mutex
	created      []createdUnit
	results      map[string]*crowd.Result
	cancelled    []string
	createErr    error
	resultErrFor string
	next         int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{results: map[string]*crowd.Result{}}
}

func (f *fakeProvider) CreateUnit(_ context.Context, jobID, sourceURL string, inputs map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	f.created = append(f.created, createdUnit{JobID: jobID, SourceURL: sourceURL, Inputs: inputs})
	return fmt.Sprintf("ext-%d", f.next), nil
}

func (f *fakeProvider) UnitResult(_ context.Context, _, unitID string) (*crowd.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.resultErrFor == unitID {
		return nil, fmt.Errorf("poll %s: malformed response", unitID)
	}
	if r, ok := f.results[unitID]; ok {
		return r, nil
	}
	return &crowd.Result{}, nil
}

func (f *fakeProvider) CancelUnit(_ context.Context, _, unitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, unitID)
	return nil
}

func (f *fakeProvider) JobPing(context.Context, string) error {
	return nil
}

func (f *fakeProvider) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeProvider) finish(unitID string, result *crowd.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result.Done = true
	f.results[unitID] = result
}

type fakeOutputs struct {
	mu    sync.Mutex
	saved map[string]any
	err   error
}

func newFakeOutputs() *fakeOutputs {
	return &fakeOutputs{saved: map[string]any{}}
}

func (f *fakeOutputs) UploadJSON(_ context.Context, key string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.saved[key] = v
	return nil
}

func testTemplate() *workflows.Template {
	return &workflows.Template{
		Name:         "invoices",
		OutputPrefix: "invoices",
		TaskGroups: []workunits.TaskGroup{
			{
				Phase: workunits.PhaseClassification,
				Tasks: []workunits.Task{
					{JobID: "100", Name: "classify", Inputs: []string{"hint"}},
				},
			},
			{
				Phase: workunits.PhaseTaxonomy,
				Tasks: []workunits.Task{
					{JobID: "200", Name: "taxonomy-base"},
					{JobID: "201", Name: "taxonomy-detail", Predecessors: []string{"200"}},
				},
			},
			{
				Phase: workunits.PhaseExtraction,
				Tasks: []workunits.Task{
					{JobID: "300", Name: "extract"},
				},
			},
			{
				Phase: workunits.PhaseReview,
				Tasks: []workunits.Task{
					{JobID: "400", Name: "review"},
				},
			},
			{
				Phase:          workunits.PhaseEscalation,
				EntryCondition: `needs_help == "Yes"`,
				Tasks: []workunits.Task{
					{JobID: "500", Name: "escalate"},
				},
			},
		},
	}
}

type fixture struct {
	engine   *Engine
	units    *workunits.Memory
	docs     *documents.Memory
	provider *fakeProvider
	outputs  *fakeOutputs
}

func newFixture(t *testing.T, templates ...*workflows.Template) *fixture {
	t.Helper()

	if len(templates) == 0 {
		templates = []*workflows.Template{testTemplate()}
	}
	registry, err := workflows.NewRegistry(templates...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	units := workunits.NewMemory()
	docs := documents.NewMemory()
	provider := newFakeProvider()
	outputs := newFakeOutputs()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := New(units, docs, provider, outputs, registry, logger)
	e.now = func() time.Time { return testTime }

	return &fixture{engine: e, units: units, docs: docs, provider: provider, outputs: outputs}
}

func (f *fixture) create(t *testing.T, unit *workunits.WorkUnit) *workunits.WorkUnit {
	t.Helper()

	if unit.WorkflowName == "" {
		unit.WorkflowName = "invoices"
	}
	if unit.SourceURL == "" {
		unit.SourceURL = fmt.Sprintf("https://files.example.com/%d.pdf", unit.ID)
	}
	if unit.Context == nil {
		unit.Context = workunits.NewContext()
	}
	if unit.TaskGroups == nil {
		unit.TaskGroups = testTemplate().TaskGroups
	}
	unit.StartTime = testTime

	created, err := f.units.Create(context.Background(), unit)
	if err != nil {
		t.Fatalf("create unit %d: %v", unit.ID, err)
	}
	return created
}

func (f *fixture) process(t *testing.T, id int64) *workunits.WorkUnit {
	t.Helper()

	unit, err := f.units.Find(context.Background(), id)
	if err != nil {
		t.Fatalf("find unit %d: %v", id, err)
	}
	if err := f.engine.ProcessUnit(context.Background(), unit); err != nil {
		t.Fatalf("process unit %d: %v", id, err)
	}
	return f.reload(t, id)
}

func (f *fixture) collect(t *testing.T, id int64) *workunits.WorkUnit {
	t.Helper()

	unit, err := f.units.Find(context.Background(), id)
	if err != nil {
		t.Fatalf("find unit %d: %v", id, err)
	}
	if err := f.engine.Collect(context.Background(), unit); err != nil {
		t.Fatalf("collect unit %d: %v", id, err)
	}
	return f.reload(t, id)
}

func (f *fixture) reload(t *testing.T, id int64) *workunits.WorkUnit {
	t.Helper()

	unit, err := f.units.Find(context.Background(), id)
	if err != nil {
		t.Fatalf("reload unit %d: %v", id, err)
	}
	return unit
}

// finishedEntry marks a task as already run so orchestration and phase
// guards treat it as complete.
func finishedEntry(jobID, name string) workunits.CrowdWorkUnit {
	end := testTime
	return workunits.CrowdWorkUnit{
		TaskID:         jobID,
		TaskName:       name,
		ExternalUnitID: "ext-" + jobID,
		Done:           true,
		StartTime:      testTime,
		EndTime:        &end,
	}
}
