package workunits

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/crowdocs/crowdocs/pkg/pagination"
	"github.com/crowdocs/crowdocs/pkg/repository"
)

// Memory is an in-memory System used by tests and local development. It
// enforces the same optimistic-version semantics as the Postgres
// implementation.
type Memory struct {
	mu    sync.Mutex
	units map[int64]*WorkUnit
}

// NewMemory creates an empty in-memory work unit store.
func NewMemory() *Memory {
	return &Memory{units: make(map[int64]*WorkUnit)}
}

func (m *Memory) List(
	_ context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[WorkUnit], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []WorkUnit
	for _, u := range m.sorted() {
		if filters.Phase != nil && string(u.Phase) != *filters.Phase {
			continue
		}
		if filters.Workflow != nil && u.WorkflowName != *filters.Workflow {
			continue
		}
		if filters.Done != nil && u.Done != *filters.Done {
			continue
		}
		if filters.Flagged != nil && u.Flagged != *filters.Flagged {
			continue
		}
		matched = append(matched, *cloneUnit(u))
	}

	page.Normalize(pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
	total := len(matched)
	start := (page.Page - 1) * page.PageSize
	if start > total {
		start = total
	}
	end := min(start+page.PageSize, total)

	result := pagination.NewPageResult(matched[start:end], total, page.Page, page.PageSize)
	return &result, nil
}

func (m *Memory) Find(_ context.Context, id int64) (*WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUnit(u), nil
}

func (m *Memory) ListByPhase(_ context.Context, phase Phase, limit int) ([]WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var units []WorkUnit
	for _, u := range m.sorted() {
		if u.Phase != phase || u.Done || u.Flagged {
			continue
		}
		units = append(units, *cloneUnit(u))
		if len(units) == limit {
			break
		}
	}
	return units, nil
}

func (m *Memory) ListInFlight(_ context.Context, limit int) ([]WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var units []WorkUnit
	for _, u := range m.sorted() {
		if u.Done || u.Flagged || len(u.InProgress) == 0 {
			continue
		}
		units = append(units, *cloneUnit(u))
		if len(units) == limit {
			break
		}
	}
	return units, nil
}

func (m *Memory) Create(_ context.Context, unit *WorkUnit) (*WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.units[unit.ID]; ok {
		return nil, ErrDuplicate
	}

	if unit.Context == nil {
		unit.Context = NewContext()
	}
	unit.Version = 1
	m.units[unit.ID] = cloneUnit(unit)
	return unit, nil
}

func (m *Memory) Save(_ context.Context, unit *WorkUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.units[unit.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != unit.Version {
		return repository.ErrStaleVersion
	}

	saved := cloneUnit(unit)
	saved.Version++
	m.units[unit.ID] = saved
	unit.Version++
	return nil
}

func (m *Memory) Flag(_ context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[id]
	if !ok {
		return ErrNotFound
	}
	u.Flagged = true
	u.FlagReason = reason
	return nil
}

func (m *Memory) sorted() []*WorkUnit {
	units := make([]*WorkUnit, 0, len(m.units))
	for _, u := range m.units {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].StartTime.Equal(units[j].StartTime) {
			return units[i].ID < units[j].ID
		}
		return units[i].StartTime.Before(units[j].StartTime)
	})
	return units
}

func cloneUnit(u *WorkUnit) *WorkUnit {
	data, err := json.Marshal(u)
	if err != nil {
		panic(err)
	}
	var clone WorkUnit
	if err := json.Unmarshal(data, &clone); err != nil {
		panic(err)
	}
	if clone.Context == nil {
		clone.Context = NewContext()
	}
	return &clone
}
