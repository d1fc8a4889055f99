package documents

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/crowdocs/crowdocs/internal/workunits"
	"github.com/crowdocs/crowdocs/pkg/pagination"
)

// Memory is an in-memory System used by engine tests.
type Memory struct {
	mu   sync.Mutex
	docs map[string]*Document
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*Document)}
}

func (m *Memory) List(_ context.Context, page pagination.PageRequest) (*pagination.PageResult[Document], error) {
	page.Normalize(pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})

	m.mu.Lock()
	defer m.mu.Unlock()

	docs := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, *cloneDocument(d))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })

	result := pagination.NewPageResult(docs, len(docs), page.Page, page.PageSize)
	return &result, nil
}

func (m *Memory) Find(_ context.Context, key string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(d), nil
}

func (m *Memory) FindOrCreate(_ context.Context, fields map[string]string) (*Document, bool, error) {
	if len(fields) == 0 {
		return nil, false, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(fields)
	if d, ok := m.docs[key]; ok {
		return cloneDocument(d), false, nil
	}

	d := m.create(key, fields)
	return cloneDocument(d), true, nil
}

func (m *Memory) MarkReady(
	_ context.Context,
	fields map[string]string,
	dataMerge map[string]any,
	taxonomy []workunits.PhaseResult,
) error {
	if len(fields) == 0 {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(fields)
	d, ok := m.docs[key]
	if !ok {
		d = m.create(key, fields)
	}

	if d.Data == nil {
		d.Data = map[string]any{}
	}
	maps.Copy(d.Data, dataMerge)
	d.TaxonomyResults = append([]workunits.PhaseResult(nil), taxonomy...)
	d.Ready = true
	d.Version++
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[key]; !ok {
		return ErrNotFound
	}
	delete(m.docs, key)
	return nil
}

func (m *Memory) create(key string, fields map[string]string) *Document {
	now := time.Now().UTC()
	d := &Document{
		Key:       key,
		Fields:    maps.Clone(fields),
		Data:      map[string]any{},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.docs[key] = d
	return d
}

func cloneDocument(d *Document) *Document {
	out := *d
	out.Fields = maps.Clone(d.Fields)
	out.Data = maps.Clone(d.Data)
	out.TaxonomyResults = append([]workunits.PhaseResult(nil), d.TaxonomyResults...)
	return &out
}
