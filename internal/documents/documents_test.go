package documents

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/crowdocs/crowdocs/internal/workunits"
)

func TestKeyCanonicalization(t *testing.T) {
	tests := []struct {
		name string
		a    map[string]string
		b    map[string]string
		same bool
	}{
		{
			name: "order independent",
			a:    map[string]string{"state": "NE", "type": "invoice"},
			b:    map[string]string{"type": "invoice", "state": "NE"},
			same: true,
		},
		{
			name: "value difference",
			a:    map[string]string{"state": "NE"},
			b:    map[string]string{"state": "CA"},
			same: false,
		},
		{
			name: "name difference",
			a:    map[string]string{"state": "NE"},
			b:    map[string]string{"region": "NE"},
			same: false,
		},
		{
			name: "subset is distinct",
			a:    map[string]string{"state": "NE", "type": "invoice"},
			b:    map[string]string{"state": "NE"},
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.a) == Key(tt.b); got != tt.same {
				t.Errorf("Key equality = %v, want %v (%q vs %q)", got, tt.same, Key(tt.a), Key(tt.b))
			}
		})
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var active, maxActive int32
	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock := km.Lock("shared")
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestKeyedMutexDistinctKeysConcurrent(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	<-done
}

func TestFindOrCreateExclusivity(t *testing.T) {
	m := NewMemory()
	fields := map[string]string{"state": "NE"}

	var created int32
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, isNew, err := m.FindOrCreate(t.Context(), fields)
			if err != nil {
				t.Errorf("FindOrCreate: %v", err)
				return
			}
			if isNew {
				atomic.AddInt32(&created, 1)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("%d callers observed created=true, want exactly 1", created)
	}
}

func TestFindOrCreateEmptyFields(t *testing.T) {
	m := NewMemory()

	if _, _, err := m.FindOrCreate(t.Context(), nil); err != ErrEmptyKey {
		t.Errorf("err = %v, want ErrEmptyKey", err)
	}
}

func TestMarkReadyMergesAndRecreates(t *testing.T) {
	m := NewMemory()
	fields := map[string]string{"state": "NE"}

	if _, _, err := m.FindOrCreate(t.Context(), fields); err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	taxonomy := []workunits.PhaseResult{{
		TaskID:   "200",
		TaskName: "taxonomy-base",
		Fields:   []workunits.ResultField{{Name: "hasAccount", Value: "Yes", Confidence: 0.85}},
	}}

	if err := m.MarkReady(t.Context(), fields, map[string]any{"hasAccount": "Yes"}, taxonomy); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}

	doc, err := m.Find(t.Context(), Key(fields))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !doc.Ready {
		t.Error("document not ready")
	}
	if doc.Data["hasAccount"] != "Yes" {
		t.Errorf("data = %v", doc.Data)
	}

	// A second call merges rather than erroring.
	if err := m.MarkReady(t.Context(), fields, map[string]any{"region": "midwest"}, taxonomy); err != nil {
		t.Fatalf("second MarkReady: %v", err)
	}
	doc, _ = m.Find(t.Context(), Key(fields))
	if doc.Data["hasAccount"] != "Yes" || doc.Data["region"] != "midwest" {
		t.Errorf("merged data = %v", doc.Data)
	}

	// Deleting the row does not break a later commit.
	if err := m.Delete(t.Context(), Key(fields)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.MarkReady(t.Context(), fields, map[string]any{"hasAccount": "Yes"}, taxonomy); err != nil {
		t.Fatalf("MarkReady after delete: %v", err)
	}
	if _, err := m.Find(t.Context(), Key(fields)); err != nil {
		t.Errorf("row not recreated: %v", err)
	}
}
