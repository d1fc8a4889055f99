package expr_test

import (
	"testing"

	"github.com/crowdocs/crowdocs/pkg/expr"
)

func TestEvaluate(t *testing.T) {
	ctx := map[string]any{
		"state":  "NE",
		"score":  float64(7),
		"count":  3,
		"active": true,
		"TAXONOMY": map[string]any{
			"hasAccount": "Yes",
		},
		"fields": map[string]string{
			"city": "Omaha",
		},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"string equality", `state == "NE"`, true},
		{"single quoted string", `state == 'NE'`, true},
		{"string inequality", `state != "CA"`, true},
		{"member access", `TAXONOMY.hasAccount == "Yes"`, true},
		{"member access false", `TAXONOMY.hasAccount == "No"`, false},
		{"missing member is null", `TAXONOMY.missing == null`, true},
		{"string map member", `fields.city == "Omaha"`, true},
		{"index access", `TAXONOMY["hasAccount"] == "Yes"`, true},
		{"null check", `state != null`, true},
		{"numeric comparison", `score > 5`, true},
		{"int and float compare equal", `count == 3.0`, true},
		{"boolean literal", `active == true`, true},
		{"and", `state == "NE" && score >= 7`, true},
		{"and short circuit", `state == "CA" && score > 5`, false},
		{"or", `state == "CA" || active`, true},
		{"not", `!(state == "CA")`, true},
		{"arithmetic", `score + count == 10`, true},
		{"parens", `(score - 2) * 2 == 10`, true},
		{"cross type equality is false", `state == 7`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expr.Evaluate(tt.expr, ctx)
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluateFailsClosed(t *testing.T) {
	ctx := map[string]any{
		"state": "NE",
	}

	tests := []struct {
		name string
		expr string
	}{
		{"undefined variable", `missing == "x"`},
		{"undefined variable member", `x.y`},
		{"member of scalar", `state.y == "x"`},
		{"syntax error", `state == `},
		{"unterminated string", `state == "NE`},
		{"non boolean result", `state`},
		{"mixed comparison", `state < 5`},
		{"division by zero", `1 / 0 == 1`},
		{"empty expression", ``},
		{"and over non boolean", `state && true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expr.Evaluate(tt.expr, ctx)
			if err == nil {
				t.Fatalf("Evaluate(%q) expected error", tt.expr)
			}
			if got {
				t.Errorf("Evaluate(%q) = true on error, want false", tt.expr)
			}
		})
	}
}

func TestTransform(t *testing.T) {
	ctx := map[string]any{
		"amount": float64(21),
		"name":   "report",
	}

	t.Run("add and set", func(t *testing.T) {
		m, err := expr.Transform(`$add.total = amount * 2; $set.name = name + "-final"`, ctx)
		if err != nil {
			t.Fatalf("Transform error: %v", err)
		}

		if got := m.Add["total"]; got != float64(42) {
			t.Errorf("Add[total] = %v, want 42", got)
		}
		if got := m.Set["name"]; got != "report-final" {
			t.Errorf("Set[name] = %v, want report-final", got)
		}
	})

	t.Run("index target", func(t *testing.T) {
		m, err := expr.Transform(`$add["copy"] = name`, ctx)
		if err != nil {
			t.Fatalf("Transform error: %v", err)
		}
		if got := m.Add["copy"]; got != "report" {
			t.Errorf("Add[copy] = %v, want report", got)
		}
	})

	t.Run("maps reset per run", func(t *testing.T) {
		if _, err := expr.Transform(`$add.a = 1`, ctx); err != nil {
			t.Fatalf("Transform error: %v", err)
		}

		m, err := expr.Transform(`$add.b = 2`, ctx)
		if err != nil {
			t.Fatalf("Transform error: %v", err)
		}
		if _, ok := m.Add["a"]; ok {
			t.Error("Add map leaked between runs")
		}
	})

	t.Run("error yields empty mutation", func(t *testing.T) {
		m, err := expr.Transform(`$add.total = missing * 2`, ctx)
		if err == nil {
			t.Fatal("expected error")
		}
		if !m.Empty() {
			t.Errorf("mutation not empty on error: %+v", m)
		}
	})

	t.Run("invalid target", func(t *testing.T) {
		if _, err := expr.Transform(`amount = 5`, ctx); err == nil {
			t.Fatal("expected error for assignment outside $add/$set")
		}
	})
}
