// Package query provides SQL query building utilities with projection mapping.
package query

import (
	"fmt"
	"reflect"
	"strings"
)

// Projection maps view property names to qualified column references for a
// single table.
type Projection struct {
	table   string
	alias   string
	columns map[string]string
	ordered []string
}

// NewProjection creates a Projection for the given table and alias.
func NewProjection(table, alias string) *Projection {
	return &Projection{
		table:   table,
		alias:   alias,
		columns: make(map[string]string),
	}
}

// Map adds a column mapping from database column to view property name.
func (p *Projection) Map(column, viewName string) *Projection {
	qualified := p.alias + "." + column
	p.columns[viewName] = qualified
	p.ordered = append(p.ordered, qualified)
	return p
}

// Column returns the qualified column for a view property name, or the input if not mapped.
func (p *Projection) Column(viewName string) string {
	if col, ok := p.columns[viewName]; ok {
		return col
	}
	return viewName
}

// Columns returns all mapped columns as a comma-separated string.
func (p *Projection) Columns() string {
	return strings.Join(p.ordered, ", ")
}

// From returns the table reference with alias.
func (p *Projection) From() string {
	return p.table + " " + p.alias
}

// SortField represents a single column in an ORDER BY clause.
type SortField struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

// ParseSortFields parses a comma-separated sort string into a SortField
// slice. Fields prefixed with "-" are descending, e.g. "phase,-start_time".
func ParseSortFields(s string) []SortField {
	if s == "" {
		return nil
	}

	var fields []SortField
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if after, ok := strings.CutPrefix(part, "-"); ok {
			fields = append(fields, SortField{Field: after, Descending: true})
		} else {
			fields = append(fields, SortField{Field: part})
		}
	}
	return fields
}

type condition struct {
	clause string
	args   []any
}

// Builder constructs SQL queries using a fluent API with automatic parameter numbering.
type Builder struct {
	projection  *Projection
	conditions  []condition
	sortFields  []SortField
	defaultSort []SortField
}

// NewBuilder creates a Builder for the given projection with optional default sort fields.
func NewBuilder(projection *Projection, defaultSort ...SortField) *Builder {
	return &Builder{
		projection:  projection,
		defaultSort: defaultSort,
	}
}

// WhereEquals adds an equality condition. No-op for nil values.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	b.conditions = append(b.conditions, condition{
		clause: b.projection.Column(field) + " = $%d",
		args:   []any{value},
	})
	return b
}

// WhereContains adds a case-insensitive ILIKE condition. No-op for nil or empty values.
func (b *Builder) WhereContains(field string, value *string) *Builder {
	if value == nil || *value == "" {
		return b
	}
	b.conditions = append(b.conditions, condition{
		clause: b.projection.Column(field) + " ILIKE $%d",
		args:   []any{"%" + *value + "%"},
	})
	return b
}

// WhereSearch adds an OR condition across multiple fields with ILIKE. No-op
// for nil or empty search.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" || len(fields) == 0 {
		return b
	}

	clauses := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, field := range fields {
		clauses[i] = b.projection.Column(field) + " ILIKE $%d"
		args[i] = "%" + *search + "%"
	}

	b.conditions = append(b.conditions, condition{
		clause: "(" + strings.Join(clauses, " OR ") + ")",
		args:   args,
	})
	return b
}

// OrderByFields sets the sort order, overriding default sort fields.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	b.sortFields = fields
	return b
}

// Build returns a SELECT query with the current conditions and ordering.
func (b *Builder) Build() (string, []any) {
	where, args := b.buildWhere()
	sql := fmt.Sprintf(
		"SELECT %s FROM %s%s%s",
		b.projection.Columns(), b.projection.From(), where, b.buildOrderBy(),
	)
	return sql, args
}

// BuildCount returns a COUNT(*) query with the current conditions.
func (b *Builder) BuildCount() (string, []any) {
	where, args := b.buildWhere()
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", b.projection.From(), where), args
}

// BuildPage returns a paginated SELECT query with ordering, limit, and offset.
func (b *Builder) BuildPage(page, pageSize int) (string, []any) {
	where, args := b.buildWhere()
	sql := fmt.Sprintf(
		"SELECT %s FROM %s%s%s LIMIT %d OFFSET %d",
		b.projection.Columns(), b.projection.From(), where, b.buildOrderBy(),
		pageSize, (page-1)*pageSize,
	)
	return sql, args
}

// BuildSingle returns a SELECT query for a single record by the given field.
func (b *Builder) BuildSingle(field string, value any) (string, []any) {
	sql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1",
		b.projection.Columns(), b.projection.From(), b.projection.Column(field),
	)
	return sql, []any{value}
}

func (b *Builder) buildWhere() (string, []any) {
	if len(b.conditions) == 0 {
		return "", nil
	}

	clauses := make([]string, 0, len(b.conditions))
	var args []any
	param := 1

	for _, cond := range b.conditions {
		clause := cond.clause
		for _, arg := range cond.args {
			clause = strings.Replace(clause, "$%d", fmt.Sprintf("$%d", param), 1)
			args = append(args, arg)
			param++
		}
		clauses = append(clauses, clause)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (b *Builder) buildOrderBy() string {
	fields := b.sortFields
	if len(fields) == 0 {
		fields = b.defaultSort
	}
	if len(fields) == 0 {
		return ""
	}

	parts := make([]string, len(fields))
	for i, f := range fields {
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		parts[i] = b.projection.Column(f.Field) + " " + dir
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func isNil(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
