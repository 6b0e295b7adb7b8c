// Package query translates request parameters into a parameterized filter.
package query

import (
	"net/url"
	"strings"

	"github.com/whintake/whintake/internal/schema"
)

// Parameter names that are not field names.
const (
	ParamDateFrom = "date_from"
	ParamDateTo   = "date_to"
	ParamSearch   = "search"
)

// likeEscaper neutralizes LIKE wildcards in caller input.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Predicate is a conjunction of SQL clauses with positional bind values.
//
// The zero value matches every row.
type Predicate struct {
	clauses []string
	args    []any
}

// Build returns the predicate for the filter parameters in params.
//
// Only the first value of each key is used and an empty value is treated as
// absent. Clauses are emitted in a fixed order: date range, exact fields,
// partial fields in registry order, then free-text search.
func Build(params url.Values) Predicate {
	var p Predicate
	if v := params.Get(ParamDateFrom); v != "" {
		p.add(schema.ColumnSessionDate+" >= ?", v)
	}
	if v := params.Get(ParamDateTo); v != "" {
		p.add(schema.ColumnSessionDate+" <= ?", v)
	}
	for _, f := range schema.Fields() {
		if f.Match != schema.MatchExact {
			continue
		}
		if v := params.Get(f.Name); v != "" {
			p.add(f.Name+" = ?", v)
		}
	}
	for _, name := range schema.Partial() {
		if v := params.Get(name); v != "" {
			p.add(name+` LIKE ? ESCAPE '\'`, contains(v))
		}
	}
	if v := params.Get(ParamSearch); v != "" {
		cols := schema.Searchable()
		ors := make([]string, len(cols))
		args := make([]any, len(cols))
		term := contains(v)
		for i, name := range cols {
			ors[i] = name + ` LIKE ? ESCAPE '\'`
			args[i] = term
		}
		p.add("("+strings.Join(ors, " OR ")+")", args...)
	}
	return p
}

func (p *Predicate) add(clause string, args ...any) {
	p.clauses = append(p.clauses, clause)
	p.args = append(p.args, args...)
}

// Where returns " WHERE ..." or "" when the predicate matches everything.
func (p Predicate) Where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

// Args returns the bind values in placeholder order.
func (p Predicate) Args() []any {
	out := make([]any, len(p.args))
	copy(out, p.args)
	return out
}

// Clauses returns the individual AND-ed clauses.
func (p Predicate) Clauses() []string {
	out := make([]string, len(p.clauses))
	copy(out, p.clauses)
	return out
}

// contains wraps v for a substring LIKE match.
func contains(v string) string {
	return "%" + likeEscaper.Replace(v) + "%"
}
