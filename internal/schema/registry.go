// Package schema defines the closed, ordered set of submission fields.
//
// Every query fragment built elsewhere takes its column names from this
// registry. A name that is not registered here never reaches SQL.
package schema

import (
	"fmt"
	"regexp"
	"slices"
)

// Match is how a field participates in filtering.
type Match int

const (
	// MatchNone fields are not filterable individually.
	MatchNone Match = iota
	// MatchExact fields filter by equality.
	MatchExact
	// MatchPartial fields filter by substring containment.
	MatchPartial
)

// MultiSeparator joins the selections of a multi-select field.
//
// Selections are not escaped: a selection containing the separator is split
// into several selections when the stored value is parsed again.
const MultiSeparator = "|"

// FlagDefault is stored for flag fields that were not supplied.
const FlagDefault = "No"

// Column names the store manages itself.
const (
	ColumnID          = "id"
	ColumnSubmittedAt = "submitted_at"
	ColumnSessionDate = "session_date"
)

// Field describes one caller-supplied column.
type Field struct {
	Name        string
	Match       Match
	Searchable  bool
	MultiSelect bool
	// Flag fields default to FlagDefault when absent.
	Flag bool
}

// Default returns the value stored when the caller omits the field.
func (f *Field) Default() string {
	if f.Flag {
		return FlagDefault
	}
	return ""
}

// fields is in insert and export order.
var fields = []Field{
	{Name: ColumnSessionDate, Searchable: true},
	{Name: "client_id", Match: MatchPartial, Searchable: true},
	{Name: "staff_member", Match: MatchPartial, Searchable: true},
	{Name: "client_status", Match: MatchPartial, Searchable: true},
	{Name: "visit_number", Match: MatchPartial, Searchable: true},
	{Name: "age", Match: MatchExact, Searchable: true},
	{Name: "carer", Match: MatchPartial, Searchable: true, Flag: true},
	{Name: "financial_hardship", Match: MatchPartial, Searchable: true, Flag: true},
	{Name: "social_isolation", Match: MatchPartial, Searchable: true, Flag: true},
	{Name: "rural_postcode", Match: MatchPartial, Searchable: true, Flag: true},
	{Name: "lgbtiq", Match: MatchPartial, Searchable: true, Flag: true},
	{Name: "funding_stream", Match: MatchPartial, Searchable: true},
	{Name: "funding_option", Match: MatchPartial, Searchable: true},
	{Name: "contact_mode", Match: MatchExact, Searchable: true},
	{Name: "country", Match: MatchPartial, Searchable: true},
	{Name: "language", Match: MatchPartial, Searchable: true},
	{Name: "income_source", Match: MatchPartial, Searchable: true, MultiSelect: true},
	{Name: "visa_type", Match: MatchPartial, Searchable: true},
	{Name: "ethnicity", Match: MatchPartial, Searchable: true},
	{Name: "disability", Match: MatchPartial, Searchable: true, MultiSelect: true},
	{Name: "chronic_illness", Match: MatchPartial, Searchable: true, MultiSelect: true},
	{Name: "presenting_issues", Match: MatchPartial, Searchable: true, MultiSelect: true},
	{Name: "service_provided", Match: MatchPartial, Searchable: true, MultiSelect: true},
	{Name: "service_type", Match: MatchPartial, Searchable: true, MultiSelect: true},
	{Name: "practitioner", Match: MatchPartial, Searchable: true},
	{Name: "group_type", Match: MatchPartial, Searchable: true},
	{Name: "evaluation_tools", Match: MatchPartial, Searchable: true, MultiSelect: true},
}

var (
	identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	byName  map[string]int
)

func init() {
	idx, err := check(fields)
	if err != nil {
		panic(err)
	}
	byName = idx
}

// check verifies every name is a plain SQL identifier and unique.
func check(fs []Field) (map[string]int, error) {
	idx := make(map[string]int, len(fs))
	for i := range fs {
		n := fs[i].Name
		if !identRe.MatchString(n) {
			return nil, fmt.Errorf("schema: invalid field name %q", n)
		}
		if n == ColumnID || n == ColumnSubmittedAt {
			return nil, fmt.Errorf("schema: %q is reserved", n)
		}
		if _, dup := idx[n]; dup {
			return nil, fmt.Errorf("schema: duplicate field %q", n)
		}
		idx[n] = i
	}
	if _, ok := idx[ColumnSessionDate]; !ok {
		return nil, fmt.Errorf("schema: %q is required", ColumnSessionDate)
	}
	return idx, nil
}

// Fields returns the caller-supplied fields in insert order.
func Fields() []Field {
	return slices.Clone(fields)
}

// Lookup returns the registered field with that name.
func Lookup(name string) (Field, bool) {
	i, ok := byName[name]
	if !ok {
		return Field{}, false
	}
	return fields[i], true
}

// Names returns the caller-supplied field names in insert order.
func Names() []string {
	out := make([]string, len(fields))
	for i := range fields {
		out[i] = fields[i].Name
	}
	return out
}

// Columns returns every stored column in export order.
func Columns() []string {
	return append([]string{ColumnID, ColumnSubmittedAt}, Names()...)
}

// Partial returns the substring-filterable field names in registry order.
func Partial() []string {
	return namesWhere(func(f *Field) bool { return f.Match == MatchPartial })
}

// Searchable returns the free-text searchable field names in registry order.
func Searchable() []string {
	return namesWhere(func(f *Field) bool { return f.Searchable })
}

func namesWhere(keep func(*Field) bool) []string {
	var out []string
	for i := range fields {
		if keep(&fields[i]) {
			out = append(out, fields[i].Name)
		}
	}
	return out
}
