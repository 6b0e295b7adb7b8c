package query

import (
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/whintake/whintake/internal/schema"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		params  url.Values
		clauses []string
		args    []any
	}{
		{
			name:   "empty",
			params: url.Values{},
		},
		{
			name:   "empty values are absent",
			params: url.Values{"date_from": {""}, "age": {""}, "country": {""}, "search": {""}},
		},
		{
			name:    "date range",
			params:  url.Values{"date_to": {"2024-12-31"}, "date_from": {"2024-01-01"}},
			clauses: []string{"session_date >= ?", "session_date <= ?"},
			args:    []any{"2024-01-01", "2024-12-31"},
		},
		{
			name:    "exact before partial",
			params:  url.Values{"country": {"Aus"}, "contact_mode": {"Phone"}, "age": {"30-39"}},
			clauses: []string{"age = ?", "contact_mode = ?", `country LIKE ? ESCAPE '\'`},
			args:    []any{"30-39", "Phone", "%Aus%"},
		},
		{
			name:    "partial in registry order",
			params:  url.Values{"practitioner": {"Jo"}, "client_id": {"C1"}},
			clauses: []string{`client_id LIKE ? ESCAPE '\'`, `practitioner LIKE ? ESCAPE '\'`},
			args:    []any{"%C1%", "%Jo%"},
		},
		{
			name:    "first value wins",
			params:  url.Values{"age": {"20-29", "30-39"}},
			clauses: []string{"age = ?"},
			args:    []any{"20-29"},
		},
		{
			name:    "wildcards escaped",
			params:  url.Values{"client_id": {`50%_a\b`}},
			clauses: []string{`client_id LIKE ? ESCAPE '\'`},
			args:    []any{`%50\%\_a\\b%`},
		},
		{
			name:   "unknown keys ignored",
			params: url.Values{"id; DROP TABLE submissions": {"x"}, "submitted_at": {"x"}, "page": {"2"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Build(tt.params)
			if got := p.Clauses(); !reflect.DeepEqual(got, nonNil(tt.clauses)) {
				t.Errorf("clauses = %q, want %q", got, tt.clauses)
			}
			if got := p.Args(); !reflect.DeepEqual(got, nonNilArgs(tt.args)) {
				t.Errorf("args = %v, want %v", got, tt.args)
			}
			if len(tt.clauses) == 0 && p.Where() != "" {
				t.Errorf("Where() = %q, want empty", p.Where())
			}
		})
	}
}

func TestBuildSearch(t *testing.T) {
	p := Build(url.Values{"search": {"Anxiety"}, "age": {"40-49"}})
	clauses := p.Clauses()
	if len(clauses) != 2 {
		t.Fatalf("clauses = %q", clauses)
	}
	if clauses[0] != "age = ?" {
		t.Errorf("first clause = %q", clauses[0])
	}
	s := clauses[1]
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		t.Errorf("search clause not grouped: %q", s)
	}
	cols := schema.Searchable()
	if got := strings.Count(s, " OR "); got != len(cols)-1 {
		t.Errorf("OR count = %d, want %d", got, len(cols)-1)
	}
	args := p.Args()
	if len(args) != 1+len(cols) {
		t.Fatalf("len(args) = %d, want %d", len(args), 1+len(cols))
	}
	for _, a := range args[1:] {
		if a != "%Anxiety%" {
			t.Fatalf("search arg = %v", a)
		}
	}
	want := " WHERE age = ? AND " + s
	if got := p.Where(); got != want {
		t.Errorf("Where() = %q, want %q", got, want)
	}
}

func TestArgsIsCopy(t *testing.T) {
	p := Build(url.Values{"age": {"1"}})
	a := p.Args()
	a[0] = "2"
	if p.Args()[0] != "1" {
		t.Fatal("Args leaked the backing array")
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilArgs(s []any) []any {
	if s == nil {
		return []any{}
	}
	return s
}
