package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/whintake/whintake/internal/query"
	"github.com/whintake/whintake/internal/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	s.Now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local) }
	if err := s.Init(t.Context()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestCreate(t *testing.T) {
	ctx := t.Context()
	s := newTestStore(t)

	t.Run("missing session_date", func(t *testing.T) {
		for _, in := range []map[string]any{
			{},
			{"session_date": ""},
			{"session_date": nil, "client_id": "C1"},
			{"session_date": false},
			{"session_date": true},
			{"session_date": float64(0)},
			{"session_date": json.Number("0")},
		} {
			_, err := s.Create(ctx, in)
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != "session_date" {
				t.Fatalf("Create(%v) = %v, want ValidationError", in, err)
			}
			if err.Error() != "session_date is required" {
				t.Errorf("message = %q", err.Error())
			}
		}
	})

	t.Run("multi-select joined and defaults applied", func(t *testing.T) {
		id, err := s.Create(ctx, map[string]any{
			"session_date":      "2024-01-10",
			"presenting_issues": []any{"Anxiety", "Sleep"},
			"visit_number":      float64(3),
			"unknown_key":       "ignored",
		})
		if err != nil {
			t.Fatal(err)
		}
		_, recs, err := s.Query(ctx, query.Predicate{}, 1, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 1 || recs[0].ID() != id {
			t.Fatalf("records = %v", recs)
		}
		r := recs[0]
		checks := map[string]string{
			"presenting_issues": "Anxiety|Sleep",
			"visit_number":      "3",
			"carer":             "No",
			"lgbtiq":            "No",
			"client_id":         "",
			"submitted_at":      "2024-05-06 07:08:09",
		}
		for k, want := range checks {
			if got := r.String(k); got != want {
				t.Errorf("%s = %q, want %q", k, got, want)
			}
		}
		if _, ok := r.Get("unknown_key"); ok {
			t.Error("unknown key was stored")
		}
	})

	t.Run("array on single-value field", func(t *testing.T) {
		_, err := s.Create(ctx, map[string]any{"session_date": "2024-01-01", "age": []any{"a", "b"}})
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "age" {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("object value", func(t *testing.T) {
		_, err := s.Create(ctx, map[string]any{"session_date": "2024-01-01", "country": map[string]any{}})
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "country" {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := t.Context()
	s := newTestStore(t)
	id1 := mustCreate(t, s, map[string]any{"session_date": "2024-01-01"})
	id2 := mustCreate(t, s, map[string]any{"session_date": "2024-01-02"})

	got, err := s.Delete(ctx, id2)
	if err != nil || got != id2 {
		t.Fatalf("Delete = %d, %v", got, err)
	}
	if _, err := s.Delete(ctx, id2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
	if _, err := s.Delete(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete(999) = %v, want ErrNotFound", err)
	}
	id3 := mustCreate(t, s, map[string]any{"session_date": "2024-01-03"})
	if id3 <= id2 {
		t.Fatalf("id %d reused after delete (previous max %d)", id3, id2)
	}
	total, recs, err := s.Query(ctx, query.Predicate{}, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || recs[0].ID() != id3 || recs[1].ID() != id1 {
		t.Fatalf("total=%d recs=%v", total, recs)
	}
}

func TestQueryInvalidPage(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Query(t.Context(), query.Predicate{}, 0, 10); err == nil {
		t.Fatal("expected error for page 0")
	}
	if _, _, err := s.Query(t.Context(), query.Predicate{}, 1, 0); err == nil {
		t.Fatal("expected error for per_page 0")
	}
}

func TestQueryPageBeyondEnd(t *testing.T) {
	ctx := t.Context()
	s := newTestStore(t)
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		mustCreate(t, s, map[string]any{"session_date": d})
	}
	for _, page := range []int{3, math.MaxInt, math.MaxInt/2 + 2} {
		total, recs, err := s.Query(ctx, query.Predicate{}, page, 2)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if total != 3 || recs == nil || len(recs) != 0 {
			t.Errorf("page %d: total=%d len=%d", page, total, len(recs))
		}
	}
}

func TestInitMigratesOlderFile(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, stmt := range []string{
		`CREATE TABLE submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			submitted_at TEXT NOT NULL DEFAULT (datetime('now','localtime')),
			session_date TEXT NOT NULL,
			client_id TEXT,
			age TEXT
		)`,
		`INSERT INTO submissions (session_date, client_id, age) VALUES ('2023-06-01', 'OLD1', '25-34')`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	for range 2 {
		if err := s.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
	}
	_, recs, err := s.Query(ctx, query.Build(url.Values{"client_id": {"OLD"}}), 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	r := recs[0]
	if got := r.String("carer"); got != "No" {
		t.Errorf("carer = %q, want No", got)
	}
	if v, ok := r.Get("funding_stream"); !ok || v != nil {
		t.Errorf("funding_stream = %v, %v; want NULL", v, ok)
	}
}

func TestCheckpoint(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, map[string]any{"session_date": "2024-01-01"})
	if err := s.Checkpoint(t.Context()); err != nil {
		t.Fatal(err)
	}
}

func TestRowsStopEarly(t *testing.T) {
	s := newTestStore(t)
	for i := range 5 {
		mustCreate(t, s, map[string]any{"session_date": fmt.Sprintf("2024-01-0%d", i+1)})
	}
	n := 0
	for row, err := range s.Rows(t.Context(), query.Predicate{}) {
		if err != nil {
			t.Fatal(err)
		}
		if len(row) != len(schema.Columns()) {
			t.Fatalf("row width %d", len(row))
		}
		n++
		if n == 2 {
			break
		}
	}
	// The connection must be released so that writes proceed.
	mustCreate(t, s, map[string]any{"session_date": "2024-02-01"})
}

// model is the in-memory oracle for filter properties.
type model struct {
	id     int64
	fields map[string]string
}

var (
	vocabDates    = []string{"2024-01-01", "2024-01-10", "2024-02-03", "2024-03-15", "2024-03-15"}
	vocabAges     = []string{"18-24", "25-34", "35-44"}
	vocabModes    = []string{"Phone", "In person", "Video"}
	vocabCountry  = []string{"Australia", "Austria", "India", ""}
	vocabIssues   = []string{"Anxiety", "Sleep", "Grief", "Stress"}
	vocabPractice = []string{"Jo Smith", "Sam Lee", "Alex Jones"}
)

func pick[T any](r *rand.Rand, s []T) T { return s[r.IntN(len(s))] }

func seed(t *testing.T, s *Store, r *rand.Rand, n int) []model {
	t.Helper()
	var out []model
	for i := range n {
		in := map[string]any{
			"session_date":   pick(r, vocabDates),
			"client_id":      fmt.Sprintf("C%03d", i),
			"age":            pick(r, vocabAges),
			"contact_mode":   pick(r, vocabModes),
			"country":        pick(r, vocabCountry),
			"practitioner":   pick(r, vocabPractice),
			"staff_member":   pick(r, vocabPractice),
			"funding_stream": pick(r, []string{"Core", "Grant"}),
		}
		var issues []any
		for _, v := range vocabIssues {
			if r.IntN(3) == 0 {
				issues = append(issues, v)
			}
		}
		if len(issues) > 0 {
			in["presenting_issues"] = issues
		}
		if r.IntN(2) == 0 {
			in["carer"] = "Yes"
		}
		id := mustCreate(t, s, in)
		norm, err := Normalize(in)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, model{id: id, fields: norm})
	}
	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (m *model) matches(params url.Values) bool {
	f := m.fields
	if v := params.Get("date_from"); v != "" && f["session_date"] < v {
		return false
	}
	if v := params.Get("date_to"); v != "" && f["session_date"] > v {
		return false
	}
	for _, n := range []string{"age", "contact_mode"} {
		if v := params.Get(n); v != "" && f[n] != v {
			return false
		}
	}
	for _, n := range schema.Partial() {
		if v := params.Get(n); v != "" && !containsFold(f[n], v) {
			return false
		}
	}
	if v := params.Get("search"); v != "" {
		hit := false
		for _, n := range schema.Searchable() {
			if containsFold(f[n], v) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func randomParams(r *rand.Rand) url.Values {
	p := url.Values{}
	opts := []func(){
		func() { p.Set("date_from", pick(r, vocabDates)) },
		func() { p.Set("date_to", pick(r, vocabDates)) },
		func() { p.Set("age", pick(r, vocabAges)) },
		func() { p.Set("contact_mode", pick(r, vocabModes)) },
		func() { p.Set("country", pick(r, []string{"Aus", "tria", "ind"})) },
		func() { p.Set("presenting_issues", pick(r, vocabIssues)) },
		func() { p.Set("carer", pick(r, []string{"Yes", "No"})) },
		func() { p.Set("search", pick(r, []string{"Anxiety", "Jo", "C01", "Phone", "zzz"})) },
	}
	for _, o := range opts {
		if r.IntN(3) == 0 {
			o()
		}
	}
	return p
}

func TestFilterProperties(t *testing.T) {
	ctx := t.Context()
	r := rand.New(rand.NewPCG(1, 2))
	s := newTestStore(t)
	all := seed(t, s, r, 60)

	for i := range 40 {
		params := randomParams(r)
		t.Run(fmt.Sprintf("%d_%s", i, params.Encode()), func(t *testing.T) {
			p := query.Build(params)
			var want []int64
			for j := range all {
				if all[j].matches(params) {
					want = append(want, all[j].id)
				}
			}
			byID := make(map[int64]*model, len(all))
			for j := range all {
				byID[all[j].id] = &all[j]
			}
			slices.SortFunc(want, func(a, b int64) int {
				da, db := byID[a].fields["session_date"], byID[b].fields["session_date"]
				if c := strings.Compare(db, da); c != 0 {
					return c
				}
				return int(b - a)
			})

			// Every page reports the same total and pages concatenate to the full set.
			perPage := 1 + r.IntN(7)
			var got []int64
			for page := 1; ; page++ {
				total, recs, err := s.Query(ctx, p, page, perPage)
				if err != nil {
					t.Fatal(err)
				}
				if total != len(want) {
					t.Fatalf("page %d total = %d, want %d", page, total, len(want))
				}
				for _, rec := range recs {
					m := byID[rec.ID()]
					if m == nil || !m.matches(params) {
						t.Fatalf("record %d does not satisfy %v", rec.ID(), params)
					}
					got = append(got, rec.ID())
				}
				if len(recs) < perPage {
					break
				}
			}
			if !slices.Equal(got, want) {
				t.Fatalf("ids = %v, want %v", got, want)
			}

			// A second unpaginated fetch yields the same order.
			_, again, err := s.Query(ctx, p, 1, len(all))
			if err != nil {
				t.Fatal(err)
			}
			for k, rec := range again {
				if rec.ID() != want[k] {
					t.Fatalf("unstable order at %d", k)
				}
			}

			n, err := s.Count(ctx, p)
			if err != nil || n != len(want) {
				t.Fatalf("Count = %d, %v", n, err)
			}
			rows := 0
			for row, err := range s.Rows(ctx, p) {
				if err != nil {
					t.Fatal(err)
				}
				if row[0] != fmt.Sprint(want[rows]) {
					t.Fatalf("export row %d id = %s, want %d", rows, row[0], want[rows])
				}
				rows++
			}
			if rows != len(want) {
				t.Fatalf("export rows = %d, want %d", rows, len(want))
			}
		})
	}
}

func mustCreate(t *testing.T, s *Store, in map[string]any) int64 {
	t.Helper()
	id, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}
