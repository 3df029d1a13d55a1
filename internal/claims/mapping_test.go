package claims

import (
	"net/url"
	"strings"
	"testing"

	"github.com/aegisproof/aegis/pkg/pagination"
)

func strptr(s string) *string { return &s }

func TestListQueryNoFilters(t *testing.T) {
	lq := newListQuery(Filters{}, nil)

	sql, args := lq.count()
	if sql != "SELECT COUNT(*) FROM claims" {
		t.Errorf("count sql = %q", sql)
	}
	if len(args) != 0 {
		t.Errorf("count args = %v, want none", args)
	}

	sql, args = lq.page(nil, 1, 20)
	want := "SELECT " + claimColumns + " FROM claims ORDER BY created_at DESC LIMIT 20 OFFSET 0"
	if sql != want {
		t.Errorf("page sql = %q, want %q", sql, want)
	}
	if len(args) != 0 {
		t.Errorf("page args = %v, want none", args)
	}
}

func TestListQueryFiltersAndSearch(t *testing.T) {
	f := Filters{Domain: strptr("health"), Priority: strptr("high")}
	lq := newListQuery(f, strptr("vaccine"))

	sql, args := lq.page(nil, 2, 10)

	wantWhere := " WHERE domain = $1 AND priority = $2 AND (text ILIKE $3 OR id ILIKE $4)"
	if !strings.Contains(sql, wantWhere) {
		t.Errorf("sql = %q, missing %q", sql, wantWhere)
	}
	if !strings.HasSuffix(sql, "LIMIT 10 OFFSET 10") {
		t.Errorf("sql = %q, want LIMIT 10 OFFSET 10 suffix", sql)
	}

	wantArgs := []any{"health", "high", "%vaccine%", "%vaccine%"}
	if len(args) != len(wantArgs) {
		t.Fatalf("args length = %d, want %d", len(args), len(wantArgs))
	}
	for i := range args {
		if args[i] != wantArgs[i] {
			t.Errorf("args[%d] = %v, want %v", i, args[i], wantArgs[i])
		}
	}

	countSQL, countArgs := lq.count()
	if !strings.Contains(countSQL, wantWhere) {
		t.Errorf("count sql = %q, missing %q", countSQL, wantWhere)
	}
	if len(countArgs) != len(wantArgs) {
		t.Errorf("count args length = %d, want %d", len(countArgs), len(wantArgs))
	}
}

func TestListQuerySortWhitelist(t *testing.T) {
	tests := []struct {
		name string
		sort []pagination.SortField
		want string
	}{
		{
			name: "recognized fields",
			sort: []pagination.SortField{
				{Field: "priority", Descending: false},
				{Field: "created_at", Descending: true},
			},
			want: " ORDER BY priority ASC, created_at DESC",
		},
		{
			name: "unknown field dropped",
			sort: []pagination.SortField{
				{Field: "1; DROP TABLE claims", Descending: false},
				{Field: "domain", Descending: false},
			},
			want: " ORDER BY domain ASC",
		},
		{
			name: "all unknown falls back to newest first",
			sort: []pagination.SortField{{Field: "nope", Descending: true}},
			want: " ORDER BY created_at DESC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := orderBy(tt.sort); got != tt.want {
				t.Errorf("orderBy = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFiltersFromQuery(t *testing.T) {
	values := url.Values{
		"domain":   {"science"},
		"priority": {"low"},
	}

	f := FiltersFromQuery(values)
	if f.Domain == nil || *f.Domain != "science" {
		t.Errorf("Domain = %v, want science", f.Domain)
	}
	if f.Priority == nil || *f.Priority != "low" {
		t.Errorf("Priority = %v, want low", f.Priority)
	}

	empty := FiltersFromQuery(url.Values{})
	if empty.Domain != nil || empty.Priority != nil {
		t.Errorf("empty values should produce nil filters, got %+v", empty)
	}
}
