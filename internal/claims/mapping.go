package claims

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aegisproof/aegis/pkg/pagination"
	"github.com/aegisproof/aegis/pkg/repository"
)

// claimColumns lists the selectable columns in scan order.
const claimColumns = "id, text, evidence, domain, priority, created_at, updated_at"

// sortColumns whitelists the fields claim listings may sort by. Sort
// input comes straight from the request, so anything outside this map
// is dropped rather than spliced into SQL.
var sortColumns = map[string]string{
	"id":         "id",
	"domain":     "domain",
	"priority":   "priority",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// Filters contains optional filtering criteria for claim queries.
// Nil fields are ignored.
type Filters struct {
	Domain   *string `json:"domain,omitempty"`
	Priority *string `json:"priority,omitempty"`
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if d := values.Get("domain"); d != "" {
		f.Domain = &d
	}
	if p := values.Get("priority"); p != "" {
		f.Priority = &p
	}

	return f
}

// listQuery assembles the claim listing SQL: equality filters, an
// optional text search, and whitelisted ordering, all with numbered
// parameters.
type listQuery struct {
	where []string
	args  []any
}

func newListQuery(f Filters, search *string) *listQuery {
	q := &listQuery{}
	q.equals("domain", f.Domain)
	q.equals("priority", f.Priority)

	if search != nil && *search != "" {
		pattern := "%" + *search + "%"
		q.where = append(q.where, fmt.Sprintf(
			"(text ILIKE $%d OR id ILIKE $%d)", len(q.args)+1, len(q.args)+2))
		q.args = append(q.args, pattern, pattern)
	}
	return q
}

func (q *listQuery) equals(column string, value *string) {
	if value == nil || *value == "" {
		return
	}
	q.where = append(q.where, fmt.Sprintf("%s = $%d", column, len(q.args)+1))
	q.args = append(q.args, *value)
}

func (q *listQuery) filter() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

// count returns the COUNT query over the current filters.
func (q *listQuery) count() (string, []any) {
	return "SELECT COUNT(*) FROM claims" + q.filter(), q.args
}

// page returns the paged SELECT with ordering, limit, and offset.
func (q *listQuery) page(sort []pagination.SortField, page, pageSize int) (string, []any) {
	sql := fmt.Sprintf(
		"SELECT %s FROM claims%s%s LIMIT %d OFFSET %d",
		claimColumns, q.filter(), orderBy(sort), pageSize, (page-1)*pageSize,
	)
	return sql, q.args
}

// orderBy renders the ORDER BY clause, falling back to newest-first
// when no recognized sort field is given.
func orderBy(sort []pagination.SortField) string {
	parts := make([]string, 0, len(sort))
	for _, f := range sort {
		col, ok := sortColumns[f.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}

	if len(parts) == 0 {
		return " ORDER BY created_at DESC"
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func scanClaim(s repository.Scanner) (Claim, error) {
	var (
		c        Claim
		evidence []byte
	)

	if err := s.Scan(
		&c.ID,
		&c.Text,
		&evidence,
		&c.Domain,
		&c.Priority,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return c, err
	}

	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &c.Evidence); err != nil {
			return c, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}
	return c, nil
}
