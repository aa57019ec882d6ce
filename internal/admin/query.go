// Package admin holds the admin console: pure selectors over registration
// rows (search, filter, sort, stats, CSV) and the mutating operations that
// record a persisted, undoable action history.
package admin

import (
	"sort"
	"strings"

	"trekreg/internal/model"
)

type SortField string

const (
	SortByName         SortField = "name"
	SortByEmail        SortField = "email"
	SortByStatus       SortField = "status"
	SortByRegisteredAt SortField = "registered_at"
)

func (f SortField) Valid() bool {
	switch f {
	case SortByName, SortByEmail, SortByStatus, SortByRegisteredAt:
		return true
	}
	return false
}

// Query describes the currently displayed view. The zero value shows every
// row, newest first.
type Query struct {
	Search string              `form:"q"`
	Status model.PaymentStatus `form:"status"`
	SortBy SortField           `form:"sort"`
	Desc   bool                `form:"-"`
}

// ParseOrder maps an "asc"/"desc" string onto q.Desc. Anything else keeps
// the default for the sort field.
func (q *Query) ParseOrder(order string) {
	switch strings.ToLower(order) {
	case "asc":
		q.Desc = false
	case "desc":
		q.Desc = true
	default:
		q.Desc = q.SortBy == "" || q.SortBy == SortByRegisteredAt
	}
}

// Apply returns the rows matching q in display order. rows is not modified.
func Apply(rows []model.Registration, q Query) []model.Registration {
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]model.Registration, 0, len(rows))
	for _, r := range rows {
		if q.Status != "" && r.PaymentStatus != q.Status {
			continue
		}
		if needle != "" && !matches(r, needle) {
			continue
		}
		out = append(out, r)
	}

	by := q.SortBy
	if !by.Valid() {
		by = SortByRegisteredAt
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j], by)
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

func matches(r model.Registration, needle string) bool {
	return strings.Contains(strings.ToLower(r.FullName), needle) ||
		strings.Contains(strings.ToLower(r.Email), needle) ||
		strings.Contains(strings.ToLower(r.Ticket()), needle)
}

func compare(a, b model.Registration, by SortField) int {
	switch by {
	case SortByName:
		return strings.Compare(strings.ToLower(a.FullName), strings.ToLower(b.FullName))
	case SortByEmail:
		return strings.Compare(strings.ToLower(a.Email), strings.ToLower(b.Email))
	case SortByStatus:
		return strings.Compare(string(a.PaymentStatus), string(b.PaymentStatus))
	default:
		return a.RegisteredAt.Compare(b.RegisteredAt)
	}
}
