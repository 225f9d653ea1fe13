// Package query filters and orders records already read from the ledger.
// Everything here is pure: no ledger access, no mutation of the input.
package query

import (
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/peerledger/internal/model"
)

// Filter returns the records whose reviewee or project id contains term,
// ignoring case, and whose category equals category. An empty term matches
// everything; category "all" (or "") is a wildcard.
func Filter(records []*model.Record, term, category string) []*model.Record {
	term = strings.ToLower(term)
	out := make([]*model.Record, 0, len(records))
	for _, r := range records {
		matchesSearch := strings.Contains(strings.ToLower(r.Reviewee), term) ||
			strings.Contains(strings.ToLower(r.ProjectID), term)
		matchesCategory := category == "" || category == model.CategoryAll || string(r.Category) == category
		if matchesSearch && matchesCategory {
			out = append(out, r)
		}
	}
	return out
}

// Since returns the records created at or after t. A zero t keeps all.
func Since(records []*model.Record, t time.Time) []*model.Record {
	if t.IsZero() {
		return slices.Clone(records)
	}
	cutoff := t.Unix()
	out := make([]*model.Record, 0, len(records))
	for _, r := range records {
		if r.CreatedAt >= cutoff {
			out = append(out, r)
		}
	}
	return out
}

// SortNewestFirst returns a copy of records ordered by CreatedAt descending.
// Records created in the same second are ordered by id, descending, so the
// result does not depend on index order.
func SortNewestFirst(records []*model.Record) []*model.Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b *model.Record) int {
		switch {
		case a.CreatedAt > b.CreatedAt:
			return -1
		case a.CreatedAt < b.CreatedAt:
			return 1
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out
}

// Apply runs every criterion in f and returns the matching records newest
// first, paged by f.Limit and f.Offset.
func Apply(records []*model.Record, f model.RecordFilter) []*model.Record {
	out := Filter(records, f.Search, f.Category)
	out = Since(out, f.Since)
	if f.Reviewer != "" {
		out = slices.DeleteFunc(out, func(r *model.Record) bool {
			return !strings.EqualFold(r.Reviewer, f.Reviewer)
		})
	}
	out = SortNewestFirst(out)

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*model.Record{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// Stats summarizes a record set by category.
type Stats struct {
	Total      int                    `json:"total"`
	ByCategory map[model.Category]int `json:"by_category"`
}

// Summarize counts records overall and per category. Every known category
// is present in the result, with zero when unused.
func Summarize(records []*model.Record) Stats {
	s := Stats{Total: len(records), ByCategory: make(map[model.Category]int, len(model.Categories))}
	for _, c := range model.Categories {
		s.ByCategory[c] = 0
	}
	for _, r := range records {
		s.ByCategory[r.Category]++
	}
	return s
}
