package query

import (
	"reflect"
	"testing"
	"time"

	"github.com/alfredjeanlab/peerledger/internal/model"
)

func rec(id, reviewee, project string, cat model.Category, created int64) *model.Record {
	return &model.Record{ID: id, Reviewee: reviewee, ProjectID: project, Category: cat, CreatedAt: created, Reviewer: "0xAA"}
}

func idsOf(rs []*model.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func sample() []*model.Record {
	return []*model.Record{
		rec("1", "alice", "P1", model.CategoryTechnical, 100),
		rec("2", "bob", "P2", model.CategoryCommunication, 300),
		rec("3", "Alicia", "P2", model.CategoryCollaboration, 200),
		rec("4", "carol", "Apollo", model.CategoryTechnical, 400),
	}
}

func TestFilter(t *testing.T) {
	two := []*model.Record{
		rec("a", "alice", "P1", model.CategoryTechnical, 1),
		rec("b", "bob", "P2", model.CategoryTechnical, 2),
	}
	if got := idsOf(Filter(two, "ali", "all")); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf(`Filter("ali", "all") = %v, want [a]`, got)
	}

	tests := []struct {
		name     string
		term     string
		category string
		want     []string
	}{
		{"EmptyMatchesAll", "", "all", []string{"1", "2", "3", "4"}},
		{"EmptyCategoryIsWildcard", "", "", []string{"1", "2", "3", "4"}},
		{"CaseInsensitiveReviewee", "ALI", "all", []string{"1", "3"}},
		{"ProjectID", "p2", "all", []string{"2", "3"}},
		{"MatchesEitherField", "ap", "all", []string{"4"}},
		{"CategoryOnly", "", "technical", []string{"1", "4"}},
		{"TermAndCategory", "ali", "collaboration", []string{"3"}},
		{"NoMatch", "zed", "all", []string{}},
		{"UnknownCategory", "", "gossip", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idsOf(Filter(sample(), tt.term, tt.category))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Filter(%q, %q) = %v, want %v", tt.term, tt.category, got, tt.want)
			}
		})
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	in := sample()
	before := idsOf(in)
	_ = Filter(in, "bob", "all")
	_ = SortNewestFirst(in)
	if !reflect.DeepEqual(idsOf(in), before) {
		t.Fatal("input reordered")
	}
}

func TestSortNewestFirst(t *testing.T) {
	rs := append(sample(), rec("5", "dan", "P3", model.CategoryTechnical, 400))
	got := idsOf(SortNewestFirst(rs))
	if want := []string{"5", "4", "2", "3", "1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("SortNewestFirst = %v, want %v", got, want)
	}
}

func TestSince(t *testing.T) {
	got := idsOf(Since(sample(), time.Unix(250, 0)))
	if want := []string{"2", "4"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Since = %v, want %v", got, want)
	}
	if got := Since(sample(), time.Time{}); len(got) != 4 {
		t.Fatalf("Since(zero) kept %d, want 4", len(got))
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		f    model.RecordFilter
		want []string
	}{
		{"Default", model.RecordFilter{}, []string{"4", "2", "3", "1"}},
		{"Search", model.RecordFilter{Search: "ali"}, []string{"3", "1"}},
		{"SinceAndCategory", model.RecordFilter{Category: "technical", Since: time.Unix(150, 0)}, []string{"4"}},
		{"Reviewer", model.RecordFilter{Reviewer: "0xaa"}, []string{"4", "2", "3", "1"}},
		{"OtherReviewer", model.RecordFilter{Reviewer: "0xBB"}, []string{}},
		{"Limit", model.RecordFilter{Limit: 2}, []string{"4", "2"}},
		{"Offset", model.RecordFilter{Offset: 1, Limit: 2}, []string{"2", "3"}},
		{"OffsetPastEnd", model.RecordFilter{Offset: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := idsOf(Apply(sample(), tt.f)); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Apply = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sample())
	if s.Total != 4 {
		t.Fatalf("Total = %d", s.Total)
	}
	want := map[model.Category]int{
		model.CategoryCollaboration: 1,
		model.CategoryCommunication: 1,
		model.CategoryTechnical:     2,
	}
	if !reflect.DeepEqual(s.ByCategory, want) {
		t.Fatalf("ByCategory = %v, want %v", s.ByCategory, want)
	}

	empty := Summarize(nil)
	if empty.Total != 0 || len(empty.ByCategory) != 3 {
		t.Fatalf("Summarize(nil) = %+v", empty)
	}
}

func TestSortNewestFirst_TiesIgnoreInputOrder(t *testing.T) {
	a := rec("100-a", "x", "", model.CategoryTechnical, 50)
	b := rec("100-b", "x", "", model.CategoryTechnical, 50)
	c := rec("099-z", "x", "", model.CategoryTechnical, 60)
	want := []string{"099-z", "100-b", "100-a"}
	for _, in := range [][]*model.Record{{a, b, c}, {b, c, a}, {c, a, b}} {
		if got := idsOf(SortNewestFirst(in)); !reflect.DeepEqual(got, want) {
			t.Errorf("SortNewestFirst(%v) = %v, want %v", idsOf(in), got, want)
		}
	}
}
