package model

import (
	"testing"
	"time"
)

func TestCategory_IsValid(t *testing.T) {
	for _, tc := range []struct {
		category Category
		want     bool
	}{
		{CategoryCollaboration, true},
		{CategoryCommunication, true},
		{CategoryTechnical, true},
		{Category(""), false},
		{Category("all"), false},
		{Category("bogus"), false},
	} {
		if got := tc.category.IsValid(); got != tc.want {
			t.Errorf("Category(%q).IsValid() = %v, want %v", tc.category, got, tc.want)
		}
	}
}

func TestCategories_AllValid(t *testing.T) {
	if len(Categories) != 3 {
		t.Fatalf("len(Categories) = %d, want 3", len(Categories))
	}
	for _, c := range Categories {
		if !c.IsValid() {
			t.Errorf("Categories contains invalid %q", c)
		}
	}
}

func TestRecord_CreatedTime(t *testing.T) {
	r := Record{CreatedAt: 1700000000}
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	if got := r.CreatedTime(); !got.Equal(want) {
		t.Errorf("CreatedTime() = %v, want %v", got, want)
	}
}

func TestCreateInput_Payload(t *testing.T) {
	in := CreateInput{Reviewee: "bob", Category: CategoryCommunication, ProjectID: "P2", Comment: "clear"}
	p := in.Payload()
	if p.Reviewee != "bob" || p.Category != CategoryCommunication || p.ProjectID != "P2" || p.Comment != "clear" {
		t.Errorf("Payload() = %+v", p)
	}
}
