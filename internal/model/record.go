package model

import "time"

// Category is the closed set of feedback categories.
type Category string

const (
	CategoryCollaboration Category = "collaboration"
	CategoryCommunication Category = "communication"
	CategoryTechnical     Category = "technical"
)

// CategoryAll is the filter wildcard; it is never stored on a record.
const CategoryAll = "all"

// Categories lists every valid category in display order.
var Categories = []Category{CategoryCollaboration, CategoryCommunication, CategoryTechnical}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// IsValid checks whether the category is a known value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryCollaboration, CategoryCommunication, CategoryTechnical:
		return true
	}
	return false
}

// Record is a single feedback entry as stored in the ledger. Records are
// append-only: nothing in this module updates or deletes one once written.
type Record struct {
	ID         string   `json:"id"`
	Ciphertext string   `json:"ciphertext"`
	CreatedAt  int64    `json:"created_at"` // unix seconds
	Reviewer   string   `json:"reviewer"`
	Reviewee   string   `json:"reviewee"`
	Category   Category `json:"category"`
	ProjectID  string   `json:"project_id"`
}

// CreatedTime returns CreatedAt as a UTC time.Time.
func (r *Record) CreatedTime() time.Time {
	return time.Unix(r.CreatedAt, 0).UTC()
}

// Payload is the structured plaintext handed to the encryption primitive.
type Payload struct {
	Reviewee  string   `json:"reviewee"`
	Category  Category `json:"category"`
	ProjectID string   `json:"projectId"`
	Comment   string   `json:"comments"`
}

// CreateInput holds the caller-supplied fields for a new record. The reviewer
// is never taken from input; it is the account of the signing session.
type CreateInput struct {
	Reviewee  string   `json:"reviewee" validate:"required,utf8,max=256"`
	Category  Category `json:"category" validate:"required,category"`
	ProjectID string   `json:"project_id" validate:"utf8,max=128"`
	Comment   string   `json:"comment" validate:"required,utf8,max=8192"`
}

// Payload builds the plaintext payload for in.
func (in *CreateInput) Payload() Payload {
	return Payload{
		Reviewee:  in.Reviewee,
		Category:  in.Category,
		ProjectID: in.ProjectID,
		Comment:   in.Comment,
	}
}
