package model

import "time"

// RecordFilter holds criteria for querying the materialized record set.
type RecordFilter struct {
	Search   string    `json:"search,omitempty"`   // case-insensitive substring of reviewee or project id
	Category string    `json:"category,omitempty"` // a Category or CategoryAll; empty means all
	Reviewer string    `json:"reviewer,omitempty"` // exact account match
	Since    time.Time `json:"since,omitempty"`    // created at or after
	Limit    int       `json:"limit,omitempty"`
	Offset   int       `json:"offset,omitempty"`
}
