// Package events publishes record-store activity to NATS so that other
// processes (`fb watch`, dashboards) can follow writes and index repair.
// Publishing is best effort: the store logs publish failures and moves on.
package events

import (
	"context"

	"github.com/alfredjeanlab/peerledger/internal/model"
)

// TopicAll matches every feedback topic.
const TopicAll = "feedback.>"

// Event topic constants
const (
	TopicRecordCreated  = "feedback.record.created"
	TopicRecordOrphaned = "feedback.record.orphaned"
	TopicRecordRepaired = "feedback.record.repaired"
	TopicIndexConflict  = "feedback.index.conflict"
)

// Event types

// RecordCreated carries the record as written. Ciphertext is included; the
// plaintext never leaves the writer.
type RecordCreated struct {
	Record *model.Record `json:"record"`
	Index  string        `json:"index"`
}

// IndexConflict reports a verification read that did not find the id just
// appended.
type IndexConflict struct {
	RecordID string `json:"record_id"`
	Index    string `json:"index"`
	Attempt  int    `json:"attempt"`
	Writer   string `json:"writer,omitempty"`
}

// RecordOrphaned reports a record that exists in the ledger but is missing
// from the index.
type RecordOrphaned struct {
	RecordID string `json:"record_id"`
	Index    string `json:"index"`
	Reason   string `json:"reason,omitempty"`
}

type RecordRepaired struct {
	RecordID   string `json:"record_id"`
	Index      string `json:"index"`
	RepairedBy string `json:"repaired_by,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
