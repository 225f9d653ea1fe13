package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/peerledger/internal/model"
)

// Source is what a snapshot is taken from. *store.Store satisfies it.
type Source interface {
	ListAll(ctx context.Context) ([]*model.Record, error)
	Orphans(ctx context.Context) ([]string, error)
}

// header is the first JSONL line written by ExportJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	RecordCount int       `json:"record_count"`
	OrphanCount int       `json:"orphan_count"`
}

// line wraps a single JSONL line with a type discriminator.
type line struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every indexed record, followed by the ids of orphaned
// records, as JSONL to w. Records are sorted by id. Ciphertexts are exported
// as stored; nothing is decrypted.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	records, err := src.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})

	orphans, err := src.Orphans(ctx)
	if err != nil {
		return fmt.Errorf("find orphans: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:     "1",
		Type:        "header",
		Timestamp:   time.Now().UTC(),
		RecordCount: len(records),
		OrphanCount: len(orphans),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range records {
		if err := enc.Encode(line{Type: "record", Data: r}); err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
	}
	for _, id := range orphans {
		if err := enc.Encode(line{Type: "orphan", Data: id}); err != nil {
			return fmt.Errorf("encode orphan %s: %w", id, err)
		}
	}
	return nil
}
