// Package codec owns the ledger schema: how records and the record index are
// laid out as bytes, and which keys they live under.
//
// Both payloads are JSON objects/arrays. Readers look fields up by name and
// ignore fields they do not know, so writers may add fields without breaking
// older readers. Decoding never panics on malformed input; it returns a
// *DecodeError naming the ledger key the bytes came from.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alfredjeanlab/peerledger/internal/model"
)

// RecordPrefix is prepended to a record id to form its ledger key.
const RecordPrefix = "record:"

// SchemaVersion is written into every encoded record.
const SchemaVersion = 1

// RecordKey returns the ledger key for the record with the given id.
func RecordKey(id string) string {
	return RecordPrefix + id
}

// RecordID extracts the record id from a ledger key. ok is false when key is
// not a record key.
func RecordID(key string) (id string, ok bool) {
	id, ok = strings.CutPrefix(key, RecordPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// ErrNotUTF8 is returned by EncodeRecord for a field holding invalid UTF-8.
// JSON would replace the bad bytes with U+FFFD, so the stored record would
// no longer match the one written.
var ErrNotUTF8 = errors.New("not valid UTF-8")

// DecodeError reports bytes under Key that could not be decoded.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// wireRecord is the on-ledger record layout. Pointer fields let the decoder
// tell a missing field from a zero value.
type wireRecord struct {
	Version   int     `json:"v,omitempty"`
	ID        *string `json:"id,omitempty"`
	Data      *string `json:"data"`
	Timestamp *int64  `json:"timestamp"`
	Reviewer  *string `json:"reviewer"`
	Reviewee  *string `json:"reviewee"`
	Category  *string `json:"category"`
	ProjectID *string `json:"projectId"`
}

// EncodeRecord serializes r for storage under RecordKey(r.ID).
func EncodeRecord(r *model.Record) ([]byte, error) {
	if r == nil || r.ID == "" {
		return nil, errors.New("encode record: id is required")
	}
	for _, f := range []struct{ name, v string }{
		{"data", r.Ciphertext},
		{"reviewer", r.Reviewer},
		{"reviewee", r.Reviewee},
		{"category", string(r.Category)},
		{"projectId", r.ProjectID},
	} {
		if !utf8.ValidString(f.v) {
			return nil, fmt.Errorf("encode record %s: %s: %w", r.ID, f.name, ErrNotUTF8)
		}
	}
	category := string(r.Category)
	w := wireRecord{
		Version:   SchemaVersion,
		ID:        &r.ID,
		Data:      &r.Ciphertext,
		Timestamp: &r.CreatedAt,
		Reviewer:  &r.Reviewer,
		Reviewee:  &r.Reviewee,
		Category:  &category,
		ProjectID: &r.ProjectID,
	}
	return marshal(w)
}

// DecodeRecord parses record bytes read from key. When the payload carries no
// id the id is taken from the key.
func DecodeRecord(key string, b []byte) (*model.Record, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, &DecodeError{Key: key, Err: errors.New("empty record")}
	}
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &DecodeError{Key: key, Err: err}
	}

	var missing []string
	if w.Data == nil {
		missing = append(missing, "data")
	}
	if w.Timestamp == nil {
		missing = append(missing, "timestamp")
	}
	if w.Reviewer == nil {
		missing = append(missing, "reviewer")
	}
	if w.Reviewee == nil {
		missing = append(missing, "reviewee")
	}
	if w.Category == nil {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return nil, &DecodeError{Key: key, Err: fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))}
	}

	category := model.Category(*w.Category)
	if !category.IsValid() {
		return nil, &DecodeError{Key: key, Err: fmt.Errorf("invalid category %q", *w.Category)}
	}

	r := &model.Record{
		Ciphertext: *w.Data,
		CreatedAt:  *w.Timestamp,
		Reviewer:   *w.Reviewer,
		Reviewee:   *w.Reviewee,
		Category:   category,
	}
	if w.ProjectID != nil {
		r.ProjectID = *w.ProjectID
	}

	keyID, keyOK := RecordID(key)
	switch {
	case w.ID != nil && *w.ID != "":
		if keyOK && keyID != *w.ID {
			return nil, &DecodeError{Key: key, Err: fmt.Errorf("id %q does not match key", *w.ID)}
		}
		r.ID = *w.ID
	case keyOK:
		r.ID = keyID
	default:
		return nil, &DecodeError{Key: key, Err: errors.New("record has no id")}
	}
	return r, nil
}

// EncodeIndex serializes the ordered id list stored under the index key.
func EncodeIndex(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return marshal(ids)
}

// DecodeIndex parses the index stored under key. Empty input yields an empty
// list. Malformed input yields every id that could be recovered, in order,
// together with a *DecodeError; callers decide whether the partial list is
// usable.
func DecodeIndex(key string, b []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []string{}, nil
	}

	var ids []string
	if err := json.Unmarshal(trimmed, &ids); err == nil {
		out, dropped := compact(ids)
		if dropped > 0 {
			return out, &DecodeError{Key: key, Err: fmt.Errorf("skipped %d empty ids", dropped)}
		}
		return out, nil
	}
	return salvageIndex(key, trimmed)
}

// salvageIndex walks a damaged JSON array element by element, keeping every
// string entry it can read before the first unrecoverable syntax error.
func salvageIndex(key string, b []byte) ([]string, error) {
	ids := []string{}
	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return ids, &DecodeError{Key: key, Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return ids, &DecodeError{Key: key, Err: fmt.Errorf("index is not a list (starts with %v)", tok)}
	}

	skipped := 0
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return ids, &DecodeError{Key: key, Err: fmt.Errorf("unreadable after %d ids: %w", len(ids), err)}
		}
		var id string
		if err := json.Unmarshal(raw, &id); err != nil || id == "" {
			skipped++
			continue
		}
		ids = append(ids, id)
	}
	if _, err := dec.Token(); err != nil {
		return ids, &DecodeError{Key: key, Err: fmt.Errorf("truncated after %d ids: %w", len(ids), err)}
	}
	return ids, &DecodeError{Key: key, Err: fmt.Errorf("skipped %d malformed entries", skipped)}
}

func compact(ids []string) ([]string, int) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out, len(ids) - len(out)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
