// Package ledgertest holds a conformance suite every ledger.Backend must pass.
package ledgertest

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

// NewBackend constructs a fresh, empty backend for a test.
// The returned backend MUST be isolated from other tests.
type NewBackend func(t *testing.T) ledger.Backend

func put(t *testing.T, b ledger.Backend, key string, value []byte) {
	t.Helper()
	w := &ledger.SignedWrite{Key: key, Value: value, Writer: "0xconformance", Scheme: "test"}
	if err := b.Put(context.Background(), w); err != nil {
		t.Fatalf("Put(%q) failed: %v", key, err)
	}
}

func RunBackendConformance(t *testing.T, newBackend NewBackend) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		b := newBackend(t)
		want := []byte(`{"hello":"ledger"}`)
		put(t, b, "record:1", want)

		got, err := b.Get(context.Background(), "record:1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get = %q, want %q", got, want)
		}
	})

	t.Run("MissingKeyIsEmpty", func(t *testing.T) {
		b := newBackend(t)
		got, err := b.Get(context.Background(), "record:absent")
		if err != nil {
			t.Fatalf("Get missing key returned error: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("Get missing key = %q, want empty", got)
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		b := newBackend(t)
		put(t, b, "index:records", []byte(`["a"]`))
		put(t, b, "index:records", []byte(`["a","b"]`))

		got, err := b.Get(context.Background(), "index:records")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `["a","b"]` {
			t.Fatalf("Get = %q, want latest value", got)
		}
	})

	t.Run("BinaryValues", func(t *testing.T) {
		b := newBackend(t)
		want := []byte{0, 1, 2, 0xff, '\n', 0}
		put(t, b, "bin", want)
		got, err := b.Get(context.Background(), "bin")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get = %v, want %v", got, want)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		b := newBackend(t)
		if err := b.Ping(context.Background()); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	})

	t.Run("KeysByPrefix", func(t *testing.T) {
		b := newBackend(t)
		lister, ok := b.(ledger.Lister)
		if !ok {
			t.Skip("backend does not list keys")
		}
		put(t, b, "record:b", []byte("2"))
		put(t, b, "record:a", []byte("1"))
		put(t, b, "index:records", []byte("[]"))

		keys, err := lister.Keys(context.Background(), "record:")
		if err != nil {
			if errors.Is(err, ledger.ErrListUnsupported) {
				t.Skip("backend does not list keys")
			}
			t.Fatalf("Keys failed: %v", err)
		}
		sort.Strings(keys)
		if want := []string{"record:a", "record:b"}; !reflect.DeepEqual(keys, want) {
			t.Fatalf("Keys = %v, want %v", keys, want)
		}
	})
}
