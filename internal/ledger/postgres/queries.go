package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryGet(ctx context.Context, db executor, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM ledger_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

func queryEntry(ctx context.Context, db executor, key string) (*ledger.SignedWrite, error) {
	w := &ledger.SignedWrite{Key: key}
	err := db.QueryRowContext(ctx, `
		SELECT value, writer, scheme, public_key, signature
		FROM ledger_entries WHERE key = $1`, key,
	).Scan(&w.Value, &w.Writer, &w.Scheme, &w.PublicKey, &w.Signature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select entry %s: %w", key, err)
	}
	return w, nil
}

func queryPut(ctx context.Context, db executor, w *ledger.SignedWrite) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ledger_entries (key, value, writer, scheme, public_key, signature, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			writer = EXCLUDED.writer,
			scheme = EXCLUDED.scheme,
			public_key = EXCLUDED.public_key,
			signature = EXCLUDED.signature,
			updated_at = now()`,
		w.Key, nonNil(w.Value), w.Writer, w.Scheme, w.PublicKey, w.Signature,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", w.Key, err)
	}
	return nil
}

func queryKeys(ctx context.Context, db executor, prefix string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT key FROM ledger_entries WHERE key LIKE $1 ESCAPE '\' ORDER BY key`,
		likePrefix(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("list keys %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// likePrefix escapes LIKE metacharacters in prefix and appends the wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// unavailable marks connection-level failures as ledger.ErrUnavailable.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ledger.ErrUnavailable, err)
	}
	return err
}
