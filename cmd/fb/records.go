package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/client"
	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/seal"
	"github.com/alfredjeanlab/peerledger/internal/store"
)

// feedbackStore is what the feedback commands need. A locally opened store
// and a remote `fb serve` both provide it.
type feedbackStore interface {
	Create(ctx context.Context, in model.CreateInput) (*model.Record, error)
	ListAll(ctx context.Context) ([]*model.Record, error)
	Refresh(ctx context.Context) ([]*model.Record, error)
	Get(ctx context.Context, id string) (*model.Record, error)
	Reveal(ctx context.Context, id string) (*model.Record, *model.Payload, error)
	Orphans(ctx context.Context) ([]string, error)
	Repair(ctx context.Context, ids []string) ([]string, error)
	Available(ctx context.Context) bool
}

var _ feedbackStore = (*client.HTTPClient)(nil)

type localRecords struct {
	*store.Store
	box *seal.Box
}

func (l localRecords) Reveal(ctx context.Context, id string) (*model.Record, *model.Payload, error) {
	if l.box == nil {
		return nil, nil, errNoSealKey
	}
	rec, err := l.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := l.box.Decrypt(rec.Ciphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypting %s: %w", rec.ID, err)
	}
	return rec, p, nil
}

// withRecords runs fn against the server named by --server, or against the
// configured ledger when there is none.
func withRecords(cmd *cobra.Command, fn func(ctx context.Context, r feedbackStore) error) error {
	if cfg.ServerURL != "" {
		c := client.NewHTTPClient(cfg.ServerURL, cfg.AuthToken)
		defer c.Close()
		return fn(cmd.Context(), c)
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		return fn(ctx, localRecords{Store: a.store, box: a.box})
	})
}
