// Package server exposes the feedback record store over HTTP: listing and
// filtering records, creating them through the server's wallet, orphan
// inspection and repair, and a server-sent event stream of store activity.
package server

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/peerledger/internal/model"
)

// Records is the record store as the HTTP layer sees it.
type Records interface {
	Create(ctx context.Context, in model.CreateInput) (*model.Record, error)
	ListAll(ctx context.Context) ([]*model.Record, error)
	Refresh(ctx context.Context) ([]*model.Record, error)
	Get(ctx context.Context, id string) (*model.Record, error)
	Orphans(ctx context.Context) ([]string, error)
	Repair(ctx context.Context, ids []string) ([]string, error)
	Identity() string
	CanWrite() bool
	Available(ctx context.Context) bool
}

// Decrypter opens record ciphertexts. Servers without one refuse to reveal
// record contents.
type Decrypter interface {
	Decrypt(ciphertext string) (*model.Payload, error)
}

// FeedbackServer serves the HTTP API.
type FeedbackServer struct {
	records   Records
	decrypter Decrypter
	events    *Broadcaster
	logger    *slog.Logger
}

// New returns a FeedbackServer. dec and bc may be nil; without bc the event
// stream endpoint reports 503.
func New(records Records, dec Decrypter, bc *Broadcaster, logger *slog.Logger) *FeedbackServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackServer{
		records:   records,
		decrypter: dec,
		events:    bc,
		logger:    logger,
	}
}
