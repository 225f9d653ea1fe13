package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/peerledger/internal/config"
	"github.com/alfredjeanlab/peerledger/internal/events"
	"github.com/alfredjeanlab/peerledger/internal/index"
	"github.com/alfredjeanlab/peerledger/internal/ledger"
	"github.com/alfredjeanlab/peerledger/internal/ledger/badger"
	"github.com/alfredjeanlab/peerledger/internal/ledger/grpcledger"
	"github.com/alfredjeanlab/peerledger/internal/ledger/memory"
	"github.com/alfredjeanlab/peerledger/internal/ledger/postgres"
	"github.com/alfredjeanlab/peerledger/internal/ledger/s3ledger"
	"github.com/alfredjeanlab/peerledger/internal/model"
	"github.com/alfredjeanlab/peerledger/internal/seal"
	"github.com/alfredjeanlab/peerledger/internal/store"
	"github.com/alfredjeanlab/peerledger/internal/wallet"
)

var errNoSealKey = errors.New("no seal key configured (set FEEDBACK_SEAL_KEY or run 'fb keygen --seal')")

// app is everything a command needs to talk to the ledger.
type app struct {
	backend   ledger.Backend
	reader    *ledger.ReadOnly
	session   *wallet.Session
	box       *seal.Box // nil without a seal key
	publisher events.Publisher
	store     *store.Store
}

// openBackend connects to the ledger selected by c.Ledger.
func openBackend(ctx context.Context, c *config.Config) (ledger.Backend, error) {
	switch c.Ledger {
	case config.LedgerMemory:
		logger.Warn("using the in-memory ledger; nothing outlives this process")
		return memory.New(), nil
	case config.LedgerPostgres:
		return postgres.New(c.DatabaseURL)
	case config.LedgerBadger:
		bc := badger.DefaultConfig(c.BadgerPath)
		bc.Logger = logger
		return badger.Open(bc)
	case config.LedgerS3:
		return s3ledger.New(ctx, s3ledger.Config{
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3Endpoint,
			Prefix:   c.S3Prefix,
		})
	case config.LedgerGRPC:
		return grpcledger.Dial(c.LedgerAddr, grpcledger.DialOptions{Token: c.AuthToken})
	default:
		return nil, fmt.Errorf("unknown ledger %q", c.Ledger)
	}
}

// openApp opens the configured backend and builds the record store on it.
func openApp(ctx context.Context, c *config.Config) (*app, error) {
	backend, err := openBackend(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("opening %s ledger: %w", c.Ledger, err)
	}
	a, err := newApp(backend, c)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return a, nil
}

func newApp(backend ledger.Backend, c *config.Config) (*app, error) {
	session, err := wallet.Open(c.WalletKey)
	if err != nil {
		return nil, fmt.Errorf("opening wallet: %w", err)
	}

	var box *seal.Box
	if c.SealKey != "" {
		if box, err = seal.NewFromBase64(c.SealKey); err != nil {
			return nil, fmt.Errorf("seal key: %w", err)
		}
	}

	var publisher events.Publisher = &events.NoopPublisher{}
	if c.NATSURL != "" {
		pub, err := events.NewNATSPublisher(c.NATSURL)
		if err != nil {
			return nil, err
		}
		publisher = pub
	}

	a := &app{backend: backend, session: session, box: box, publisher: publisher}
	a.store = a.newStore(c, publisher)
	return a, nil
}

// newStore builds a store over the app's backend publishing to pub.
func (a *app) newStore(c *config.Config, pub events.Publisher) *store.Store {
	opts := ledger.Options{Timeout: c.LedgerTimeout}
	a.reader = ledger.NewReadOnly(a.backend, opts)

	var w ledger.Writer
	if a.session.CanSign() {
		w = ledger.NewAuthenticated(a.backend, a.session.Signer(), opts)
	}
	var enc store.Encrypter = sealless{}
	if a.box != nil {
		enc = a.box
	}
	return store.New(a.reader, w, enc, pub, store.Config{
		Index: index.Config{Key: c.IndexKey, MaxAttempts: c.IndexMaxAttempts},
	}, logger)
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		logger.Warn("closing publisher", "err", err)
	}
	if err := a.backend.Close(); err != nil {
		logger.Warn("closing ledger", "err", err)
	}
}

// sealless fails every encryption so Create reports a missing key before
// anything is written.
type sealless struct{}

func (sealless) Encrypt(context.Context, model.Payload) (string, error) {
	return "", errNoSealKey
}
