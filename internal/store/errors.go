package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
	"github.com/alfredjeanlab/peerledger/internal/model"
)

// ErrNotFound is returned by Get when no record exists under the id.
var ErrNotFound = errors.New("record not found")

// EncryptionError is returned when the encryption primitive fails. Nothing
// has been written to the ledger.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encrypting payload: %v", e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// IndexAppendError is returned when a record was written but its id could
// not be added to the index. The record is durable but orphaned: listings
// will not show it until it is repaired.
type IndexAppendError struct {
	ID  string
	Err error
}

func (e *IndexAppendError) Error() string {
	return fmt.Sprintf("record %s written but not indexed: %v", e.ID, e.Err)
}

func (e *IndexAppendError) Unwrap() error { return e.Err }

// Failure groups errors by the recovery action they call for.
type Failure int

const (
	FailureNone     Failure = iota
	FailureInput            // rejected before any network call: fix the input
	FailureWallet           // no signer or signing declined: reconnect the wallet
	FailureLedger           // transient ledger failure: retry the operation
	FailureOrphaned         // record written, index append failed: repair
	FailureNotFound
	FailureUnknown
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureInput:
		return "input"
	case FailureWallet:
		return "wallet"
	case FailureLedger:
		return "ledger"
	case FailureOrphaned:
		return "orphaned"
	case FailureNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Classify maps err onto a Failure.
func Classify(err error) Failure {
	if err == nil {
		return FailureNone
	}
	var (
		idxErr *IndexAppendError
		valErr *model.ValidationError
		encErr *EncryptionError
	)
	switch {
	case errors.As(err, &idxErr):
		return FailureOrphaned
	case errors.As(err, &valErr), errors.As(err, &encErr):
		return FailureInput
	case errors.Is(err, ledger.ErrNoSigner), errors.Is(err, ledger.ErrSigningRejected):
		return FailureWallet
	case errors.Is(err, ledger.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return FailureLedger
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	default:
		return FailureUnknown
	}
}
