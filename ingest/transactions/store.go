// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package transactions keeps the submission transactions, the per-hash
// counters and the set of recently modified shard prefixes.
package transactions

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"

	"pwnedpasswords.io/ingest/private/codec"
	"pwnedpasswords.io/ingest/private/kvstore"
)

var (
	// Error is the error class for storage failures.
	Error = errs.Class("transactions")

	// ErrNotFound is returned when a transaction does not exist.
	ErrNotFound = errs.Class("transaction not found")

	// ErrConflict is returned when a transaction was modified concurrently.
	ErrConflict = errs.Class("transaction conflict")

	errAlreadyConfirmed = errs.Class("transaction already confirmed")

	mon = monkit.Package()
)

const (
	transactionsPrefix = "transactions"
	hashesPrefix       = "hashes"
	modifiedPrefix     = "modified"

	dayLayout = "2006-01-02"
)

// Transaction is one bulk submission.
type Transaction struct {
	ID             uuid.UUID
	SubscriptionID string
	Confirmed      bool
	CreatedAt      time.Time
	ConfirmedAt    time.Time
}

type transactionRecord struct {
	ID             string    `cbor:"id"`
	SubscriptionID string    `cbor:"subscriptionId"`
	Confirmed      bool      `cbor:"confirmed"`
	CreatedAt      time.Time `cbor:"createdAt"`
	ConfirmedAt    time.Time `cbor:"confirmedAt"`
}

// Store keeps transactions, hash counters and modified prefixes in a
// kvstore.Store.
//
// architecture: Database
type Store struct {
	log   *zap.Logger
	db    kvstore.Store
	nowFn func() time.Time
}

// NewStore creates a store on top of db.
func NewStore(log *zap.Logger, db kvstore.Store) *Store {
	return &Store{
		log:   log,
		db:    db,
		nowFn: time.Now,
	}
}

// TestingSetNow allows tests to have the store act as if the current time is whatever they want.
func (store *Store) TestingSetNow(nowFn func() time.Time) {
	store.nowFn = nowFn
}

func transactionKey(subscriptionID string, id uuid.UUID) kvstore.Key {
	return kvstore.Join(transactionsPrefix, subscriptionID, id.String())
}

// Create creates a new unconfirmed transaction for subscriptionID.
func (store *Store) Create(ctx context.Context, subscriptionID string) (_ Transaction, err error) {
	defer mon.Task()(&ctx)(&err)

	id, err := uuid.New()
	if err != nil {
		return Transaction{}, Error.Wrap(err)
	}
	return store.CreateWithID(ctx, subscriptionID, id)
}

// CreateWithID creates a new unconfirmed transaction with a caller chosen id.
// It fails when the transaction already exists.
func (store *Store) CreateWithID(ctx context.Context, subscriptionID string, id uuid.UUID) (_ Transaction, err error) {
	defer mon.Task()(&ctx)(&err)

	tx := Transaction{
		ID:             id,
		SubscriptionID: subscriptionID,
		CreatedAt:      store.nowFn().UTC(),
	}

	value, err := encodeTransaction(tx)
	if err != nil {
		return Transaction{}, err
	}

	err = store.db.CompareAndSwap(ctx, transactionKey(subscriptionID, id), nil, value)
	if err != nil {
		if kvstore.ErrValueChanged.Has(err) {
			return Transaction{}, ErrConflict.New("%s/%s already exists", subscriptionID, id)
		}
		return Transaction{}, Error.Wrap(err)
	}
	return tx, nil
}

// Get returns the transaction.
func (store *Store) Get(ctx context.Context, subscriptionID string, id uuid.UUID) (_ Transaction, err error) {
	defer mon.Task()(&ctx)(&err)

	return store.get(ctx, subscriptionID, id)
}

func (store *Store) get(ctx context.Context, subscriptionID string, id uuid.UUID) (Transaction, error) {
	value, err := store.db.Get(ctx, transactionKey(subscriptionID, id))
	if err != nil {
		if kvstore.ErrKeyNotFound.Has(err) {
			return Transaction{}, ErrNotFound.New("%s/%s", subscriptionID, id)
		}
		return Transaction{}, Error.Wrap(err)
	}
	return decodeTransaction(value)
}

// IsConfirmed returns whether the transaction has been confirmed.
func (store *Store) IsConfirmed(ctx context.Context, subscriptionID string, id uuid.UUID) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := store.get(ctx, subscriptionID, id)
	if err != nil {
		return false, err
	}
	return tx.Confirmed, nil
}

// Confirm marks the transaction as confirmed. It returns false when the
// transaction was already confirmed. A concurrent modification of the same
// transaction fails with ErrConflict.
func (store *Store) Confirm(ctx context.Context, subscriptionID string, id uuid.UUID) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	err = kvstore.Update(ctx, store.db, transactionKey(subscriptionID, id), func(old kvstore.Value) (kvstore.Value, error) {
		if old == nil {
			return nil, ErrNotFound.New("%s/%s", subscriptionID, id)
		}
		tx, err := decodeTransaction(old)
		if err != nil {
			return nil, err
		}
		if tx.Confirmed {
			return nil, errAlreadyConfirmed.New("%s/%s", subscriptionID, id)
		}

		tx.Confirmed = true
		tx.ConfirmedAt = store.nowFn().UTC()
		return encodeTransaction(tx)
	})
	switch {
	case err == nil:
		return true, nil
	case errAlreadyConfirmed.Has(err):
		return false, nil
	case ErrNotFound.Has(err), Error.Has(err):
		return false, err
	case kvstore.ErrValueChanged.Has(err):
		return false, ErrConflict.New("%s/%s", subscriptionID, id)
	case kvstore.ErrKeyNotFound.Has(err):
		return false, ErrNotFound.New("%s/%s", subscriptionID, id)
	default:
		return false, Error.Wrap(err)
	}
}

func encodeTransaction(tx Transaction) (kvstore.Value, error) {
	value, err := codec.Marshal(transactionRecord{
		ID:             tx.ID.String(),
		SubscriptionID: tx.SubscriptionID,
		Confirmed:      tx.Confirmed,
		CreatedAt:      tx.CreatedAt,
		ConfirmedAt:    tx.ConfirmedAt,
	})
	return value, Error.Wrap(err)
}

func decodeTransaction(value kvstore.Value) (Transaction, error) {
	var record transactionRecord
	if err := codec.Unmarshal(value, &record); err != nil {
		return Transaction{}, Error.Wrap(err)
	}
	id, err := uuid.FromString(record.ID)
	if err != nil {
		return Transaction{}, Error.Wrap(err)
	}
	return Transaction{
		ID:             id,
		SubscriptionID: record.SubscriptionID,
		Confirmed:      record.Confirmed,
		CreatedAt:      record.CreatedAt,
		ConfirmedAt:    record.ConfirmedAt,
	}, nil
}
