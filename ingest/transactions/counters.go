// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package transactions

import (
	"context"
	"math"

	"go.uber.org/zap"

	"pwnedpasswords.io/ingest/private/codec"
	"pwnedpasswords.io/ingest/private/kvstore"
)

// HashCounter is the accumulated prevalence of one SHA-1 hash.
type HashCounter struct {
	NTLMHash   string `cbor:"ntlmHash"`
	Prevalence uint64 `cbor:"prevalence"`
}

func counterKey(prefix, suffix string) kvstore.Key {
	return kvstore.Join(hashesPrefix, prefix, suffix)
}

// IncrementHashCounter adds delta to the counter of prefix+suffix, creating
// it when missing. It returns false without writing when the counter changed
// since it was read, the caller is expected to retry.
func (store *Store) IncrementHashCounter(ctx context.Context, prefix, suffix, ntlmHash string, delta uint32) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	err = kvstore.Update(ctx, store.db, counterKey(prefix, suffix), func(old kvstore.Value) (kvstore.Value, error) {
		counter := HashCounter{NTLMHash: ntlmHash}
		if old != nil {
			if err := codec.Unmarshal(old, &counter); err != nil {
				return nil, err
			}
			if counter.NTLMHash == "" {
				counter.NTLMHash = ntlmHash
			}
		}
		if counter.Prevalence > math.MaxUint64-uint64(delta) {
			counter.Prevalence = math.MaxUint64
		} else {
			counter.Prevalence += uint64(delta)
		}
		return codec.Marshal(counter)
	})
	switch {
	case err == nil:
		return true, nil
	case kvstore.ErrValueChanged.Has(err), kvstore.ErrKeyNotFound.Has(err):
		mon.Counter("hash_counter_conflicts").Inc(1)
		store.log.Debug("hash counter changed concurrently",
			zap.String("prefix", prefix), zap.String("suffix", suffix))
		return false, nil
	default:
		return false, Error.Wrap(err)
	}
}

// GetHashCounter returns the counter of prefix+suffix.
func (store *Store) GetHashCounter(ctx context.Context, prefix, suffix string) (_ HashCounter, err error) {
	defer mon.Task()(&ctx)(&err)

	value, err := store.db.Get(ctx, counterKey(prefix, suffix))
	if err != nil {
		if kvstore.ErrKeyNotFound.Has(err) {
			return HashCounter{}, ErrNotFound.New("hash %s%s", prefix, suffix)
		}
		return HashCounter{}, Error.Wrap(err)
	}

	var counter HashCounter
	if err := codec.Unmarshal(value, &counter); err != nil {
		return HashCounter{}, Error.Wrap(err)
	}
	return counter, nil
}
