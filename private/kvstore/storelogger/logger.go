// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package storelogger

import (
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"pwnedpasswords.io/ingest/private/kvstore"
)

var mon = monkit.Package()

// Logger wraps a kvstore.Store and logs every operation at debug level.
// CompareAndSwap conflicts are counted so contention on hot keys is visible.
type Logger struct {
	log   *zap.Logger
	store kvstore.Store
}

var _ kvstore.Store = (*Logger)(nil)

// New creates a new Logger with log and store.
func New(log *zap.Logger, store kvstore.Store) *Logger {
	return &Logger{log: log, store: store}
}

// Put adds a value to store.
func (store *Logger) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Put", zap.ByteString("key", key), zap.Int("value length", len(value)))
	return store.store.Put(ctx, key, value)
}

// Get gets a value to store.
func (store *Logger) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	value, err := store.store.Get(ctx, key)
	store.log.Debug("Get", zap.ByteString("key", key), zap.Bool("found", err == nil))
	return value, err
}

// Delete deletes key and the value.
func (store *Logger) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Delete", zap.ByteString("key", key))
	return store.store.Delete(ctx, key)
}

// Range iterates over all items with prefix in unspecified order.
func (store *Logger) Range(ctx context.Context, prefix kvstore.Key, fn func(context.Context, kvstore.Key, kvstore.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	count := 0
	err = store.store.Range(ctx, prefix, func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
		count++
		return fn(ctx, key, value)
	})
	store.log.Debug("Range", zap.ByteString("prefix", prefix), zap.Int("items", count), zap.Error(err))
	return err
}

// CompareAndSwap atomically compares and swaps oldValue with newValue.
func (store *Logger) CompareAndSwap(ctx context.Context, key kvstore.Key, oldValue, newValue kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	err = store.store.CompareAndSwap(ctx, key, oldValue, newValue)
	if kvstore.ErrValueChanged.Has(err) {
		mon.Counter("kvstore_cas_conflicts").Inc(1)
	}
	store.log.Debug("CompareAndSwap", zap.ByteString("key", key),
		zap.Bool("insert", oldValue == nil), zap.Bool("delete", newValue == nil),
		zap.Error(err))
	return err
}

// Close closes the store.
func (store *Logger) Close() error {
	store.log.Debug("Close")
	return store.store.Close()
}
