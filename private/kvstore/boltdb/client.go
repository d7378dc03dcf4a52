// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"bytes"
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	bolt "go.etcd.io/bbolt"

	"pwnedpasswords.io/ingest/private/kvstore"
)

var mon = monkit.Package()

// Error is the default boltdb errs class.
var Error = errs.Class("boltdb")

const (
	// fileMode sets permissions so owner can read and write.
	fileMode = 0600

	defaultTimeout = 1 * time.Second
)

// Client is the entrypoint into a bolt data store.
type Client struct {
	db     *bolt.DB
	Path   string
	Bucket []byte
}

var _ kvstore.Store = (*Client)(nil)

// New instantiates a new BoltDB client given db file path, and a bucket name.
func New(path, bucket string) (*Client, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = Error.Wrap(db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}))
	if err != nil {
		return nil, errs.Combine(err, Error.Wrap(db.Close()))
	}

	return &Client{
		db:     db,
		Path:   path,
		Bucket: []byte(bucket),
	}, nil
}

func (client *Client) update(fn func(*bolt.Bucket) error) error {
	return client.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(client.Bucket))
	})
}

func (client *Client) view(fn func(*bolt.Bucket) error) error {
	return client.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(client.Bucket))
	})
}

// Put adds a key/value to boltDB in a batch, where boltDB commits the batch to disk every
// 1000 operations or 10ms, whichever is first.
func (client *Client) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	return Error.Wrap(client.db.Batch(func(tx *bolt.Tx) error {
		return tx.Bucket(client.Bucket).Put(key, nonNil(value))
	}))
}

// Get looks up the provided key from boltdb returning either an error or the result.
func (client *Client) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	var value kvstore.Value
	err = client.view(func(bucket *bolt.Bucket) error {
		data := bucket.Get(key)
		if data == nil {
			return kvstore.ErrKeyNotFound.New("%q", key)
		}
		// bolt data is only valid inside the transaction
		value = append(kvstore.Value{}, data...)
		return nil
	})
	return value, err
}

// Delete deletes a key/value pair from boltdb, for a given the key.
func (client *Client) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	return Error.Wrap(client.update(func(bucket *bolt.Bucket) error {
		return bucket.Delete(key)
	}))
}

// Range iterates over all items with prefix in key order.
//
// The whole iteration runs inside a single read transaction, fn must not
// write to the same store.
func (client *Client) Range(ctx context.Context, prefix kvstore.Key, fn func(context.Context, kvstore.Key, kvstore.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	return client.view(func(bucket *bolt.Bucket) error {
		cursor := bucket.Cursor()
		for key, value := cursor.Seek(prefix); key != nil && bytes.HasPrefix(key, prefix); key, value = cursor.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, kvstore.Key(key), kvstore.Value(value)); err != nil {
				return err
			}
		}
		return nil
	})
}

// CompareAndSwap atomically compares and swaps oldValue with newValue.
func (client *Client) CompareAndSwap(ctx context.Context, key kvstore.Key, oldValue, newValue kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	return client.update(func(bucket *bolt.Bucket) error {
		data := bucket.Get(key)
		if data == nil {
			if oldValue != nil {
				return kvstore.ErrKeyNotFound.New("%q", key)
			}
			if newValue == nil {
				return nil
			}
			return Error.Wrap(bucket.Put(key, nonNil(newValue)))
		}

		if oldValue == nil || !bytes.Equal(data, oldValue) {
			return kvstore.ErrValueChanged.New("%q", key)
		}

		if newValue == nil {
			return Error.Wrap(bucket.Delete(key))
		}
		return Error.Wrap(bucket.Put(key, nonNil(newValue)))
	})
}

// Close closes a BoltDB client.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}

// nonNil keeps empty values distinguishable from missing keys.
func nonNil(value kvstore.Value) kvstore.Value {
	if value == nil {
		return kvstore.Value{}
	}
	return value
}
