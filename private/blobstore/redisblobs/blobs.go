// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package redisblobs stores blobs as redis hashes.
package redisblobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"pwnedpasswords.io/ingest/private/blobstore"
)

var (
	// Error is a redisblobs error.
	Error = errs.Class("redisblobs")

	mon = monkit.Package()
)

const (
	fieldData     = "data"
	fieldVersion  = "version"
	fieldModified = "modified"
)

var _ blobstore.Blobs = (*Blobs)(nil)

// Blobs implements blobstore.Blobs on top of redis.
//
// Every write takes a fresh number from a shared counter as its version, so
// a version is never reused, even after a blob is deleted and recreated.
type Blobs struct {
	db        *redis.Client
	namespace string
}

// New creates a blob store using db. All keys are stored under namespace.
func New(db *redis.Client, namespace string) *Blobs {
	return &Blobs{db: db, namespace: namespace}
}

func (blobs *Blobs) key(key string) (string, error) {
	if err := blobstore.CheckKey(key); err != nil {
		return "", err
	}
	return blobs.namespace + ":blob:" + key, nil
}

func (blobs *Blobs) nextVersion(ctx context.Context) (string, error) {
	n, err := blobs.db.Incr(ctx, blobs.namespace+":blobversion").Result()
	if err != nil {
		return "", Error.Wrap(err)
	}
	return strconv.FormatInt(n, 10), nil
}

// Get returns the content of the blob and its info.
func (blobs *Blobs) Get(ctx context.Context, key string) (_ []byte, _ blobstore.Info, err error) {
	defer mon.Task()(&ctx)(&err)

	redisKey, err := blobs.key(key)
	if err != nil {
		return nil, blobstore.Info{}, err
	}

	fields, err := blobs.db.HMGet(ctx, redisKey, fieldData, fieldVersion, fieldModified).Result()
	if err != nil {
		return nil, blobstore.Info{}, Error.Wrap(err)
	}
	return decode(key, fields)
}

// Open opens a reader for the blob.
func (blobs *Blobs) Open(ctx context.Context, key string) (_ io.ReadCloser, _ blobstore.Info, err error) {
	defer mon.Task()(&ctx)(&err)

	data, info, err := blobs.Get(ctx, key)
	if err != nil {
		return nil, blobstore.Info{}, err
	}
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

// Put unconditionally stores data at key.
func (blobs *Blobs) Put(ctx context.Context, key string, data []byte) (_ blobstore.Info, err error) {
	defer mon.Task()(&ctx)(&err)

	redisKey, err := blobs.key(key)
	if err != nil {
		return blobstore.Info{}, err
	}

	version, err := blobs.nextVersion(ctx)
	if err != nil {
		return blobstore.Info{}, err
	}

	now := time.Now()
	err = blobs.db.HSet(ctx, redisKey, fieldData, data, fieldVersion, version, fieldModified, now.UnixNano()).Err()
	if err != nil {
		return blobstore.Info{}, Error.Wrap(err)
	}

	return blobstore.Info{
		Key:          key,
		Version:      version,
		Size:         int64(len(data)),
		LastModified: now,
	}, nil
}

// PutIfMatch stores data only when the current version equals expectedVersion.
func (blobs *Blobs) PutIfMatch(ctx context.Context, key string, data []byte, expectedVersion string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	redisKey, err := blobs.key(key)
	if err != nil {
		return false, err
	}

	matched := false
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, redisKey, fieldVersion).Result()
		switch {
		case errors.Is(err, redis.Nil):
			current = ""
		case err != nil:
			return err
		}
		if current != expectedVersion {
			return nil
		}

		version, err := blobs.nextVersion(ctx)
		if err != nil {
			return err
		}

		// runs only if the watched key remains unchanged
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return pipe.HSet(ctx, redisKey, fieldData, data, fieldVersion, version, fieldModified, time.Now().UnixNano()).Err()
		})
		if err == nil {
			matched = true
		}
		return err
	}

	err = blobs.db.Watch(ctx, txf, redisKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, Error.Wrap(err)
	}
	return matched, nil
}

// Delete deletes the blob.
func (blobs *Blobs) Delete(ctx context.Context, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	redisKey, err := blobs.key(key)
	if err != nil {
		return err
	}
	return Error.Wrap(blobs.db.Del(ctx, redisKey).Err())
}

// Close closes the underlying redis client.
func (blobs *Blobs) Close() error {
	return Error.Wrap(blobs.db.Close())
}

func decode(key string, fields []interface{}) ([]byte, blobstore.Info, error) {
	if len(fields) != 3 || fields[0] == nil || fields[1] == nil {
		return nil, blobstore.Info{}, blobstore.ErrNotFound.New("%q", key)
	}

	data, ok1 := fields[0].(string)
	version, ok2 := fields[1].(string)
	modified, ok3 := fields[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return nil, blobstore.Info{}, Error.New("unexpected field types for %q", key)
	}

	nanos, err := strconv.ParseInt(modified, 10, 64)
	if err != nil {
		return nil, blobstore.Info{}, Error.New("invalid modified time for %q: %v", key, err)
	}

	return []byte(data), blobstore.Info{
		Key:          key,
		Version:      version,
		Size:         int64(len(data)),
		LastModified: time.Unix(0, nanos),
	}, nil
}
