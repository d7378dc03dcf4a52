// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package ingest

import (
	"context"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"pwnedpasswords.io/ingest/private/blobstore"
	"pwnedpasswords.io/ingest/private/blobstore/filestore"
	"pwnedpasswords.io/ingest/private/blobstore/redisblobs"
	"pwnedpasswords.io/ingest/private/blobstore/testblobs"
	"pwnedpasswords.io/ingest/private/kvstore"
	"pwnedpasswords.io/ingest/private/kvstore/boltdb"
	kvredis "pwnedpasswords.io/ingest/private/kvstore/redis"
	"pwnedpasswords.io/ingest/private/kvstore/storelogger"
	"pwnedpasswords.io/ingest/private/kvstore/teststore"
	"pwnedpasswords.io/ingest/private/queue"
	"pwnedpasswords.io/ingest/private/queue/memqueue"
	"pwnedpasswords.io/ingest/private/queue/redisqueue"
)

// ErrStorage is the error class for opening storage backends.
var ErrStorage = errs.Class("storage")

// Memory selects the in-process implementation of a backend.
const Memory = "memory"

// BoltBucket is the bucket holding the table in a bolt database.
const BoltBucket = "pwned"

// StorageConfig selects the storage backends.
type StorageConfig struct {
	Table     string `help:"table storage: memory, bolt://<path> or redis://<host>:<port>?db=<n>" releaseDefault:"redis://127.0.0.1:6379?db=0" devDefault:"memory"`
	Blobs     string `help:"blob storage: memory, file://<dir> or redis://<host>:<port>?db=<n>" releaseDefault:"redis://127.0.0.1:6379?db=0" devDefault:"memory"`
	Queue     string `help:"queue storage: memory or redis://<host>:<port>?db=<n>" releaseDefault:"redis://127.0.0.1:6379?db=0" devDefault:"memory"`
	Namespace string `help:"key prefix for blobs and queues kept in redis" default:"pwned"`

	ShardFormat        string `help:"encoding of range files: text or binary" default:"text"`
	LogTableOperations bool   `help:"log every table operation at debug level" default:"false" hidden:"true"`
}

// Storage contains the opened storage backends.
type Storage struct {
	Table kvstore.Store
	Blobs blobstore.Blobs
	Queue queue.Queue
}

// OpenStorage opens all backends selected in config.
func OpenStorage(ctx context.Context, log *zap.Logger, config StorageConfig) (_ *Storage, err error) {
	defer mon.Task()(&ctx)(&err)

	storage := &Storage{}
	defer func() {
		if err != nil {
			err = errs.Combine(err, storage.Close())
		}
	}()

	storage.Table, err = openTable(ctx, config.Table)
	if err != nil {
		return nil, err
	}
	if config.LogTableOperations {
		storage.Table = storelogger.New(log.Named("table"), storage.Table)
	}

	storage.Blobs, err = openBlobs(ctx, config.Blobs, config.Namespace)
	if err != nil {
		return nil, err
	}

	storage.Queue, err = openQueue(ctx, config.Queue, config.Namespace)
	if err != nil {
		return nil, err
	}

	log.Debug("storage opened",
		zap.String("table", scheme(config.Table)),
		zap.String("blobs", scheme(config.Blobs)),
		zap.String("queue", scheme(config.Queue)))
	return storage, nil
}

func openTable(ctx context.Context, address string) (kvstore.Store, error) {
	switch {
	case address == Memory:
		return teststore.New(), nil
	case strings.HasPrefix(address, "bolt://"):
		store, err := boltdb.New(strings.TrimPrefix(address, "bolt://"), BoltBucket)
		if err != nil {
			return nil, ErrStorage.Wrap(err)
		}
		return store, nil
	case strings.HasPrefix(address, "redis://"):
		store, err := kvredis.OpenClientFrom(ctx, address)
		if err != nil {
			return nil, ErrStorage.Wrap(err)
		}
		return store, nil
	default:
		return nil, ErrStorage.New("unsupported table address %q", address)
	}
}

func openBlobs(ctx context.Context, address, namespace string) (blobstore.Blobs, error) {
	switch {
	case address == Memory:
		return testblobs.NewMemory(), nil
	case strings.HasPrefix(address, "file://"):
		store, err := filestore.NewAt(strings.TrimPrefix(address, "file://"))
		if err != nil {
			return nil, ErrStorage.Wrap(err)
		}
		return store, nil
	case strings.HasPrefix(address, "redis://"):
		db, err := kvredis.Dial(ctx, address)
		if err != nil {
			return nil, ErrStorage.Wrap(err)
		}
		return redisblobs.New(db, namespace), nil
	default:
		return nil, ErrStorage.New("unsupported blobs address %q", address)
	}
}

func openQueue(ctx context.Context, address, namespace string) (queue.Queue, error) {
	switch {
	case address == Memory:
		return memqueue.New(), nil
	case strings.HasPrefix(address, "redis://"):
		db, err := kvredis.Dial(ctx, address)
		if err != nil {
			return nil, ErrStorage.Wrap(err)
		}
		return redisqueue.New(db, namespace), nil
	default:
		return nil, ErrStorage.New("unsupported queue address %q", address)
	}
}

// scheme strips credentials and paths from address for logging.
func scheme(address string) string {
	if i := strings.Index(address, "://"); i >= 0 {
		return address[:i]
	}
	return address
}

// PingTable checks that the table answers reads.
func (storage *Storage) PingTable(ctx context.Context) error {
	_, err := storage.Table.Get(ctx, kvstore.Key("health/ping"))
	if kvstore.ErrKeyNotFound.Has(err) {
		return nil
	}
	return err
}

// PingBlobs checks that the blob storage answers reads.
func (storage *Storage) PingBlobs(ctx context.Context) error {
	_, _, err := storage.Blobs.Get(ctx, "health/ping")
	if blobstore.ErrNotFound.Has(err) {
		return nil
	}
	return err
}

// PingQueue checks that the named queue answers.
func (storage *Storage) PingQueue(ctx context.Context, name string) error {
	_, err := storage.Queue.Len(ctx, name)
	return err
}

// Close closes every opened backend.
func (storage *Storage) Close() error {
	var group errs.Group
	if storage.Table != nil {
		group.Add(storage.Table.Close())
	}
	if storage.Blobs != nil {
		group.Add(storage.Blobs.Close())
	}
	if storage.Queue != nil {
		group.Add(storage.Queue.Close())
	}
	return group.Err()
}
