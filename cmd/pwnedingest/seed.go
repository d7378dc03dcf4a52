// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"

	"pwnedpasswords.io/ingest/ingest"
	"pwnedpasswords.io/ingest/ingest/batches"
	"pwnedpasswords.io/ingest/ingest/shardfiles"
	"pwnedpasswords.io/ingest/private/hashutil"
	"pwnedpasswords.io/ingest/private/queue"
)

// PrefixCount is the number of range files per hash kind.
const PrefixCount = 1 << (4 * hashutil.PrefixLength)

// QueueLength is the number of pending messages of a queue.
type QueueLength struct {
	Name    string
	Pending int
}

func parseKinds(names []string) ([]hashutil.Kind, error) {
	kinds := make([]hashutil.Kind, 0, len(names))
	for _, name := range names {
		kind, ok := hashutil.ParseKind(name)
		if !ok || name == "" {
			return nil, errs.New("unknown hash kind %q", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func openShards(log *zap.Logger, storage *ingest.Storage, config ingest.StorageConfig) (*shardfiles.Store, error) {
	format, err := shardfiles.ParseFormat(config.ShardFormat)
	if err != nil {
		return nil, err
	}
	return shardfiles.NewStore(log.Named("shardfiles"), storage.Blobs, format), nil
}

// seedRanges creates the empty range files of count prefixes starting at
// first. Existing range files are left untouched.
func seedRanges(ctx context.Context, log *zap.Logger, shards *shardfiles.Store, kinds []hashutil.Kind, concurrency, first, count int) (created int, err error) {
	limiter := sync2.NewLimiter(max(concurrency, 1))

	var total atomic.Int64
	var mu sync.Mutex
	var group errs.Group

	for _, kind := range kinds {
		for i := first; i < first+count; i++ {
			kind, prefix := kind, fmt.Sprintf("%0*X", hashutil.PrefixLength, i)
			started := limiter.Go(ctx, func() {
				ok, err := shards.Init(ctx, kind, prefix)
				if err != nil {
					mu.Lock()
					group.Add(err)
					mu.Unlock()
					return
				}
				if ok {
					total.Add(1)
				}
			})
			if !started {
				limiter.Wait()
				return int(total.Load()), ctx.Err()
			}
		}
		log.Debug("seeded kind", zap.Stringer("Kind", kind))
	}

	limiter.Wait()
	return int(total.Load()), group.Err()
}

func queueLengths(ctx context.Context, storage *ingest.Storage, names batches.Names) ([]QueueLength, error) {
	var lengths []QueueLength
	for _, name := range []string{names.Transactions, names.Batches} {
		for _, queueName := range []string{name, name + queue.PoisonSuffix} {
			pending, err := storage.Queue.Len(ctx, queueName)
			if err != nil {
				return nil, err
			}
			lengths = append(lengths, QueueLength{Name: queueName, Pending: pending})
		}
	}
	return lengths, nil
}
