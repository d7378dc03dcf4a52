// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package pipeline_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/ingest/batches"
	"pwnedpasswords.io/ingest/ingest/pipeline"
	"pwnedpasswords.io/ingest/ingest/shardfiles"
	"pwnedpasswords.io/ingest/ingest/transactions"
	"pwnedpasswords.io/ingest/private/blobstore/testblobs"
	"pwnedpasswords.io/ingest/private/hashutil"
	"pwnedpasswords.io/ingest/private/kvstore/teststore"
	"pwnedpasswords.io/ingest/private/queue/memqueue"
)

func batchOf(values ...pipeline.IngestionValue) *batches.PasswordEntryBatch {
	batch := batches.NewPasswordEntryBatch("subscription", "transaction")
	for _, v := range values {
		sha1Prefix, _ := hashutil.Split(v.SHA1Hash)
		ntlmPrefix, _ := hashutil.Split(v.NTLMHash)
		batch.SHA1[sha1Prefix] = append(batch.SHA1[sha1Prefix], batches.Entry{
			Hash: v.SHA1Hash, Prevalence: uint32(v.Prevalence), NTLMHash: v.NTLMHash,
		})
		batch.NTLM[ntlmPrefix] = append(batch.NTLM[ntlmPrefix], batches.Entry{
			Hash: v.NTLMHash, Prevalence: uint32(v.Prevalence),
		})
	}
	return batch
}

func TestProcessBatchMergesIntoExisting(t *testing.T) {
	ctx := testcontext.New(t)
	env := newTestEnv(t, testblobs.NewMemory())

	password := value("password", 5)
	env.initShards(t, ctx, password)

	sha1Prefix, sha1Suffix := hashutil.Split(password.SHA1Hash)

	// a neighbour in the same shard, before and after the submitted hash.
	lower := sha1Prefix + strings.Repeat("0", 35)
	upper := sha1Prefix + strings.Repeat("F", 35)

	require.NoError(t, env.service.ProcessBatch(ctx, batchOf(
		pipeline.IngestionValue{SHA1Hash: upper, NTLMHash: password.NTLMHash, Prevalence: 7},
		password,
	)))
	require.NoError(t, env.service.ProcessBatch(ctx, batchOf(
		pipeline.IngestionValue{SHA1Hash: lower, NTLMHash: password.NTLMHash, Prevalence: 1},
		password,
	)))

	require.Equal(t, []string{
		strings.Repeat("0", 35) + ":1",
		sha1Suffix + ":10",
		strings.Repeat("F", 35) + ":7",
	}, env.shardLines(t, ctx, hashutil.SHA1, sha1Prefix))

	ntlmPrefix, ntlmSuffix := hashutil.Split(password.NTLMHash)
	require.Equal(t, []string{ntlmSuffix + ":18"}, env.shardLines(t, ctx, hashutil.NTLM, ntlmPrefix))
}

func TestProcessBatchDuplicatesWithinBatch(t *testing.T) {
	ctx := testcontext.New(t)
	env := newTestEnv(t, testblobs.NewMemory())

	password := value("password", 2)
	env.initShards(t, ctx, password)

	require.NoError(t, env.service.ProcessBatch(ctx, batchOf(password, password, password)))

	sha1Prefix, sha1Suffix := hashutil.Split(password.SHA1Hash)
	require.Equal(t, []string{sha1Suffix + ":6"}, env.shardLines(t, ctx, hashutil.SHA1, sha1Prefix))

	counter, err := env.transactions.GetHashCounter(ctx, sha1Prefix, sha1Suffix)
	require.NoError(t, err)
	require.Equal(t, uint64(6), counter.Prevalence)
}

// Redelivered batches are counted again, there is no deduplication key.
func TestProcessBatchRedeliveryDoubleCounts(t *testing.T) {
	ctx := testcontext.New(t)
	env := newTestEnv(t, testblobs.NewMemory())

	password := value("password", 4)
	env.initShards(t, ctx, password)

	batch := batchOf(password)
	require.NoError(t, env.service.ProcessBatch(ctx, batch))
	require.NoError(t, env.service.ProcessBatch(ctx, batch))

	sha1Prefix, sha1Suffix := hashutil.Split(password.SHA1Hash)
	require.Equal(t, []string{sha1Suffix + ":8"}, env.shardLines(t, ctx, hashutil.SHA1, sha1Prefix))

	counter, err := env.transactions.GetHashCounter(ctx, sha1Prefix, sha1Suffix)
	require.NoError(t, err)
	require.Equal(t, uint64(8), counter.Prevalence)
}

func TestProcessBatchMissingShard(t *testing.T) {
	ctx := testcontext.New(t)
	env := newTestEnv(t, testblobs.NewMemory())

	password := value("password", 1)

	require.NoError(t, env.service.ProcessBatch(ctx, batchOf(password)))

	sha1Prefix, _ := hashutil.Split(password.SHA1Hash)
	_, err := env.shards.Get(ctx, hashutil.SHA1, sha1Prefix)
	require.True(t, shardfiles.ErrNotFound.Has(err))
}

func TestProcessBatchInvalidEntry(t *testing.T) {
	ctx := testcontext.New(t)
	env := newTestEnv(t, testblobs.NewMemory())

	password := value("password", 1)
	env.initShards(t, ctx, password)

	batch := batchOf(password)
	ntlmPrefix, _ := hashutil.Split(password.NTLMHash)
	batch.NTLM[ntlmPrefix][0].Hash = "00000" + password.NTLMHash[5:]

	err := env.service.ProcessBatch(ctx, batch)
	require.True(t, pipeline.Error.Has(err))
}

func TestProcessBatchVersionConflicts(t *testing.T) {
	ctx := testcontext.New(t)
	bad := testblobs.NewBadBlobs(zaptest.NewLogger(t), testblobs.NewMemory())
	env := newTestEnv(t, bad)

	password := value("password", 3)
	env.initShards(t, ctx, password)

	bad.SetMismatches(5)
	require.NoError(t, env.service.ProcessBatch(ctx, batchOf(password)))

	sha1Prefix, sha1Suffix := hashutil.Split(password.SHA1Hash)
	require.Equal(t, []string{sha1Suffix + ":3"}, env.shardLines(t, ctx, hashutil.SHA1, sha1Prefix))
}

func TestProcessBatchRetriesExhausted(t *testing.T) {
	ctx := testcontext.New(t)
	log := zaptest.NewLogger(t)
	bad := testblobs.NewBadBlobs(log, testblobs.NewMemory())

	config := testConfig
	config.Retry.MaxAttempts = 3

	txs := transactions.NewStore(log, teststore.New())
	shards := shardfiles.NewStore(log, bad, shardfiles.Text)
	q := memqueue.New()
	service := pipeline.NewService(log, config, txs, shards, testblobs.NewMemory(), batches.NewSender(q, config.Queues))

	password := value("password", 3)
	sha1Prefix, sha1Suffix := hashutil.Split(password.SHA1Hash)
	_, err := shards.Init(ctx, hashutil.SHA1, sha1Prefix)
	require.NoError(t, err)

	bad.SetMismatches(3)
	err = service.ProcessBatch(ctx, batchOf(password))
	require.True(t, pipeline.ErrRetriesExhausted.Has(err))

	file, err := shards.Get(ctx, hashutil.SHA1, sha1Prefix)
	require.NoError(t, err)
	require.Empty(t, file.Entries)

	// the counter was updated before the merge failed.
	counter, err := txs.GetHashCounter(ctx, sha1Prefix, sha1Suffix)
	require.NoError(t, err)
	require.Equal(t, uint64(3), counter.Prevalence)
}

func TestConcurrentMerges(t *testing.T) {
	ctx := testcontext.New(t)

	const prefix = "ABCDE"
	suffixes := []string{
		strings.Repeat("0", 35),
		strings.Repeat("1", 35),
		"0123456789ABCDEF0123456789ABCDEF012",
		"FEDCBA9876543210FEDCBA9876543210FED",
		strings.Repeat("F", 35),
	}

	rapid.Check(t, func(t *rapid.T) {
		log := zap.NewNop()
		txs := transactions.NewStore(log, teststore.New())
		shards := shardfiles.NewStore(log, testblobs.NewMemory(), shardfiles.Text)
		service := pipeline.NewService(log, testConfig, txs, shards, testblobs.NewMemory(),
			batches.NewSender(memqueue.New(), testConfig.Queues))

		_, err := shards.Init(ctx, hashutil.SHA1, prefix)
		require.NoError(t, err)

		mergers := rapid.IntRange(2, 8).Draw(t, "mergers")
		expected := map[string]uint32{}
		work := make([]*batches.PasswordEntryBatch, 0, mergers)
		for i := range mergers {
			batch := batches.NewPasswordEntryBatch("subscription", fmt.Sprint(i))
			for range rapid.IntRange(1, 6).Draw(t, "entries") {
				suffix := rapid.SampledFrom(suffixes).Draw(t, "suffix")
				prevalence := rapid.Uint32Range(1, 1000).Draw(t, "prevalence")
				batch.SHA1[prefix] = append(batch.SHA1[prefix], batches.Entry{Hash: prefix + suffix, Prevalence: prevalence})
				expected[suffix] += prevalence
			}
			work = append(work, batch)
		}

		var group errgroup.Group
		for _, batch := range work {
			group.Go(func() error {
				return service.ProcessBatch(context.Background(), batch)
			})
		}
		require.NoError(t, group.Wait())

		var want []string
		for suffix, prevalence := range expected {
			want = append(want, fmt.Sprintf("%s:%d", suffix, prevalence))

			counter, err := txs.GetHashCounter(ctx, prefix, suffix)
			require.NoError(t, err)
			require.Equal(t, uint64(prevalence), counter.Prevalence)
		}
		sort.Strings(want)

		file, err := shards.Get(ctx, hashutil.SHA1, prefix)
		require.NoError(t, err)
		defer file.Release()

		var got []string
		for _, entry := range file.Entries {
			got = append(got, entry.Text(true))
		}
		require.Equal(t, want, got)
	})
}
