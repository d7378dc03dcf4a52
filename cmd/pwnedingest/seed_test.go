// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/ingest"
	"pwnedpasswords.io/ingest/ingest/batches"
	"pwnedpasswords.io/ingest/private/hashutil"
)

func TestParseKinds(t *testing.T) {
	kinds, err := parseKinds([]string{"sha1", "NTLM"})
	require.NoError(t, err)
	require.Equal(t, []hashutil.Kind{hashutil.SHA1, hashutil.NTLM}, kinds)

	_, err = parseKinds([]string{"md5"})
	require.Error(t, err)

	_, err = parseKinds([]string{""})
	require.Error(t, err)
}

func TestSeedRanges(t *testing.T) {
	ctx := testcontext.New(t)
	log := zaptest.NewLogger(t)

	config := ingest.StorageConfig{
		Table:       ingest.Memory,
		Blobs:       ingest.Memory,
		Queue:       ingest.Memory,
		ShardFormat: "text",
	}
	storage, err := ingest.OpenStorage(ctx, log, config)
	require.NoError(t, err)
	defer ctx.Check(storage.Close)

	shards, err := openShards(log, storage, config)
	require.NoError(t, err)

	kinds := []hashutil.Kind{hashutil.SHA1, hashutil.NTLM}
	created, err := seedRanges(ctx, log, shards, kinds, 4, 0xFFFF0, 16)
	require.NoError(t, err)
	require.Equal(t, 32, created)

	file, err := shards.Get(ctx, hashutil.SHA1, "FFFF0")
	require.NoError(t, err)
	require.Empty(t, file.Entries)
	file.Release()

	file, err = shards.Get(ctx, hashutil.NTLM, "FFFFF")
	require.NoError(t, err)
	require.Empty(t, file.Entries)
	file.Release()

	// seeding again keeps the existing files
	created, err = seedRanges(ctx, log, shards, kinds, 4, 0xFFFF0, 16)
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestQueueLengths(t *testing.T) {
	ctx := testcontext.New(t)
	log := zaptest.NewLogger(t)

	storage, err := ingest.OpenStorage(ctx, log, ingest.StorageConfig{
		Table: ingest.Memory,
		Blobs: ingest.Memory,
		Queue: ingest.Memory,
	})
	require.NoError(t, err)
	defer ctx.Check(storage.Close)

	names := batches.Names{Transactions: "tx", Batches: "batches"}
	require.NoError(t, storage.Queue.Send(ctx, "batches", []byte("a")))
	require.NoError(t, storage.Queue.Send(ctx, "batches", []byte("b")))
	require.NoError(t, storage.Queue.Send(ctx, "tx-poison", []byte("c")))

	lengths, err := queueLengths(ctx, storage, names)
	require.NoError(t, err)
	require.Equal(t, []QueueLength{
		{Name: "tx", Pending: 0},
		{Name: "tx-poison", Pending: 1},
		{Name: "batches", Pending: 2},
		{Name: "batches-poison", Pending: 0},
	}, lengths)
}

func TestPrefixCount(t *testing.T) {
	require.Equal(t, 1048576, PrefixCount)
}
