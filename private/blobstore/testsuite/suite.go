// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testsuite contains common tests for blobstore.Blobs implementations.
package testsuite

import (
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/private/blobstore"
)

// RunTests runs common blobstore.Blobs tests.
func RunTests(t *testing.T, blobs blobstore.Blobs) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, blobs) })
	t.Run("Open", func(t *testing.T) { testOpen(t, blobs) })
	t.Run("PutIfMatch", func(t *testing.T) { testPutIfMatch(t, blobs) })
	t.Run("ParallelPutIfMatch", func(t *testing.T) { testParallelPutIfMatch(t, blobs) })
	t.Run("InvalidKey", func(t *testing.T) { testInvalidKey(t, blobs) })
}

func testPutGet(t *testing.T, blobs blobstore.Blobs) {
	ctx := testcontext.New(t)

	_, _, err := blobs.Get(ctx, "putget/missing")
	require.True(t, blobstore.ErrNotFound.Has(err), "%+v", err)

	info, err := blobs.Put(ctx, "putget/a", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "putget/a", info.Key)
	require.Equal(t, int64(5), info.Size)
	require.NotEmpty(t, info.Version)

	data, got, err := blobs.Get(ctx, "putget/a")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.Equal(t, info.Version, got.Version)
	require.False(t, got.LastModified.IsZero())

	next, err := blobs.Put(ctx, "putget/a", []byte("world!"))
	require.NoError(t, err)
	require.NotEqual(t, info.Version, next.Version)

	data, _, err = blobs.Get(ctx, "putget/a")
	require.NoError(t, err)
	require.Equal(t, "world!", string(data))

	require.NoError(t, blobs.Delete(ctx, "putget/a"))
	require.NoError(t, blobs.Delete(ctx, "putget/a"))
	_, _, err = blobs.Get(ctx, "putget/a")
	require.True(t, blobstore.ErrNotFound.Has(err), "%+v", err)
}

func testOpen(t *testing.T, blobs blobstore.Blobs) {
	ctx := testcontext.New(t)

	_, _, err := blobs.Open(ctx, "open/missing")
	require.True(t, blobstore.ErrNotFound.Has(err), "%+v", err)

	info, err := blobs.Put(ctx, "open/a", []byte("streamed content"))
	require.NoError(t, err)
	defer func() { _ = blobs.Delete(ctx, "open/a") }()

	reader, got, err := blobs.Open(ctx, "open/a")
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	require.Equal(t, "streamed content", string(data))
	require.Equal(t, info.Version, got.Version)
	require.Equal(t, int64(len(data)), got.Size)
}

func testPutIfMatch(t *testing.T, blobs blobstore.Blobs) {
	ctx := testcontext.New(t)
	const key = "ifmatch/a"
	defer func() { _ = blobs.Delete(ctx, key) }()

	ok, err := blobs.PutIfMatch(ctx, key, []byte("v1"), "")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = blobs.PutIfMatch(ctx, key, []byte("again"), "")
	require.NoError(t, err)
	require.False(t, ok)

	_, info, err := blobs.Get(ctx, key)
	require.NoError(t, err)

	ok, err = blobs.PutIfMatch(ctx, key, []byte("v2"), info.Version)
	require.NoError(t, err)
	require.True(t, ok)

	// the version read before the last write is stale now
	ok, err = blobs.PutIfMatch(ctx, key, []byte("stale"), info.Version)
	require.NoError(t, err)
	require.False(t, ok)

	data, _, err := blobs.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))

	ok, err = blobs.PutIfMatch(ctx, "ifmatch/missing", []byte("x"), "some-version")
	require.NoError(t, err)
	require.False(t, ok)
	_, _, err = blobs.Get(ctx, "ifmatch/missing")
	require.True(t, blobstore.ErrNotFound.Has(err), "%+v", err)
}

func testParallelPutIfMatch(t *testing.T, blobs blobstore.Blobs) {
	ctx := testcontext.New(t)
	const key = "parallel/counter"
	defer func() { _ = blobs.Delete(ctx, key) }()

	_, err := blobs.Put(ctx, key, []byte("0"))
	require.NoError(t, err)

	const workers, increments = 4, 10

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range increments {
				for {
					data, info, err := blobs.Get(ctx, key)
					if err != nil {
						t.Error(err)
						return
					}
					n, err := strconv.Atoi(string(data))
					if err != nil {
						t.Error(err)
						return
					}
					ok, err := blobs.PutIfMatch(ctx, key, []byte(strconv.Itoa(n+1)), info.Version)
					if err != nil {
						t.Error(err)
						return
					}
					if ok {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	data, _, err := blobs.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(workers*increments), string(data))
}

func testInvalidKey(t *testing.T, blobs blobstore.Blobs) {
	ctx := testcontext.New(t)

	_, err := blobs.Put(ctx, "../escape", []byte("x"))
	require.True(t, blobstore.ErrInvalidKey.Has(err), "%+v", err)

	_, _, err = blobs.Get(ctx, "")
	require.True(t, blobstore.ErrInvalidKey.Has(err), "%+v", err)
}
