// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package testsuite

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/private/kvstore"
)

// RunTests runs common kvstore.Store tests.
func RunTests(t *testing.T, store kvstore.Store) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, store) })
	t.Run("Constraints", func(t *testing.T) { testConstraints(t, store) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, store) })
	t.Run("Range", func(t *testing.T) { testRange(t, store) })
	t.Run("ParallelUpdate", func(t *testing.T) { testParallelUpdate(t, store) })
}

func testCRUD(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)

	items := kvstore.Items{
		newItem("crud/a", "1"),
		newItem("crud/b", "2"),
		newItem("crud/c/d", ""),
	}
	defer cleanupItems(t, ctx, store, items)

	for _, item := range items {
		require.NoError(t, store.Put(ctx, item.Key, item.Value))
	}

	for _, item := range items {
		value, err := store.Get(ctx, item.Key)
		require.NoError(t, err)
		require.Equal(t, string(item.Value), string(value))
	}

	require.NoError(t, store.Put(ctx, items[0].Key, kvstore.Value("updated")))
	value, err := store.Get(ctx, items[0].Key)
	require.NoError(t, err)
	require.Equal(t, "updated", string(value))

	require.NoError(t, store.Delete(ctx, items[1].Key))
	_, err = store.Get(ctx, items[1].Key)
	require.True(t, kvstore.ErrKeyNotFound.Has(err), "%+v", err)
}

func testConstraints(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)

	err := store.Put(ctx, nil, kvstore.Value("x"))
	require.True(t, kvstore.ErrEmptyKey.Has(err), "%+v", err)

	_, err = store.Get(ctx, nil)
	require.True(t, kvstore.ErrEmptyKey.Has(err), "%+v", err)

	err = store.CompareAndSwap(ctx, nil, nil, kvstore.Value("x"))
	require.True(t, kvstore.ErrEmptyKey.Has(err), "%+v", err)

	_, err = store.Get(ctx, kvstore.Key("constraints/missing"))
	require.True(t, kvstore.ErrKeyNotFound.Has(err), "%+v", err)
}

func testCompareAndSwap(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)

	key := kvstore.Key("cas/key")
	defer func() { _ = store.Delete(ctx, key) }()

	// insert only when missing
	require.NoError(t, store.CompareAndSwap(ctx, key, nil, kvstore.Value("v1")))
	err := store.CompareAndSwap(ctx, key, nil, kvstore.Value("other"))
	require.True(t, kvstore.ErrValueChanged.Has(err), "%+v", err)

	// stale old value leaves the stored value unchanged
	err = store.CompareAndSwap(ctx, key, kvstore.Value("v0"), kvstore.Value("v2"))
	require.True(t, kvstore.ErrValueChanged.Has(err), "%+v", err)
	value, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "v1", string(value))

	require.NoError(t, store.CompareAndSwap(ctx, key, kvstore.Value("v1"), kvstore.Value("v2")))
	value, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "v2", string(value))

	// nil new value deletes
	require.NoError(t, store.CompareAndSwap(ctx, key, kvstore.Value("v2"), nil))
	_, err = store.Get(ctx, key)
	require.True(t, kvstore.ErrKeyNotFound.Has(err), "%+v", err)

	err = store.CompareAndSwap(ctx, key, kvstore.Value("v2"), kvstore.Value("v3"))
	require.True(t, kvstore.ErrKeyNotFound.Has(err), "%+v", err)

	require.NoError(t, store.CompareAndSwap(ctx, key, nil, nil))
}

func testRange(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)

	items := kvstore.Items{
		newItem("range/a/1", "a1"),
		newItem("range/a/2", "a2"),
		newItem("range/b/1", "b1"),
		newItem("range/ab", "ab"),
		newItem("other/a/1", "x"),
	}
	defer cleanupItems(t, ctx, store, items)
	for _, item := range items {
		require.NoError(t, store.Put(ctx, item.Key, item.Value))
	}

	require.Equal(t, map[string]string{
		"range/a/1": "a1",
		"range/a/2": "a2",
	}, collect(ctx, t, store, "range/a/"))

	require.Equal(t, map[string]string{
		"range/a/1": "a1",
		"range/a/2": "a2",
		"range/ab":  "ab",
	}, collect(ctx, t, store, "range/a"))

	require.Len(t, collect(ctx, t, store, "range/"), 4)
	require.Empty(t, collect(ctx, t, store, "missing/"))

	stop := kvstore.ErrKeyNotFound.New("stop")
	calls := 0
	err := store.Range(ctx, kvstore.Key("range/"), func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func testParallelUpdate(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)

	key := kvstore.Key("parallel/counter")
	defer func() { _ = store.Delete(ctx, key) }()

	const workers, increments = 4, 10

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range increments {
				for {
					err := kvstore.Update(ctx, store, key, func(old kvstore.Value) (kvstore.Value, error) {
						n := 0
						if old != nil {
							var err error
							n, err = strconv.Atoi(string(old))
							if err != nil {
								return nil, err
							}
						}
						return kvstore.Value(strconv.Itoa(n + 1)), nil
					})
					if kvstore.ErrValueChanged.Has(err) {
						continue
					}
					if err != nil {
						t.Error(err)
					}
					break
				}
			}
		}()
	}
	wg.Wait()

	value, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(workers*increments), string(value))
}
