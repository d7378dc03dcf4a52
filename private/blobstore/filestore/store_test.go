// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package filestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/private/blobstore/filestore"
	"pwnedpasswords.io/ingest/private/blobstore/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)

	store, err := filestore.NewAt(ctx.Dir("blobs"))
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	testsuite.RunTests(t, store)
}

func TestNoPartialFilesLeft(t *testing.T) {
	ctx := testcontext.New(t)

	store, err := filestore.NewAt(ctx.Dir("blobs"))
	require.NoError(t, err)

	_, err = store.Put(ctx, "sha1/00000.txt", []byte("A:1"))
	require.NoError(t, err)
	ok, err := store.PutIfMatch(ctx, "sha1/00000.txt", []byte("B:1"), "stale")
	require.NoError(t, err)
	require.False(t, ok)

	entries, err := os.ReadDir(filepath.Join(store.Dir(), "sha1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "00000.txt", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(store.Dir(), "sha1", "00000.txt"))
	require.NoError(t, err)
	require.Equal(t, "A:1", string(data))
}
