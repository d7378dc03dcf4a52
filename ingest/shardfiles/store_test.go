// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package shardfiles_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/ingest/shardfiles"
	"pwnedpasswords.io/ingest/private/blobstore/testblobs"
	"pwnedpasswords.io/ingest/private/hashcodec"
	"pwnedpasswords.io/ingest/private/hashutil"
)

const (
	passwordSuffix = "1E4C9B93F3F0682250B6CF8331B7EE68FD8" // SHA1("password") after 5BAA6
	otherSuffix    = "0000000000000000000000000000000000A"
)

// suffixEntry builds the stored form of suffix for a prefix ending in nibble.
func suffixEntry(t *testing.T, nibble, suffix string, prevalence uint32) hashcodec.Entry {
	entry, err := hashcodec.FromHex(nibble+suffix, prevalence)
	require.NoError(t, err)
	return entry
}

func readAll(t *testing.T, r io.ReadCloser) string {
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return string(data)
}

func TestFormats(t *testing.T) {
	for _, format := range []shardfiles.Format{shardfiles.Text, shardfiles.Binary} {
		t.Run(format.String(), func(t *testing.T) {
			ctx := testcontext.New(t)
			blobs := testblobs.NewMemory()
			store := shardfiles.NewStore(zaptest.NewLogger(t), blobs, format)

			_, err := store.Get(ctx, hashutil.SHA1, "5BAA6")
			require.True(t, shardfiles.ErrNotFound.Has(err), "%+v", err)

			created, err := store.Init(ctx, hashutil.SHA1, "5baa6")
			require.NoError(t, err)
			require.True(t, created)

			created, err = store.Init(ctx, hashutil.SHA1, "5BAA6")
			require.NoError(t, err)
			require.False(t, created)

			file, err := store.Get(ctx, hashutil.SHA1, "5baa6")
			require.NoError(t, err)
			require.Empty(t, file.Entries)
			require.Equal(t, "5BAA6", file.Prefix)

			entries := []hashcodec.Entry{
				suffixEntry(t, "6", otherSuffix, 1),
				suffixEntry(t, "6", passwordSuffix, 10),
			}
			defer hashcodec.ReleaseAll(entries)

			ok, err := store.Replace(ctx, hashutil.SHA1, "5BAA6", entries, file.Version)
			require.NoError(t, err)
			require.True(t, ok)

			updated, err := store.Get(ctx, hashutil.SHA1, "5BAA6")
			require.NoError(t, err)
			defer updated.Release()
			require.NotEqual(t, file.Version, updated.Version)
			require.Len(t, updated.Entries, 2)
			require.Equal(t, passwordSuffix+":10", updated.Entries[1].Text(true))

			reader, info, err := store.Open(ctx, hashutil.SHA1, "5BAA6")
			require.NoError(t, err)
			require.Equal(t, updated.Version, info.Version)
			require.Equal(t, otherSuffix+":1\n"+passwordSuffix+":10", readAll(t, reader))

			if format == shardfiles.Text {
				data, _, err := blobs.Get(ctx, "sha1/5BAA6.txt")
				require.NoError(t, err)
				require.Equal(t, otherSuffix+":1\n"+passwordSuffix+":10", string(data))
			} else {
				data, _, err := blobs.Get(ctx, "sha1/5BAA6.bin")
				require.NoError(t, err)
				require.Len(t, data, 2*(18+hashcodec.PrevalenceSize))
			}
		})
	}
}

func TestReplaceStaleVersion(t *testing.T) {
	ctx := testcontext.New(t)
	blobs := testblobs.NewMemory()
	store := shardfiles.NewStore(zaptest.NewLogger(t), blobs, shardfiles.Text)

	_, err := store.Init(ctx, hashutil.NTLM, "8846F")
	require.NoError(t, err)
	stale, err := store.Get(ctx, hashutil.NTLM, "8846F")
	require.NoError(t, err)

	first := []hashcodec.Entry{suffixEntry(t, "F", "7EAEE8FB117AD06BDD830B7586C", 3)}
	defer hashcodec.ReleaseAll(first)
	ok, err := store.Replace(ctx, hashutil.NTLM, "8846F", first, stale.Version)
	require.NoError(t, err)
	require.True(t, ok)

	before, _, err := blobs.Get(ctx, "ntlm/8846F.txt")
	require.NoError(t, err)

	second := []hashcodec.Entry{suffixEntry(t, "F", "000000000000000000000000001", 9)}
	defer hashcodec.ReleaseAll(second)
	ok, err = store.Replace(ctx, hashutil.NTLM, "8846F", second, stale.Version)
	require.NoError(t, err)
	require.False(t, ok)

	after, _, err := blobs.Get(ctx, "ntlm/8846F.txt")
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, "7EAEE8FB117AD06BDD830B7586C:3", string(after))
}

func TestReplaceValidation(t *testing.T) {
	ctx := testcontext.New(t)
	store := shardfiles.NewStore(zaptest.NewLogger(t), testblobs.NewMemory(), shardfiles.Text)

	_, err := store.Init(ctx, hashutil.SHA1, "5BAA6")
	require.NoError(t, err)
	file, err := store.Get(ctx, hashutil.SHA1, "5BAA6")
	require.NoError(t, err)

	unsorted := []hashcodec.Entry{
		suffixEntry(t, "6", passwordSuffix, 1),
		suffixEntry(t, "6", otherSuffix, 1),
	}
	defer hashcodec.ReleaseAll(unsorted)
	_, err = store.Replace(ctx, hashutil.SHA1, "5BAA6", unsorted, file.Version)
	require.True(t, shardfiles.Error.Has(err))

	wrongPrefix := []hashcodec.Entry{suffixEntry(t, "7", passwordSuffix, 1)}
	defer hashcodec.ReleaseAll(wrongPrefix)
	_, err = store.Replace(ctx, hashutil.SHA1, "5BAA6", wrongPrefix, file.Version)
	require.True(t, shardfiles.Error.Has(err))

	ntlmWidth := []hashcodec.Entry{suffixEntry(t, "6", "7EAEE8FB117AD06BDD830B7586C", 1)}
	defer hashcodec.ReleaseAll(ntlmWidth)
	_, err = store.Replace(ctx, hashutil.SHA1, "5BAA6", ntlmWidth, file.Version)
	require.True(t, shardfiles.Error.Has(err))

	_, err = store.Replace(ctx, hashutil.SHA1, "5BAA6", nil, "")
	require.True(t, shardfiles.Error.Has(err))

	_, err = store.Get(ctx, hashutil.SHA1, "XYZ")
	require.True(t, shardfiles.Error.Has(err))
}

func TestCorruptFile(t *testing.T) {
	ctx := testcontext.New(t)
	blobs := testblobs.NewMemory()
	store := shardfiles.NewStore(zaptest.NewLogger(t), blobs, shardfiles.Text)

	_, err := blobs.Put(ctx, "sha1/5BAA6.txt", []byte(passwordSuffix+":1\n"+otherSuffix+":2"))
	require.NoError(t, err)
	_, err = store.Get(ctx, hashutil.SHA1, "5BAA6")
	require.True(t, hashcodec.ErrFormat.Has(err), "%+v", err)

	_, err = blobs.Put(ctx, "sha1/5BAA6.txt", []byte("ZZ:1"))
	require.NoError(t, err)
	_, err = store.Get(ctx, hashutil.SHA1, "5BAA6")
	require.True(t, hashcodec.ErrFormat.Has(err), "%+v", err)
}

func TestParseFormat(t *testing.T) {
	format, err := shardfiles.ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, shardfiles.Text, format)

	format, err = shardfiles.ParseFormat("BINARY")
	require.NoError(t, err)
	require.Equal(t, shardfiles.Binary, format)

	_, err = shardfiles.ParseFormat("xml")
	require.Error(t, err)
}
