// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package codec_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/common/testrand"

	"pwnedpasswords.io/ingest/private/codec"
)

type record struct {
	ID      [16]byte          `cbor:"id"`
	Name    string            `cbor:"name"`
	Created time.Time         `cbor:"created"`
	Counts  map[string]uint32 `cbor:"counts"`
}

func TestCBORDeterministic(t *testing.T) {
	value := record{
		ID:      testrand.UUID(),
		Name:    "subscription",
		Created: time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC),
		Counts:  map[string]uint32{"b": 2, "a": 1, "c": 3},
	}

	first, err := codec.Marshal(value)
	require.NoError(t, err)
	for range 10 {
		again, err := codec.Marshal(value)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	var decoded record
	require.NoError(t, codec.Unmarshal(first, &decoded))
	require.Equal(t, value.ID, decoded.ID)
	require.Equal(t, value.Counts, decoded.Counts)
	require.True(t, value.Created.Equal(decoded.Created))

	err = codec.Unmarshal([]byte{0xff, 0x00}, &decoded)
	require.True(t, codec.Error.Has(err))
}

func TestZstd(t *testing.T) {
	data := bytes.Repeat([]byte(`{"sha1Hash":"5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8"}`), 100)

	compressed := codec.Compress(data)
	require.Less(t, len(compressed), len(data))

	decompressed, err := codec.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, data, decompressed)

	reader, err := codec.NewDecompressor(bytes.NewReader(compressed))
	require.NoError(t, err)
	streamed, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, data, streamed)

	_, err = codec.Decompress([]byte("not zstd"))
	require.Error(t, err)
}
