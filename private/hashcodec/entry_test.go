// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package hashcodec_test

import (
	"bytes"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"pwnedpasswords.io/ingest/private/hashcodec"
)

func upperHex(t *rapid.T, label string, n int) string {
	raw := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, label)
	return strings.ToUpper(hex.EncodeToString(raw))
}

func TestParseTextRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hash := upperHex(t, "hash", 20)
		count := rapid.Uint32().Draw(t, "count")
		line := hash + ":" + strconv.FormatUint(uint64(count), 10)

		entry, err := hashcodec.ParseText([]byte(line))
		require.NoError(t, err)
		defer entry.Release()

		require.Equal(t, line, entry.Text(false))
		require.Equal(t, count, entry.Prevalence)
		require.Equal(t, 20, entry.Width())
	})
}

func TestParseTextLowerCase(t *testing.T) {
	entry, err := hashcodec.ParseText([]byte("00ab:12"))
	require.NoError(t, err)
	defer entry.Release()

	require.Equal(t, []byte{0x00, 0xab}, entry.Hash())
	require.Equal(t, "00AB:12", entry.Text(false))
}

func TestParseTextErrors(t *testing.T) {
	for _, line := range []string{
		"",
		":1",
		"ABCD",
		"ABC:1",
		"ABCD:",
		"ABCD:-1",
		"ABCD:1:2",
		"ABCD::2",
		"ABZZ:1",
		"ABCD:4294967296",
		"ABCD:12a",
	} {
		_, err := hashcodec.ParseText([]byte(line))
		require.Error(t, err, line)
		require.True(t, hashcodec.ErrFormat.Has(err), line)
	}

	entry, err := hashcodec.ParseText([]byte("ABCD:4294967295"))
	require.NoError(t, err)
	require.Equal(t, uint32(math.MaxUint32), entry.Prevalence)
	entry.Release()
}

func TestOmitLeadingNibble(t *testing.T) {
	entry, err := hashcodec.ParseText([]byte("61E4C9B93F3F0682250B6CF8331B7EE68FD8:3"))
	require.NoError(t, err)
	defer entry.Release()

	require.Equal(t, "1E4C9B93F3F0682250B6CF8331B7EE68FD8:3", entry.Text(true))

	var buf bytes.Buffer
	require.NoError(t, entry.WriteText(&buf, true))
	require.Equal(t, "1E4C9B93F3F0682250B6CF8331B7EE68FD8:3", buf.String())
}

func TestBinaryRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		width := rapid.SampledFrom([]int{14, 16, 18, 20}).Draw(t, "width")
		hash := rapid.SliceOfN(rapid.Byte(), width, width).Draw(t, "hash")
		count := rapid.Uint32().Draw(t, "count")

		entry := hashcodec.NewEntry(hash, count)
		defer entry.Release()

		record := entry.AppendBinary(nil)
		require.Len(t, record, width+hashcodec.PrevalenceSize)

		parsed, err := hashcodec.ParseBinary(record, width)
		require.NoError(t, err)
		defer parsed.Release()

		require.Equal(t, hash, parsed.Hash())
		require.Equal(t, count, parsed.Prevalence)
	})
}

func TestParseBinaryErrors(t *testing.T) {
	_, err := hashcodec.ParseBinary(make([]byte, 23), 20)
	require.True(t, hashcodec.ErrFormat.Has(err))

	_, err = hashcodec.ParseBinary(make([]byte, 25), 20)
	require.True(t, hashcodec.ErrFormat.Has(err))

	_, err = hashcodec.ParseBinary(make([]byte, 4), 0)
	require.True(t, hashcodec.ErrFormat.Has(err))
}

func TestCompareTotalOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := hashcodec.NewEntry(rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(t, "a"), rapid.Uint32().Draw(t, "pa"))
		b := hashcodec.NewEntry(rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(t, "b"), rapid.Uint32().Draw(t, "pb"))
		defer a.Release()
		defer b.Release()

		ab, ba := hashcodec.Compare(a, b), hashcodec.Compare(b, a)
		require.Equal(t, -ab, ba)

		outcomes := 0
		for _, holds := range []bool{ab < 0, ab == 0, ab > 0} {
			if holds {
				outcomes++
			}
		}
		require.Equal(t, 1, outcomes)
		require.Equal(t, bytes.Equal(a.Hash(), b.Hash()), ab == 0)
	})
}

func TestSortMatchesSuffixOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		suffixes := rapid.SliceOfNDistinct(rapid.Custom(func(t *rapid.T) string {
			return upperHex(t, "suffix", 18)
		}), 1, 50, rapid.ID[string]).Draw(t, "suffixes")

		entries := make([]hashcodec.Entry, 0, len(suffixes))
		for _, suffix := range suffixes {
			entry, err := hashcodec.FromHex(suffix, 1)
			require.NoError(t, err)
			entries = append(entries, entry)
		}
		defer hashcodec.ReleaseAll(entries)

		hashcodec.Sort(entries)
		require.True(t, hashcodec.IsSorted(entries))

		sorted := append([]string(nil), suffixes...)
		sort.Strings(sorted)
		for i, entry := range entries {
			require.Equal(t, sorted[i], strings.TrimSuffix(entry.Text(false), ":1"))
		}
	})
}

func TestAdd(t *testing.T) {
	entry := hashcodec.NewEntry([]byte{1}, math.MaxUint32-1)
	defer entry.Release()

	entry.Add(1)
	require.Equal(t, uint32(math.MaxUint32), entry.Prevalence)
	entry.Add(10)
	require.Equal(t, uint32(math.MaxUint32), entry.Prevalence)
}
