// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package hashutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pwnedpasswords.io/ingest/private/hashutil"
)

func TestDigests(t *testing.T) {
	require.Equal(t, "5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8", hashutil.SHA1Hex("password"))
	require.Equal(t, "8846F7EAEE8FB117AD06BDD830B7586C", hashutil.NTLMHex("password"))

	require.Equal(t, "DA39A3EE5E6B4B0D3255BFEF95601890AFD80709", hashutil.SHA1Hex(""))
	require.Equal(t, "31D6CFE0D16AE931B73C59D7E0C089C0", hashutil.NTLMHex(""))

	require.Len(t, hashutil.NTLMHex("pässwörd"), hashutil.NTLM.HexLength())
}

func TestIsHexOfLength(t *testing.T) {
	require.False(t, hashutil.IsHexOfLength("", 0))
	require.False(t, hashutil.IsHexOfLength("", 5))
	require.False(t, hashutil.IsHexOfLength("ABC", -1))
	require.False(t, hashutil.IsHexOfLength("ABCDEG", 6))
	require.False(t, hashutil.IsHexOfLength("ABCDE", 6))
	require.True(t, hashutil.IsHexOfLength("abcdef0123", 10))
	require.True(t, hashutil.IsHexOfLength(hashutil.SHA1Hex("x"), 40))
	require.True(t, hashutil.IsHexOfLength(strings.ToLower(hashutil.NTLMHex("x")), 32))

	require.False(t, hashutil.IsHex(""))
	require.True(t, hashutil.IsHex("0f"))
}

func TestSplit(t *testing.T) {
	prefix, suffix := hashutil.Split("5baa61e4c9b93f3f0682250b6cf8331b7ee68fd8")
	require.Equal(t, "5BAA6", prefix)
	require.Equal(t, "1E4C9B93F3F0682250B6CF8331B7EE68FD8", suffix)

	prefix, suffix = hashutil.Split("abc")
	require.Equal(t, "ABC", prefix)
	require.Equal(t, "", suffix)

	require.True(t, hashutil.IsPrefix("21BD1"))
	require.False(t, hashutil.IsPrefix("21BD"))
	require.False(t, hashutil.IsPrefix("21BDZ"))
}

func TestKind(t *testing.T) {
	require.Equal(t, 20, hashutil.SHA1.ByteLength())
	require.Equal(t, 40, hashutil.SHA1.HexLength())
	require.Equal(t, 18, hashutil.SHA1.SuffixByteLength())
	require.Equal(t, 16, hashutil.NTLM.ByteLength())
	require.Equal(t, 14, hashutil.NTLM.SuffixByteLength())

	for _, kind := range hashutil.Kinds {
		parsed, ok := hashutil.ParseKind(kind.String())
		require.True(t, ok)
		require.Equal(t, kind, parsed)
	}

	kind, ok := hashutil.ParseKind("")
	require.True(t, ok)
	require.Equal(t, hashutil.SHA1, kind)

	_, ok = hashutil.ParseKind("md5")
	require.False(t, ok)
}
