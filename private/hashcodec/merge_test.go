// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package hashcodec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pwnedpasswords.io/ingest/private/hashcodec"
)

func entries(t *testing.T, lines ...string) []hashcodec.Entry {
	var result []hashcodec.Entry
	for _, line := range lines {
		entry, err := hashcodec.ParseText([]byte(line))
		require.NoError(t, err)
		result = append(result, entry)
	}
	return result
}

func texts(list []hashcodec.Entry) []string {
	var result []string
	for _, entry := range list {
		result = append(result, entry.Text(false))
	}
	return result
}

func TestCoalesce(t *testing.T) {
	list := hashcodec.Coalesce(entries(t, "03:1", "01:2", "03:4", "02:1", "01:1"))
	defer hashcodec.ReleaseAll(list)

	require.Equal(t, []string{"01:3", "02:1", "03:5"}, texts(list))
	require.True(t, hashcodec.IsSorted(list))
}

func TestMerge(t *testing.T) {
	current := entries(t, "02:1", "04:1", "06:1")
	incoming := entries(t, "01:5", "04:5", "07:5")
	defer hashcodec.ReleaseAll(incoming)

	merged := hashcodec.Merge(current, incoming)
	defer hashcodec.ReleaseAll(merged)

	require.Equal(t, []string{"01:5", "02:1", "04:6", "06:1", "07:5"}, texts(merged))
	require.Equal(t, []string{"01:5", "04:5", "07:5"}, texts(incoming))
	require.True(t, hashcodec.IsSorted(merged))
}

func TestMergeEmpty(t *testing.T) {
	incoming := entries(t, "01:1")
	defer hashcodec.ReleaseAll(incoming)

	merged := hashcodec.Merge(nil, incoming)
	defer hashcodec.ReleaseAll(merged)
	require.Equal(t, []string{"01:1"}, texts(merged))

	current := entries(t, "02:2")
	merged2 := hashcodec.Merge(current, nil)
	defer hashcodec.ReleaseAll(merged2)
	require.Equal(t, []string{"02:2"}, texts(merged2))
}

func TestIsSorted(t *testing.T) {
	list := entries(t, "01:1", "01:2")
	defer hashcodec.ReleaseAll(list)
	require.False(t, hashcodec.IsSorted(list))
	require.True(t, hashcodec.IsSorted(nil))
}
