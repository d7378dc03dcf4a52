// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package hashcodec

import (
	"slices"
)

// Sort sorts entries in ascending hash order.
func Sort(entries []Entry) {
	slices.SortFunc(entries, Compare)
}

// IsSorted returns whether entries are strictly ascending, which also implies
// that no hash appears twice.
func IsSorted(entries []Entry) bool {
	for i := 1; i < len(entries); i++ {
		if Compare(entries[i-1], entries[i]) >= 0 {
			return false
		}
	}
	return true
}

// Coalesce sorts entries and folds duplicate hashes into one entry by summing
// their prevalence. Folded duplicates are released.
func Coalesce(entries []Entry) []Entry {
	if len(entries) < 2 {
		return entries
	}
	Sort(entries)

	out := entries[:1]
	for _, entry := range entries[1:] {
		last := &out[len(out)-1]
		if Compare(*last, entry) == 0 {
			last.Add(entry.Prevalence)
			entry.Release()
			continue
		}
		out = append(out, entry)
	}
	clear(entries[len(out):])
	return out
}

// Merge folds incoming into current. Both must be sorted and free of duplicates.
// A hash present in both has its prevalence summed, otherwise it is inserted.
//
// Merge takes ownership of current, whose entries are reused in the result.
// Incoming is left untouched; the inserted entries are clones.
func Merge(current, incoming []Entry) []Entry {
	merged := make([]Entry, 0, len(current)+len(incoming))

	i, k := 0, 0
	for i < len(current) && k < len(incoming) {
		switch cmp := Compare(current[i], incoming[k]); {
		case cmp < 0:
			merged = append(merged, current[i])
			i++
		case cmp > 0:
			merged = append(merged, incoming[k].Clone())
			k++
		default:
			entry := current[i]
			entry.Add(incoming[k].Prevalence)
			merged = append(merged, entry)
			i++
			k++
		}
	}
	merged = append(merged, current[i:]...)
	for ; k < len(incoming); k++ {
		merged = append(merged, incoming[k].Clone())
	}
	return merged
}

// ReleaseAll releases every entry.
func ReleaseAll(entries []Entry) {
	for i := range entries {
		entries[i].Release()
	}
}
