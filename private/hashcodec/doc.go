// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package hashcodec converts hash entries between their in-memory form, the
// "HEX:COUNT" text records served in range files, and fixed-width binary records
// of hash bytes followed by a big-endian uint32 prevalence.
//
// Entries order by hash bytes alone. Range files only store the part of a hash
// after its five character prefix; since that leaves an odd number of hex
// characters, entries read from a range file carry the last prefix character in
// the top nibble of their first byte and are written back with the nibble omitted.
package hashcodec
