// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package hashutil contains the password digests used by the range files and
// helpers for validating and splitting hex encoded hashes.
package hashutil

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/md4" //nolint:staticcheck // NTLM is defined over MD4.
	"golang.org/x/text/encoding/unicode"
)

// PrefixLength is the number of hex characters used to shard hashes.
const PrefixLength = 5

// Kind identifies a hash space. Each kind is sharded into its own set of range files.
type Kind int

const (
	// SHA1 is the SHA-1 hash space.
	SHA1 Kind = iota
	// NTLM is the NTLM (MD4 over UTF-16LE) hash space.
	NTLM
)

// Kinds lists every supported hash kind.
var Kinds = []Kind{SHA1, NTLM}

// String implements fmt.Stringer.
func (kind Kind) String() string {
	switch kind {
	case SHA1:
		return "sha1"
	case NTLM:
		return "ntlm"
	default:
		return "unknown"
	}
}

// ByteLength returns the digest size in bytes.
func (kind Kind) ByteLength() int {
	switch kind {
	case SHA1:
		return sha1.Size
	case NTLM:
		return md4.Size
	default:
		return 0
	}
}

// HexLength returns the length of the hex encoded digest.
func (kind Kind) HexLength() int { return kind.ByteLength() * 2 }

// SuffixByteLength returns the number of bytes kept per entry in a range file.
// The first two bytes are dropped; the top nibble of the third byte carries the
// last prefix character.
func (kind Kind) SuffixByteLength() int { return kind.ByteLength() - PrefixLength/2 }

// Valid returns whether kind is a known hash kind.
func (kind Kind) Valid() bool { return kind == SHA1 || kind == NTLM }

// ParseKind returns the kind named by s. An empty string is SHA1.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "", "sha1":
		return SHA1, true
	case "ntlm":
		return NTLM, true
	default:
		return 0, false
	}
}

// SHA1Hex returns the upper-case hex SHA-1 digest of input.
func SHA1Hex(input string) string {
	sum := sha1.Sum([]byte(input))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// NTLMHex returns the upper-case hex NTLM digest of input, which is MD4 over the
// UTF-16LE encoding of the password.
func NTLMHex(input string) string {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(input)
	if err != nil {
		// invalid UTF-8 is replaced by the encoder, so this is unreachable in practice.
		encoded = ""
	}

	digest := md4.New()
	_, _ = digest.Write([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(digest.Sum(nil)))
}

// IsHexOfLength returns whether s is exactly n hex characters long.
// A zero or negative n never validates, not even against an empty string.
func IsHexOfLength(s string, n int) bool {
	if n <= 0 || len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHex(s[i]) {
			return false
		}
	}
	return true
}

// IsHex returns whether every byte of s is a hex digit and s is not empty.
func IsHex(s string) bool {
	return IsHexOfLength(s, len(s))
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// Split returns the upper-cased shard prefix and suffix of hash.
// Hashes shorter than the prefix return the whole hash as prefix.
func Split(hash string) (prefix, suffix string) {
	hash = strings.ToUpper(hash)
	if len(hash) <= PrefixLength {
		return hash, ""
	}
	return hash[:PrefixLength], hash[PrefixLength:]
}

// IsPrefix returns whether s is a valid shard prefix.
func IsPrefix(s string) bool {
	return IsHexOfLength(s, PrefixLength)
}
