// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package hashcodec

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/zeebo/errs"
)

// ErrFormat is returned when a record cannot be parsed.
var ErrFormat = errs.Class("hash entry format")

// PrevalenceSize is the size of the binary prevalence field.
const PrevalenceSize = 4

const upperHex = "0123456789ABCDEF"

// Entry is a hash paired with its prevalence.
//
// The hash bytes live in a pooled buffer that is returned with Release. Copies of
// an Entry share the buffer, so only one of them may be released.
type Entry struct {
	hash       []byte
	Prevalence uint32
}

// NewEntry copies hash into a pooled buffer and returns the entry.
func NewEntry(hash []byte, prevalence uint32) Entry {
	buf := pool.Get(len(hash))
	copy(buf, hash)
	return Entry{hash: buf, Prevalence: prevalence}
}

// FromHex decodes a hex hash, in either case, into an entry.
func FromHex(s string, prevalence uint32) (Entry, error) {
	if len(s) == 0 || len(s)%2 != 0 {
		return Entry{}, ErrFormat.New("hash %q must be a non-empty, even-length hex string", s)
	}
	buf := pool.Get(len(s) / 2)
	if _, err := hex.Decode(buf, []byte(s)); err != nil {
		pool.Put(buf)
		return Entry{}, ErrFormat.Wrap(err)
	}
	return Entry{hash: buf, Prevalence: prevalence}, nil
}

// Hash returns the hash bytes. They are valid until Release.
func (entry Entry) Hash() []byte { return entry.hash }

// Width returns the length of the hash in bytes.
func (entry Entry) Width() int { return len(entry.hash) }

// IsZero returns whether the entry holds no hash.
func (entry Entry) IsZero() bool { return len(entry.hash) == 0 }

// Clone returns a copy of entry backed by its own pooled buffer.
func (entry Entry) Clone() Entry { return NewEntry(entry.hash, entry.Prevalence) }

// Release returns the hash buffer to the pool. The entry must not be used afterwards.
func (entry *Entry) Release() {
	if entry.hash != nil {
		pool.Put(entry.hash)
		entry.hash = nil
	}
}

// Add increases the prevalence, saturating at the largest uint32.
func (entry *Entry) Add(prevalence uint32) {
	if math.MaxUint32-entry.Prevalence < prevalence {
		entry.Prevalence = math.MaxUint32
		return
	}
	entry.Prevalence += prevalence
}

// Compare orders entries by their hash bytes, unsigned and lexicographic.
// The prevalence is not part of the order.
func Compare(a, b Entry) int { return bytes.Compare(a.hash, b.hash) }

// Less returns whether a sorts before b.
func Less(a, b Entry) bool { return Compare(a, b) < 0 }

// ParseText parses a "HEX:COUNT" record.
func ParseText(line []byte) (Entry, error) {
	sep := bytes.IndexByte(line, ':')
	if sep <= 0 {
		return Entry{}, ErrFormat.New("missing hash or separator in %q", line)
	}
	run, count := line[:sep], line[sep+1:]
	if len(run)%2 != 0 {
		return Entry{}, ErrFormat.New("odd length hash in %q", line)
	}

	prevalence, ok := parseCount(count)
	if !ok {
		return Entry{}, ErrFormat.New("invalid prevalence in %q", line)
	}

	buf := pool.Get(len(run) / 2)
	if _, err := hex.Decode(buf, run); err != nil {
		pool.Put(buf)
		return Entry{}, ErrFormat.New("invalid hash in %q: %v", line, err)
	}
	return Entry{hash: buf, Prevalence: prevalence}, nil
}

// parseCount parses a non-negative decimal uint32 without allocating.
func parseCount(b []byte) (uint32, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
		if v > math.MaxUint32 {
			return 0, false
		}
	}
	return uint32(v), true
}

// ParseBinary parses a fixed-width record of hashWidth hash bytes followed by a
// big-endian uint32 prevalence.
func ParseBinary(buf []byte, hashWidth int) (Entry, error) {
	if hashWidth <= 0 || len(buf) != hashWidth+PrevalenceSize {
		return Entry{}, ErrFormat.New("binary record is %d bytes, expected %d", len(buf), hashWidth+PrevalenceSize)
	}
	entry := NewEntry(buf[:hashWidth], binary.BigEndian.Uint32(buf[hashWidth:]))
	return entry, nil
}

// AppendText appends "HEX:COUNT" with an upper-case hash to dst.
//
// With omitLeadingNibble the top nibble of the first hash byte is masked off and
// not written. Range files use it to drop the last prefix character, which is
// kept in the entry only to make the suffix a whole number of bytes.
func (entry Entry) AppendText(dst []byte, omitLeadingNibble bool) []byte {
	for i, b := range entry.hash {
		if i == 0 && omitLeadingNibble {
			dst = append(dst, upperHex[b&0x0f])
			continue
		}
		dst = append(dst, upperHex[b>>4], upperHex[b&0x0f])
	}
	dst = append(dst, ':')
	return appendCount(dst, entry.Prevalence)
}

func appendCount(dst []byte, v uint32) []byte {
	var scratch [10]byte
	i := len(scratch)
	for {
		i--
		scratch[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return append(dst, scratch[i:]...)
}

// Text returns the text form of entry.
func (entry Entry) Text(omitLeadingNibble bool) string {
	return string(entry.AppendText(nil, omitLeadingNibble))
}

// WriteText writes the text form of entry to w.
func (entry Entry) WriteText(w io.Writer, omitLeadingNibble bool) error {
	buf := pool.Get(2*len(entry.hash) + 11)
	_, err := w.Write(entry.AppendText(buf[:0], omitLeadingNibble))
	pool.Put(buf)
	return err
}

// AppendBinary appends the hash bytes followed by the big-endian prevalence.
func (entry Entry) AppendBinary(dst []byte) []byte {
	dst = append(dst, entry.hash...)
	return binary.BigEndian.AppendUint32(dst, entry.Prevalence)
}

// WriteBinary writes the binary form of entry to w.
func (entry Entry) WriteBinary(w io.Writer) error {
	buf := pool.Get(len(entry.hash) + PrevalenceSize)
	_, err := w.Write(entry.AppendBinary(buf[:0]))
	pool.Put(buf)
	return err
}
