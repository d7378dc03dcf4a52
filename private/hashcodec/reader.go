// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package hashcodec

import (
	"bytes"
	"errors"
	"io"
)

const (
	initialBufferSize = 4 << 10
	maxLineLength     = 64 << 10
)

// Reader lazily parses entries from a stream.
//
// Only the unconsumed tail of the last read is kept between calls, so a record
// split across reads is reassembled. Usage follows bufio.Scanner:
//
//	for reader.Next() {
//		entry := reader.Entry()
//		...
//		entry.Release()
//	}
//	if err := reader.Err(); err != nil { ... }
type Reader struct {
	src    io.Reader
	binary bool
	width  int
	prefix []byte

	buf        []byte
	start, end int
	eof        bool

	line    int
	scratch []byte
	entry   Entry
	err     error
}

// NewTextReader returns a reader of newline delimited "HEX:COUNT" records.
// Blank lines and carriage returns before a newline are ignored.
func NewTextReader(src io.Reader) *Reader {
	return &Reader{src: src, buf: make([]byte, initialBufferSize)}
}

// NewBinaryReader returns a reader of fixed-width binary records.
func NewBinaryReader(src io.Reader, hashWidth int) *Reader {
	size := initialBufferSize
	if record := hashWidth + PrevalenceSize; record > size {
		size = record
	}
	return &Reader{src: src, binary: true, width: hashWidth, buf: make([]byte, size)}
}

// WithLinePrefix sets hex characters that are prepended to every text record
// before parsing.
func (reader *Reader) WithLinePrefix(prefix string) *Reader {
	reader.prefix = []byte(prefix)
	return reader
}

// Next advances to the next entry. It returns false at the end of the stream or
// on the first error.
func (reader *Reader) Next() bool {
	if reader.err != nil {
		return false
	}
	if reader.binary {
		return reader.nextBinary()
	}
	return reader.nextText()
}

// Entry returns the current entry. The caller owns it and must release it.
func (reader *Reader) Entry() Entry { return reader.entry }

// Err returns the first error that was encountered.
func (reader *Reader) Err() error { return reader.err }

// Line returns the number of the last text line that was read.
func (reader *Reader) Line() int { return reader.line }

func (reader *Reader) nextText() bool {
	for {
		pending := reader.buf[reader.start:reader.end]
		if i := bytes.IndexByte(pending, '\n'); i >= 0 {
			reader.start += i + 1
			if reader.parseLine(pending[:i]) {
				return true
			}
			if reader.err != nil {
				return false
			}
			continue
		}

		if reader.eof {
			if len(pending) == 0 {
				return false
			}
			reader.start = reader.end
			return reader.parseLine(pending)
		}

		if len(pending) >= maxLineLength {
			reader.err = ErrFormat.New("line %d exceeds %d bytes", reader.line+1, maxLineLength)
			return false
		}
		if !reader.fill() {
			return false
		}
	}
}

// parseLine parses one text line. It returns false for blank lines and errors.
func (reader *Reader) parseLine(line []byte) bool {
	reader.line++
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(line) == 0 {
		return false
	}
	if len(reader.prefix) > 0 {
		reader.scratch = append(append(reader.scratch[:0], reader.prefix...), line...)
		line = reader.scratch
	}

	entry, err := ParseText(line)
	if err != nil {
		reader.err = ErrFormat.New("line %d: %v", reader.line, err)
		return false
	}
	reader.entry = entry
	return true
}

func (reader *Reader) nextBinary() bool {
	record := reader.width + PrevalenceSize
	for {
		pending := reader.buf[reader.start:reader.end]
		if len(pending) >= record {
			entry, err := ParseBinary(pending[:record], reader.width)
			if err != nil {
				reader.err = err
				return false
			}
			reader.start += record
			reader.entry = entry
			return true
		}

		if reader.eof {
			if len(pending) > 0 {
				reader.err = ErrFormat.New("truncated binary record of %d bytes", len(pending))
			}
			return false
		}
		if !reader.fill() {
			return false
		}
	}
}

// fill moves the unconsumed tail to the front of the buffer, grows it when full
// and reads more data.
func (reader *Reader) fill() bool {
	if reader.start > 0 {
		n := copy(reader.buf, reader.buf[reader.start:reader.end])
		reader.start, reader.end = 0, n
	}
	if reader.end == len(reader.buf) {
		grown := make([]byte, 2*len(reader.buf))
		copy(grown, reader.buf[:reader.end])
		reader.buf = grown
	}

	n, err := reader.src.Read(reader.buf[reader.end:])
	reader.end += n
	if err != nil {
		if errors.Is(err, io.EOF) {
			reader.eof = true
			return true
		}
		reader.err = err
		return false
	}
	return true
}
