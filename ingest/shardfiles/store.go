// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package shardfiles reads and replaces the range files, one per hash kind
// and prefix, with version conditioned whole file writes.
package shardfiles

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"pwnedpasswords.io/ingest/private/blobstore"
	"pwnedpasswords.io/ingest/private/hashcodec"
	"pwnedpasswords.io/ingest/private/hashutil"
)

var (
	// Error is the error class for shard file failures.
	Error = errs.Class("shardfiles")

	// ErrNotFound is returned when a shard file has not been initialized.
	ErrNotFound = errs.Class("shard file not found")

	mon = monkit.Package()
)

// Format is the on-disk encoding of shard files.
type Format int

const (
	// Text stores "SUFFIX:COUNT" lines.
	Text Format = iota
	// Binary stores fixed-width suffix and big-endian count records.
	Binary
)

// ParseFormat parses "text" or "binary".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return Text, nil
	case "binary":
		return Binary, nil
	default:
		return 0, Error.New("unknown shard format %q", s)
	}
}

// String implements fmt.Stringer.
func (format Format) String() string {
	if format == Binary {
		return "binary"
	}
	return "text"
}

func (format Format) extension() string {
	if format == Binary {
		return ".bin"
	}
	return ".txt"
}

// ShardFile is the content of one range file.
//
// Entries hold the suffix bytes with the last prefix character in the top
// nibble of the first byte. They must be released with Release.
type ShardFile struct {
	Kind         hashutil.Kind
	Prefix       string
	Entries      []hashcodec.Entry
	Version      string
	LastModified time.Time
}

// Release releases all entries.
func (file *ShardFile) Release() {
	hashcodec.ReleaseAll(file.Entries)
	file.Entries = nil
}

// Store keeps shard files in a blob store.
type Store struct {
	log    *zap.Logger
	blobs  blobstore.Blobs
	format Format
}

// NewStore creates a shard file store on blobs.
func NewStore(log *zap.Logger, blobs blobstore.Blobs, format Format) *Store {
	return &Store{log: log, blobs: blobs, format: format}
}

// Key returns the blob key of the shard file.
func (store *Store) Key(kind hashutil.Kind, prefix string) string {
	return kind.String() + "/" + strings.ToUpper(prefix) + store.format.extension()
}

func checkShard(kind hashutil.Kind, prefix string) error {
	if !kind.Valid() {
		return Error.New("invalid hash kind %d", kind)
	}
	if !hashutil.IsPrefix(prefix) {
		return Error.New("invalid prefix %q", prefix)
	}
	return nil
}

// Get reads and parses the shard file. It fails with ErrNotFound when the
// shard file was never initialized.
func (store *Store) Get(ctx context.Context, kind hashutil.Kind, prefix string) (_ *ShardFile, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := checkShard(kind, prefix); err != nil {
		return nil, err
	}
	prefix = strings.ToUpper(prefix)

	data, info, err := store.blobs.Get(ctx, store.Key(kind, prefix))
	if err != nil {
		if blobstore.ErrNotFound.Has(err) {
			return nil, ErrNotFound.New("%s/%s", kind, prefix)
		}
		return nil, Error.Wrap(err)
	}

	entries, err := store.decode(bytes.NewReader(data), kind, prefix)
	if err != nil {
		store.log.Error("corrupt shard file", zap.Stringer("kind", kind), zap.String("prefix", prefix), zap.Error(err))
		return nil, Error.Wrap(err)
	}

	return &ShardFile{
		Kind:         kind,
		Prefix:       prefix,
		Entries:      entries,
		Version:      info.Version,
		LastModified: info.LastModified,
	}, nil
}

// Replace writes entries as the new content of the shard file, but only
// when the stored version still equals expectedVersion. It returns false
// without modifying anything when the version is stale.
func (store *Store) Replace(ctx context.Context, kind hashutil.Kind, prefix string, entries []hashcodec.Entry, expectedVersion string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := checkShard(kind, prefix); err != nil {
		return false, err
	}
	if expectedVersion == "" {
		return false, Error.New("replacing %s/%s requires a version", kind, prefix)
	}
	prefix = strings.ToUpper(prefix)

	data, err := store.encode(kind, prefix, entries)
	if err != nil {
		return false, err
	}

	ok, err := store.blobs.PutIfMatch(ctx, store.Key(kind, prefix), data, expectedVersion)
	if err != nil {
		return false, Error.Wrap(err)
	}
	if !ok {
		mon.Counter("shard_version_conflicts").Inc(1)
	}
	return ok, nil
}

// Init creates an empty shard file when none exists. It returns whether
// the file was created.
func (store *Store) Init(ctx context.Context, kind hashutil.Kind, prefix string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := checkShard(kind, prefix); err != nil {
		return false, err
	}

	ok, err := store.blobs.PutIfMatch(ctx, store.Key(kind, prefix), nil, "")
	return ok, Error.Wrap(err)
}

// Open returns the shard file as "SUFFIX:COUNT" text, regardless of the
// storage format.
func (store *Store) Open(ctx context.Context, kind hashutil.Kind, prefix string) (_ io.ReadCloser, _ blobstore.Info, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := checkShard(kind, prefix); err != nil {
		return nil, blobstore.Info{}, err
	}
	prefix = strings.ToUpper(prefix)

	reader, info, err := store.blobs.Open(ctx, store.Key(kind, prefix))
	if err != nil {
		if blobstore.ErrNotFound.Has(err) {
			return nil, blobstore.Info{}, ErrNotFound.New("%s/%s", kind, prefix)
		}
		return nil, blobstore.Info{}, Error.Wrap(err)
	}

	if store.format == Text {
		return reader, info, nil
	}

	pipeReader, pipeWriter := io.Pipe()
	go func() {
		err := writeText(pipeWriter, hashcodec.NewBinaryReader(reader, kind.SuffixByteLength()))
		err = errs.Combine(err, reader.Close())
		_ = pipeWriter.CloseWithError(err)
	}()
	return pipeReader, info, nil
}

func (store *Store) decode(src io.Reader, kind hashutil.Kind, prefix string) (_ []hashcodec.Entry, err error) {
	var reader *hashcodec.Reader
	if store.format == Binary {
		reader = hashcodec.NewBinaryReader(src, kind.SuffixByteLength())
	} else {
		reader = hashcodec.NewTextReader(src).WithLinePrefix(prefix[hashutil.PrefixLength-1:])
	}

	var entries []hashcodec.Entry
	defer func() {
		if err != nil {
			hashcodec.ReleaseAll(entries)
		}
	}()

	for reader.Next() {
		entry := reader.Entry()
		entries = append(entries, entry)
		if entry.Width() != kind.SuffixByteLength() {
			return nil, hashcodec.ErrFormat.New("entry %d has width %d, expected %d", len(entries), entry.Width(), kind.SuffixByteLength())
		}
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	if !hashcodec.IsSorted(entries) {
		return nil, hashcodec.ErrFormat.New("entries are not strictly sorted")
	}
	return entries, nil
}

func (store *Store) encode(kind hashutil.Kind, prefix string, entries []hashcodec.Entry) ([]byte, error) {
	width := kind.SuffixByteLength()
	nibble := hexValue(prefix[hashutil.PrefixLength-1])

	for i, entry := range entries {
		if entry.Width() != width {
			return nil, Error.New("entry %d has width %d, expected %d", i, entry.Width(), width)
		}
		if entry.Hash()[0]>>4 != nibble {
			return nil, Error.New("entry %d does not belong to prefix %s", i, prefix)
		}
	}
	if !hashcodec.IsSorted(entries) {
		return nil, Error.New("entries are not strictly sorted")
	}

	if store.format == Binary {
		data := make([]byte, 0, len(entries)*(width+hashcodec.PrevalenceSize))
		for _, entry := range entries {
			data = entry.AppendBinary(data)
		}
		return data, nil
	}

	// suffix, colon, up to 10 digits and a newline
	data := make([]byte, 0, len(entries)*(2*width+12))
	for i, entry := range entries {
		if i > 0 {
			data = append(data, '\n')
		}
		data = entry.AppendText(data, true)
	}
	return data, nil
}

func writeText(w io.Writer, reader *hashcodec.Reader) error {
	buffered := bufio.NewWriter(w)
	first := true
	for reader.Next() {
		entry := reader.Entry()
		if !first {
			if err := buffered.WriteByte('\n'); err != nil {
				entry.Release()
				return err
			}
		}
		first = false
		err := entry.WriteText(buffered, true)
		entry.Release()
		if err != nil {
			return err
		}
	}
	if err := reader.Err(); err != nil {
		return err
	}
	return buffered.Flush()
}

func hexValue(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
