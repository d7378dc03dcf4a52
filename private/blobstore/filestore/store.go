// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package filestore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"pwnedpasswords.io/ingest/private/blobstore"
)

var (
	// Error is the default filestore error class.
	Error = errs.Class("filestore")

	mon = monkit.Package()
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

var _ blobstore.Blobs = (*Store)(nil)

// Store implements a blob store on the local file system.
//
// The version of a blob is the xxhash64 of its content. Conditional writes
// are serialized within the process; separate processes must not share
// the same directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewAt creates a new disk blob store in the specified directory.
func NewAt(path string) (*Store, error) {
	if err := os.MkdirAll(path, dirMode); err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{dir: path}, nil
}

// Dir returns the root directory of the store.
func (store *Store) Dir() string { return store.dir }

func (store *Store) path(key string) (string, error) {
	if err := blobstore.CheckKey(key); err != nil {
		return "", err
	}
	return filepath.Join(store.dir, filepath.FromSlash(key)), nil
}

func version(sum uint64) string {
	return strconv.FormatUint(sum, 16)
}

// Get returns the content of the blob and its info.
func (store *Store) Get(ctx context.Context, key string) (_ []byte, _ blobstore.Info, err error) {
	defer mon.Task()(&ctx)(&err)

	path, err := store.path(key)
	if err != nil {
		return nil, blobstore.Info{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, blobstore.Info{}, wrapNotExist(key, err)
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, blobstore.Info{}, wrapNotExist(key, err)
	}

	return data, blobstore.Info{
		Key:          key,
		Version:      version(xxhash.Sum64(data)),
		Size:         int64(len(data)),
		LastModified: stat.ModTime(),
	}, nil
}

// Open opens a reader for the blob.
//
// The file is hashed once to compute the version before it is handed out.
func (store *Store) Open(ctx context.Context, key string) (_ io.ReadCloser, _ blobstore.Info, err error) {
	defer mon.Task()(&ctx)(&err)

	path, err := store.path(key)
	if err != nil {
		return nil, blobstore.Info{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, blobstore.Info{}, wrapNotExist(key, err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, Error.Wrap(file.Close()))
		}
	}()

	stat, err := file.Stat()
	if err != nil {
		return nil, blobstore.Info{}, Error.Wrap(err)
	}

	digest := xxhash.New()
	size, err := io.Copy(digest, file)
	if err != nil {
		return nil, blobstore.Info{}, Error.Wrap(err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, blobstore.Info{}, Error.Wrap(err)
	}

	return file, blobstore.Info{
		Key:          key,
		Version:      version(digest.Sum64()),
		Size:         size,
		LastModified: stat.ModTime(),
	}, nil
}

// Put unconditionally stores data at key.
func (store *Store) Put(ctx context.Context, key string, data []byte) (_ blobstore.Info, err error) {
	defer mon.Task()(&ctx)(&err)

	path, err := store.path(key)
	if err != nil {
		return blobstore.Info{}, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	return store.write(key, path, data)
}

// PutIfMatch stores data only when the current version equals expectedVersion.
func (store *Store) PutIfMatch(ctx context.Context, key string, data []byte, expectedVersion string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	path, err := store.path(key)
	if err != nil {
		return false, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	current, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if expectedVersion != "" {
			return false, nil
		}
	case err != nil:
		return false, Error.Wrap(err)
	default:
		if expectedVersion == "" || version(xxhash.Sum64(current)) != expectedVersion {
			return false, nil
		}
	}

	if _, err := store.write(key, path, data); err != nil {
		return false, err
	}
	return true, nil
}

// write replaces the file at path through a temporary file and rename.
func (store *Store) write(key, path string, data []byte) (_ blobstore.Info, err error) {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return blobstore.Info{}, Error.Wrap(err)
	}

	file, err := os.CreateTemp(filepath.Dir(path), ".blob-*.partial")
	if err != nil {
		return blobstore.Info{}, Error.Wrap(err)
	}
	committed := false
	defer func() {
		if !committed {
			err = errs.Combine(err, ignoreNotExist(os.Remove(file.Name())))
		}
	}()

	if _, err := file.Write(data); err != nil {
		return blobstore.Info{}, Error.Wrap(errs.Combine(err, file.Close()))
	}
	if err := file.Sync(); err != nil {
		return blobstore.Info{}, Error.Wrap(errs.Combine(err, file.Close()))
	}
	if err := file.Close(); err != nil {
		return blobstore.Info{}, Error.Wrap(err)
	}
	if err := os.Chmod(file.Name(), fileMode); err != nil {
		return blobstore.Info{}, Error.Wrap(err)
	}
	if err := os.Rename(file.Name(), path); err != nil {
		return blobstore.Info{}, Error.Wrap(err)
	}
	committed = true

	stat, err := os.Stat(path)
	if err != nil {
		return blobstore.Info{}, Error.Wrap(err)
	}

	return blobstore.Info{
		Key:          key,
		Version:      version(xxhash.Sum64(data)),
		Size:         int64(len(data)),
		LastModified: stat.ModTime(),
	}, nil
}

// Delete deletes the blob.
func (store *Store) Delete(ctx context.Context, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	path, err := store.path(key)
	if err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	return ignoreNotExist(os.Remove(path))
}

// Close closes the store.
func (store *Store) Close() error { return nil }

func wrapNotExist(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return blobstore.ErrNotFound.New("%q", key)
	}
	return Error.Wrap(err)
}

func ignoreNotExist(err error) error {
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return Error.Wrap(err)
}
