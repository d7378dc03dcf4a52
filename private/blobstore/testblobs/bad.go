// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package testblobs

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"pwnedpasswords.io/ingest/private/blobstore"
)

var _ blobstore.Blobs = (*BadBlobs)(nil)

// BadBlobs implements a bad blob store.
type BadBlobs struct {
	log   *zap.Logger
	blobs blobstore.Blobs

	mu       sync.Mutex
	err      error
	mismatch int
}

// NewBadBlobs creates a new bad blob store wrapping the provided blobs.
// Use SetError to manually configure the error returned by all operations.
func NewBadBlobs(log *zap.Logger, blobs blobstore.Blobs) *BadBlobs {
	return &BadBlobs{
		log:   log,
		blobs: blobs,
	}
}

// SetError sets an error to be returned for all operations.
func (bad *BadBlobs) SetError(err error) {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	bad.err = err
}

// SetMismatches makes the next n calls to PutIfMatch report a version
// mismatch without writing.
func (bad *BadBlobs) SetMismatches(n int) {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	bad.mismatch = n
}

func (bad *BadBlobs) failure() error {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	return bad.err
}

// Get returns the content of the blob and its info.
func (bad *BadBlobs) Get(ctx context.Context, key string) ([]byte, blobstore.Info, error) {
	if err := bad.failure(); err != nil {
		return nil, blobstore.Info{}, err
	}
	return bad.blobs.Get(ctx, key)
}

// Open opens a reader for the blob.
func (bad *BadBlobs) Open(ctx context.Context, key string) (io.ReadCloser, blobstore.Info, error) {
	if err := bad.failure(); err != nil {
		return nil, blobstore.Info{}, err
	}
	return bad.blobs.Open(ctx, key)
}

// Put unconditionally stores data at key.
func (bad *BadBlobs) Put(ctx context.Context, key string, data []byte) (blobstore.Info, error) {
	if err := bad.failure(); err != nil {
		return blobstore.Info{}, err
	}
	return bad.blobs.Put(ctx, key, data)
}

// PutIfMatch stores data only when the current version equals expectedVersion.
func (bad *BadBlobs) PutIfMatch(ctx context.Context, key string, data []byte, expectedVersion string) (bool, error) {
	if err := bad.failure(); err != nil {
		return false, err
	}

	bad.mu.Lock()
	if bad.mismatch > 0 {
		bad.mismatch--
		bad.mu.Unlock()
		bad.log.Debug("injected version mismatch", zap.String("key", key))
		return false, nil
	}
	bad.mu.Unlock()

	return bad.blobs.PutIfMatch(ctx, key, data, expectedVersion)
}

// Delete deletes the blob.
func (bad *BadBlobs) Delete(ctx context.Context, key string) error {
	if err := bad.failure(); err != nil {
		return err
	}
	return bad.blobs.Delete(ctx, key)
}

// Close closes the blob store and any resources associated with it.
func (bad *BadBlobs) Close() error {
	if err := bad.failure(); err != nil {
		return err
	}
	return bad.blobs.Close()
}
