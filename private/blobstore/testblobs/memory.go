// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package testblobs

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"pwnedpasswords.io/ingest/private/blobstore"
)

var _ blobstore.Blobs = (*Memory)(nil)

type memoryBlob struct {
	data []byte
	info blobstore.Info
}

// Memory is an in-memory blob store.
type Memory struct {
	mu      sync.Mutex
	blobs   map[string]memoryBlob
	version int64
	now     func() time.Time
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{
		blobs: map[string]memoryBlob{},
		now:   time.Now,
	}
}

// Keys returns the keys of all stored blobs.
func (memory *Memory) Keys() []string {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	keys := make([]string, 0, len(memory.blobs))
	for key := range memory.blobs {
		keys = append(keys, key)
	}
	return keys
}

// Get returns the content of the blob and its info.
func (memory *Memory) Get(ctx context.Context, key string) ([]byte, blobstore.Info, error) {
	if err := blobstore.CheckKey(key); err != nil {
		return nil, blobstore.Info{}, err
	}

	memory.mu.Lock()
	defer memory.mu.Unlock()

	blob, ok := memory.blobs[key]
	if !ok {
		return nil, blobstore.Info{}, blobstore.ErrNotFound.New("%q", key)
	}
	return bytes.Clone(blob.data), blob.info, nil
}

// Open opens a reader for the blob.
func (memory *Memory) Open(ctx context.Context, key string) (io.ReadCloser, blobstore.Info, error) {
	data, info, err := memory.Get(ctx, key)
	if err != nil {
		return nil, blobstore.Info{}, err
	}
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

// Put unconditionally stores data at key.
func (memory *Memory) Put(ctx context.Context, key string, data []byte) (blobstore.Info, error) {
	if err := blobstore.CheckKey(key); err != nil {
		return blobstore.Info{}, err
	}

	memory.mu.Lock()
	defer memory.mu.Unlock()

	return memory.put(key, data), nil
}

func (memory *Memory) put(key string, data []byte) blobstore.Info {
	memory.version++
	info := blobstore.Info{
		Key:          key,
		Version:      strconv.FormatInt(memory.version, 10),
		Size:         int64(len(data)),
		LastModified: memory.now(),
	}
	memory.blobs[key] = memoryBlob{data: bytes.Clone(data), info: info}
	return info
}

// PutIfMatch stores data only when the current version equals expectedVersion.
func (memory *Memory) PutIfMatch(ctx context.Context, key string, data []byte, expectedVersion string) (bool, error) {
	if err := blobstore.CheckKey(key); err != nil {
		return false, err
	}

	memory.mu.Lock()
	defer memory.mu.Unlock()

	blob, ok := memory.blobs[key]
	if ok != (expectedVersion != "") || blob.info.Version != expectedVersion {
		return false, nil
	}

	memory.put(key, data)
	return true, nil
}

// Delete deletes the blob.
func (memory *Memory) Delete(ctx context.Context, key string) error {
	if err := blobstore.CheckKey(key); err != nil {
		return err
	}

	memory.mu.Lock()
	defer memory.mu.Unlock()

	delete(memory.blobs, key)
	return nil
}

// Close closes the store.
func (memory *Memory) Close() error { return nil }
