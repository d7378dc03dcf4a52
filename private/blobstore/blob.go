// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package blobstore defines whole-value blob storage with version
// conditioned writes.
package blobstore

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/zeebo/errs"
)

var (
	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = errs.Class("blob not found")

	// ErrInvalidKey is returned when a blob key is empty or escapes its namespace.
	ErrInvalidKey = errs.Class("invalid blob key")
)

// Info describes a stored blob.
type Info struct {
	Key string
	// Version is an opaque token that changes whenever the content is replaced.
	Version      string
	Size         int64
	LastModified time.Time
}

// Blobs is a blob storage interface.
//
// Writes always replace the whole value; a reader never observes a
// partially written blob.
type Blobs interface {
	// Get returns the content of the blob and its info.
	Get(ctx context.Context, key string) ([]byte, Info, error)
	// Open opens a reader for the blob.
	Open(ctx context.Context, key string) (io.ReadCloser, Info, error)
	// Put unconditionally stores data at key.
	Put(ctx context.Context, key string, data []byte) (Info, error)
	// PutIfMatch stores data only when the current version equals
	// expectedVersion. An empty expectedVersion requires that the blob does not
	// exist. It returns false without modifying anything when the version does
	// not match.
	PutIfMatch(ctx context.Context, key string, data []byte, expectedVersion string) (bool, error)
	// Delete deletes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, key string) error
	// Close closes the store and any resources associated with it.
	Close() error
}

// CheckKey verifies that key is a relative slash separated path without
// empty, "." or ".." elements.
func CheckKey(key string) error {
	if key == "" {
		return ErrInvalidKey.New("empty key")
	}
	for _, part := range strings.Split(key, "/") {
		switch part {
		case "", ".", "..":
			return ErrInvalidKey.New("%q", key)
		}
		if strings.ContainsRune(part, '\\') {
			return ErrInvalidKey.New("%q", key)
		}
	}
	return nil
}
