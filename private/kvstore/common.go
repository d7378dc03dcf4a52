// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kvstore

import (
	"bytes"
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

// Delimiter separates nested paths in storage.
const Delimiter = '/'

var (
	// ErrKeyNotFound used when something doesn't exist.
	ErrKeyNotFound = errs.Class("key not found")

	// ErrEmptyKey is returned when an empty key is used in Put or in CompareAndSwap.
	ErrEmptyKey = errs.Class("empty key")

	// ErrValueChanged is returned when the current value of the key does not match the old value in CompareAndSwap.
	ErrValueChanged = errs.Class("value changed")
)

// Key is the type for the keys in a `Store`.
type Key []byte

// Value is the type for the values in a `ValueValueStore`.
type Value []byte

// Keys is the type for a slice of keys in a `Store`.
type Keys []Key

// Items keeps all Item.
type Items []Item

// Item is a Key and its Value.
type Item struct {
	Key   Key
	Value Value
}

// Store describes key/value stores like redis and boltdb.
//
// The previous value of a key acts as its version: CompareAndSwap only writes
// when the stored value still equals oldValue.
type Store interface {
	// Put adds a value to store.
	Put(context.Context, Key, Value) error
	// Get gets a value to store.
	Get(context.Context, Key) (Value, error)
	// Delete deletes key and the value.
	Delete(context.Context, Key) error
	// Range iterates over all items with the given key prefix in unspecified order.
	// The Key and Value are valid only for the duration of callback.
	Range(ctx context.Context, prefix Key, fn func(context.Context, Key, Value) error) error
	// CompareAndSwap atomically compares and swaps oldValue with newValue.
	// A nil oldValue means the key must not exist, a nil newValue deletes the key.
	CompareAndSwap(ctx context.Context, key Key, oldValue, newValue Value) error
	// Close closes the store.
	Close() error
}

// IsZero returns true if the value struct is a zero value.
func (value Value) IsZero() bool {
	return len(value) == 0
}

// IsZero returns true if the key struct is a zero value.
func (key Key) IsZero() bool {
	return len(key) == 0
}

// String implements the Stringer interface.
func (key Key) String() string { return string(key) }

// Strings returns everything as strings.
func (keys Keys) Strings() []string {
	strs := make([]string, 0, len(keys))
	for _, key := range keys {
		strs = append(strs, string(key))
	}
	return strs
}

// Less returns whether key should be sorted before b.
func (key Key) Less(b Key) bool { return bytes.Compare([]byte(key), []byte(b)) < 0 }

// Equal returns whether key and b are equal.
func (key Key) Equal(b Key) bool { return bytes.Equal([]byte(key), []byte(b)) }

// HasPrefix returns whether key starts with prefix.
func (key Key) HasPrefix(prefix Key) bool { return bytes.HasPrefix(key, prefix) }

// Join joins parts with the Delimiter into a key.
func Join(parts ...string) Key {
	size := len(parts)
	for _, part := range parts {
		size += len(part)
	}
	key := make(Key, 0, size)
	for i, part := range parts {
		if i > 0 {
			key = append(key, Delimiter)
		}
		key = append(key, part...)
	}
	return key
}

// CloneKey creates a copy of key.
func CloneKey(key Key) Key { return append(key[:0:0], key...) }

// CloneValue creates a copy of value.
func CloneValue(value Value) Value { return append(value[:0:0], value...) }

// Update reads key, applies fn to its value and writes the result with
// CompareAndSwap. A missing key is passed to fn as nil. It returns
// ErrValueChanged when another writer got in between.
func Update(ctx context.Context, store Store, key Key, fn func(old Value) (Value, error)) (err error) {
	defer mon.Task()(&ctx)(&err)

	old, err := store.Get(ctx, key)
	if err != nil {
		if !ErrKeyNotFound.Has(err) {
			return err
		}
		old = nil
	}

	next, err := fn(old)
	if err != nil {
		return err
	}

	return store.CompareAndSwap(ctx, key, old, next)
}
