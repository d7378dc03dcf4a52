// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package teststore

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/spacemonkeygo/monkit/v3"

	"pwnedpasswords.io/ingest/private/kvstore"
)

var mon = monkit.Package()

// Client implements in-memory key value store.
type Client struct {
	mu sync.Mutex

	Items     kvstore.Items
	CallCount struct {
		Get            int
		Put            int
		Delete         int
		Range          int
		CompareAndSwap int
		Close          int
	}
}

var _ kvstore.Store = (*Client)(nil)

// New creates a new in-memory key-value store.
func New() *Client { return &Client{} }

// indexOf finds index of key or where it could be inserted.
func (store *Client) indexOf(key kvstore.Key) (int, bool) {
	i := sort.Search(len(store.Items), func(k int) bool {
		return !store.Items[k].Key.Less(key)
	})

	if i >= len(store.Items) {
		return i, false
	}
	return i, store.Items[i].Key.Equal(key)
}

func (store *Client) put(keyIndex int, found bool, key kvstore.Key, value kvstore.Value) {
	if found {
		store.Items[keyIndex].Value = kvstore.CloneValue(value)
		return
	}

	store.Items = append(store.Items, kvstore.Item{})
	copy(store.Items[keyIndex+1:], store.Items[keyIndex:])
	store.Items[keyIndex] = kvstore.Item{
		Key:   kvstore.CloneKey(key),
		Value: kvstore.CloneValue(value),
	}
}

func (store *Client) delete(keyIndex int) {
	copy(store.Items[keyIndex:], store.Items[keyIndex+1:])
	store.Items = store.Items[:len(store.Items)-1]
}

// Put adds a value to store.
func (store *Client) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Put++
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	keyIndex, found := store.indexOf(key)
	store.put(keyIndex, found, key, value)
	return nil
}

// Get gets a value to store.
func (store *Client) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Get++
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	keyIndex, found := store.indexOf(key)
	if !found {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}

	return kvstore.CloneValue(store.Items[keyIndex].Value), nil
}

// Delete deletes key and the value.
func (store *Client) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Delete++
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	keyIndex, found := store.indexOf(key)
	if !found {
		return nil
	}

	store.delete(keyIndex)
	return nil
}

// Range iterates over all items with prefix in key order.
//
// The items are copied before iterating so fn may call back into the store.
func (store *Client) Range(ctx context.Context, prefix kvstore.Key, fn func(context.Context, kvstore.Key, kvstore.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	store.mu.Lock()
	store.CallCount.Range++
	start, _ := store.indexOf(prefix)
	var items kvstore.Items
	for _, item := range store.Items[start:] {
		if !item.Key.HasPrefix(prefix) {
			break
		}
		items = append(items, kvstore.Item{
			Key:   kvstore.CloneKey(item.Key),
			Value: kvstore.CloneValue(item.Value),
		})
	}
	store.mu.Unlock()

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, item.Key, item.Value); err != nil {
			return err
		}
	}
	return nil
}

// CompareAndSwap atomically compares and swaps oldValue with newValue.
func (store *Client) CompareAndSwap(ctx context.Context, key kvstore.Key, oldValue, newValue kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.CompareAndSwap++
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	keyIndex, found := store.indexOf(key)
	if !found {
		if oldValue != nil {
			return kvstore.ErrKeyNotFound.New("%q", key)
		}
		if newValue != nil {
			store.put(keyIndex, found, key, newValue)
		}
		return nil
	}

	if oldValue == nil || !bytes.Equal(store.Items[keyIndex].Value, oldValue) {
		return kvstore.ErrValueChanged.New("%q", key)
	}

	if newValue == nil {
		store.delete(keyIndex)
		return nil
	}

	store.put(keyIndex, found, key, newValue)
	return nil
}

// Close closes the store.
func (store *Client) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Close++
	return nil
}
