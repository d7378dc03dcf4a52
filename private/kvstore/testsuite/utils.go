// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package testsuite

import (
	"context"
	"testing"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/private/kvstore"
)

func newItem(key, value string) kvstore.Item {
	return kvstore.Item{
		Key:   kvstore.Key(key),
		Value: kvstore.Value(value),
	}
}

func cleanupItems(t testing.TB, ctx *testcontext.Context, store kvstore.Store, items kvstore.Items) {
	for _, item := range items {
		_ = store.Delete(ctx, item.Key)
	}
}

func collect(ctx *testcontext.Context, t testing.TB, store kvstore.Store, prefix string) map[string]string {
	found := map[string]string{}
	err := store.Range(ctx, kvstore.Key(prefix), func(ctx2 context.Context, key kvstore.Key, value kvstore.Value) error {
		found[string(key)] = string(value)
		return nil
	})
	if err != nil {
		t.Fatalf("range %q failed: %v", prefix, err)
	}
	return found
}
