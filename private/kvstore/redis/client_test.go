// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/private/kvstore"
	"pwnedpasswords.io/ingest/private/kvstore/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)

	server := miniredis.RunT(t)

	client, err := OpenClient(ctx, server.Addr(), "", 0)
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	testsuite.RunTests(t, client)
}

func TestOpenClientFrom(t *testing.T) {
	ctx := testcontext.New(t)

	server := miniredis.RunT(t)

	client, err := OpenClientFrom(ctx, "redis://"+server.Addr()+"?db=2")
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	require.NoError(t, client.Put(ctx, kvstore.Key("a"), kvstore.Value("1")))
	server.Select(2)
	value, err := server.Get("a")
	require.NoError(t, err)
	require.Equal(t, "1", value)

	_, err = OpenClientFrom(ctx, "http://"+server.Addr())
	require.Error(t, err)

	_, err = OpenClientFrom(ctx, "redis://"+server.Addr()+"?db=x")
	require.Error(t, err)
}

func TestRangeEscapesPattern(t *testing.T) {
	ctx := testcontext.New(t)

	server := miniredis.RunT(t)
	client := New(redisClient(server.Addr()))
	defer ctx.Check(client.Close)

	require.NoError(t, client.Put(ctx, kvstore.Key("a*/1"), kvstore.Value("x")))
	require.NoError(t, client.Put(ctx, kvstore.Key("ab/1"), kvstore.Value("y")))

	var keys []string
	require.NoError(t, client.Range(ctx, kvstore.Key("a*"), func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
		keys = append(keys, string(key))
		return nil
	}))
	require.Equal(t, []string{"a*/1"}, keys)
}

func TestInvalidConnection(t *testing.T) {
	_, err := OpenClient(t.Context(), "127.0.0.1:1", "", 1)
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func redisClient(addr string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: addr})
}
