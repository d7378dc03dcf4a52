// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package redis

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"pwnedpasswords.io/ingest/private/kvstore"
)

var (
	// Error is a redis error.
	Error = errs.Class("redis")

	mon = monkit.Package()
)

const rangeBatchSize = 256

// Client is the entrypoint into Redis.
type Client struct {
	db *redis.Client
}

var _ kvstore.Store = (*Client)(nil)

// New wraps an existing redis client. Close closes db.
func New(db *redis.Client) *Client {
	return &Client{db: db}
}

// OpenClient returns a configured Client instance, verifying a successful connection to redis.
func OpenClient(ctx context.Context, address, password string, db int) (*Client, error) {
	conn, err := connect(ctx, &redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// OpenClientFrom returns a configured Client instance from a redis address, verifying a successful connection to redis.
func OpenClientFrom(ctx context.Context, address string) (*Client, error) {
	conn, err := Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// Dial connects to a redis://host:port?db=N&password=P address. Other
// packages storing data in redis use it to share the address format.
func Dial(ctx context.Context, address string) (*redis.Client, error) {
	redisurl, err := url.Parse(address)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if redisurl.Scheme != "redis" {
		return nil, Error.New("not a redis:// formatted address")
	}

	q := redisurl.Query()

	db := 0
	if s := q.Get("db"); s != "" {
		db, err = strconv.Atoi(s)
		if err != nil {
			return nil, Error.New("invalid db %q: %v", s, err)
		}
	}

	return connect(ctx, &redis.Options{
		Addr:     redisurl.Host,
		Password: q.Get("password"),
		DB:       db,
	})
}

func connect(ctx context.Context, options *redis.Options) (*redis.Client, error) {
	conn := redis.NewClient(options)

	// ping here to verify we are able to connect to redis with the initialized client.
	if err := conn.Ping(ctx).Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), conn.Close())
	}
	return conn, nil
}

// Get looks up the provided key from redis returning either an error or the result.
func (client *Client) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}
	return get(ctx, client.db, key)
}

// Put adds a value to the provided key in redis, returning an error on failure.
func (client *Client) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}
	return put(ctx, client.db, key, value)
}

// Delete deletes a key/value pair from redis, for a given the key.
func (client *Client) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}
	return delete(ctx, client.db, key)
}

// Close closes a redis client.
func (client *Client) Close() error {
	return client.db.Close()
}

// Range iterates over all items with prefix in unspecified order.
//
// Keys written while iterating may or may not be visited.
func (client *Client) Range(ctx context.Context, prefix kvstore.Key, fn func(context.Context, kvstore.Key, kvstore.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	it := client.db.Scan(ctx, 0, matchPrefix(prefix), rangeBatchSize).Iterator()

	// redis may return duplicates
	seen := map[string]struct{}{}
	for it.Next(ctx) {
		key := it.Val()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		value, err := get(ctx, client.db, kvstore.Key(key))
		if kvstore.ErrKeyNotFound.Has(err) {
			// deleted since the scan returned it
			continue
		}
		if err != nil {
			return Error.Wrap(err)
		}

		if err := fn(ctx, kvstore.Key(key), value); err != nil {
			return err
		}
	}

	return Error.Wrap(it.Err())
}

// matchPrefix returns a SCAN pattern matching every key starting with prefix.
func matchPrefix(prefix kvstore.Key) string {
	var pattern strings.Builder
	for _, c := range []byte(prefix) {
		switch c {
		case '*', '?', '[', ']', '\\':
			pattern.WriteByte('\\')
		}
		pattern.WriteByte(c)
	}
	pattern.WriteByte('*')
	return pattern.String()
}

// CompareAndSwap atomically compares and swaps oldValue with newValue.
func (client *Client) CompareAndSwap(ctx context.Context, key kvstore.Key, oldValue, newValue kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	txf := func(tx *redis.Tx) error {
		value, err := get(ctx, tx, key)
		if kvstore.ErrKeyNotFound.Has(err) {
			if oldValue != nil {
				return kvstore.ErrKeyNotFound.New("%q", key)
			}

			if newValue == nil {
				return nil
			}

			// runs only if the watched keys remain unchanged
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return put(ctx, pipe, key, newValue)
			})
			return err
		}
		if err != nil {
			return err
		}

		if oldValue == nil || !bytes.Equal(value, oldValue) {
			return kvstore.ErrValueChanged.New("%q", key)
		}

		// runs only if the watched keys remain unchanged
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if newValue == nil {
				return delete(ctx, pipe, key)
			}
			return put(ctx, pipe, key, newValue)
		})

		return err
	}

	err = client.db.Watch(ctx, txf, key.String())
	if errors.Is(err, redis.TxFailedErr) {
		return kvstore.ErrValueChanged.New("%q", key)
	}
	return Error.Wrap(err)
}

func get(ctx context.Context, cmdable redis.Cmdable, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	value, err := cmdable.Get(ctx, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return nil, Error.New("get error: %v", err)
	}
	return value, errs.Wrap(err)
}

func put(ctx context.Context, cmdable redis.Cmdable, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	err = cmdable.Set(ctx, key.String(), []byte(value), 0).Err()
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return Error.New("put error: %v", err)
	}
	return errs.Wrap(err)
}

func delete(ctx context.Context, cmdable redis.Cmdable, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	err = cmdable.Del(ctx, key.String()).Err()
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return Error.New("delete error: %v", err)
	}
	return errs.Wrap(err)
}
