// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package transactions

import (
	"context"
	"sort"
	"strings"

	"github.com/zeebo/errs"

	"storj.io/common/uuid"

	"pwnedpasswords.io/ingest/private/hashutil"
	"pwnedpasswords.io/ingest/private/kvstore"
)

// ModifiedPrefix records that a shard changed during Day. Token changes
// with every mark.
type ModifiedPrefix struct {
	Day    string
	Kind   hashutil.Kind
	Prefix string
	Token  string
}

func (record ModifiedPrefix) key() kvstore.Key {
	return kvstore.Join(modifiedPrefix, record.Day, record.Kind.String(), record.Prefix)
}

// MarkPrefixModified records that the shard of kind and prefix changed
// today. Marking the same shard again on the same day keeps one record but
// gives it a new token.
func (store *Store) MarkPrefixModified(ctx context.Context, kind hashutil.Kind, prefix string) (err error) {
	defer mon.Task()(&ctx)(&err)

	token, err := uuid.New()
	if err != nil {
		return Error.Wrap(err)
	}

	record := ModifiedPrefix{
		Day:    store.nowFn().UTC().Format(dayLayout),
		Kind:   kind,
		Prefix: strings.ToUpper(prefix),
		Token:  token.String(),
	}
	return Error.Wrap(store.db.Put(ctx, record.key(), kvstore.Value(record.Token)))
}

// ListModifiedPrefixes returns every modified prefix record, ordered by day,
// kind and prefix.
func (store *Store) ListModifiedPrefixes(ctx context.Context) (_ []ModifiedPrefix, err error) {
	defer mon.Task()(&ctx)(&err)

	var records []ModifiedPrefix
	err = store.db.Range(ctx, kvstore.Key(modifiedPrefix+string(kvstore.Delimiter)),
		func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
			record, ok := parseModifiedKey(string(key))
			if !ok {
				store.log.Sugar().Warnf("skipping malformed modified prefix key %q", key)
				return nil
			}
			record.Token = string(value)
			records = append(records, record)
			return nil
		})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	sort.Slice(records, func(i, k int) bool {
		a, b := records[i], records[k]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Prefix < b.Prefix
	})
	return records, nil
}

// ClearModifiedPrefixes deletes the given records as they were listed. A
// record marked again since it was listed keeps its new mark.
func (store *Store) ClearModifiedPrefixes(ctx context.Context, records []ModifiedPrefix) (err error) {
	defer mon.Task()(&ctx)(&err)

	var group errs.Group
	for _, record := range records {
		err := store.db.CompareAndSwap(ctx, record.key(), kvstore.Value(record.Token), nil)
		switch {
		case err == nil:
		case kvstore.ErrValueChanged.Has(err), kvstore.ErrKeyNotFound.Has(err):
			mon.Counter("modified_prefix_remarked").Inc(1)
		default:
			group.Add(err)
		}
	}
	return Error.Wrap(group.Err())
}

func parseModifiedKey(key string) (ModifiedPrefix, bool) {
	parts := strings.Split(key, string(kvstore.Delimiter))
	if len(parts) != 4 || parts[0] != modifiedPrefix {
		return ModifiedPrefix{}, false
	}
	kind, ok := hashutil.ParseKind(parts[2])
	if !ok || parts[2] == "" || !hashutil.IsPrefix(parts[3]) {
		return ModifiedPrefix{}, false
	}
	return ModifiedPrefix{Day: parts[1], Kind: kind, Prefix: parts[3]}, true
}
