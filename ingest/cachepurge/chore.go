// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package cachepurge purges the CDN cache of range files that changed.
package cachepurge

import (
	"context"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"

	"pwnedpasswords.io/ingest/ingest/transactions"
	"pwnedpasswords.io/ingest/private/hashutil"
)

var (
	// Error is the error class for cache purge failures.
	Error = errs.Class("cache purge")

	mon = monkit.Package()
)

// MaxURLsPerPurge is the largest number of URLs sent in one purge request.
const MaxURLsPerPurge = 30

// Config contains configurable values for the cache purge chore.
type Config struct {
	Enabled   bool          `help:"whether to purge the CDN cache of modified range files" default:"true"`
	Interval  time.Duration `help:"how often to purge modified range files" releaseDefault:"5m" devDefault:"10s"`
	BaseURL   string        `help:"public base URL of the range API" default:"https://api.pwnedpasswords.com"`
	ChunkSize int           `help:"number of URLs purged per request" default:"30"`

	Cloudflare CloudflareConfig
}

// Purger removes URLs from a CDN cache.
type Purger interface {
	Purge(ctx context.Context, urls []string) error
}

// Chore periodically purges modified range files from the CDN.
//
// architecture: Chore
type Chore struct {
	log          *zap.Logger
	config       Config
	transactions *transactions.Store
	purger       Purger

	Loop *sync2.Cycle
}

// NewChore creates a new cache purge chore.
func NewChore(log *zap.Logger, config Config, transactions *transactions.Store, purger Purger) *Chore {
	if config.ChunkSize <= 0 || config.ChunkSize > MaxURLsPerPurge {
		config.ChunkSize = MaxURLsPerPurge
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	return &Chore{
		log:          log,
		config:       config,
		transactions: transactions,
		purger:       purger,
		Loop:         sync2.NewCycle(config.Interval),
	}
}

// Run starts the chore.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !chore.config.Enabled {
		return nil
	}

	return chore.Loop.Run(ctx, func(ctx context.Context) error {
		if err := chore.RunOnce(ctx); err != nil {
			chore.log.Error("purge failed", zap.Error(err))
		}
		return nil
	})
}

// Close stops the chore.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}

// URL returns the public URL of the range file.
func (chore *Chore) URL(kind hashutil.Kind, prefix string) string {
	url := chore.config.BaseURL + "/range/" + prefix
	if kind == hashutil.NTLM {
		url += "?mode=ntlm"
	}
	return url
}

type target struct {
	url     string
	records []transactions.ModifiedPrefix
}

// RunOnce purges every modified prefix once. Records are cleared only when
// the purge request covering them succeeded, the others are retried by the
// next run.
func (chore *Chore) RunOnce(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	records, err := chore.transactions.ListModifiedPrefixes(ctx)
	if err != nil {
		return Error.Wrap(err)
	}
	if len(records) == 0 {
		return nil
	}

	// the same shard may be recorded on several days.
	var targets []*target
	byURL := map[string]*target{}
	for _, record := range records {
		url := chore.URL(record.Kind, record.Prefix)
		t, ok := byURL[url]
		if !ok {
			t = &target{url: url}
			byURL[url] = t
			targets = append(targets, t)
		}
		t.records = append(t.records, record)
	}

	var group errs.Group
	purged := 0
	for start := 0; start < len(targets); start += chore.config.ChunkSize {
		chunk := targets[start:min(start+chore.config.ChunkSize, len(targets))]

		urls := make([]string, 0, len(chunk))
		var cleared []transactions.ModifiedPrefix
		for _, t := range chunk {
			urls = append(urls, t.url)
			cleared = append(cleared, t.records...)
		}

		if err := chore.purger.Purge(ctx, urls); err != nil {
			mon.Counter("purge_failures").Inc(1)
			chore.log.Warn("purge request failed", zap.Int("URLs", len(urls)), zap.Error(err))
			group.Add(Error.Wrap(err))
			continue
		}
		purged += len(urls)

		if err := chore.transactions.ClearModifiedPrefixes(ctx, cleared); err != nil {
			group.Add(Error.Wrap(err))
		}
	}

	mon.Counter("purged_urls").Inc(int64(purged))
	chore.log.Debug("purged modified prefixes", zap.Int("Purged", purged), zap.Int("Total", len(targets)))
	return group.Err()
}
