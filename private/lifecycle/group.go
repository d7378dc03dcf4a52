// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package lifecycle allows controlling group of items.
package lifecycle

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var mon = monkit.Package()

// StuckTimeout is how long an item may keep running after cancellation
// before the goroutine stacks are logged.
var StuckTimeout = time.Minute

// Group implements a collection of items that have a
// concurrent start and are closed in reverse order.
type Group struct {
	log   *zap.Logger
	items []Item
}

// Item is the lifecycle item that group runs and closes.
type Item struct {
	Name  string
	Run   func(ctx context.Context) error
	Close func() error
}

// NewGroup creates a new group.
func NewGroup(log *zap.Logger) *Group {
	return &Group{log: log}
}

// Add adds item to the group.
func (group *Group) Add(item Item) {
	group.items = append(group.items, item)
}

// Names returns the names of all items.
func (group *Group) Names() []string {
	names := make([]string, 0, len(group.items))
	for _, item := range group.items {
		names = append(names, item.Name)
	}
	return names
}

// Run starts all items concurrently under group g.
func (group *Group) Run(ctx context.Context, g *errgroup.Group) {
	defer mon.Task()(&ctx)(nil)

	for _, item := range group.items {
		if item.Run == nil {
			continue
		}

		g.Go(func() error {
			done := make(chan struct{})
			defer close(done)
			go group.watch(ctx, item.Name, done)

			err := item.Run(ctx)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			if err != nil {
				group.log.Error("item failed", zap.String("name", item.Name), zap.Error(err))
			}
			return err
		})
	}
}

// watch logs the stacks of all goroutines when the item does not stop in
// time after cancellation.
func (group *Group) watch(ctx context.Context, name string, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	timer := time.NewTimer(StuckTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		buf := make([]byte, 1<<20)
		buf = buf[:runtime.Stack(buf, true)]
		group.log.Warn("item did not stop after cancellation",
			zap.String("name", name),
			zap.ByteString("stacks", condenseStack(buf)))
	}
}

// Close closes all items in reverse order.
func (group *Group) Close() error {
	var errlist errs.Group

	for i := len(group.items) - 1; i >= 0; i-- {
		item := group.items[i]
		if item.Close == nil {
			continue
		}
		errlist.Add(item.Close())
	}

	return errlist.Err()
}
