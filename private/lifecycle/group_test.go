// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"storj.io/common/testcontext"
)

func TestGroup(t *testing.T) {
	ctx := testcontext.New(t)

	var closed []string
	group := NewGroup(zaptest.NewLogger(t))
	for _, name := range []string{"a", "b", "c"} {
		group.Add(Item{
			Name: name,
			Run: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			Close: func() error {
				closed = append(closed, name)
				return nil
			},
		})
	}
	group.Add(Item{Name: "no-run"})
	require.Equal(t, []string{"a", "b", "c", "no-run"}, group.Names())

	runCtx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	group.Run(runCtx, &g)
	cancel()

	require.NoError(t, g.Wait())
	require.NoError(t, group.Close())
	require.Equal(t, []string{"c", "b", "a"}, closed)
}

func TestGroupError(t *testing.T) {
	ctx := testcontext.New(t)

	failure := errors.New("failure")
	group := NewGroup(zaptest.NewLogger(t))
	group.Add(Item{Name: "failing", Run: func(ctx context.Context) error { return failure }})
	group.Add(Item{Name: "closing", Close: func() error { return failure }})

	var g errgroup.Group
	group.Run(ctx, &g)
	require.ErrorIs(t, g.Wait(), failure)
	require.ErrorIs(t, group.Close(), failure)
}

func TestGroupStuck(t *testing.T) {
	ctx := testcontext.New(t)

	defer func(timeout time.Duration) { StuckTimeout = timeout }(StuckTimeout)
	StuckTimeout = time.Millisecond

	core, logs := observer.New(zap.WarnLevel)
	group := NewGroup(zap.New(core))

	release := make(chan struct{})
	group.Add(Item{Name: "stuck", Run: func(ctx context.Context) error {
		<-release
		return nil
	}})

	runCtx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	group.Run(runCtx, &g)
	cancel()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("item did not stop after cancellation").Len() == 1
	}, 10*time.Second, time.Millisecond)
	close(release)
	require.NoError(t, g.Wait())

	entry := logs.All()[0]
	require.True(t, strings.Contains(entry.ContextMap()["stacks"].(string), "goroutine"))
}
