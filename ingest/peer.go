// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ingest wires the ingestion services into a runnable process.
package ingest

import (
	"context"
	"errors"
	"net"
	"runtime/pprof"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pwnedpasswords.io/ingest/ingest/api"
	"pwnedpasswords.io/ingest/ingest/batches"
	"pwnedpasswords.io/ingest/ingest/cachepurge"
	"pwnedpasswords.io/ingest/ingest/pipeline"
	"pwnedpasswords.io/ingest/ingest/shardfiles"
	"pwnedpasswords.io/ingest/ingest/transactions"
	"pwnedpasswords.io/ingest/private/healthcheck"
	"pwnedpasswords.io/ingest/private/lifecycle"
	"pwnedpasswords.io/ingest/private/process"
)

var (
	// Error is the error class of the ingestion process.
	Error = errs.Class("ingest")

	mon = monkit.Package()
)

// HealthCheckTimeout bounds each storage probe of the health endpoint.
const HealthCheckTimeout = 5 * time.Second

// Config is the global config of the ingestion process.
type Config struct {
	Storage    StorageConfig
	Pipeline   pipeline.Config
	CachePurge cachepurge.Config
	API        api.Config
	Debug      process.DebugConfig
}

// Peer is the ingestion process.
//
// architecture: Peer
type Peer struct {
	Log     *zap.Logger
	Storage *Storage

	Servers  *lifecycle.Group
	Services *lifecycle.Group

	Transactions *transactions.Store
	Shards       *shardfiles.Store

	Pipeline struct {
		Sender  *batches.Sender
		Service *pipeline.Service
		Workers []*pipeline.Worker
	}

	CachePurge struct {
		Purger cachepurge.Purger
		Chore  *cachepurge.Chore
	}

	Health struct {
		Handler *healthcheck.Handler
	}

	API struct {
		Listener net.Listener
		Server   *api.Server
	}

	Debug struct {
		Listener net.Listener
	}
}

// New creates a new ingestion process on top of the opened storage.
func New(log *zap.Logger, storage *Storage, config *Config) (_ *Peer, err error) {
	peer := &Peer{
		Log:     log,
		Storage: storage,

		Servers:  lifecycle.NewGroup(log.Named("servers")),
		Services: lifecycle.NewGroup(log.Named("services")),
	}

	{ // setup debug
		if config.Debug.Address != "" {
			peer.Debug.Listener, err = net.Listen("tcp", config.Debug.Address)
			if err != nil {
				withoutStack := errors.New(err.Error())
				peer.Log.Debug("failed to start debug endpoints", zap.Error(withoutStack))
			}
		}
		if peer.Debug.Listener != nil {
			listener := peer.Debug.Listener
			peer.Servers.Add(lifecycle.Item{
				Name: "debug",
				Run: func(ctx context.Context) error {
					return process.ServeDebug(ctx, peer.Log.Named("debug"), listener, monkit.Default)
				},
				Close: func() error { return ignoreClosed(listener.Close()) },
			})
		}
	}

	{ // setup stores
		format, err := shardfiles.ParseFormat(config.Storage.ShardFormat)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		peer.Transactions = transactions.NewStore(peer.Log.Named("transactions"), storage.Table)
		peer.Shards = shardfiles.NewStore(peer.Log.Named("shardfiles"), storage.Blobs, format)
	}

	{ // setup pipeline
		peer.Pipeline.Sender = batches.NewSender(storage.Queue, config.Pipeline.Queues)
		peer.Pipeline.Service = pipeline.NewService(
			peer.Log.Named("pipeline"),
			config.Pipeline,
			peer.Transactions,
			peer.Shards,
			storage.Blobs,
			peer.Pipeline.Sender,
		)

		peer.Pipeline.Workers = peer.Pipeline.Service.Workers(storage.Queue)
		for _, worker := range peer.Pipeline.Workers {
			peer.Services.Add(lifecycle.Item{
				Name:  "pipeline:" + worker.Name(),
				Run:   worker.Run,
				Close: worker.Close,
			})
		}
	}

	{ // setup cache purge
		if config.CachePurge.Enabled {
			peer.CachePurge.Purger = cachepurge.NewPurger(peer.Log.Named("cachepurge:purger"), config.CachePurge.Cloudflare)
			peer.CachePurge.Chore = cachepurge.NewChore(
				peer.Log.Named("cachepurge"),
				config.CachePurge,
				peer.Transactions,
				peer.CachePurge.Purger,
			)
			peer.Services.Add(lifecycle.Item{
				Name:  "cachepurge",
				Run:   peer.CachePurge.Chore.Run,
				Close: peer.CachePurge.Chore.Close,
			})
		}
	}

	{ // setup health checks
		peer.Health.Handler = healthcheck.NewHandler(peer.Log.Named("health"),
			healthcheck.Func{CheckName: "table", Timeout: HealthCheckTimeout, Probe: storage.PingTable},
			healthcheck.Func{CheckName: "blobs", Timeout: HealthCheckTimeout, Probe: storage.PingBlobs},
			healthcheck.Func{CheckName: "queue", Timeout: HealthCheckTimeout, Probe: func(ctx context.Context) error {
				return storage.PingQueue(ctx, config.Pipeline.Queues.Transactions)
			}},
		)
	}

	{ // setup api
		if config.API.Address != "" {
			peer.API.Listener, err = net.Listen("tcp", config.API.Address)
			if err != nil {
				return nil, errs.Combine(Error.Wrap(err), peer.Close())
			}
			peer.API.Server = api.NewServer(
				peer.Log.Named("api"),
				config.API,
				peer.API.Listener,
				peer.Pipeline.Service,
				peer.Shards,
				peer.Health.Handler,
			)
			peer.Servers.Add(lifecycle.Item{
				Name: "api",
				Run:  peer.API.Server.Run,
				Close: func() error {
					return errs.Combine(peer.API.Server.Close(), ignoreClosed(peer.API.Listener.Close()))
				},
			})
		}
	}

	return peer, nil
}

// Run runs the ingestion process until it's either closed or it errors.
func (peer *Peer) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	group, ctx := errgroup.WithContext(ctx)

	pprof.Do(ctx, pprof.Labels("subsystem", "ingest"), func(ctx context.Context) {
		peer.Servers.Run(ctx, group)
		peer.Services.Run(ctx, group)

		pprof.Do(ctx, pprof.Labels("name", "subsystem-wait"), func(ctx context.Context) {
			err = group.Wait()
		})
	})
	return err
}

// Addr returns the address of the API server, empty when it is disabled.
func (peer *Peer) Addr() string {
	if peer.API.Server == nil {
		return ""
	}
	return peer.API.Server.Addr()
}

// Close closes all the resources. The storage stays open.
func (peer *Peer) Close() error {
	return errs.Combine(
		peer.Servers.Close(),
		peer.Services.Close(),
	)
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
