// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"pwnedpasswords.io/ingest/ingest"
	"pwnedpasswords.io/ingest/ingest/cachepurge"
	"pwnedpasswords.io/ingest/ingest/transactions"
	"pwnedpasswords.io/ingest/private/process"
)

// Seed defines the configuration of the seed command.
type Seed struct {
	Storage     ingest.StorageConfig
	Kinds       []string `help:"hash kinds to create empty range files for" default:"sha1,ntlm"`
	Concurrency int      `help:"number of range files created concurrently" default:"16"`
}

// Purge defines the configuration of the purge command.
type Purge struct {
	Storage    ingest.StorageConfig
	CachePurge cachepurge.Config
}

var (
	rootCmd = &cobra.Command{
		Use:   "pwnedingest",
		Short: "Pwned Passwords ingestion",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the API, the pipeline workers and the cache purge",
		RunE:  cmdRun,
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Create the empty range files that submissions are merged into",
		RunE:  cmdSeed,
	}
	purgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Purge the CDN cache of every modified range file once",
		RunE:  cmdPurge,
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the length of the ingestion queues",
		RunE:  cmdStatus,
	}

	runCfg    ingest.Config
	setupCfg  ingest.Config
	seedCfg   Seed
	purgeCfg  Purge
	statusCfg ingest.Config
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(statusCmd)
	process.Bind(runCmd, &runCfg)
	process.Bind(setupCmd, &setupCfg)
	process.Bind(seedCmd, &seedCfg)
	process.Bind(purgeCmd, &purgeCfg)
	process.Bind(statusCmd, &statusCfg)
}

func main() {
	process.Exec(rootCmd)
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := process.Ctx(cmd)
	defer cancel()

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	storage, err := ingest.OpenStorage(ctx, log.Named("storage"), runCfg.Storage)
	if err != nil {
		return errs.New("error opening storage: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, storage.Close())
	}()

	peer, err := ingest.New(log, storage, &runCfg)
	if err != nil {
		return err
	}

	log.Info("ingestion started", zap.String("api", peer.Addr()))

	runError := peer.Run(ctx)
	closeError := peer.Close()
	return errs.Combine(runError, closeError)
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(process.ConfigDir(cmd))
	if err != nil {
		return err
	}

	configFile := filepath.Join(setupDir, process.ConfigFileName)
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("configuration already exists (%v)", configFile)
	}

	if err := os.MkdirAll(setupDir, 0o700); err != nil {
		return err
	}

	return process.SaveConfig(cmd.Flags(), configFile, nil)
}

func cmdSeed(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := process.Ctx(cmd)
	defer cancel()

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	kinds, err := parseKinds(seedCfg.Kinds)
	if err != nil {
		return err
	}

	storage, err := ingest.OpenStorage(ctx, log.Named("storage"), seedCfg.Storage)
	if err != nil {
		return errs.New("error opening storage: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, storage.Close())
	}()

	shards, err := openShards(log, storage, seedCfg.Storage)
	if err != nil {
		return err
	}

	created, err := seedRanges(ctx, log, shards, kinds, seedCfg.Concurrency, 0, PrefixCount)
	log.Info("seeded range files", zap.Int("created", created))
	return err
}

func cmdPurge(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := process.Ctx(cmd)
	defer cancel()

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	storage, err := ingest.OpenStorage(ctx, log.Named("storage"), purgeCfg.Storage)
	if err != nil {
		return errs.New("error opening storage: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, storage.Close())
	}()

	txs := transactions.NewStore(log.Named("transactions"), storage.Table)
	purger := cachepurge.NewPurger(log.Named("cachepurge:purger"), purgeCfg.CachePurge.Cloudflare)
	chore := cachepurge.NewChore(log.Named("cachepurge"), purgeCfg.CachePurge, txs, purger)
	defer func() { err = errs.Combine(err, chore.Close()) }()

	return chore.RunOnce(ctx)
}

func cmdStatus(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := process.Ctx(cmd)
	defer cancel()

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	storage, err := ingest.OpenStorage(ctx, log.Named("storage"), statusCfg.Storage)
	if err != nil {
		return errs.New("error opening storage: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, storage.Close())
	}()

	lengths, err := queueLengths(ctx, storage, statusCfg.Pipeline.Queues)
	if err != nil {
		return err
	}

	const padding = 3
	w := tabwriter.NewWriter(os.Stdout, 0, 0, padding, ' ', tabwriter.AlignRight|tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "queue\tpending\t")
	for _, length := range lengths {
		_, _ = fmt.Fprintf(w, "%s\t%d\t\n", length.Name, length.Pending)
	}
	return w.Flush()
}
