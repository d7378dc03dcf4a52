// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package process contains the process wide plumbing of the commands:
// config loading, logging and the debug endpoint.
package process

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"

	"pwnedpasswords.io/ingest/private/cfgstruct"
)

// Error is a process error class.
var Error = errs.Class("process")

// EnvPrefix is the prefix of environment variables overriding flags.
const EnvPrefix = "PWNED"

// ConfigFileName is the name of the config file inside the config dir.
const ConfigFileName = "config.yaml"

// DefaultConfigDir returns the default config directory for the named
// application.
func DefaultConfigDir(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+name)
	}
	return filepath.Join(dir, name)
}

// Bind binds config to the flags of cmd.
func Bind(cmd *cobra.Command, config any, opts ...cfgstruct.BindOpt) {
	cfgstruct.Bind(cmd.Flags(), config, opts...)
}

// Exec runs a *cobra.Command and sets up process wide configuration
// like a configuration file and logging. It exits the process on failure.
func Exec(cmd *cobra.Command) {
	cfgstruct.DefaultsFlag(cmd.PersistentFlags())
	cfgstruct.Bind(cmd.PersistentFlags(), &logConfig, cfgstruct.Prefix("log"))
	cmd.PersistentFlags().String("config-dir", DefaultConfigDir(cmd.Name()), "main directory for configuration")

	for _, sub := range commands(cmd) {
		sub := sub
		runE := sub.RunE
		if runE == nil {
			continue
		}
		sub.RunE = func(cmd *cobra.Command, args []string) error {
			if err := LoadConfig(cmd); err != nil {
				return err
			}
			return runE(cmd, args)
		}
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func commands(cmd *cobra.Command) []*cobra.Command {
	all := []*cobra.Command{cmd}
	for _, sub := range cmd.Commands() {
		all = append(all, commands(sub)...)
	}
	return all
}

// ConfigDir returns the config dir selected on the command line.
func ConfigDir(cmd *cobra.Command) string {
	if flag := cmd.Flags().Lookup("config-dir"); flag != nil {
		return flag.Value.String()
	}
	return DefaultConfigDir(cmd.Root().Name())
}

// Viper returns a viper instance for cmd with the config file and the
// environment bound.
func Viper(cmd *cobra.Command) (*viper.Viper, error) {
	vip := viper.New()
	if err := vip.BindPFlags(cmd.Flags()); err != nil {
		return nil, Error.Wrap(err)
	}

	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vip.AutomaticEnv()

	vip.SetConfigFile(filepath.Join(ConfigDir(cmd), ConfigFileName))
	if err := vip.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, Error.New("unable to read config: %v", err)
		}
	}
	return vip, nil
}

// LoadConfig copies values from the config file and the environment into
// every flag of cmd that was not set on the command line.
func LoadConfig(cmd *cobra.Command) error {
	vip, err := Viper(cmd)
	if err != nil {
		return err
	}

	var group errs.Group
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if flag.Changed || !vip.IsSet(flag.Name) {
			return
		}
		value := vip.GetString(flag.Name)
		if slice, ok := flag.Value.(pflag.SliceValue); ok {
			group.Add(slice.Replace(vip.GetStringSlice(flag.Name)))
			return
		}
		if value == flag.Value.String() {
			return
		}
		if err := flag.Value.Set(value); err != nil {
			group.Add(Error.New("invalid value %q for %s: %v", value, flag.Name, err))
		}
	})
	return group.Err()
}

// Ctx returns a context that is canceled on SIGINT or SIGTERM.
func Ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
