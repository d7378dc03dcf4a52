// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cfgstruct

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestBind(t *testing.T) {
	var config struct {
		Address string        `help:"listen address" default:"127.0.0.1:8080"`
		Debug   bool          `help:"debug mode" devDefault:"true" releaseDefault:"false"`
		Size    int           `default:"500"`
		Limit   uint32        `default:"30"`
		Timeout time.Duration `default:"5m"`
		Names   []string      `default:"a,b"`
		Secret  string        `hidden:"true"`
		Worker  struct {
			MaxDeliveries int `default:"5"`
		}
		unexported int
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Bind(flags, &config, UseDevDefaults(), Prefix("ingest"))

	require.Equal(t, "127.0.0.1:8080", config.Address)
	require.True(t, config.Debug)
	require.Equal(t, 500, config.Size)
	require.Equal(t, uint32(30), config.Limit)
	require.Equal(t, 5*time.Minute, config.Timeout)
	require.Equal(t, []string{"a", "b"}, config.Names)
	require.Equal(t, 5, config.Worker.MaxDeliveries)

	require.NotNil(t, flags.Lookup("ingest.worker.max-deliveries"))
	require.True(t, flags.Lookup("ingest.secret").Hidden)
	require.Equal(t, "listen address", flags.Lookup("ingest.address").Usage)

	require.NoError(t, flags.Parse([]string{"--ingest.size=7", "--ingest.worker.max-deliveries=9", "--ingest.debug=false"}))
	require.Equal(t, 7, config.Size)
	require.Equal(t, 9, config.Worker.MaxDeliveries)
	require.False(t, config.Debug)
}

func TestBindReleaseDefaults(t *testing.T) {
	var config struct {
		Encoding string `devDefault:"console" releaseDefault:"json"`
	}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Bind(flags, &config, UseReleaseDefaults())
	require.Equal(t, "json", config.Encoding)
}

func TestBindInvalid(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.Panics(t, func() {
		var config struct{ Value complex64 }
		Bind(flags, &config)
	})
	require.Panics(t, func() {
		var config struct {
			Value int `default:"x"`
		}
		Bind(flags, &config)
	})
	require.Panics(t, func() {
		Bind(flags, struct{}{})
	})
}

func TestHyphenate(t *testing.T) {
	for in, out := range map[string]string{
		"Address":            "address",
		"MaxDeliveries":      "max-deliveries",
		"CASMaxAttempts":     "cas-max-attempts",
		"PublicURL":          "public-url",
		"MaxSubmissionBytes": "max-submission-bytes",
		"ZoneID":             "zone-id",
	} {
		require.Equal(t, out, hyphenate(in), in)
	}
}
