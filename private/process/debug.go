// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spacemonkeygo/monkit/v3/present"
	"go.uber.org/zap"
)

// DebugConfig configures the debug endpoint.
type DebugConfig struct {
	Address string `help:"address to listen on for debug endpoints, empty disables it" default:""`
}

// NewDebugHandler returns the handler with profiling, monkit and health
// endpoints.
func NewDebugHandler(registry *monkit.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/mon/", http.StripPrefix("/mon", present.HTTP(registry)))
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		prometheus(w, registry)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	})
	return mux
}

// ServeDebug serves the debug endpoints on listener until ctx is canceled.
func ServeDebug(ctx context.Context, log *zap.Logger, listener net.Listener, registry *monkit.Registry) error {
	server := &http.Server{Handler: NewDebugHandler(registry)}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	log.Debug("debug server listening", zap.Stringer("address", listener.Addr()))
	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return Error.Wrap(err)
}

func sanitize(val string) string {
	// https://prometheus.io/docs/concepts/data_model/
	// specifies all metric names must match [a-zA-Z_:][a-zA-Z0-9_:]*
	if val != "" && '0' <= val[0] && val[0] <= '9' {
		val = "_" + val
	}
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z':
			return r
		case 'A' <= r && r <= 'Z':
			return r
		case '0' <= r && r <= '9':
			return r
		default:
			return '_'
		}
	}, val)
}

func prometheus(w http.ResponseWriter, registry *monkit.Registry) {
	// writes https://prometheus.io/docs/instrumenting/exposition_formats/
	registry.Stats(func(key monkit.SeriesKey, field string, val float64) {
		measurement := sanitize(key.Measurement)
		var metrics []string
		for tag, tagVal := range key.Tags.All() {
			metrics = append(metrics, sanitize(tag)+"=\""+sanitize(tagVal)+"\"")
		}
		metrics = append(metrics, "field=\""+sanitize(field)+"\"")

		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n%s{%s} %g\n",
			measurement, measurement, strings.Join(metrics, ","), val)
	})
}
