// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/stretchr/testify/require"
)

func TestDebugHandler(t *testing.T) {
	registry := monkit.NewRegistry()
	registry.ScopeNamed("ingest").Counter("batches_flushed").Inc(3)

	server := httptest.NewServer(NewDebugHandler(registry))
	defer server.Close()

	get := func(path string) string {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	require.Equal(t, "OK\n", get("/health"))
	require.Contains(t, get("/metrics"), "batches_flushed")
}

func TestSanitize(t *testing.T) {
	require.Equal(t, "_1abc_d", sanitize("1abc.d"))
	require.Equal(t, "", sanitize(""))
}
