// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
)

func TestNewLogger(t *testing.T) {
	ctx := testcontext.New(t)
	output := filepath.Join(ctx.Dir("log"), "out.log")

	log, err := LogConfig{Level: "info", Encoding: "json", Output: output}.NewLogger()
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("visible")
	_ = log.Sync()

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Contains(t, string(data), `"M":"visible"`)
	require.NotContains(t, string(data), "hidden")

	_, err = LogConfig{Level: "loud", Encoding: "json"}.NewLogger()
	require.True(t, Error.Has(err))
}
