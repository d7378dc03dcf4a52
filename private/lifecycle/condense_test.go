// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleStack = `goroutine 1 [running]:
main.main()
	/src/main.go:12 +0x1d

goroutine 7 [select]:
pwnedpasswords.io/ingest/ingest/pipeline.(*Worker).Run(0xc000010000, {0x10, 0x20})
	/src/ingest/pipeline/worker.go:58 +0x45
created by pwnedpasswords.io/ingest/private/lifecycle.(*Group).Run in goroutine 1
	/src/private/lifecycle/group.go:70 +0x99

goroutine 8 [select]:
pwnedpasswords.io/ingest/ingest/pipeline.(*Worker).Run(0xc000010100, {0x10, 0x20})
	/src/ingest/pipeline/worker.go:58 +0x45
created by pwnedpasswords.io/ingest/private/lifecycle.(*Group).Run in goroutine 1
	/src/private/lifecycle/group.go:70 +0x99
`

func TestCondenseStack(t *testing.T) {
	condensed := string(condenseStack([]byte(sampleStack)))
	require.Equal(t, "1 goroutines [running]\n"+
		"\tmain.main:12\n"+
		"2 goroutines [select]\n"+
		"\tpwnedpasswords.io/ingest/ingest/pipeline.(*Worker).Run:58\n", condensed)
}

func TestCondenseStackUnknownFormat(t *testing.T) {
	require.Equal(t, []byte("garbage"), condenseStack([]byte("garbage")))
}
