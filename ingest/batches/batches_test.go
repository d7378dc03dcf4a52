// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package batches_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/ingest/batches"
	"pwnedpasswords.io/ingest/private/hashutil"
	"pwnedpasswords.io/ingest/private/queue/memqueue"
)

var names = batches.Names{Transactions: "tx", Batches: "batches"}

func TestEncodeDecode(t *testing.T) {
	batch := batches.NewPasswordEntryBatch("sub", "tx")
	batch.SHA1["5BAA6"] = []batches.Entry{{Hash: hashutil.SHA1Hex("password"), Prevalence: 3, NTLMHash: hashutil.NTLMHex("password")}}
	batch.NTLM["8846F"] = []batches.Entry{{Hash: hashutil.NTLMHex("password"), Prevalence: 3}}

	data, err := batches.Encode(batch)
	require.NoError(t, err)
	require.Regexp(t, `^[A-Za-z0-9+/]+=*$`, string(data))

	var decoded batches.PasswordEntryBatch
	require.NoError(t, batches.Decode(data, &decoded))
	require.Equal(t, *batch, decoded)
	require.Equal(t, 1, decoded.Len())

	require.True(t, batches.Error.Has(batches.Decode([]byte("!!!"), &decoded)))
}

func TestBuilderFlushesAtBatchSize(t *testing.T) {
	ctx := testcontext.New(t)
	q := memqueue.New()
	sender := batches.NewSender(q, names)

	builder := batches.NewBuilder(sender, 3, "sub", "tx")
	for i := range 7 {
		password := fmt.Sprint("password", i)
		require.NoError(t, builder.Add(ctx, hashutil.SHA1Hex(password), hashutil.NTLMHex(password), uint32(i+1)))
	}

	n, err := q.Len(ctx, names.Batches)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, builder.Flush(ctx))
	require.NoError(t, builder.Flush(ctx))

	var sizes []int
	for {
		msg, err := q.Receive(ctx, names.Batches)
		if err != nil {
			break
		}
		var batch batches.PasswordEntryBatch
		require.NoError(t, batches.Decode(msg.Body, &batch))
		require.Equal(t, "sub", batch.SubscriptionID)
		require.Equal(t, "tx", batch.TransactionID)

		ntlm := 0
		for prefix, entries := range batch.NTLM {
			for _, entry := range entries {
				require.Equal(t, prefix, entry.Hash[:hashutil.PrefixLength])
				require.Empty(t, entry.NTLMHash)
				ntlm++
			}
		}
		require.Equal(t, batch.Len(), ntlm)
		sizes = append(sizes, batch.Len())
	}
	require.Equal(t, []int{3, 3, 1}, sizes)
}

func TestBuilderUppercases(t *testing.T) {
	ctx := testcontext.New(t)
	q := memqueue.New()
	builder := batches.NewBuilder(batches.NewSender(q, names), 0, "sub", "tx")

	require.NoError(t, builder.Add(ctx, "5baa61e4c9b93f3f0682250b6cf8331b7ee68fd8", "8846f7eaee8fb117ad06bdd830b7586c", 1))
	require.NoError(t, builder.Flush(ctx))

	msg, err := q.Receive(ctx, names.Batches)
	require.NoError(t, err)
	var batch batches.PasswordEntryBatch
	require.NoError(t, batches.Decode(msg.Body, &batch))

	require.Equal(t, []batches.Entry{{
		Hash:       "5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8",
		Prevalence: 1,
		NTLMHash:   "8846F7EAEE8FB117AD06BDD830B7586C",
	}}, batch.SHA1["5BAA6"])
	require.Equal(t, []batches.Entry{{
		Hash:       "8846F7EAEE8FB117AD06BDD830B7586C",
		Prevalence: 1,
	}}, batch.NTLM["8846F"])
}

func TestTransactionReady(t *testing.T) {
	ctx := testcontext.New(t)
	q := memqueue.New()
	sender := batches.NewSender(q, names)

	require.NoError(t, sender.SendTransactionReady(ctx, batches.TransactionReady{SubscriptionID: "sub", TransactionID: "id"}))

	msg, err := q.Receive(ctx, names.Transactions)
	require.NoError(t, err)
	var ready batches.TransactionReady
	require.NoError(t, batches.Decode(msg.Body, &ready))
	require.Equal(t, batches.TransactionReady{SubscriptionID: "sub", TransactionID: "id"}, ready)
}
