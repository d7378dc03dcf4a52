// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package batches contains the messages exchanged through the ingestion
// queues and the helpers to send them.
package batches

import (
	"encoding/base64"

	"github.com/zeebo/errs"

	"pwnedpasswords.io/ingest/private/codec"
)

// Error is the error class for message encoding failures.
var Error = errs.Class("batches")

// DefaultBatchSize is the maximum number of submitted values in one batch.
const DefaultBatchSize = 500

// Names are the names of the ingestion queues.
type Names struct {
	Transactions string `help:"queue of confirmed transactions" default:"transaction-ready"`
	Batches      string `help:"queue of password entry batches" default:"password-entry-batches"`
}

// TransactionReady announces that a transaction was confirmed.
type TransactionReady struct {
	SubscriptionID string `cbor:"subscriptionId"`
	TransactionID  string `cbor:"transactionId"`
}

// Entry is one hash in a batch.
type Entry struct {
	// Hash is the full upper-case hex hash.
	Hash       string `cbor:"hash"`
	Prevalence uint32 `cbor:"prevalence"`
	// NTLMHash is set for SHA-1 entries only.
	NTLMHash string `cbor:"ntlmHash,omitempty"`
}

// PasswordEntryBatch is a bounded group of submitted values grouped by
// shard prefix, separately for both hash kinds.
type PasswordEntryBatch struct {
	SubscriptionID string             `cbor:"subscriptionId"`
	TransactionID  string             `cbor:"transactionId"`
	SHA1           map[string][]Entry `cbor:"sha1"`
	NTLM           map[string][]Entry `cbor:"ntlm"`
}

// NewPasswordEntryBatch creates an empty batch for the transaction.
func NewPasswordEntryBatch(subscriptionID, transactionID string) *PasswordEntryBatch {
	return &PasswordEntryBatch{
		SubscriptionID: subscriptionID,
		TransactionID:  transactionID,
		SHA1:           map[string][]Entry{},
		NTLM:           map[string][]Entry{},
	}
}

// Len returns the number of SHA-1 entries, which equals the number of
// submitted values in the batch.
func (batch *PasswordEntryBatch) Len() int {
	n := 0
	for _, entries := range batch.SHA1 {
		n += len(entries)
	}
	return n
}

// Encode encodes a message as base64 of its CBOR form.
func Encode(message any) ([]byte, error) {
	data, err := codec.Marshal(message)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(out, data)
	return out, nil
}

// Decode decodes a message produced by Encode.
func Decode(data []byte, message any) error {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, data)
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(codec.Unmarshal(raw[:n], message))
}
