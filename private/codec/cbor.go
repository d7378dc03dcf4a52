// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package codec contains the CBOR and zstd encodings shared by the stores
// and queues.
package codec

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/errs"
)

// Error is the error class for encoding failures.
var Error = errs.Class("codec")

// encMode uses Core Deterministic Encoding, so the same value always
// produces the same bytes. Stores compare encoded values byte-wise in
// CompareAndSwap.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// uuid.UUID and time.Time are encoded through their text form.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	return data, Error.Wrap(err)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return Error.Wrap(decMode.Unmarshal(data, v))
}
