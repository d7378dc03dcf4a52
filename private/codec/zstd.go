// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdEncoder is shared by all callers; EncodeAll is safe for concurrent use.
var zstdEncoder *zstd.Encoder

// zstdDecoder is shared by all callers; DecodeAll is safe for concurrent use.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress compresses data into a single zstd frame.
func Compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/4))
}

// Decompress decompresses a complete zstd frame.
func Decompress(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	return out, Error.Wrap(err)
}

// NewDecompressor returns a streaming zstd reader over r.
// The returned reader must be closed.
func NewDecompressor(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return decoder.IOReadCloser(), nil
}
