// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package compressor

import (
	"github.com/klauspost/compress/zstd"

	"github.com/shanminchao/gfxreconstruct/format"
)

type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstd() *zstdCompressor {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	dec, _ := zstd.NewReader(nil)
	return &zstdCompressor{enc: enc, dec: dec}
}

func (z *zstdCompressor) Compress(src []byte, dst *[]byte) (int, error) {
	before := len(*dst)
	*dst = z.enc.EncodeAll(src, (*dst)[:before])
	return len(*dst) - before, nil
}

func (z *zstdCompressor) Decompress(src []byte, uncompressedSize int, dst *[]byte) error {
	out, err := z.dec.DecodeAll(src, make([]byte, 0, uncompressedSize))
	if err != nil {
		return err
	}
	*dst = out
	return nil
}

func (z *zstdCompressor) Type() format.CompressionType { return format.CompressionZstd }
