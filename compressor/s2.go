// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package compressor

import (
	"github.com/klauspost/compress/s2"

	"github.com/shanminchao/gfxreconstruct/format"
)

// s2Compressor uses klauspost/compress's S2 (a faster, Snappy-compatible
// codec) as the "algo2" referenced in spec.md §6.
type s2Compressor struct{}

func newS2() *s2Compressor { return &s2Compressor{} }

func (s2Compressor) Compress(src []byte, dst *[]byte) (int, error) {
	before := len(*dst)
	needed := s2.MaxEncodedLen(len(src))
	if cap(*dst)-before < needed {
		grown := make([]byte, before, before+needed)
		copy(grown, *dst)
		*dst = grown
	}
	encoded := s2.Encode((*dst)[before:before+needed], src)
	*dst = (*dst)[:before+len(encoded)]
	return len(encoded), nil
}

func (s2Compressor) Decompress(src []byte, uncompressedSize int, dst *[]byte) error {
	out, err := s2.Decode(make([]byte, uncompressedSize), src)
	if err != nil {
		return err
	}
	*dst = out
	return nil
}

func (s2Compressor) Type() format.CompressionType { return format.CompressionS2 }
