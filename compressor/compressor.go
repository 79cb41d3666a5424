// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package compressor implements the uniform compress-to-buffer port (C3)
// that the trace manager compresses function-call parameters and
// fill-memory payloads through. Each algorithm owns its own scratch
// growth policy; "not beneficial" is always signaled by returning 0,
// never by an error, so call sites can apply the strict-less-than
// fallback rule without inspecting err.
package compressor

import (
	"fmt"

	"github.com/shanminchao/gfxreconstruct/format"
)

// Compressor compresses src into a caller-owned, growable buffer.
// Implementations must not retain src or the returned buffer across
// calls. A return of 0 means "not beneficial or not supported"; callers
// fall back to the uncompressed form.
type Compressor interface {
	// Compress appends the compressed form of src to *dst (reusing its
	// backing array when there is capacity) and returns the number of
	// compressed bytes appended. A return of 0 means the caller should
	// use the uncompressed payload instead.
	Compress(src []byte, dst *[]byte) (int, error)

	// Decompress restores the original bytes from a previously
	// compressed src of uncompressedSize bytes into dst.
	Decompress(src []byte, uncompressedSize int, dst *[]byte) error

	// Type identifies the algorithm for the file-header option pair.
	Type() format.CompressionType
}

// New constructs the Compressor for the named algorithm. "none" and ""
// both return (nil, nil): the caller is expected to treat a nil
// Compressor as "compression disabled" and skip the compress step
// entirely, matching the C++ original's nullptr compressor_.
func New(algorithm string) (Compressor, error) {
	switch algorithm {
	case "", "none":
		return nil, nil
	case "zstd":
		return newZstd(), nil
	case "s2":
		return newS2(), nil
	default:
		return nil, fmt.Errorf("compressor: unknown compression algorithm %q", algorithm)
	}
}
