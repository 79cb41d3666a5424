// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package outputstream implements the sequential, append-only byte sink
// (C4) that capture packets are written to, and the file-header framing
// written once at the start of a capture file.
package outputstream

import (
	"os"

	"github.com/shanminchao/gfxreconstruct/format"
)

// Stream is a sequential output file. It tracks the number of bytes
// written so far; short writes are reported through the returned count
// rather than retried, matching spec.md §7's "propagate through the byte
// counter" policy for OS I/O errors.
type Stream struct {
	file    *os.File
	written uint64
}

// Create opens path for writing, truncating any existing file, and
// returns a Stream over it. The caller owns the returned Stream and must
// Close it.
func Create(path string) (*Stream, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Stream{file: f}, nil
}

// IsValid reports whether the stream is backed by an open file.
func (s *Stream) IsValid() bool {
	return s != nil && s.file != nil
}

// Write appends p to the stream and returns the number of bytes
// actually written. A short write is not retried; it is surfaced via the
// return value so callers can decide whether the capture is still a
// valid prefix.
func (s *Stream) Write(p []byte) int {
	n, _ := s.file.Write(p)
	s.written += uint64(n)
	return n
}

// Flush forces any OS-buffered bytes to stable storage.
func (s *Stream) Flush() error {
	return s.file.Sync()
}

// BytesWritten returns the running total of bytes successfully written.
func (s *Stream) BytesWritten() uint64 {
	return s.written
}

// Close releases the underlying file descriptor.
func (s *Stream) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// WriteFileHeader writes the fixed file preamble — fourcc, version, and
// option-pair list — as specified in spec.md §6. The only option
// currently recorded is the compression type.
func WriteFileHeader(s *Stream, compression format.CompressionType, forceFlush bool) error {
	buf := format.Marshal(format.FileHeader{
		Fourcc:       format.Fourcc,
		MajorVersion: format.CurrentMajorVersion,
		MinorVersion: format.CurrentMinorVersion,
	}, []format.FileOptionPair{
		{OptionId: format.FileOptionCompressionType, OptionValue: uint32(compression)},
	})

	s.Write(buf)
	if forceFlush {
		return s.Flush()
	}
	return nil
}
