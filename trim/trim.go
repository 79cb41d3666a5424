// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package trim implements the trim coordinator (C8): computing trim
// filenames per the §6 convention, and — at range activation — opening
// the new output file, writing its header, and asking the external
// state tracker to snapshot every live object into it before any call
// packet reaches the stream.
package trim

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shanminchao/gfxreconstruct/format"
	"github.com/shanminchao/gfxreconstruct/outputstream"
	"github.com/shanminchao/gfxreconstruct/statetracker"
)

// Range is one configured {first_frame, count} trim interval.
// Ranges are processed in list order; they are assumed non-overlapping
// and monotonically increasing and are never re-sorted (spec.md §3 —
// DESIGN.md Open Question (b)).
type Range struct {
	First format.ApiCallId // first frame number, 1-based
	Count uint32
}

// Last returns the last frame number (inclusive) this range covers.
func (r Range) Last() format.ApiCallId {
	return r.First + format.ApiCallId(r.Count) - 1
}

// Filename computes the on-disk name for a trim range per spec.md §6:
// insert "_frame_N" (single-frame) or "_frames_F_through_L"
// (multi-frame) before the extension, then optionally a timestamp.
// base is unmodified when r is nil (no trim).
func Filename(base string, r *Range, timestamp bool) string {
	name := base
	if r != nil {
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		if r.Count == 1 {
			name = fmt.Sprintf("%s_frame_%d%s", stem, r.First, ext)
		} else {
			name = fmt.Sprintf("%s_frames_%d_through_%d%s", stem, r.First, r.Last(), ext)
		}
	}
	if timestamp {
		name = insertTimestamp(name, time.Now())
	}
	return name
}

func insertTimestamp(name string, at time.Time) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%s%s", stem, at.Format("20060102T150405"), ext)
}

// writer adapts an outputstream.Stream to the statetracker.Writer
// contract the external state tracker serializes snapshot packets
// through; it assumes the caller already holds whatever mutex guards
// the stream.
type writer struct{ s *outputstream.Stream }

func (w writer) WriteBlock(block []byte) { w.s.Write(block) }

// Activate opens a fresh output file at path, writes the file header,
// then asks tracker to serialize every live object into it via
// WriteState — before returning control to the caller, who may now
// start writing ordinary call packets. This ordering is what guarantees
// spec.md §8 invariant 6: every snapshot packet precedes any call
// packet in file order.
func Activate(
	path string, compression format.CompressionType, forceFlush bool, tracker statetracker.Tracker,
) (*outputstream.Stream, error) {
	stream, err := outputstream.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trim: open %q: %w", path, err)
	}

	if err := outputstream.WriteFileHeader(stream, compression, forceFlush); err != nil {
		stream.Close()
		return nil, fmt.Errorf("trim: write file header for %q: %w", path, err)
	}

	if tracker != nil {
		if err := tracker.WriteState(writer{s: stream}); err != nil {
			stream.Close()
			return nil, fmt.Errorf("trim: write state snapshot for %q: %w", path, err)
		}
	}

	return stream, nil
}
