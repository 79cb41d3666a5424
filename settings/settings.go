// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings loads the trace manager's configuration (spec.md
// §6 inputs) from CLI flags or environment variables, in the style of
// the teacher's cli_flags.go: a flag.FlagSet parsed through
// github.com/peterbourgon/ff/v3 so every flag can also be set via an
// OTEL_PROFILING_AGENT-style environment prefix — here,
// GFXRECON_CAPTURE_*. Settings *parsing* as a mechanism is out of
// scope for the core proper (spec.md §1); this loader lives in its own
// package and is consumed by tracemanager.New only at the
// TraceSettings struct boundary.
package settings

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/peterbourgon/ff/v3"
)

// TrimRange is one configured {first_frame, count} interval, as parsed
// from a repeatable "-trim-range first:count" flag.
type TrimRange struct {
	First uint32
	Count uint32
}

// TraceSettings is the concrete configuration the trace manager's
// Initialize is given, covering every input named in spec.md §6.
type TraceSettings struct {
	BaseFilename       string
	CompressionType    string
	TimestampFilename  bool
	MemoryTrackingMode string
	ForceFlush         bool
	TrimRanges         []TrimRange
}

// trimRangeList implements flag.Value so -trim-range can be repeated,
// one "first:count" pair per occurrence.
type trimRangeList []TrimRange

func (l *trimRangeList) String() string {
	if l == nil || len(*l) == 0 {
		return ""
	}
	parts := make([]string, len(*l))
	for i, r := range *l {
		parts[i] = fmt.Sprintf("%d:%d", r.First, r.Count)
	}
	return strings.Join(parts, ",")
}

func (l *trimRangeList) Set(s string) error {
	first, count, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("settings: trim range %q must be of the form first:count", s)
	}
	f, err := strconv.ParseUint(first, 10, 32)
	if err != nil {
		return fmt.Errorf("settings: trim range %q: invalid first frame: %w", s, err)
	}
	c, err := strconv.ParseUint(count, 10, 32)
	if err != nil {
		return fmt.Errorf("settings: trim range %q: invalid count: %w", s, err)
	}
	if c == 0 {
		return fmt.Errorf("settings: trim range %q: count must be > 0", s)
	}
	*l = append(*l, TrimRange{First: uint32(f), Count: uint32(c)})
	return nil
}

const envPrefix = "GFXRECON_CAPTURE"

// Load parses args (typically os.Args[1:]) into a TraceSettings, with
// every flag also settable via a GFXRECON_CAPTURE_<FLAG_NAME>
// environment variable.
func Load(args []string) (*TraceSettings, error) {
	var s TraceSettings
	var ranges trimRangeList

	fs := flag.NewFlagSet("gfxtraced", flag.ContinueOnError)
	fs.StringVar(&s.BaseFilename, "base-filename", "capture.gfxr",
		"Base path for the capture file.")
	fs.StringVar(&s.CompressionType, "compression", "none",
		"Block compression algorithm: none, zstd, or s2.")
	fs.BoolVar(&s.TimestampFilename, "timestamp-filename", false,
		"Insert a timestamp into the capture filename before its extension.")
	fs.StringVar(&s.MemoryTrackingMode, "memory-tracking-mode", "page-guard",
		"Mapped-memory tracking mode: page-guard, assisted, or unassisted.")
	fs.BoolVar(&s.ForceFlush, "force-flush", false,
		"Flush the capture file to stable storage after every write.")
	fs.Var(&ranges, "trim-range",
		"A first:count trim range; repeatable. If omitted, the entire run is captured.")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(envPrefix)); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	s.TrimRanges = ranges
	return &s, nil
}

// LoadFromEnvironment is a convenience wrapper for callers that want
// the process's own argv/env, matching main.go's top-level call in the
// teacher.
func LoadFromEnvironment() (*TraceSettings, error) {
	return Load(os.Args[1:])
}
