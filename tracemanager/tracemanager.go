// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracemanager implements the trace manager facade (C9) and
// the capture-mode frame-boundary state machine it drives (C7): the
// process-wide singleton that composes every other component in this
// module and exposes the PreProcess_*/PostProcess_* hooks the
// generated API shims invoke.
package tracemanager

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shanminchao/gfxreconstruct/capturemode"
	"github.com/shanminchao/gfxreconstruct/compressor"
	"github.com/shanminchao/gfxreconstruct/descriptortemplate"
	"github.com/shanminchao/gfxreconstruct/format"
	"github.com/shanminchao/gfxreconstruct/internal/syncutil"
	"github.com/shanminchao/gfxreconstruct/memtrack"
	"github.com/shanminchao/gfxreconstruct/metrics"
	"github.com/shanminchao/gfxreconstruct/outputstream"
	"github.com/shanminchao/gfxreconstruct/settings"
	"github.com/shanminchao/gfxreconstruct/statetracker"
	"github.com/shanminchao/gfxreconstruct/trim"
)

// Manager is the process-wide Trace Manager singleton (spec.md §3). A
// single instance is shared by every "API instance" the application
// creates in this process; CreateInstance/DestroyInstance manage its
// reference count.
type Manager struct {
	// fileMu guards every field touched while a packet is being
	// written or the capture mode transitions: the stream, the
	// compressor, the state tracker, the mode bitmask, the frame
	// counter, and the trim range cursor. One packet's header+payload
	// is always written inside a single critical section so packets
	// never interleave on disk (spec.md §5).
	fileMu sync.Mutex

	stream       *outputstream.Stream
	compression  format.CompressionType
	compressor   compressor.Compressor
	stateTracker statetracker.Tracker
	mode         capturemode.Mode
	frame        uint64
	trimRanges   []trim.Range
	rangeIdx     int
	trimEnabled  bool

	baseFilename      string
	forceFlush        bool
	timestampFilename bool

	memPolicy *memtrack.Policy

	// wrappersMu guards the memory-wrapper registry. The real
	// handle-wrapping utility that owns DeviceMemoryWrapper instances
	// is out of scope (spec.md §1); this registry is this core's own
	// minimal stand-in, just enough to route Map/Unmap/Free calls to
	// the right *memtrack.Wrapper.
	wrappersMu sync.Mutex
	wrappers   map[format.HandleId]*memtrack.Wrapper

	templatesMu sync.Mutex
	templates   map[format.HandleId]descriptortemplate.Layout

	metrics *metrics.Recorder
}

var singleton syncutil.RefCounted[*Manager]

// CreateInstance increments the process-wide reference count. On the
// first call it loads settings and constructs and initializes the
// singleton through New — matching TraceManager::CreateInstance in the
// original.
func CreateInstance() (*Manager, error) {
	m, _, err := singleton.GetOrCreate(func() (*Manager, error) {
		cfg, err := settings.LoadFromEnvironment()
		if err != nil {
			return nil, err
		}
		logrus.WithField("base_filename", cfg.BaseFilename).Info("tracemanager: creating instance")
		return New(cfg)
	})
	return m, err
}

// DestroyInstance decrements the reference count and, when it reaches
// zero, tears down the singleton.
func DestroyInstance() {
	singleton.Release(func(m *Manager) {
		if m == nil {
			return
		}
		if err := m.shutdown(); err != nil {
			logrus.WithError(err).WithField("severity", "fatal").Error("tracemanager: shutdown")
		}
	})
}

// CheckCreateInstanceStatus inverts a failed "create API instance"
// call: if result reports failure, the reference count CreateInstance
// just bumped must be immediately given back.
func CheckCreateInstanceStatus(success bool) {
	if !success {
		DestroyInstance()
	}
}

// New constructs and initializes a Manager directly, without going
// through the process-wide singleton. Most callers should use
// CreateInstance/DestroyInstance instead; New exists so tests (and
// alternative embedders that want more than one independent capture
// session in a process) can bypass the refcounted global.
func New(cfg *settings.TraceSettings) (*Manager, error) {
	m := &Manager{
		baseFilename:      cfg.BaseFilename,
		forceFlush:        cfg.ForceFlush,
		timestampFilename: cfg.TimestampFilename,
		wrappers:          make(map[format.HandleId]*memtrack.Wrapper),
		templates:         make(map[format.HandleId]descriptortemplate.Layout),
		metrics:           metrics.New(),
		frame:             1,
	}

	for _, r := range cfg.TrimRanges {
		m.trimRanges = append(m.trimRanges, trim.Range{First: format.ApiCallId(r.First), Count: r.Count})
	}
	m.trimEnabled = len(m.trimRanges) > 0

	c, err := compressor.New(cfg.CompressionType)
	if err != nil {
		logrus.WithError(err).WithField("severity", "fatal").Error("tracemanager: initialize")
		m.mode = capturemode.Disabled
		return m, nil
	}
	m.compressor = c
	m.compression = compressionOption(c)

	kind, ok := memtrack.ParseKind(cfg.MemoryTrackingMode)
	if !ok {
		logrus.WithField("mode", cfg.MemoryTrackingMode).
			WithField("severity", "fatal").Error("tracemanager: initialize: unknown memory tracking mode")
		m.mode = capturemode.Disabled
		return m, nil
	}
	m.memPolicy = memtrack.New(kind, false)

	switch {
	case !m.trimEnabled:
		m.mode = capturemode.Write
		if err := m.openStreamLocked(nil); err != nil {
			m.disableOnFatal(err)
		}
	case m.trimRanges[0].First == 1:
		if len(m.trimRanges) == 1 {
			m.mode = capturemode.Write
		} else {
			m.mode = capturemode.Write | capturemode.Track
		}
		if err := m.activateTrimmingLocked(); err != nil {
			m.disableOnFatal(err)
		}
	default:
		m.mode = capturemode.Track
	}

	return m, nil
}

func compressionOption(c compressor.Compressor) format.CompressionType {
	if c == nil {
		return format.CompressionNone
	}
	return c.Type()
}

func (m *Manager) disableOnFatal(err error) {
	logrus.WithError(err).WithField("severity", "fatal").Error("tracemanager: trim activation failed")
	m.mode = capturemode.Disabled
	m.stateTracker = nil
	m.compressor = nil
	m.trimEnabled = false
}

// openStreamLocked opens the plain (non-trim) capture file. Callers
// must hold fileMu.
func (m *Manager) openStreamLocked(r *trim.Range) error {
	path := trim.Filename(m.baseFilename, r, m.timestampFilename)
	stream, err := outputstream.Create(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	if err := outputstream.WriteFileHeader(stream, m.compression, m.forceFlush); err != nil {
		stream.Close()
		return err
	}
	m.stream = stream
	return nil
}

// activateTrimmingLocked opens a new trim file named for the active
// range and, on success, writes a full state snapshot into it before
// any call packet can reach the stream. Callers must hold fileMu.
func (m *Manager) activateTrimmingLocked() error {
	path := trim.Filename(m.baseFilename, &m.trimRanges[m.rangeIdx], m.timestampFilename)
	stream, err := trim.Activate(path, m.compression, m.forceFlush, m.stateTracker)
	if err != nil {
		return err
	}
	m.stream = stream
	return nil
}

// SetStateTracker installs the external live-object state tracker
// (out of scope per spec.md §1; consumed only via this contract).
// Typically called once, right after CreateInstance, by the code that
// wires this core into a concrete API shim layer.
func (m *Manager) SetStateTracker(t statetracker.Tracker) {
	m.fileMu.Lock()
	defer m.fileMu.Unlock()
	m.stateTracker = t
}

// Mode reports the current capture mode, for tests and metrics.
func (m *Manager) Mode() capturemode.Mode {
	m.fileMu.Lock()
	defer m.fileMu.Unlock()
	return m.mode
}

// Frame reports the current 1-based frame number.
func (m *Manager) Frame() uint64 {
	m.fileMu.Lock()
	defer m.fileMu.Unlock()
	return m.frame
}

// shutdown releases every owned resource — stream, memory-tracking
// policy — on all exit paths, per spec.md §5's resource-scoping rule.
// The two teardowns don't depend on each other, so they run
// concurrently rather than being sequenced for no reason.
func (m *Manager) shutdown() error {
	var g errgroup.Group
	g.Go(func() error {
		m.fileMu.Lock()
		defer m.fileMu.Unlock()
		if m.stream != nil {
			return m.stream.Close()
		}
		return nil
	})
	g.Go(func() error {
		if m.memPolicy != nil {
			m.memPolicy.Close()
		}
		return nil
	})
	return g.Wait()
}
