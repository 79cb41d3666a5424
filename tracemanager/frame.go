// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracemanager

import (
	"github.com/sirupsen/logrus"

	"github.com/shanminchao/gfxreconstruct/capturemode"
	"github.com/shanminchao/gfxreconstruct/format"
)

// EndFrame drives the capture-mode state machine (C7, spec.md §4.7).
// The frame counter is incremented first; mode transitions only happen
// when trim is enabled — with no trim ranges configured, Write stays
// set for the life of the process and EndFrame is just a counter.
func (m *Manager) EndFrame() {
	m.fileMu.Lock()
	defer m.fileMu.Unlock()

	m.frame++

	if !m.trimEnabled {
		return
	}

	switch {
	case m.mode.Has(capturemode.Write):
		m.onEndFrameWhileWritingLocked()
	case m.mode.Has(capturemode.Track):
		m.onEndFrameWhileTrackingLocked()
	}
}

func (m *Manager) onEndFrameWhileWritingLocked() {
	active := &m.trimRanges[m.rangeIdx]
	active.Count--
	if active.Count > 0 {
		return
	}

	m.mode = m.mode.Clear(capturemode.Write)
	if m.stream != nil {
		if err := m.stream.Close(); err != nil {
			logrus.WithError(err).Warn("tracemanager: closing trim file")
		}
		m.stream = nil
	}
	m.rangeIdx++

	if m.rangeIdx >= len(m.trimRanges) {
		m.mode = capturemode.Disabled
		m.stateTracker = nil
		m.compressor = nil
		m.trimEnabled = false
		return
	}

	if m.trimRanges[m.rangeIdx].First == format.ApiCallId(m.frame) {
		m.activateTrimmingAtFrameLocked()
	}
}

func (m *Manager) onEndFrameWhileTrackingLocked() {
	if m.rangeIdx >= len(m.trimRanges) {
		return
	}
	if m.trimRanges[m.rangeIdx].First == format.ApiCallId(m.frame) {
		m.activateTrimmingAtFrameLocked()
	}
}

// activateTrimmingAtFrameLocked implements "Activate Trimming" from
// spec.md §4.7: open a new trim file and write a state snapshot into
// it; on failure, log fatal and disable capture entirely. Activating the
// last configured range also clears Track: no later range needs a
// snapshot.
func (m *Manager) activateTrimmingAtFrameLocked() {
	if err := m.activateTrimmingLocked(); err != nil {
		m.disableOnFatal(err)
		return
	}
	m.mode = m.mode.Set(capturemode.Write)
	if m.rangeIdx == len(m.trimRanges)-1 {
		m.mode = m.mode.Clear(capturemode.Track)
	}
}
