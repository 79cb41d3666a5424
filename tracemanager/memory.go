// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracemanager

import (
	"github.com/shanminchao/gfxreconstruct/capturemode"
	"github.com/shanminchao/gfxreconstruct/descriptortemplate"
	"github.com/shanminchao/gfxreconstruct/format"
	"github.com/shanminchao/gfxreconstruct/memtrack"
	"github.com/shanminchao/gfxreconstruct/metrics"
)

// PostProcess_AllocateMemory records allocation_size on a wrapper for
// memoryID, whether or not state tracking is on; nothing about the
// allocation is delegated to the state tracker. This core keeps its own
// minimal wrapper entry so later map/unmap/flush/submit hooks have
// something to route through; the real handle-wrapping
// utility that would otherwise own this object is out of scope
// (spec.md §1).
func (m *Manager) PostProcess_AllocateMemory(memoryID format.HandleId, allocationSize uint64) {
	w := &memtrack.Wrapper{HandleID: memoryID, AllocationSize: allocationSize}

	m.wrappersMu.Lock()
	m.wrappers[memoryID] = w
	m.wrappersMu.Unlock()
}

func (m *Manager) wrapperFor(memoryID format.HandleId) *memtrack.Wrapper {
	m.wrappersMu.Lock()
	defer m.wrappersMu.Unlock()
	return m.wrappers[memoryID]
}

// PostProcess_MapMemory registers the mapping per spec.md §4.6 and, in
// page-guard mode, returns the tracker's effective pointer, which the
// caller must substitute for the pointer the driver returned. The
// returned slice is for reads; writes the application makes into the
// mapping must go through WriteMappedMemory.
func (m *Manager) PostProcess_MapMemory(memoryID format.HandleId, offset, size uint64, hostPtr []byte) []byte {
	w := m.wrapperFor(memoryID)
	if w == nil {
		return hostPtr
	}

	track := m.Mode().Has(capturemode.Track)
	effective := m.memPolicy.Map(w, offset, size, hostPtr, track, m.stateTracker)
	m.memPolicy.RegisterMapped(w)
	return effective
}

// WriteMappedMemory routes a write the application makes into mapped
// memory through the active tracking policy, standing in for the
// pointer substitution an out-of-scope API shim would otherwise apply
// transparently (spec.md §1): in PageGuard mode this is what actually
// records the touched bytes as dirty; in the other two modes it is a
// plain bounded copy into the mapped buffer.
func (m *Manager) WriteMappedMemory(memoryID format.HandleId, offset uint64, data []byte) {
	w := m.wrapperFor(memoryID)
	if w == nil {
		return
	}
	_, _ = m.memPolicy.Write(w, offset, data)
}

// emitFill builds and writes a FillMemoryCommand, opportunistically
// compressing its payload under the same strict-less-than rule
// EndApiCallTrace uses, and is itself guarded by Write mode per
// spec.md §4.2. It is the shared sink every memtrack.FillFunc callback
// below is bound to.
func (m *Manager) emitFill(memoryID format.HandleId, offset, size uint64, data []byte) {
	if !m.Mode().Has(capturemode.Write) {
		return
	}

	threadID := currentThreadID()

	payload := data
	compressed := false
	if m.compressor != nil {
		var scratch []byte
		n, err := m.compressor.Compress(data, &scratch)
		if err == nil && n > 0 && n < len(data) {
			payload = scratch[:n]
			compressed = true
			m.metrics.RecordCompression(n, len(data))
		}
	}

	block := format.EncodeFillMemory(nil, threadID, memoryID, offset, uint64(len(data)), payload, compressed)
	m.writeBlock(block, metrics.PacketFillMemory)
	m.metrics.RecordDirtyRegions(1)
}

// PreProcess_UnmapMemory implements spec.md §4.6's unmap contract: one
// last harvest for page-guard, one full-extent fill for unassisted,
// nothing for assisted. Unmapping an already-unmapped wrapper is a
// warning-only no-op (spec.md §8 invariant 8), handled inside
// memtrack.Policy.Unmap.
func (m *Manager) PreProcess_UnmapMemory(memoryID format.HandleId) {
	w := m.wrapperFor(memoryID)
	if w == nil {
		return
	}
	track := m.Mode().Has(capturemode.Track)
	m.memPolicy.Unmap(w, track, m.stateTracker, m.emitFill)
}

// PreProcess_FreeMemory releases tracking resources without emitting a
// fill command, then drops the wrapper from this core's registry.
func (m *Manager) PreProcess_FreeMemory(memoryID format.HandleId) {
	w := m.wrapperFor(memoryID)
	if w == nil {
		return
	}
	m.memPolicy.Free(w)

	m.wrappersMu.Lock()
	delete(m.wrappers, memoryID)
	m.wrappersMu.Unlock()
}

// FlushRange is one application-declared {memory, offset, size} range
// from a VkMappedMemoryRange-style flush call.
type FlushRange struct {
	MemoryID format.HandleId
	Offset   uint64
	Size     uint64
}

// PreProcess_FlushMappedMemoryRanges implements spec.md §4.6/§4.9: in
// page-guard mode it harvests each referenced memory object at most
// once, suppressing consecutive duplicates; in assisted mode it emits
// one fill per declared range, re-based to be relative to the mapped
// pointer; in unassisted mode it is a no-op (that mode only reacts to
// queue-submit).
func (m *Manager) PreProcess_FlushMappedMemoryRanges(ranges []FlushRange) {
	switch m.memPolicy.Kind() {
	case memtrack.PageGuard:
		ids := make([]format.HandleId, len(ranges))
		for i, r := range ranges {
			ids[i] = r.MemoryID
		}
		m.memPolicy.FlushPageGuard(ids, m.emitFill)
	case memtrack.Assisted:
		for _, r := range ranges {
			w := m.wrapperFor(r.MemoryID)
			if w == nil {
				continue
			}
			m.memPolicy.FlushAssisted(w, []memtrack.FlushRange{{Offset: r.Offset, Size: r.Size}}, m.emitFill)
		}
	case memtrack.Unassisted:
		// No-op: unassisted mode only harvests at queue-submit.
	}
}

// PreProcess_QueueSubmit implements spec.md §4.6's queue-submit
// contract for page-guard and unassisted mode; assisted mode is a
// no-op here too.
func (m *Manager) PreProcess_QueueSubmit() {
	switch m.memPolicy.Kind() {
	case memtrack.PageGuard:
		m.memPolicy.SubmitPageGuard(m.emitFill)
	case memtrack.Unassisted:
		m.memPolicy.QueueSubmit(m.emitFill)
	case memtrack.Assisted:
	}
}

// PreProcess_CreateDescriptorUpdateTemplate precomputes the per-kind
// entry layout for a newly created update template (spec.md §4.10).
// Entries naming an unsupported descriptor type are dropped with a
// logged error; the template is still created with whatever entries
// remain.
func (m *Manager) PreProcess_CreateDescriptorUpdateTemplate(templateID format.HandleId, raw []descriptortemplate.RawEntry) {
	layout := descriptortemplate.Build(raw, func(entry descriptortemplate.RawEntry, err error) {
		logrusWarnUnsupportedEntry(templateID, entry, err)
	})

	m.templatesMu.Lock()
	m.templates[templateID] = layout
	m.templatesMu.Unlock()
}

// TemplateLayout returns the precomputed layout for templateID, for
// the update-apply walk in spec.md §4.10. The second return is false
// if the template is unknown.
func (m *Manager) TemplateLayout(templateID format.HandleId) (descriptortemplate.Layout, bool) {
	m.templatesMu.Lock()
	defer m.templatesMu.Unlock()
	layout, ok := m.templates[templateID]
	return layout, ok
}
