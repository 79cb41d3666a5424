// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package memtrack implements the memory-tracking policy (C6): the
// three mutually-exclusive modes — page-guard, assisted, unassisted —
// that route map/unmap/flush/queue-submit events into fill-memory
// emissions. The mode is chosen once at initialization and is immutable
// for the lifetime of the trace manager; spec.md §9 calls this out as a
// finite tagged variant rather than a polymorphic interface, since the
// three paths differ enough that inlined dispatch reads clearer than a
// virtual call.
package memtrack

import (
	"github.com/sirupsen/logrus"

	"github.com/shanminchao/gfxreconstruct/format"
	"github.com/shanminchao/gfxreconstruct/internal/syncutil"
	"github.com/shanminchao/gfxreconstruct/pageguard"
	"github.com/shanminchao/gfxreconstruct/statetracker"
)

// WholeSize is the sentinel the API uses for "the rest of the
// allocation" in both map and flush calls (mirrors Vulkan's
// VK_WHOLE_SIZE).
const WholeSize uint64 = ^uint64(0)

// Kind names one of the three mutually exclusive tracking modes.
type Kind int

const (
	PageGuard Kind = iota
	Assisted
	Unassisted
)

func (k Kind) String() string {
	switch k {
	case PageGuard:
		return "page-guard"
	case Assisted:
		return "assisted"
	case Unassisted:
		return "unassisted"
	default:
		return "unknown"
	}
}

// ParseKind maps a settings string onto a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "page-guard", "":
		return PageGuard, true
	case "assisted":
		return Assisted, true
	case "unassisted":
		return Unassisted, true
	default:
		return 0, false
	}
}

// Wrapper is the subset of DeviceMemoryWrapper (spec.md §3) this
// package reads and writes. It is owned by the out-of-scope
// handle-wrapping utility; this package only ever receives a pointer
// to one, it never allocates or frees them.
type Wrapper struct {
	HandleID       format.HandleId
	AllocationSize uint64
	MappedData     []byte
	MappedOffset   uint64
	MappedSize     uint64
}

// Mapped reports whether the wrapper currently has a live mapping.
func (w *Wrapper) Mapped() bool { return w.MappedData != nil }

// FillFunc is invoked once per fill-memory region a policy method
// harvests; data is the current contents of the region, ready to be
// framed into a FillMemoryCommand by the caller.
type FillFunc func(memoryID format.HandleId, offset, size uint64, data []byte)

// FlushRange is one application-declared dirty range in assisted mode.
// Offset is memory-object-relative, matching the application's own
// VkMappedMemoryRange.
type FlushRange struct {
	Offset uint64
	Size   uint64
}

// Policy is the immutable memory-tracking mode plus whatever state that
// mode needs: a page-guard tracker, or the unassisted mode's set of
// currently-mapped wrappers. Assisted mode needs no extra state beyond
// the wrapper itself.
type Policy struct {
	kind      Kind
	guard     *pageguard.Tracker
	useShadow bool

	unassisted syncutil.RWMutex[map[format.HandleId]*Wrapper]
}

// New constructs a Policy for kind. useShadow is only meaningful for
// PageGuard; it is forwarded to pageguard.Tracker.AddMemory.
func New(kind Kind, useShadow bool) *Policy {
	p := &Policy{kind: kind, useShadow: useShadow}
	if kind == PageGuard {
		p.guard = pageguard.New()
	}
	if kind == Unassisted {
		p.unassisted = syncutil.NewRWMutex(make(map[format.HandleId]*Wrapper))
	}
	return p
}

// Kind reports the policy's mode.
func (p *Policy) Kind() Kind { return p.kind }

// Close releases whatever tracking state the policy holds: every
// page-guard region, or the unassisted mapped-wrapper set. It does not
// touch the wrappers themselves, which outlive the policy.
func (p *Policy) Close() {
	switch p.kind {
	case PageGuard:
		p.guard.ProcessMemoryEntries(func(format.HandleId, uint64, uint64, []byte) {})
		p.guard = pageguard.New()
	case Unassisted:
		ref := p.unassisted.WLock()
		*ref = make(map[format.HandleId]*Wrapper)
		p.unassisted.WUnlock(&ref)
	case Assisted:
	}
}

// resolveWholeSizeFromStart resolves WholeSize against the full
// allocation, matching VK_WHOLE_SIZE semantics for map-time
// page-guard registration and the unassisted full-extent fill paths,
// neither of which subtracts any offset; any other value passes
// through unchanged.
func resolveWholeSizeFromStart(size, allocationSize uint64) uint64 {
	if size != WholeSize {
		return size
	}
	return allocationSize
}

// resolveWholeSizeFromOffset resolves WholeSize against
// allocationSize-offset, matching VK_WHOLE_SIZE semantics for the
// assisted-flush path, where the declared range starts at offset
// rather than at the beginning of the allocation; any other value
// passes through unchanged.
func resolveWholeSizeFromOffset(size, allocationSize, offset uint64) uint64 {
	if size != WholeSize {
		return size
	}
	return allocationSize - offset
}

// Map registers a successful mapping of w per spec.md §4.6. The mapping
// is always recorded on w itself; when track is true and tracker is
// non-nil, it is also recorded on the external state tracker, so the
// two recipients are not exclusive. Re-mapping an already-mapped
// wrapper logs a warning and is a no-op; it returns w.MappedData, the
// host slice recorded at the first map (with useShadow set, that is not
// the shadow accessor the first Map returned).
//
// In PageGuard mode the returned slice is the tracker's effective
// accessor, which the caller must substitute for the host pointer the
// driver returned — per the page-guard pointer-substitution contract.
// In the other two modes the returned slice is hostPtr unchanged. The
// returned slice is safe to read directly; writes must go through
// Write instead, since a plain slice write leaves PageGuard mode
// nothing to observe.
func (p *Policy) Map(
	w *Wrapper, offset, size uint64, hostPtr []byte,
	track bool, tracker statetracker.Tracker,
) []byte {
	if w.Mapped() {
		logrus.WithField("memory_id", w.HandleID).Warn("memtrack: re-mapping an already-mapped object; ignoring")
		return w.MappedData
	}

	// VK_WHOLE_SIZE at map time is resolved against AllocationSize
	// alone (no offset subtracted) for page-guard registration, but
	// the raw (possibly-unresolved) size is what gets recorded on the
	// wrapper / state tracker.
	registeredSize := resolveWholeSizeFromStart(size, w.AllocationSize)

	// The wrapper's own fields are always kept current: PageGuard and
	// Unassisted mode need hostPtr/offset/size regardless of Track mode
	// to do their own bookkeeping. When Track mode is also on, the
	// external state tracker additionally becomes the authoritative
	// store for replay purposes, per spec.md §4.6 — the two are not
	// actually exclusive at the implementation level, only at the level
	// of "who a replayer trusts".
	w.MappedOffset = offset
	w.MappedSize = size
	w.MappedData = hostPtr

	if track && tracker != nil {
		tracker.MapMemory(w.HandleID, 0, offset, size)
	}

	if p.kind != PageGuard {
		return hostPtr
	}

	region := p.guard.AddMemory(w.HandleID, hostPtr[:registeredSize], p.useShadow)
	return region.Bytes()
}

// Write routes a write of data into w's mapped region at offset
// (relative to the mapped pointer), recording it as dirty in PageGuard
// mode. It is the tracked-write substitute for the direct pointer
// write the application would otherwise make through the raw mapped
// pointer — per the page-guard pointer-substitution contract, every
// such write must go through here instead of indexing MappedData
// directly, since a plain slice write leaves no trap Go can observe.
func (p *Policy) Write(w *Wrapper, offset uint64, data []byte) (int, error) {
	if !w.Mapped() {
		return 0, nil
	}
	if p.kind == PageGuard {
		return p.guard.WriteAt(w.HandleID, offset, data)
	}
	return copy(w.MappedData[offset:], data), nil
}

// Unmap releases a previously mapped wrapper. Unmapping an
// already-unmapped wrapper is a warning-only no-op (spec.md §8
// invariant 8) and calls emit for nothing.
//
//   - PageGuard: harvests any remaining dirty ranges (emitting one
//     FillMemoryCommand per range) before releasing tracking.
//   - Assisted: emits nothing; the application already flushed what it
//     wanted to via explicit flush calls.
//   - Unassisted: emits exactly one full-extent fill before
//     de-registering.
func (p *Policy) Unmap(w *Wrapper, track bool, tracker statetracker.Tracker, emit FillFunc) {
	if !w.Mapped() {
		logrus.WithField("memory_id", w.HandleID).Warn("memtrack: unmapping an already-unmapped object; ignoring")
		return
	}

	switch p.kind {
	case PageGuard:
		p.guard.ProcessMemoryEntry(w.HandleID, pageguard.VisitFunc(emit))
		p.guard.RemoveMemory(w.HandleID)
	case Unassisted:
		size := resolveWholeSizeFromStart(w.MappedSize, w.AllocationSize)
		emit(w.HandleID, 0, size, w.MappedData[:size])
		ref := p.unassisted.WLock()
		delete(*ref, w.HandleID)
		p.unassisted.WUnlock(&ref)
	case Assisted:
		// No implicit emission; assisted mode only reacts to explicit
		// flush calls.
	}

	if track && tracker != nil {
		tracker.UnmapMemory(w.HandleID)
	}

	w.MappedData = nil
	w.MappedOffset = 0
	w.MappedSize = 0
}

// Free releases tracking resources for a wrapper being destroyed
// without a prior Unmap. No fill command is emitted — the memory is
// going away, not being flushed.
func (p *Policy) Free(w *Wrapper) {
	if !w.Mapped() {
		return
	}
	switch p.kind {
	case PageGuard:
		p.guard.RemoveMemory(w.HandleID)
	case Unassisted:
		ref := p.unassisted.WLock()
		delete(*ref, w.HandleID)
		p.unassisted.WUnlock(&ref)
	case Assisted:
	}

	w.MappedData = nil
	w.MappedOffset = 0
	w.MappedSize = 0
}

// RegisterMapped adds w to the unassisted-mode mapped set. It is a
// no-op outside Unassisted mode. Callers invoke it after Map succeeds
// so QueueSubmit can later iterate every currently-mapped wrapper.
func (p *Policy) RegisterMapped(w *Wrapper) {
	if p.kind != Unassisted {
		return
	}
	ref := p.unassisted.WLock()
	(*ref)[w.HandleID] = w
	p.unassisted.WUnlock(&ref)
}

// FlushAssisted emits one FillMemoryCommand per supplied range, for
// Assisted mode. Offsets are re-based so they are relative to the
// mapped pointer: the application's range.Offset is memory-object
// relative, but w.MappedOffset must be subtracted to get an offset
// relative to w.MappedData. WholeSize resolves against
// AllocationSize-range.Offset.
func (p *Policy) FlushAssisted(w *Wrapper, ranges []FlushRange, emit FillFunc) {
	if p.kind != Assisted || !w.Mapped() {
		return
	}
	for _, r := range ranges {
		size := resolveWholeSizeFromOffset(r.Size, w.AllocationSize, r.Offset)
		relOffset := r.Offset - w.MappedOffset
		end := relOffset + size
		if end > uint64(len(w.MappedData)) {
			end = uint64(len(w.MappedData))
		}
		emit(w.HandleID, relOffset, end-relOffset, w.MappedData[relOffset:end])
	}
}

// FlushPageGuard harvests dirty ranges for every memory id in ids, for
// PageGuard mode. Consecutive ids referencing the same memory object
// are suppressed so the underlying tracker processes each region at
// most once per call, matching the PreProcess_FlushMappedMemoryRanges
// contract in spec.md §4.9.
func (p *Policy) FlushPageGuard(ids []format.HandleId, emit FillFunc) {
	if p.kind != PageGuard {
		return
	}
	var last format.HandleId
	haveLast := false
	for _, id := range ids {
		if haveLast && id == last {
			continue
		}
		last, haveLast = id, true

		p.guard.ProcessMemoryEntry(id, pageguard.VisitFunc(emit))
	}
}

// SubmitPageGuard harvests every tracked region, for PageGuard mode —
// queue-submit is, like flush and unmap, one of the three delegation
// points the page-guard policy routes through ProcessMemoryEntries.
func (p *Policy) SubmitPageGuard(emit FillFunc) {
	if p.kind != PageGuard {
		return
	}
	p.guard.ProcessMemoryEntries(pageguard.VisitFunc(emit))
}

// QueueSubmit emits one full-extent FillMemoryCommand per currently
// mapped wrapper, for Unassisted mode.
func (p *Policy) QueueSubmit(emit FillFunc) {
	if p.kind != Unassisted {
		return
	}
	ref := p.unassisted.RLock()
	wrappers := make([]*Wrapper, 0, len(*ref))
	for _, w := range *ref {
		wrappers = append(wrappers, w)
	}
	p.unassisted.RUnlock(&ref)

	for _, w := range wrappers {
		size := resolveWholeSizeFromStart(w.MappedSize, w.AllocationSize)
		emit(w.HandleID, 0, size, w.MappedData[:size])
	}
}
