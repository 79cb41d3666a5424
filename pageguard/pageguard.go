// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package pageguard implements the page-guard-based dirty-memory
// tracker (C5): once mapped GPU memory is registered, writes into it
// are observed and converted into contiguous dirty sub-ranges that the
// trace manager harvests into fill-memory records.
//
// The C++ original traps writes by installing a process-wide SIGSEGV
// handler over mprotect'd pages. Go cannot interpose on arbitrary
// pointer writes made by foreign, non-instrumented code the same way —
// there is no per-write trap a plain []byte slice access can be routed
// through. This package instead exposes the region it tracks as a typed
// accessor (Region) that records the byte ranges touched as they are
// written through it; DESIGN.md records this as the resolution to the
// corresponding Open Question. Call sites route every write the
// application makes through the Region returned by AddMemory — which
// *is* "the pointer the application should actually use" per the
// contract in spec.md §4.5.
package pageguard

import (
	"sort"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/shanminchao/gfxreconstruct/format"
)

// VisitFunc is invoked once per dirty sub-range during a harvest, with
// the region's current contents over that range already sliced out —
// callers need nothing else to build a FillMemoryCommand payload.
type VisitFunc func(memoryID format.HandleId, offset, size uint64, data []byte)

// dirtyRange is a merged, half-open [offset, offset+size) byte range.
type dirtyRange struct {
	offset uint64
	size   uint64
}

// Region is the effective accessor returned by AddMemory. The
// application — via the out-of-scope API shim that substitutes this
// pointer per spec.md §4.5 — writes through Region instead of the raw
// mapped pointer; WriteAt records the touched range as dirty.
type Region struct {
	id    format.HandleId
	data  []byte
	shadow bool

	mu      sync.Mutex
	dirty   []dirtyRange
	cycle   map[uint64]struct{} // dedup key -> seen, cleared per harvest
}

// Bytes exposes the backing buffer for read access (e.g. when the
// harvester needs to copy out the dirty region's current contents into
// a fill-memory payload).
func (r *Region) Bytes() []byte { return r.data }

// WriteAt copies p into the region at off and records [off, off+len(p))
// as dirty. It satisfies io.WriterAt so generic copy helpers can target
// a Region directly.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	n := copy(r.data[off:], p)
	r.markDirty(uint64(off), uint64(n))
	return n, nil
}

func (r *Region) markDirty(offset, size uint64) {
	if size == 0 {
		return
	}

	key := xxh3.HashString(rangeKey(offset, size))

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cycle == nil {
		r.cycle = make(map[uint64]struct{})
	}
	if _, dup := r.cycle[key]; dup {
		// Exact same range reported again within this harvest cycle
		// (e.g. a repeated write to the same bytes before the next
		// flush); nothing new to merge.
		return
	}
	r.cycle[key] = struct{}{}

	r.dirty = mergeRange(r.dirty, dirtyRange{offset: offset, size: size})
}

func rangeKey(offset, size uint64) string {
	buf := make([]byte, 16)
	for i := 0; i < 8; i++ {
		buf[i] = byte(offset >> (8 * i))
		buf[8+i] = byte(size >> (8 * i))
	}
	return string(buf)
}

// mergeRange inserts next into a sorted, non-overlapping, non-adjacent
// list of ranges, merging with any neighbor it touches or overlaps.
func mergeRange(ranges []dirtyRange, next dirtyRange) []dirtyRange {
	ranges = append(ranges, next)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].offset < ranges[j].offset })

	merged := ranges[:1]
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		lastEnd := last.offset + last.size
		if r.offset <= lastEnd {
			if end := r.offset + r.size; end > lastEnd {
				last.size = end - last.offset
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Tracker owns the set of currently-registered regions, keyed by the
// wrapper's stable handle id. Only the memory_id integer crosses the
// boundary with the rest of the core, per spec.md §4.5.
type Tracker struct {
	mu      sync.Mutex
	regions map[format.HandleId]*Region
}

// New constructs an empty page-guard tracker.
func New() *Tracker {
	return &Tracker{regions: make(map[format.HandleId]*Region)}
}

// AddMemory registers size bytes of mapped memory under memoryID and
// returns the Region the application should write through from now on.
// When useShadow is true, writes land in a private copy the tracker
// owns outright rather than the caller-supplied backing slice — used
// when the core wants to guarantee the harvested bytes reflect only
// writes it observed, independent of what the foreign mapping does
// underneath it.
func (t *Tracker) AddMemory(memoryID format.HandleId, mapped []byte, useShadow bool) *Region {
	data := mapped
	if useShadow {
		data = make([]byte, len(mapped))
		copy(data, mapped)
	}

	r := &Region{id: memoryID, data: data, shadow: useShadow}

	t.mu.Lock()
	t.regions[memoryID] = r
	t.mu.Unlock()

	return r
}

// ProcessMemoryEntry harvests the dirty sub-ranges accumulated for
// memoryID, invoking visit once per merged range, then marks the
// region clean. It is a no-op if memoryID is not registered.
func (t *Tracker) ProcessMemoryEntry(memoryID format.HandleId, visit VisitFunc) {
	t.mu.Lock()
	r, ok := t.regions[memoryID]
	t.mu.Unlock()
	if !ok {
		return
	}
	r.harvest(visit)
}

func (r *Region) harvest(visit VisitFunc) {
	r.mu.Lock()
	ranges := r.dirty
	r.dirty = nil
	r.cycle = nil
	r.mu.Unlock()

	for _, rg := range ranges {
		visit(r.id, rg.offset, rg.size, r.data[rg.offset:rg.offset+rg.size])
	}
}

// ProcessMemoryEntries harvests every tracked region. Iteration order
// is unspecified, matching spec.md §4.5.
func (t *Tracker) ProcessMemoryEntries(visit VisitFunc) {
	t.mu.Lock()
	regions := make([]*Region, 0, len(t.regions))
	for _, r := range t.regions {
		regions = append(regions, r)
	}
	t.mu.Unlock()

	for _, r := range regions {
		r.harvest(visit)
	}
}

// WriteAt routes a write into the region registered under memoryID,
// recording the touched bytes as dirty. It is the tracked-write path
// for callers that only hold the memory id, not the Region value
// AddMemory returned; it is a no-op, reporting 0 bytes written, if
// memoryID is not registered.
func (t *Tracker) WriteAt(memoryID format.HandleId, offset uint64, p []byte) (int, error) {
	t.mu.Lock()
	r, ok := t.regions[memoryID]
	t.mu.Unlock()
	if !ok {
		return 0, nil
	}
	return r.WriteAt(p, int64(offset))
}

// RemoveMemory releases tracking for memoryID. Subsequent writes
// through the previously-returned Region are no longer observed by
// ProcessMemoryEntry(ies) — the caller should stop using that Region
// once it calls RemoveMemory.
func (t *Tracker) RemoveMemory(memoryID format.HandleId) {
	t.mu.Lock()
	delete(t.regions, memoryID)
	t.mu.Unlock()
}
