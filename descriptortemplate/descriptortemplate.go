// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package descriptortemplate implements the §4.10 precomputation the
// trace manager performs when the application creates a descriptor
// update template: bucketizing each entry by descriptor kind so that,
// at update-apply time, the serializer can walk tightly packed per-kind
// runs regardless of how the application interleaved them. The ordering
// images, then buffers, then texel-buffer-views — is part of the wire
// contract and must not change.
package descriptortemplate

import "fmt"

// EntryType discriminates the descriptor kind an update-template entry
// refers to. The three buckets below are the only kinds the core
// distinguishes; any other value is unsupported.
type EntryType int

const (
	EntryImageInfo EntryType = iota
	EntryBufferInfo
	EntryTexelBufferView
)

// Entry is one descriptor-update-template entry as precomputed from the
// application's raw entry list.
type Entry struct {
	Binding      uint32
	ArrayElement uint32
	Count        uint32
	Offset       uintptr
	Stride       uintptr
	Type         EntryType
}

// byteExtent returns the entry's byte extent: (count-1)*stride + offset
// + entrySize, the farthest byte this entry may read from the
// application's opaque data blob.
func (e Entry) byteExtent(entrySize uintptr) uintptr {
	if e.Count == 0 {
		return e.Offset
	}
	return uintptr(e.Count-1)*e.Stride + e.Offset + entrySize
}

// entrySize returns the fixed size, in bytes, of one raw entry of kind
// typ in the application's data blob.
func entrySize(typ EntryType) (uintptr, error) {
	switch typ {
	case EntryImageInfo:
		return sizeofImageInfo, nil
	case EntryBufferInfo:
		return sizeofBufferInfo, nil
	case EntryTexelBufferView:
		return sizeofTexelBufferView, nil
	default:
		return 0, fmt.Errorf("descriptortemplate: unsupported descriptor type %d", typ)
	}
}

// Sizes of the underlying driver structs the core reads entries out of.
// These mirror VkDescriptorImageInfo, VkDescriptorBufferInfo, and
// VkBufferView on the platforms gfxreconstruct targets; they are fixed
// wire constants, not something this core computes from reflection.
const (
	sizeofImageInfo       uintptr = 24 // {VkSampler, VkImageView, VkImageLayout}
	sizeofBufferInfo      uintptr = 24 // {VkBuffer, VkDeviceSize offset, VkDeviceSize range}
	sizeofTexelBufferView uintptr = 8  // {VkBufferView}
)

// RawEntry is one application-declared update-template entry before
// bucketization, as read off VkDescriptorUpdateTemplateEntryCreateInfo.
type RawEntry struct {
	Binding      uint32
	ArrayElement uint32
	DescCount    uint32
	Type         EntryType
	Offset       uintptr
	Stride       uintptr
}

// Layout is the precomputed, per-kind-bucketed view of one descriptor
// update template, attached to the template's wrapper at creation time.
type Layout struct {
	ImageInfos       []Entry
	BufferInfos      []Entry
	TexelBufferViews []Entry
	MaxSize          uintptr
}

// Build bucketizes raw into the three kind-specific lists and computes
// MaxSize, the farthest byte any entry may read from the application's
// data blob — preserved even though nothing in this core reads it; its
// only consumer is outside this core.
//
// An entry naming an unsupported descriptor type is dropped (logged by
// the caller) rather than aborting the whole template, matching
// spec.md §7's "unsupported descriptor entries" policy.
func Build(raw []RawEntry, onUnsupported func(RawEntry, error)) Layout {
	var layout Layout

	for _, r := range raw {
		size, err := entrySize(r.Type)
		if err != nil {
			if onUnsupported != nil {
				onUnsupported(r, err)
			}
			continue
		}

		entry := Entry{
			Binding:      r.Binding,
			ArrayElement: r.ArrayElement,
			Count:        r.DescCount,
			Offset:       r.Offset,
			Stride:       r.Stride,
			Type:         r.Type,
		}

		switch r.Type {
		case EntryImageInfo:
			layout.ImageInfos = append(layout.ImageInfos, entry)
		case EntryBufferInfo:
			layout.BufferInfos = append(layout.BufferInfos, entry)
		case EntryTexelBufferView:
			layout.TexelBufferViews = append(layout.TexelBufferViews, entry)
		}

		if entry.Count > 0 {
			if extent := entry.byteExtent(size); extent > layout.MaxSize {
				layout.MaxSize = extent
			}
		}
	}

	return layout
}

// Walk visits every entry in wire order: all ImageInfos, then all
// BufferInfos, then all TexelBufferViews, regardless of the
// application's original interleaving. This ordering is part of the
// wire contract (spec.md §4.10) and must not change.
func (l Layout) Walk(visit func(Entry)) {
	for _, e := range l.ImageInfos {
		visit(e)
	}
	for _, e := range l.BufferInfos {
		visit(e)
	}
	for _, e := range l.TexelBufferViews {
		visit(e)
	}
}
