// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package format defines the on-disk, little-endian wire layout of a
// capture file: the file header, the block header every packet begins
// with, and the fixed per-kind metadata layouts. It has no knowledge of
// compression, files, or threads — it only knows how to turn typed
// header values into bytes; it has no decoders.
package format

import "encoding/binary"

// ThreadId is a process-local, dense, 64-bit logical thread identifier.
// 0 is reserved and never issued.
type ThreadId = uint64

// ApiCallId identifies one generated API entry point.
type ApiCallId = uint32

// HandleId identifies a wrapped API object (e.g. a device memory
// allocation or a surface) by a stable, process-local value.
type HandleId = uint64

// Fourcc is the fixed magic written at the start of every capture file.
const Fourcc uint32 = 0x46585247 // "GRXF" little-endian

// CurrentMajorVersion and CurrentMinorVersion are hard-coded at 0.0.
// Consumers that require a non-zero version will need a format
// revision.
const (
	CurrentMajorVersion uint16 = 0
	CurrentMinorVersion uint16 = 0
)

// BlockType discriminates the kind of block that follows a BlockHeader.
type BlockType uint32

const (
	BlockTypeUnknown BlockType = iota
	BlockTypeFunctionCall
	BlockTypeCompressedFunctionCall
	BlockTypeMetaData
	BlockTypeCompressedMetaData
)

// MetaDataType discriminates the payload carried by a metadata block.
type MetaDataType uint32

const (
	MetaDataTypeUnknown MetaDataType = iota
	MetaDataTypeDisplayMessageCommand
	MetaDataTypeFillMemoryCommand
	MetaDataTypeResizeWindowCommand
)

// FileOptionId names an entry in the file header's option list.
type FileOptionId uint32

const FileOptionCompressionType FileOptionId = 1

// CompressionType is one of the values a FileOptionCompressionType option
// can carry. It is also the configuration knob consumed by package
// compressor.
type CompressionType uint32

const (
	CompressionNone CompressionType = iota
	CompressionZstd
	CompressionS2
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	default:
		return "unknown"
	}
}

// BlockHeader is the 12-byte prefix of every block in the file. Size is
// the byte length of everything that follows the block header for this
// block — it does not include itself.
type BlockHeader struct {
	Type BlockType
	Size uint64
}

const blockHeaderSize = 4 + 8

// AppendTo appends the encoded header to dst and returns the extended
// slice.
func (h BlockHeader) AppendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(h.Type))
	dst = binary.LittleEndian.AppendUint64(dst, h.Size)
	return dst
}

// FileOptionPair is one {option_id, option_value} entry in the file
// header's option list.
type FileOptionPair struct {
	OptionId    FileOptionId
	OptionValue uint32
}

// FileHeader is the fixed preamble written once at the start of every
// capture file, followed by NumOptions FileOptionPair entries.
type FileHeader struct {
	Fourcc       uint32
	MajorVersion uint16
	MinorVersion uint16
	NumOptions   uint32
}

// Marshal encodes the file header and its trailing option pairs.
func Marshal(header FileHeader, options []FileOptionPair) []byte {
	buf := make([]byte, 0, 12+len(options)*8)
	buf = binary.LittleEndian.AppendUint32(buf, header.Fourcc)
	buf = binary.LittleEndian.AppendUint16(buf, header.MajorVersion)
	buf = binary.LittleEndian.AppendUint16(buf, header.MinorVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(options)))
	for _, opt := range options {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(opt.OptionId))
		buf = binary.LittleEndian.AppendUint32(buf, opt.OptionValue)
	}
	return buf
}
