// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package format

import "encoding/binary"

const metaDataTypeFieldSize = 4

// EncodeDisplayMessage encodes a DisplayMessageCommand metadata block.
// DisplayMessageCommand is never compressed.
func EncodeDisplayMessage(dst []byte, threadID ThreadId, message []byte) []byte {
	block := BlockHeader{
		Type: BlockTypeMetaData,
		Size: metaDataTypeFieldSize + 8 + uint64(len(message)),
	}
	dst = block.AppendTo(dst)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(MetaDataTypeDisplayMessageCommand))
	dst = binary.LittleEndian.AppendUint64(dst, threadID)
	dst = append(dst, message...)
	return dst
}

// EncodeResizeWindow encodes a ResizeWindowCommand metadata block.
// ResizeWindowCommand is never compressed.
func EncodeResizeWindow(dst []byte, threadID ThreadId, surfaceID HandleId, width, height uint32) []byte {
	block := BlockHeader{
		Type: BlockTypeMetaData,
		Size: metaDataTypeFieldSize + 8 + 8 + 4 + 4,
	}
	dst = block.AppendTo(dst)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(MetaDataTypeResizeWindowCommand))
	dst = binary.LittleEndian.AppendUint64(dst, threadID)
	dst = binary.LittleEndian.AppendUint64(dst, surfaceID)
	dst = binary.LittleEndian.AppendUint32(dst, width)
	dst = binary.LittleEndian.AppendUint32(dst, height)
	return dst
}

const fillMemoryFixedFieldsSize = metaDataTypeFieldSize + 8 + 8 + 8 + 8 // type,thread,memid,offset,size

// EncodeFillMemory encodes a FillMemoryCommand metadata block. The block
// type is BlockTypeMetaData for an uncompressed payload, or
// BlockTypeCompressedMetaData when compressed is true — the header body
// layout is identical in both cases, so readers infer compression from
// the block type alone. memorySize is always the uncompressed byte count
// of the region being filled; payload is whatever bytes (compressed or
// not) follow.
func EncodeFillMemory(
	dst []byte, threadID ThreadId, memoryID HandleId, offset, memorySize uint64,
	payload []byte, compressed bool,
) []byte {
	blockType := BlockTypeMetaData
	if compressed {
		blockType = BlockTypeCompressedMetaData
	}

	block := BlockHeader{
		Type: blockType,
		Size: fillMemoryFixedFieldsSize + uint64(len(payload)),
	}
	dst = block.AppendTo(dst)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(MetaDataTypeFillMemoryCommand))
	dst = binary.LittleEndian.AppendUint64(dst, threadID)
	dst = binary.LittleEndian.AppendUint64(dst, memoryID)
	dst = binary.LittleEndian.AppendUint64(dst, offset)
	dst = binary.LittleEndian.AppendUint64(dst, memorySize)
	dst = append(dst, payload...)
	return dst
}
