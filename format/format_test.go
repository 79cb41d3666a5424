// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package format_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanminchao/gfxreconstruct/format"
)

func readBlockHeader(t *testing.T, b []byte) (format.BlockType, uint64, []byte) {
	t.Helper()
	require.GreaterOrEqual(t, len(b), 12)
	typ := format.BlockType(binary.LittleEndian.Uint32(b[0:4]))
	size := binary.LittleEndian.Uint64(b[4:12])
	return typ, size, b[12:]
}

func TestEncodeFunctionCallSizeField(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7}
	buf := format.EncodeFunctionCall(nil, 42, 7, payload)

	typ, size, rest := readBlockHeader(t, buf)
	assert.Equal(t, format.BlockTypeFunctionCall, typ)
	assert.Equal(t, uint64(len(rest)), size)
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(rest[0:4]))
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(rest[4:12]))
	assert.Equal(t, payload, rest[12:])
}

func TestEncodeCompressedFunctionCallSizeField(t *testing.T) {
	compressed := []byte{0xAA, 0xBB, 0xCC}
	buf := format.EncodeCompressedFunctionCall(nil, 3, 1, 100, compressed)

	typ, size, rest := readBlockHeader(t, buf)
	assert.Equal(t, format.BlockTypeCompressedFunctionCall, typ)
	assert.Equal(t, uint64(len(rest)), size)
	assert.Equal(t, uint64(100), binary.LittleEndian.Uint64(rest[12:20]))
	assert.Equal(t, compressed, rest[20:])
}

func TestEncodeFillMemorySwitchesTypeOnCompression(t *testing.T) {
	uncompressed := format.EncodeFillMemory(nil, 1, 9, 0, 64, make([]byte, 64), false)
	typ, size, _ := readBlockHeader(t, uncompressed)
	assert.Equal(t, format.BlockTypeMetaData, typ)
	assert.Equal(t, uint64(len(uncompressed)-12), size)

	compressed := format.EncodeFillMemory(nil, 1, 9, 0, 64, make([]byte, 10), true)
	typ, size, _ = readBlockHeader(t, compressed)
	assert.Equal(t, format.BlockTypeCompressedMetaData, typ)
	assert.Equal(t, uint64(len(compressed)-12), size)
}

func TestEncodeResizeWindow(t *testing.T) {
	buf := format.EncodeResizeWindow(nil, 1, 55, 1920, 1080)
	typ, size, rest := readBlockHeader(t, buf)
	assert.Equal(t, format.BlockTypeMetaData, typ)
	assert.Equal(t, uint64(len(rest)), size)
	assert.Equal(t, uint32(format.MetaDataTypeResizeWindowCommand), binary.LittleEndian.Uint32(rest[0:4]))
}

func TestMarshalFileHeader(t *testing.T) {
	buf := format.Marshal(format.FileHeader{
		Fourcc:       format.Fourcc,
		MajorVersion: format.CurrentMajorVersion,
		MinorVersion: format.CurrentMinorVersion,
	}, []format.FileOptionPair{{OptionId: format.FileOptionCompressionType, OptionValue: uint32(format.CompressionZstd)}})

	require.Len(t, buf, 12+8)
	assert.Equal(t, format.Fourcc, binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[8:12]))
	assert.Equal(t, uint32(format.FileOptionCompressionType), binary.LittleEndian.Uint32(buf[12:16]))
	assert.Equal(t, uint32(format.CompressionZstd), binary.LittleEndian.Uint32(buf[16:20]))
}
