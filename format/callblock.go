// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package format

import "encoding/binary"

// FunctionCallHeader is the body layout written immediately after a
// BlockHeader of type BlockTypeFunctionCall, before the raw parameter
// payload.
type FunctionCallHeader struct {
	ApiCallId ApiCallId
	ThreadId  ThreadId
}

const functionCallHeaderBodySize = 4 + 8

// CompressedFunctionCallHeader is the body layout for
// BlockTypeCompressedFunctionCall; it additionally carries the size of
// the payload before compression.
type CompressedFunctionCallHeader struct {
	ApiCallId        ApiCallId
	ThreadId         ThreadId
	UncompressedSize uint64
}

const compressedFunctionCallHeaderBodySize = 4 + 8 + 8

// EncodeFunctionCall encodes a complete uncompressed function-call block
// (header + payload) into dst and returns the extended slice.
func EncodeFunctionCall(dst []byte, callID ApiCallId, threadID ThreadId, payload []byte) []byte {
	block := BlockHeader{
		Type: BlockTypeFunctionCall,
		Size: functionCallHeaderBodySize + uint64(len(payload)),
	}
	dst = block.AppendTo(dst)
	dst = binary.LittleEndian.AppendUint32(dst, callID)
	dst = binary.LittleEndian.AppendUint64(dst, threadID)
	dst = append(dst, payload...)
	return dst
}

// EncodeCompressedFunctionCall encodes a complete compressed function-call
// block into dst and returns the extended slice. uncompressedSize is the
// size of the parameter buffer before compression.
func EncodeCompressedFunctionCall(
	dst []byte, callID ApiCallId, threadID ThreadId, uncompressedSize uint64, compressed []byte,
) []byte {
	block := BlockHeader{
		Type: BlockTypeCompressedFunctionCall,
		Size: compressedFunctionCallHeaderBodySize + uint64(len(compressed)),
	}
	dst = block.AppendTo(dst)
	dst = binary.LittleEndian.AppendUint32(dst, callID)
	dst = binary.LittleEndian.AppendUint64(dst, threadID)
	dst = binary.LittleEndian.AppendUint64(dst, uncompressedSize)
	dst = append(dst, compressed...)
	return dst
}
