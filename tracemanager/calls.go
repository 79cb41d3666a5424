// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracemanager

import (
	"github.com/shanminchao/gfxreconstruct/capturemode"
	"github.com/shanminchao/gfxreconstruct/format"
	"github.com/shanminchao/gfxreconstruct/metrics"
	"github.com/shanminchao/gfxreconstruct/threadctx"
)

// InitApiCallTrace sets the calling thread's pending call id and
// returns its encoder. It always succeeds, matching spec.md §4.9.
func (m *Manager) InitApiCallTrace(callID format.ApiCallId) *threadctx.Context {
	ctx := threadctx.Get()
	ctx.CallID = callID
	return ctx
}

// EndApiCallTrace implements the call-end contract of spec.md §4.2: if
// Write mode is off, the encoder is reset and nothing is written.
// Otherwise the parameter buffer is opportunistically compressed under
// the strict-less-than rule, framed, and written to the stream inside
// one file-mutex critical section so the header and payload can never
// be torn apart by a concurrent writer.
func (m *Manager) EndApiCallTrace(ctx *threadctx.Context) {
	m.fileMu.Lock()
	writing := m.mode.Has(capturemode.Write)
	m.fileMu.Unlock()

	if !writing {
		ctx.Reset()
		return
	}

	uncompressed := ctx.Params.Bytes()
	u := len(uncompressed)

	var block []byte
	if m.compressor != nil {
		ctx.Compressed = ctx.Compressed[:0]
		n, err := m.compressor.Compress(uncompressed, &ctx.Compressed)
		if err == nil && n > 0 && n < u {
			block = format.EncodeCompressedFunctionCall(nil, ctx.CallID, ctx.ThreadID, uint64(u), ctx.Compressed[:n])
			m.metrics.RecordCompression(n, u)
		}
	}
	if block == nil {
		block = format.EncodeFunctionCall(nil, ctx.CallID, ctx.ThreadID, uncompressed)
	}

	m.writeBlock(block, metrics.PacketFunctionCall)
	ctx.Reset()
}

// writeBlock writes a fully-framed block to the stream under the file
// mutex, flushing after the write if force_flush is configured.
func (m *Manager) writeBlock(block []byte, kind metrics.PacketKind) {
	m.fileMu.Lock()
	defer m.fileMu.Unlock()

	if m.stream == nil || !m.stream.IsValid() {
		return
	}
	n := m.stream.Write(block)
	if m.forceFlush {
		if err := m.stream.Flush(); err != nil {
			return
		}
	}
	m.metrics.RecordPacket(kind, n)
}

// EmitDisplayMessage writes a DisplayMessageCommand, guarded by Write
// mode per spec.md §4.2. DisplayMessageCommand is never compressed.
func (m *Manager) EmitDisplayMessage(message []byte) {
	if !m.Mode().Has(capturemode.Write) {
		return
	}
	threadID := threadctx.Get().ThreadID
	m.writeBlock(format.EncodeDisplayMessage(nil, threadID, message), metrics.PacketDisplayMsg)
}

// PreProcess_CreateSwapchain emits a ResizeWindowCommand for the given
// surface before the underlying create call runs, per spec.md §4.9.
func (m *Manager) PreProcess_CreateSwapchain(surfaceID format.HandleId, width, height uint32) {
	if !m.Mode().Has(capturemode.Write) {
		return
	}
	threadID := threadctx.Get().ThreadID
	m.writeBlock(format.EncodeResizeWindow(nil, threadID, surfaceID, width, height), metrics.PacketResizeWindow)
}
