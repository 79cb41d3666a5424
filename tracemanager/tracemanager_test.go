// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracemanager_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanminchao/gfxreconstruct/capturemode"
	"github.com/shanminchao/gfxreconstruct/compressor"
	"github.com/shanminchao/gfxreconstruct/format"
	"github.com/shanminchao/gfxreconstruct/settings"
	"github.com/shanminchao/gfxreconstruct/statetracker"
	"github.com/shanminchao/gfxreconstruct/tracemanager"
)

func baseSettings(t *testing.T) *settings.TraceSettings {
	t.Helper()
	return &settings.TraceSettings{
		BaseFilename:       filepath.Join(t.TempDir(), "capture.gfxr"),
		CompressionType:    "none",
		MemoryTrackingMode: "page-guard",
	}
}

func TestNewWithoutTrimStartsInWriteModeAndOpensFile(t *testing.T) {
	cfg := baseSettings(t)

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)

	assert.Equal(t, capturemode.Write, m.Mode())
	assert.Equal(t, uint64(1), m.Frame())
	_, err = os.Stat(cfg.BaseFilename)
	assert.NoError(t, err, "capture file should exist once Write mode is live")
}

func TestNewWithSingleTrimRangeStartingAtFrameOneIsWriteOnly(t *testing.T) {
	cfg := baseSettings(t)
	cfg.TrimRanges = []settings.TrimRange{{First: 1, Count: 3}}

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)

	assert.Equal(t, capturemode.Write, m.Mode())
}

func TestNewWithMultipleTrimRangesStartingAtFrameOneTracksAhead(t *testing.T) {
	cfg := baseSettings(t)
	cfg.TrimRanges = []settings.TrimRange{{First: 1, Count: 2}, {First: 5, Count: 2}}

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)

	assert.Equal(t, capturemode.Write|capturemode.Track, m.Mode())
}

func TestNewWithTrimRangeNotStartingAtFrameOneOnlyTracks(t *testing.T) {
	cfg := baseSettings(t)
	cfg.TrimRanges = []settings.TrimRange{{First: 3, Count: 2}}

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)

	assert.Equal(t, capturemode.Track, m.Mode())
	_, err = os.Stat(cfg.BaseFilename)
	assert.Error(t, err, "tracking-only mode must not have opened a capture file yet")
}

func TestNewWithUnknownMemoryTrackingModeDisablesCapture(t *testing.T) {
	cfg := baseSettings(t)
	cfg.MemoryTrackingMode = "bogus"

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, capturemode.Disabled, m.Mode())
	assert.Equal(t, uint64(1), m.Frame(), "Frame must stay 1-based even on a disable-on-fatal construction path")
}

func TestNewWithUnknownCompressionDisablesCapture(t *testing.T) {
	cfg := baseSettings(t)
	cfg.CompressionType = "bogus"

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, capturemode.Disabled, m.Mode())
	assert.Equal(t, uint64(1), m.Frame(), "Frame must stay 1-based even on a disable-on-fatal construction path")
}

func TestEndFrameActivatesTrimRangeAtItsStartFrame(t *testing.T) {
	cfg := baseSettings(t)
	cfg.TrimRanges = []settings.TrimRange{{First: 2, Count: 1}}

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)
	require.Equal(t, capturemode.Track, m.Mode())

	m.EndFrame()

	assert.Equal(t, uint64(2), m.Frame())
	assert.Equal(t, capturemode.Write, m.Mode())
}

func TestEndFrameClosesRangeAndDisablesWhenExhausted(t *testing.T) {
	cfg := baseSettings(t)
	cfg.TrimRanges = []settings.TrimRange{{First: 1, Count: 1}}

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)
	require.Equal(t, capturemode.Write, m.Mode())

	m.EndFrame()

	assert.Equal(t, capturemode.Disabled, m.Mode())
}

func TestEndFrameAdvancesToTrackingBetweenNonAdjacentRanges(t *testing.T) {
	cfg := baseSettings(t)
	cfg.TrimRanges = []settings.TrimRange{{First: 1, Count: 1}, {First: 3, Count: 1}}

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)
	require.Equal(t, capturemode.Write|capturemode.Track, m.Mode())

	m.EndFrame() // frame 1 -> 2: range 0 exhausted, range 1 not due yet
	assert.Equal(t, capturemode.Track, m.Mode())

	m.EndFrame() // frame 2 -> 3: range 1 due
	assert.Equal(t, capturemode.Write, m.Mode())
}

func TestEndApiCallTraceWritesOnlyWhenWriteModeIsSet(t *testing.T) {
	cfg := baseSettings(t)
	cfg.TrimRanges = []settings.TrimRange{{First: 3, Count: 1}}

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)
	require.Equal(t, capturemode.Track, m.Mode())

	ctx := m.InitApiCallTrace(format.ApiCallId(42))
	ctx.Params.Write([]byte{0x01, 0x02, 0x03})
	m.EndApiCallTrace(ctx)

	assert.Zero(t, ctx.Params.Len(), "the encoder's scratch buffer is always reset")

	fi, err := os.Stat(cfg.BaseFilename)
	require.Error(t, err, "no capture file exists yet while only tracking")
	_ = fi
}

func TestEndApiCallTraceWritesAPacketWhenWriteModeIsActive(t *testing.T) {
	cfg := baseSettings(t)

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)
	require.Equal(t, capturemode.Write, m.Mode())

	before, err := os.Stat(cfg.BaseFilename)
	require.NoError(t, err)

	ctx := m.InitApiCallTrace(format.ApiCallId(7))
	ctx.Params.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	m.EndApiCallTrace(ctx)

	after, err := os.Stat(cfg.BaseFilename)
	require.NoError(t, err)
	assert.Greater(t, after.Size(), before.Size(), "a call packet must grow the capture file")
}

func TestEndApiCallTraceReusesCompressionScratchAcrossCallsOnSameThread(t *testing.T) {
	// ctx.Compressed is a per-thread scratch buffer that is never freed
	// (threadctx.Context doc comment) and grows from call to call. A
	// second compressed call on the same thread must decompress back to
	// its own payload, not a stale prefix left over from the first
	// call's larger buffer (spec.md §8 Testable Property #3).
	cfg := baseSettings(t)
	cfg.CompressionType = "s2"

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)
	require.Equal(t, capturemode.Write, m.Mode())

	first := make([]byte, 4096)
	for i := range first {
		first[i] = 0xAA
	}
	ctx := m.InitApiCallTrace(format.ApiCallId(1))
	ctx.Params.Write(first)
	m.EndApiCallTrace(ctx)

	second := make([]byte, 4096)
	for i := range second {
		second[i] = 0xBB
	}
	ctx = m.InitApiCallTrace(format.ApiCallId(2))
	ctx.Params.Write(second)
	m.EndApiCallTrace(ctx)

	data, err := os.ReadFile(cfg.BaseFilename)
	require.NoError(t, err)

	blocks := parseCompressedFunctionCallBlocks(t, data)
	require.Len(t, blocks, 2, "both calls must have produced a compressed function-call block")

	codec, err := compressor.New("s2")
	require.NoError(t, err)

	var decompressed []byte
	require.NoError(t, codec.Decompress(blocks[1].payload, int(blocks[1].uncompressedSize), &decompressed))
	assert.Equal(t, second, decompressed,
		"second call's decompressed payload must be its own data, not a stale scratch prefix from the first call")
}

type compressedFunctionCallBlock struct {
	uncompressedSize uint64
	payload          []byte
}

// parseCompressedFunctionCallBlocks walks a capture file's block stream
// and returns every CompressedFunctionCall block's header and payload,
// skipping the file header and any other block kind.
func parseCompressedFunctionCallBlocks(t *testing.T, data []byte) []compressedFunctionCallBlock {
	t.Helper()

	require.GreaterOrEqual(t, len(data), 12)
	numOptions := binary.LittleEndian.Uint32(data[8:12])
	pos := 12 + int(numOptions)*8

	var blocks []compressedFunctionCallBlock
	for pos < len(data) {
		require.GreaterOrEqual(t, len(data)-pos, 12, "truncated block header")
		blockType := binary.LittleEndian.Uint32(data[pos : pos+4])
		size := binary.LittleEndian.Uint64(data[pos+4 : pos+12])
		pos += 12
		body := data[pos : pos+int(size)]
		pos += int(size)

		if format.BlockType(blockType) != format.BlockTypeCompressedFunctionCall {
			continue
		}
		uncompressedSize := binary.LittleEndian.Uint64(body[12:20])
		blocks = append(blocks, compressedFunctionCallBlock{
			uncompressedSize: uncompressedSize,
			payload:          body[20:],
		})
	}
	return blocks
}

func TestEndFrameTrimActivationConsultsTheInstalledStateTracker(t *testing.T) {
	cfg := baseSettings(t)
	cfg.TrimRanges = []settings.TrimRange{{First: 2, Count: 1}}

	snapshotWritten := false
	tracker := &statetracker.Recorder{
		WriteStateFn: func(w statetracker.Writer) error {
			snapshotWritten = true
			w.WriteBlock([]byte{0xAA})
			return nil
		},
	}

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)
	m.SetStateTracker(tracker)
	require.Equal(t, capturemode.Track, m.Mode())

	m.EndFrame()

	assert.True(t, snapshotWritten, "activating a trim range must snapshot state before any call packet")
	assert.Equal(t, capturemode.Write, m.Mode())
}

func TestMemoryMapWriteUnmapFreeRoundTripsThroughPageGuard(t *testing.T) {
	cfg := baseSettings(t)

	m, err := tracemanager.New(cfg)
	require.NoError(t, err)

	const memoryID format.HandleId = 9001
	m.PostProcess_AllocateMemory(memoryID, 4096)

	host := make([]byte, 4096)
	effective := m.PostProcess_MapMemory(memoryID, 0, 4096, host)
	require.NotNil(t, effective)

	before, err := os.Stat(cfg.BaseFilename)
	require.NoError(t, err)

	m.WriteMappedMemory(memoryID, 10, []byte("0123456789"))
	m.PreProcess_QueueSubmit()

	afterSubmit, err := os.Stat(cfg.BaseFilename)
	require.NoError(t, err)
	assert.Greater(t, afterSubmit.Size(), before.Size(), "queue submit should harvest the dirty range into a fill packet")

	m.PreProcess_UnmapMemory(memoryID)
	m.PreProcess_FreeMemory(memoryID)

	// Unmapping and freeing again must be harmless no-ops.
	m.PreProcess_UnmapMemory(memoryID)
	m.PreProcess_FreeMemory(memoryID)
}
