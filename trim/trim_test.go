// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package trim_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanminchao/gfxreconstruct/format"
	"github.com/shanminchao/gfxreconstruct/statetracker"
	"github.com/shanminchao/gfxreconstruct/trim"
)

func TestFilenameNoTrim(t *testing.T) {
	assert.Equal(t, "capture.gfxr", trim.Filename("capture.gfxr", nil, false))
}

func TestFilenameSingleFrame(t *testing.T) {
	r := trim.Range{First: 3, Count: 1}
	assert.Equal(t, "capture_frame_3.gfxr", trim.Filename("capture.gfxr", &r, false))
}

func TestFilenameMultiFrame(t *testing.T) {
	r := trim.Range{First: 3, Count: 5}
	assert.Equal(t, "capture_frames_3_through_7.gfxr", trim.Filename("capture.gfxr", &r, false))
}

func TestFilenameWithTimestamp(t *testing.T) {
	name := trim.Filename("capture.gfxr", nil, true)
	assert.NotEqual(t, "capture.gfxr", name)
	assert.Equal(t, ".gfxr", filepath.Ext(name))
}

func TestActivateWritesSnapshotBeforeCallerWritesAnything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trim.gfxr")

	var order []string
	rec := &statetracker.Recorder{
		WriteStateFn: func(w statetracker.Writer) error {
			order = append(order, "snapshot")
			w.WriteBlock(format.EncodeDisplayMessage(nil, 1, []byte("state")))
			return nil
		},
	}

	stream, err := trim.Activate(path, format.CompressionNone, false, rec)
	require.NoError(t, err)

	order = append(order, "call")
	stream.Write(format.EncodeFunctionCall(nil, 1, 1, nil))
	require.NoError(t, stream.Close())

	assert.Equal(t, []string{"snapshot", "call"}, order)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Greater(t, len(data), 12)
}

func TestActivateWithoutTrackerStillWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trim.gfxr")
	stream, err := trim.Activate(path, format.CompressionNone, false, nil)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
