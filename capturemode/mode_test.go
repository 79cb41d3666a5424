// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package capturemode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shanminchao/gfxreconstruct/capturemode"
)

func TestHasRequiresAllRequestedBits(t *testing.T) {
	m := capturemode.Write
	assert.True(t, m.Has(capturemode.Write))
	assert.False(t, m.Has(capturemode.Track))
	assert.False(t, m.Has(capturemode.Write|capturemode.Track))
}

func TestSetAndClearAreIndependent(t *testing.T) {
	m := capturemode.Disabled
	m = m.Set(capturemode.Write)
	m = m.Set(capturemode.Track)
	assert.True(t, m.Has(capturemode.Write|capturemode.Track))

	m = m.Clear(capturemode.Write)
	assert.False(t, m.Has(capturemode.Write))
	assert.True(t, m.Has(capturemode.Track))
}

func TestStringCoversEveryCombination(t *testing.T) {
	assert.Equal(t, "disabled", capturemode.Disabled.String())
	assert.Equal(t, "write", capturemode.Write.String())
	assert.Equal(t, "track", capturemode.Track.String())
	assert.Equal(t, "write+track", (capturemode.Write | capturemode.Track).String())
}
