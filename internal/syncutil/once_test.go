// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package syncutil_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanminchao/gfxreconstruct/internal/syncutil"
)

func TestRefCountedConstructsOnceAndSharesTheSameValue(t *testing.T) {
	var r syncutil.RefCounted[*int]
	calls := 0

	v1, count1, err := r.GetOrCreate(func() (*int, error) {
		calls++
		n := 7
		return &n, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count1)

	v2, count2, err := r.GetOrCreate(func() (*int, error) {
		calls++
		n := 99
		return &n, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count2)

	assert.Same(t, v1, v2, "the second GetOrCreate must not construct a new value")
	assert.Equal(t, 1, calls)
}

func TestRefCountedDestroysOnLastRelease(t *testing.T) {
	var r syncutil.RefCounted[*int]
	destroyed := 0

	n := 1
	_, _, err := r.GetOrCreate(func() (*int, error) { return &n, nil })
	require.NoError(t, err)
	_, _, err = r.GetOrCreate(func() (*int, error) { return &n, nil })
	require.NoError(t, err)

	remaining := r.Release(func(*int) { destroyed++ })
	assert.Equal(t, 1, remaining)
	assert.Zero(t, destroyed)

	remaining = r.Release(func(*int) { destroyed++ })
	assert.Zero(t, remaining)
	assert.Equal(t, 1, destroyed)
}

func TestRefCountedGetOrCreateFailurePropagatesAndDoesNotIncrementCount(t *testing.T) {
	var r syncutil.RefCounted[*int]
	boom := errors.New("construction failed")

	_, count, err := r.GetOrCreate(func() (*int, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, count)
	assert.Zero(t, r.Count())
}

func TestRefCountedReleaseBelowZeroIsNoOp(t *testing.T) {
	var r syncutil.RefCounted[*int]
	assert.Zero(t, r.Release(func(*int) { t.Fatal("destroy must not run without a live reference") }))
}
