// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package syncutil

import "sync"

// RefCounted guards a lazily-constructed value with a strong-count: the
// first GetOrCreate constructs it, the last Release destroys it. This is
// the shared-ownership analogue of a C++ refcounted singleton.
type RefCounted[T any] struct {
	mu    sync.Mutex
	value T
	count int
}

// GetOrCreate increments the strong count. If this is the first reference,
// create is invoked to construct the value; on failure the count is not
// incremented and the zero value is returned alongside the error.
func (r *RefCounted[T]) GetOrCreate(create func() (T, error)) (T, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		v, err := create()
		if err != nil {
			var zero T
			return zero, 0, err
		}
		r.value = v
	}
	r.count++
	return r.value, r.count, nil
}

// Release decrements the strong count. When it reaches zero, destroy is
// invoked on the value and the slot is cleared. Returns the count after
// decrementing.
func (r *RefCounted[T]) Release(destroy func(T)) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return 0
	}

	r.count--
	if r.count == 0 {
		destroy(r.value)
		var zero T
		r.value = zero
	}
	return r.count
}

// Count returns the current strong count, mostly for tests and metrics.
func (r *RefCounted[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

