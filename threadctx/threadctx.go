// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package threadctx implements the per-OS-thread parameter buffer (C1):
// a lazily-created context that every call into the trace manager reads
// and writes without any cross-thread synchronization, plus the
// injective, stable mapping from OS thread id to a dense logical thread
// id.
package threadctx

import (
	"bytes"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/shanminchao/gfxreconstruct/format"
)

var (
	idMu   sync.Mutex
	idMap  = make(map[uint64]format.ThreadId)
	nextID format.ThreadId

	contextMu sync.Mutex
	contexts  = make(map[uint64]*Context)
)

// Context is a per-OS-thread scratch area: a parameter buffer the
// application-facing encoder writes into, a scratch buffer for
// compression output, the stable logical thread id, and the call id
// currently in flight on this thread.
type Context struct {
	// ThreadID is this thread's stable logical id (never 0, never reused).
	ThreadID format.ThreadId

	// Params accumulates encoded parameter bytes for the call currently
	// in flight. Reset (length to 0, capacity retained) after each call.
	Params bytes.Buffer

	// Compressed is scratch space the compressor writes into; it grows
	// but is never freed, to avoid repeated allocation across calls.
	Compressed []byte

	// CallID is the api_call_id of the call currently in flight on this
	// thread, set by InitApiCallTrace.
	CallID format.ApiCallId
}

// osThreadID returns an identifier stable across calls on the current
// goroutine for as long as it is not rescheduled to another OS thread.
// gfxreconstruct's original assumption — "one OS thread, one logical id,
// for the process's lifetime" — holds for the calling convention this
// core serves: API shim hooks run with the goroutine locked to the OS
// thread that made the foreign call, via runtime.LockOSThread, by the
// generated shim layer (an out-of-scope collaborator per spec.md §1).
func osThreadID() uint64 {
	return uint64(unix.Gettid())
}

// logicalID returns the stable logical thread id for osTID, assigning
// the next dense id on first observation.
func logicalID(osTID uint64) format.ThreadId {
	idMu.Lock()
	defer idMu.Unlock()

	if id, ok := idMap[osTID]; ok {
		return id
	}

	nextID++
	idMap[osTID] = nextID
	return nextID
}

// Get returns the calling thread's Context, creating it on first access
// from this thread.
func Get() *Context {
	osTID := osThreadID()

	contextMu.Lock()
	ctx, ok := contexts[osTID]
	if !ok {
		ctx = &Context{ThreadID: logicalID(osTID)}
		contexts[osTID] = ctx
	}
	contextMu.Unlock()

	return ctx
}

// Release destroys the calling thread's Context and forgets its
// logical id mapping, so any later Get() call — whether the kernel
// has since recycled this OS thread id for an unrelated thread, or
// this same thread is genuinely re-entering after releasing it —
// constructs a fresh Context with a new, never-reused logical id.
//
// Go has no thread-exit hook a goroutine can register the way C++
// thread_local destructors run automatically; the contexts map would
// otherwise just grow for the life of the process. The adaptation is
// caller-driven: code that pins a goroutine to an OS thread via
// runtime.LockOSThread (the calling convention Get's doc comment
// already assumes) must call Release before unlocking or exiting that
// thread, to honor the construct-lazily/destroy-at-thread-exit
// invariant.
func Release() {
	osTID := osThreadID()

	contextMu.Lock()
	delete(contexts, osTID)
	contextMu.Unlock()

	idMu.Lock()
	delete(idMap, osTID)
	idMu.Unlock()
}

// Reset clears the parameter buffer, retaining its backing array.
func (c *Context) Reset() {
	c.Params.Reset()
}

// ThreadCount reports how many OS threads currently hold a logical id,
// for tests and metrics. Release removes the calling thread's entry, so
// the count can go down.
func ThreadCount() int {
	idMu.Lock()
	defer idMu.Unlock()
	return len(idMap)
}
