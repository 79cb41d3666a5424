// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracemanager

import (
	"github.com/sirupsen/logrus"

	"github.com/shanminchao/gfxreconstruct/descriptortemplate"
	"github.com/shanminchao/gfxreconstruct/format"
	"github.com/shanminchao/gfxreconstruct/threadctx"
)

func currentThreadID() format.ThreadId {
	return threadctx.Get().ThreadID
}

// ReleaseThreadContext destroys the calling thread's per-thread call
// context. The generated API shim layer (out of scope per spec.md §1)
// is responsible for calling this before it unlocks or tears down an
// OS thread it had pinned via runtime.LockOSThread, so per-thread
// state does not outlive the thread it was built for.
func ReleaseThreadContext() {
	threadctx.Release()
}

func logrusWarnUnsupportedEntry(templateID format.HandleId, entry descriptortemplate.RawEntry, err error) {
	logrus.WithFields(logrus.Fields{
		"template_id": templateID,
		"binding":     entry.Binding,
	}).WithError(err).Error("tracemanager: dropping unsupported descriptor update template entry")
}
