// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Command gfxtraced is a demo harness: it wires settings.Load into a
// tracemanager.Manager and drives it through a simulated API-shim
// session (instance create, a handful of calls, one mapped-memory
// write, frame boundaries, instance destroy), exercising the facade
// the way a real generated shim layer would. It exists to give the
// core a runnable entry point; it is not itself part of the capture
// engine's contract surface.
package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/shanminchao/gfxreconstruct/format"
	"github.com/shanminchao/gfxreconstruct/tracemanager"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	if err := run(); err != nil {
		log.WithError(err).Fatal("gfxtraced: run")
	}
}

func run() error {
	m, err := tracemanager.CreateInstance()
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	defer tracemanager.DestroyInstance()

	const (
		callCreateInstance  format.ApiCallId = 1
		callCreateDevice    format.ApiCallId = 2
		callAllocateMemory  format.ApiCallId = 3
		callMapMemory       format.ApiCallId = 4
		callDestroyDevice   format.ApiCallId = 5
		callDestroyInstance format.ApiCallId = 6
	)

	for _, callID := range []format.ApiCallId{callCreateInstance, callCreateDevice} {
		traceCall(m, callID, []byte{0xAA, 0xBB})
	}

	const memoryID format.HandleId = 1
	m.PostProcess_AllocateMemory(memoryID, 4096)
	traceCall(m, callAllocateMemory, []byte{0x01})

	host := make([]byte, 4096)
	_ = m.PostProcess_MapMemory(memoryID, 0, 4096, host)
	traceCall(m, callMapMemory, []byte{0x02})

	m.WriteMappedMemory(memoryID, 100, []byte("payload!"))
	m.PreProcess_QueueSubmit()

	m.PreProcess_UnmapMemory(memoryID)
	m.PreProcess_FreeMemory(memoryID)

	for _, callID := range []format.ApiCallId{callDestroyDevice, callDestroyInstance} {
		traceCall(m, callID, []byte{0xCC})
	}

	m.EndFrame()

	log.WithField("frame", m.Frame()).WithField("mode", m.Mode()).Info("gfxtraced: session complete")
	return nil
}

func traceCall(m *tracemanager.Manager, callID format.ApiCallId, params []byte) {
	ctx := m.InitApiCallTrace(callID)
	ctx.Params.Write(params)
	m.EndApiCallTrace(ctx)
}
