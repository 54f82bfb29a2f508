// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command uicc-plugin is the UICC terminal driver built as a shared object
// for the smartcard service:
//
//	go build -buildmode=c-shared -o libuicc-terminal.so ./cmd/uicc-plugin
//
// The service resolves get_name, create_instance and destroy_instance from
// it. The instance pointer handed out is an opaque handle to the terminal;
// C hosts reach the terminal through the uicc_* functions declared in
// uicc_plugin.h, which take that handle:
//
//	uicc_is_secure_element_present, uicc_transmit_sync, uicc_get_atr_sync,
//	uicc_transmit, uicc_get_atr, uicc_set_status_callback, uicc_free
//
// Buffers returned by the synchronous calls are released with uicc_free. Go
// hosts use the terminal package directly.
package main

/*
#include "uicc_plugin.h"
*/
import "C"

import (
	"context"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/areese/uicc-terminal/terminal"
)

var (
	nameOnce sync.Once
	cName    *C.char

	handleMu sync.Mutex
	handle   cgo.Handle
)

//export get_name
func get_name() *C.char {
	nameOnce.Do(func() {
		// Owned by the library for its whole lifetime.
		cName = C.CString(loaded().plugin.Name())
	})
	return cName
}

//export create_instance
func create_instance() C.uintptr_t {
	inst := loaded().plugin.CreateInstance()

	handleMu.Lock()
	defer handleMu.Unlock()

	if handle == 0 {
		handle = cgo.NewHandle(inst)
	}
	return C.uintptr_t(handle)
}

// lookup returns the terminal behind instance, if instance is the handle
// create_instance handed out.
func lookup(instance C.uintptr_t) (*terminal.UICCTerminal, bool) {
	handleMu.Lock()
	h := handle
	handleMu.Unlock()

	if h == 0 || cgo.Handle(instance) != h {
		loaded().log.ErrorMsgf(terminal.ErrInvalidInstance, "unknown instance [%#x]", uintptr(instance))
		return nil, false
	}
	inst, ok := h.Value().(*terminal.UICCTerminal)
	return inst, ok
}

//export destroy_instance
func destroy_instance(instance C.uintptr_t) {
	inst, ok := lookup(instance)
	if !ok {
		return
	}
	s := loaded()
	if err := s.plugin.DestroyInstance(inst); err != nil {
		s.log.ErrorMsg(err, "destroy_instance")
	}
}

//export uicc_is_secure_element_present
func uicc_is_secure_element_present(instance C.uintptr_t) C.int {
	inst, ok := lookup(instance)
	if !ok || !inst.IsSecureElementPresence() {
		return 0
	}
	return 1
}

//export uicc_transmit_sync
func uicc_transmit_sync(instance C.uintptr_t, cmd *C.uchar, cmdLen C.size_t, resp **C.uchar, respLen *C.size_t) C.int {
	inst, ok := lookup(instance)
	if !ok {
		return C.int(codeInvalidInstance)
	}
	if resp == nil || respLen == nil {
		return C.int(codeIllegalParam)
	}
	data, err := inst.TransmitSync(context.Background(), goBytes(cmd, cmdLen))
	return output(data, err, resp, respLen)
}

//export uicc_get_atr_sync
func uicc_get_atr_sync(instance C.uintptr_t, atr **C.uchar, atrLen *C.size_t) C.int {
	inst, ok := lookup(instance)
	if !ok {
		return C.int(codeInvalidInstance)
	}
	if atr == nil || atrLen == nil {
		return C.int(codeIllegalParam)
	}
	data, err := inst.GetATRSync(context.Background())
	return output(data, err, atr, atrLen)
}

//export uicc_transmit
func uicc_transmit(instance C.uintptr_t, cmd *C.uchar, cmdLen C.size_t, cb C.uicc_data_cb, param unsafe.Pointer) C.int {
	inst, ok := lookup(instance)
	if !ok {
		return C.int(codeInvalidInstance)
	}
	err := inst.Transmit(context.Background(), goBytes(cmd, cmdLen), dataCallback(cb, param), nil)
	return C.int(errorCode(err))
}

//export uicc_get_atr
func uicc_get_atr(instance C.uintptr_t, cb C.uicc_data_cb, param unsafe.Pointer) C.int {
	inst, ok := lookup(instance)
	if !ok {
		return C.int(codeInvalidInstance)
	}
	err := inst.GetATR(context.Background(), dataCallback(cb, param), nil)
	return C.int(errorCode(err))
}

//export uicc_set_status_callback
func uicc_set_status_callback(instance C.uintptr_t, cb C.uicc_status_cb, param unsafe.Pointer) C.int {
	inst, ok := lookup(instance)
	if !ok {
		return C.int(codeInvalidInstance)
	}
	inst.SetStatusCallback(statusCallback(cb, param), nil)
	return C.int(codeOK)
}

//export uicc_free
func uicc_free(p unsafe.Pointer) {
	C.free(p)
}

func goBytes(p *C.uchar, n C.size_t) []byte {
	if p == nil || n == 0 {
		return nil
	}
	return C.GoBytes(unsafe.Pointer(p), C.int(n))
}

// output copies data to C memory owned by the caller.
func output(data []byte, err error, out **C.uchar, outLen *C.size_t) C.int {
	*out, *outLen = nil, 0
	if err != nil {
		return C.int(errorCode(err))
	}
	if len(data) > 0 {
		*out = (*C.uchar)(C.CBytes(data))
		*outLen = C.size_t(len(data))
	}
	return C.int(codeOK)
}

func main() {}
