package main

/*
#include "uicc_plugin.h"

static inline void call_status_cb(uicc_status_cb cb, const char *name, int event, int extra, void *param) {
	cb(name, event, extra, param);
}

static inline void call_data_cb(uicc_data_cb cb, const unsigned char *data, size_t len, int status, void *param) {
	cb(data, len, status, param);
}
*/
import "C"

import (
	"unsafe"

	"github.com/areese/uicc-terminal/terminal"
)

func statusCallback(cb C.uicc_status_cb, param unsafe.Pointer) terminal.StatusCallback {
	if cb == nil {
		return nil
	}
	return func(name string, event terminal.Event, extra int, _ interface{}) {
		cName := C.CString(name)
		defer C.free(unsafe.Pointer(cName))

		C.call_status_cb(cb, cName, C.int(event), C.int(extra), param)
	}
}

func dataCallback(cb C.uicc_data_cb, param unsafe.Pointer) func([]byte, error, interface{}) {
	if cb == nil {
		return nil
	}
	return func(data []byte, err error, _ interface{}) {
		var p unsafe.Pointer
		if len(data) > 0 {
			p = C.CBytes(data)
			defer C.free(p)
		}
		C.call_data_cb(cb, (*C.uchar)(p), C.size_t(len(data)), C.int(errorCode(err)), param)
	}
}
