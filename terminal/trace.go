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

package terminal

import (
	"context"
	"reflect"
)

// TerminalTrace is a set of hooks run around the requests a terminal submits
// to the telephony stack. Any particular hook may be nil. Complete runs on
// the goroutine that delivered the completion, so hooks may be called
// concurrently.
//
// TerminalTrace is adapted from httptrace.ClientTrace.
type TerminalTrace struct {
	// Submit is called before a request is handed to the telephony stack.
	// kind is "transmit" or "atr", id identifies the request until it
	// completes, req is the command APDU (nil for atr).
	Submit func(kind, id string, req []byte)

	// Complete is called once per submitted request with the response and
	// the error returned to the caller. It is also called when a submission
	// fails or a synchronous wait gives up.
	Complete func(kind, id string, resp []byte, err error)
}

// unique type to prevent assignment.
type terminalTraceContextKey struct{}

// ContextTerminalTrace returns the [TerminalTrace] associated with the
// provided context. If none, it returns nil.
func ContextTerminalTrace(ctx context.Context) *TerminalTrace {
	if ctx == nil {
		return nil
	}
	trace, _ := ctx.Value(terminalTraceContextKey{}).(*TerminalTrace)
	return trace
}

// compose modifies t such that it respects the previously-registered hooks
// in old.
func (t *TerminalTrace) compose(old *TerminalTrace) {
	if old == nil {
		return
	}
	tv := reflect.ValueOf(t).Elem()
	ov := reflect.ValueOf(old).Elem()
	for i := 0; i < tv.NumField(); i++ {
		tf := tv.Field(i)
		if tf.Kind() != reflect.Func {
			continue
		}
		of := ov.Field(i)
		if of.IsNil() {
			continue
		}
		if tf.IsNil() {
			tf.Set(of)
			continue
		}

		// Copy tf so the composed hook does not call itself.
		tfCopy := reflect.ValueOf(tf.Interface())
		tf.Set(reflect.MakeFunc(tf.Type(), func(args []reflect.Value) []reflect.Value {
			tfCopy.Call(args)
			return of.Call(args)
		}))
	}
}

// WithTerminalTrace returns a new context based on ctx. Requests made with the
// returned context run the hooks in trace, in addition to any hooks already
// registered with ctx. Hooks in trace run first.
func WithTerminalTrace(ctx context.Context, trace *TerminalTrace) context.Context {
	if trace == nil {
		panic("nil trace")
	}
	trace.compose(ContextTerminalTrace(ctx))
	return context.WithValue(ctx, terminalTraceContextKey{}, trace)
}

func (t *TerminalTrace) submit(kind requestKind, id string, req []byte) {
	if t != nil && t.Submit != nil {
		t.Submit(string(kind), id, req)
	}
}

func (t *TerminalTrace) complete(kind requestKind, id string, resp []byte, err error) {
	if t != nil && t.Complete != nil {
		t.Complete(string(kind), id, resp, err)
	}
}
