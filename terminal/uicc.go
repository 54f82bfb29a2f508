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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/areese/uicc-terminal/logger"
)

const (
	// DefaultName is the name the UICC terminal registers under.
	DefaultName = "SIM1"

	// DefaultTimeout bounds every synchronous request.
	DefaultTimeout = 3 * time.Second
)

// PresencePolicy decides which card states count as a present secure element.
type PresencePolicy int

const (
	// PresenceInitCompleted only accepts a fully initialized SIM.
	PresenceInitCompleted PresencePolicy = iota
	// PresenceInitializing also accepts a SIM that is still initializing.
	PresenceInitializing
)

// Option configures a UICCTerminal.
type Option func(*UICCTerminal)

// WithName overrides DefaultName.
func WithName(name string) Option {
	return func(t *UICCTerminal) {
		if name != "" {
			t.name = name
		}
	}
}

// WithLogger sets the logger; nil keeps the no-op logger.
func WithLogger(l logger.LogI) Option {
	return func(t *UICCTerminal) {
		t.log = logger.Nop(l)
	}
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(t *UICCTerminal) {
		t.SetTimeout(d)
	}
}

// WithPresencePolicy overrides PresenceInitCompleted.
func WithPresencePolicy(p PresencePolicy) Option {
	return func(t *UICCTerminal) {
		t.presence = p
	}
}

// WithTeardownOnRemoval makes the terminal finalize itself when the card is
// removed, before the removal is reported.
func WithTeardownOnRemoval(teardown bool) Option {
	return func(t *UICCTerminal) {
		t.teardownOnRemoval = teardown
	}
}

// UICCTerminal is the SIM exposed as a secure element terminal.
type UICCTerminal struct {
	name              string
	tapi              TapiConstructor
	log               logger.LogI
	presence          PresencePolicy
	teardownOnRemoval bool
	timeout           atomic.Int64

	// mu serializes request submission. Synchronous requests hold it until
	// their completion arrives or the wait gives up.
	mu sync.Mutex

	// stateMu guards handle. A nil handle means not initialized.
	stateMu sync.RWMutex
	handle  TapiHandle

	cbMu        sync.RWMutex
	statusCb    StatusCallback
	statusParam interface{}

	pending *requestTable
}

var _ Terminal = (*UICCTerminal)(nil)

// NewUICCTerminal returns a terminal that opens its telephony sessions
// through c. The terminal is not initialized.
func NewUICCTerminal(c TapiConstructor, opts ...Option) *UICCTerminal {
	t := &UICCTerminal{
		name:    DefaultName,
		tapi:    c,
		log:     &logger.NopLogger{},
		pending: newRequestTable(),
	}
	t.timeout.Store(int64(DefaultTimeout))
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *UICCTerminal) Name() string {
	return t.name
}

// Timeout returns the bound on synchronous requests.
func (t *UICCTerminal) Timeout() time.Duration {
	return time.Duration(t.timeout.Load())
}

// SetTimeout changes the bound on synchronous requests started afterwards.
// Non-positive values restore DefaultTimeout.
func (t *UICCTerminal) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	t.timeout.Store(int64(d))
}

func (t *UICCTerminal) currentHandle() TapiHandle {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()

	return t.handle
}

// IsInitialized reports whether the terminal holds a telephony session.
func (t *UICCTerminal) IsInitialized() bool {
	return t.currentHandle() != nil
}

func (t *UICCTerminal) Initialize() error {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	if t.handle != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.Timeout())
	defer cancel()

	h, err := t.tapi.NewTapiHandle(ctx)
	if err != nil {
		t.log.ErrorMsg(err, "opening telephony session failed")
		return fmt.Errorf("initializing %s: %w", t.name, err)
	}

	if err := h.RegisterSimStatus(t.onSimStatus); err != nil {
		t.log.ErrorMsg(err, "registering sim status notification failed")
	}

	t.handle = h
	t.log.DebugMsgf("terminal [%s] initialized", t.name)
	return nil
}

func (t *UICCTerminal) Finalize() {
	t.stateMu.Lock()
	h := t.handle
	t.handle = nil
	t.stateMu.Unlock()

	if h == nil {
		return
	}

	if err := h.DeregisterSimStatus(); err != nil {
		t.log.ErrorMsg(err, "deregistering sim status notification failed")
	}
	if err := h.Close(); err != nil {
		t.log.ErrorMsg(err, "closing telephony session failed")
	}

	for _, req := range t.pending.drain() {
		t.finish(req, completion{err: fmt.Errorf("%s: %w", req.kind, ErrNotInitialized)})
	}
	t.log.DebugMsgf("terminal [%s] finalized", t.name)
}

// Open is a no-op, the terminal is usable as soon as it is initialized.
func (t *UICCTerminal) Open() error {
	return nil
}

// Close is a no-op, see Open.
func (t *UICCTerminal) Close() {}

func (t *UICCTerminal) SetStatusCallback(cb StatusCallback, param interface{}) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()

	t.statusCb = cb
	t.statusParam = param
}

func (t *UICCTerminal) statusCallback() (StatusCallback, interface{}) {
	t.cbMu.RLock()
	defer t.cbMu.RUnlock()

	return t.statusCb, t.statusParam
}

func (t *UICCTerminal) IsSecureElementPresence() bool {
	h := t.currentHandle()
	if h == nil {
		t.log.DebugMsgf("terminal [%s] is not initialized", t.name)
		return false
	}

	status, _, err := h.SimInitInfo()
	if err != nil {
		t.log.ErrorMsg(err, "querying sim init info failed")
		return false
	}

	switch {
	case status == SimStatusInitCompleted:
		return true
	case status == SimStatusInitializing && t.presence == PresenceInitializing:
		return true
	}
	t.log.DebugMsgf("sim is not initialized, state [%s]", status)
	return false
}

// onSimStatus relays card status changes to the status callback.
func (t *UICCTerminal) onSimStatus(status SimStatus) {
	var event Event

	switch status {
	case SimStatusInitCompleted:
		event = EventAvailable
	case SimStatusCardRemoved:
		event = EventNotAvailable
		if t.teardownOnRemoval {
			t.Finalize()
		}
	default:
		return
	}

	t.log.DebugMsgf("sim status [%s], secure element %s", status, event)

	if cb, param := t.statusCallback(); cb != nil {
		cb(t.name, event, 0, param)
	}
}

type submitFunc func(h TapiHandle, fn func(AccessResult, []byte)) error

func (t *UICCTerminal) TransmitSync(ctx context.Context, command []byte) ([]byte, error) {
	if len(command) == 0 {
		t.log.ErrorMsg(ErrIllegalParam, "apdu is empty")
		return nil, fmt.Errorf("%s: %w", kindTransmit, ErrIllegalParam)
	}
	apdu := append([]byte(nil), command...)

	return t.requestSync(ctx, kindTransmit, apdu, func(h TapiHandle, fn func(AccessResult, []byte)) error {
		return h.RequestAPDU(apdu, fn)
	})
}

func (t *UICCTerminal) GetATRSync(ctx context.Context) ([]byte, error) {
	return t.requestSync(ctx, kindATR, nil, func(h TapiHandle, fn func(AccessResult, []byte)) error {
		return h.RequestATR(fn)
	})
}

func (t *UICCTerminal) requestSync(ctx context.Context, kind requestKind, cmd []byte, submit submitFunc) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.currentHandle()
	if h == nil {
		t.log.ErrorMsgf(ErrNotInitialized, "%s rejected", kind)
		return nil, fmt.Errorf("%s: %w", kind, ErrNotInitialized)
	}

	req := &pendingRequest{
		kind:  kind,
		trace: ContextTerminalTrace(ctx),
		done:  make(chan completion, 1),
	}
	t.pending.add(req)
	req.trace.submit(kind, req.id.String(), cmd)

	if err := submit(h, t.completer(req.id)); err != nil {
		t.pending.take(req.id)
		t.log.ErrorMsgf(err, "%s request failed", kind)
		err = fmt.Errorf("%s: submitting request: %w (%v)", kind, ErrIOFailed, err)
		req.trace.complete(kind, req.id.String(), nil, err)
		return nil, err
	}

	timer := time.NewTimer(t.Timeout())
	defer timer.Stop()

	var c completion
	select {
	case c = <-req.done:
	case <-timer.C:
		c = t.abandon(req, fmt.Errorf("%s: %w", kind, ErrTimeout))
	case <-ctx.Done():
		c = t.abandon(req, fmt.Errorf("%s: %w: %w", kind, ErrTimeout, ctx.Err()))
	}

	resp, err := c.outcome(kind)
	if err != nil && c.err == nil {
		t.log.ErrorMsgf(err, "%s request [%s] failed", kind, req.id)
	}
	req.trace.complete(kind, req.id.String(), resp, err)
	return resp, err
}

// abandon gives up waiting for req with err. A completion that took req
// first is already on its way to req.done and wins over err.
func (t *UICCTerminal) abandon(req *pendingRequest, err error) completion {
	if _, ok := t.pending.take(req.id); !ok {
		return <-req.done
	}
	t.log.ErrorMsgf(err, "no completion for %s request [%s]", req.kind, req.id)
	return completion{err: err}
}

func (t *UICCTerminal) Transmit(ctx context.Context, command []byte, cb TransmitCallback, param interface{}) error {
	if len(command) == 0 {
		t.log.ErrorMsg(ErrIllegalParam, "apdu is empty")
		return fmt.Errorf("%s: %w", kindTransmit, ErrIllegalParam)
	}
	apdu := append([]byte(nil), command...)

	return t.requestAsync(ctx, kindTransmit, apdu, cb, param, func(h TapiHandle, fn func(AccessResult, []byte)) error {
		return h.RequestAPDU(apdu, fn)
	})
}

func (t *UICCTerminal) GetATR(ctx context.Context, cb ATRCallback, param interface{}) error {
	return t.requestAsync(ctx, kindATR, nil, cb, param, func(h TapiHandle, fn func(AccessResult, []byte)) error {
		return h.RequestATR(fn)
	})
}

func (t *UICCTerminal) requestAsync(ctx context.Context, kind requestKind, cmd []byte,
	cb func([]byte, error, interface{}), param interface{}, submit submitFunc,
) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.currentHandle()
	if h == nil {
		t.log.ErrorMsgf(ErrNotInitialized, "%s rejected", kind)
		return fmt.Errorf("%s: %w", kind, ErrNotInitialized)
	}

	req := &pendingRequest{
		kind:     kind,
		trace:    ContextTerminalTrace(ctx),
		callback: cb,
		param:    param,
	}
	t.pending.add(req)
	req.trace.submit(kind, req.id.String(), cmd)

	if err := submit(h, t.completer(req.id)); err != nil {
		t.pending.take(req.id)
		t.log.ErrorMsgf(err, "%s request failed", kind)
		err = fmt.Errorf("%s: submitting request: %w (%v)", kind, ErrIOFailed, err)
		req.trace.complete(kind, req.id.String(), nil, err)
		return err
	}

	t.log.DebugMsgf("%s request [%s] submitted", kind, req.id)
	return nil
}

// completer returns the function handed to the telephony stack for request
// id. Only the first call finds the request; later ones are dropped.
func (t *UICCTerminal) completer(id uuid.UUID) func(AccessResult, []byte) {
	return func(result AccessResult, data []byte) {
		req, ok := t.pending.take(id)
		if !ok {
			t.log.DebugMsgf("dropping completion of finished request [%s]", id)
			return
		}
		t.finish(req, completion{result: result, data: append([]byte(nil), data...)})
	}
}

// finish hands c to whoever waits for req. req must have been taken from
// the pending table by the caller.
func (t *UICCTerminal) finish(req *pendingRequest, c completion) {
	if req.done != nil {
		// Buffered, and only the taker of req sends.
		req.done <- c
		return
	}

	resp, err := c.outcome(req.kind)
	if err != nil {
		t.log.ErrorMsgf(err, "%s request [%s] failed", req.kind, req.id)
	}
	req.trace.complete(req.kind, req.id.String(), resp, err)

	if req.callback == nil {
		t.log.DebugMsgf("%s request [%s] has no callback", req.kind, req.id)
		return
	}
	req.callback(resp, err, req.param)
}

func (t *UICCTerminal) pendingRequests() int {
	return t.pending.len()
}
