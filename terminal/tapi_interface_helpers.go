package terminal

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTestTapiClosed is returned by a TestTapiHandle used after Close.
var ErrTestTapiClosed = errors.New("test tapi handle closed")

// TestTapiConstructor hands out Handle, or fails with OpenErr.
type TestTapiConstructor struct {
	Handle  *TestTapiHandle
	OpenErr error

	mu    sync.Mutex
	opens int
}

// TestCompletion scripts the completion of one request.
type TestCompletion struct {
	Result AccessResult
	Data   []byte
	// Delay postpones the completion.
	Delay time.Duration
	// Hold never completes the request.
	Hold bool
	// Immediate completes the request before the submission returns.
	Immediate bool
}

// TestTapiHandle is a scripted telephony session. Completions are delivered
// from their own goroutine, like the real telephony stack does.
type TestTapiHandle struct {
	// APDUResponses are used in order, one per RequestAPDU. The last entry
	// is reused once the list runs out.
	APDUResponses []TestCompletion
	ATRResponse   TestCompletion

	// APDUErr and ATRErr fail the submission itself.
	APDUErr error
	ATRErr  error

	// Duplicate delivers every completion twice.
	Duplicate bool

	RegisterErr   error
	DeregisterErr error
	CloseErr      error

	InitStatus  SimStatus
	InitInfoErr error

	mu              sync.Mutex
	wg              sync.WaitGroup
	closed          bool
	notify          func(SimStatus)
	registrations   int
	deregistrations int
	closes          int
	apdus           [][]byte
	atrRequests     int
	inFlight        int
	maxInFlight     int
}

var (
	_ TapiConstructor = (*TestTapiConstructor)(nil)
	_ TapiHandle      = (*TestTapiHandle)(nil)
)

// nolint:ireturn
func (p *TestTapiConstructor) NewTapiHandle(ctx context.Context) (TapiHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.opens++
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	p.Handle.mu.Lock()
	p.Handle.closed = false
	p.Handle.mu.Unlock()
	return p.Handle, nil
}

// Opens returns how many sessions were requested.
func (p *TestTapiConstructor) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.opens
}

func (h *TestTapiHandle) RegisterSimStatus(fn func(SimStatus)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.registrations++
	if h.RegisterErr != nil {
		return h.RegisterErr
	}
	h.notify = fn
	return nil
}

func (h *TestTapiHandle) DeregisterSimStatus() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deregistrations++
	h.notify = nil
	return h.DeregisterErr
}

func (h *TestTapiHandle) RequestAPDU(apdu []byte, fn func(AccessResult, []byte)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrTestTapiClosed
	}
	h.apdus = append(h.apdus, append([]byte(nil), apdu...))
	if h.APDUErr != nil {
		return h.APDUErr
	}

	var c TestCompletion
	if n := len(h.APDUResponses); n > 0 {
		i := len(h.apdus) - 1
		if i >= n {
			i = n - 1
		}
		c = h.APDUResponses[i]
	}
	h.start(c, fn)
	return nil
}

func (h *TestTapiHandle) RequestATR(fn func(AccessResult, []byte)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrTestTapiClosed
	}
	h.atrRequests++
	if h.ATRErr != nil {
		return h.ATRErr
	}
	h.start(h.ATRResponse, fn)
	return nil
}

// start must be called with h.mu held.
func (h *TestTapiHandle) start(c TestCompletion, fn func(AccessResult, []byte)) {
	h.inFlight++
	if h.inFlight > h.maxInFlight {
		h.maxInFlight = h.inFlight
	}
	if c.Hold {
		return
	}
	if c.Immediate {
		h.inFlight--
		fn(c.Result, c.Data)
		if h.Duplicate {
			fn(c.Result, c.Data)
		}
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		if c.Delay > 0 {
			time.Sleep(c.Delay)
		}
		h.mu.Lock()
		h.inFlight--
		h.mu.Unlock()

		fn(c.Result, c.Data)
		if h.Duplicate {
			fn(c.Result, c.Data)
		}
	}()
}

func (h *TestTapiHandle) SimInitInfo() (SimStatus, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.InitInfoErr != nil {
		return SimStatusUnknown, false, h.InitInfoErr
	}
	return h.InitStatus, false, nil
}

func (h *TestTapiHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closes++
	h.closed = true
	return h.CloseErr
}

// Notify delivers a card status change to the registered callback, if any.
func (h *TestTapiHandle) Notify(status SimStatus) {
	h.mu.Lock()
	fn := h.notify
	h.mu.Unlock()

	if fn != nil {
		fn(status)
	}
}

// Wait blocks until every scheduled completion was delivered.
func (h *TestTapiHandle) Wait() {
	h.wg.Wait()
}

func (h *TestTapiHandle) Registrations() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.registrations
}

func (h *TestTapiHandle) Deregistrations() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.deregistrations
}

func (h *TestTapiHandle) Closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closes
}

// APDUs returns the APDUs submitted so far, including failed submissions.
func (h *TestTapiHandle) APDUs() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([][]byte(nil), h.apdus...)
}

func (h *TestTapiHandle) ATRRequests() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.atrRequests
}

// MaxInFlight returns the highest number of requests that were submitted
// and not yet completed at the same time.
func (h *TestTapiHandle) MaxInFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.maxInFlight
}
