package terminal

import (
	"sync"

	"github.com/google/uuid"
)

type requestKind string

const (
	kindTransmit requestKind = "transmit"
	kindATR      requestKind = "atr"
)

// completion is what the telephony stack reported for one request.
type completion struct {
	result AccessResult
	// data is owned by the completion, never the telephony stack's buffer.
	data []byte
	// err overrides result when the request was aborted locally.
	err error
}

// outcome translates c into what the caller of a request of kind sees.
func (c completion) outcome(kind requestKind) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.result != AccessSuccess {
		return nil, &VendorError{Op: string(kind), Result: c.result}
	}
	return c.data, nil
}

// pendingRequest is a submitted request waiting for its completion.
// Synchronous requests carry done, asynchronous ones carry callback.
type pendingRequest struct {
	id    uuid.UUID
	kind  requestKind
	trace *TerminalTrace

	done chan completion

	callback func(resp []byte, err error, param interface{})
	param    interface{}
}

// requestTable owns the pending requests of a terminal. A request leaves the
// table exactly once, either through its completion or through cancellation,
// so whoever takes it is the only one allowed to finish it.
type requestTable struct {
	mu   sync.Mutex
	reqs map[uuid.UUID]*pendingRequest
}

func newRequestTable() *requestTable {
	return &requestTable{reqs: make(map[uuid.UUID]*pendingRequest)}
}

func (r *requestTable) add(req *pendingRequest) {
	req.id = uuid.New()

	r.mu.Lock()
	r.reqs[req.id] = req
	r.mu.Unlock()
}

func (r *requestTable) take(id uuid.UUID) (*pendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.reqs[id]
	if ok {
		delete(r.reqs, id)
	}
	return req, ok
}

// drain empties the table and returns what was in it.
func (r *requestTable) drain() []*pendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	reqs := make([]*pendingRequest, 0, len(r.reqs))
	for id, req := range r.reqs {
		reqs = append(reqs, req)
		delete(r.reqs, id)
	}
	return reqs
}

func (r *requestTable) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.reqs)
}
