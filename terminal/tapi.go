package terminal

import (
	"context"
	"fmt"

	"github.com/areese/uicc-terminal/terminal/internal/tapi"
)

// The interfaces here are for wrapping the telephony code.
// This allows us to test the terminal by returning various errors and
// completion orders from the telephony stack without a modem attached.

// TapiHandle wraps one session with the telephony daemon.
type TapiHandle interface {
	// RegisterSimStatus subscribes fn to card status changes.
	RegisterSimStatus(fn func(SimStatus)) error
	DeregisterSimStatus() error

	// RequestAPDU submits apdu. A nil return means the request was accepted;
	// fn is then called exactly once, from another goroutine, with the
	// outcome.
	RequestAPDU(apdu []byte, fn func(AccessResult, []byte)) error
	// RequestATR works like RequestAPDU for the answer to reset.
	RequestATR(fn func(AccessResult, []byte)) error

	SimInitInfo() (status SimStatus, cardChanged bool, err error)
	Close() error
}

// TapiConstructor opens telephony sessions.
type TapiConstructor interface {
	NewTapiHandle(ctx context.Context) (TapiHandle, error)
}

// SimStatus is the card status reported by the telephony daemon.
type SimStatus int32

const (
	SimStatusCardError      SimStatus = tapi.StatusCardError
	SimStatusCardNotPresent SimStatus = tapi.StatusCardNotPresent
	SimStatusInitializing   SimStatus = tapi.StatusInitializing
	SimStatusInitCompleted  SimStatus = tapi.StatusInitCompleted
	SimStatusPINRequired    SimStatus = tapi.StatusPINRequired
	SimStatusPUKRequired    SimStatus = tapi.StatusPUKRequired
	SimStatusCardBlocked    SimStatus = tapi.StatusCardBlocked
	SimStatusNCKRequired    SimStatus = tapi.StatusNCKRequired
	SimStatusNSCKRequired   SimStatus = tapi.StatusNSCKRequired
	SimStatusSPCKRequired   SimStatus = tapi.StatusSPCKRequired
	SimStatusCCKRequired    SimStatus = tapi.StatusCCKRequired
	SimStatusCardRemoved    SimStatus = tapi.StatusCardRemoved
	SimStatusLockRequired   SimStatus = tapi.StatusLockRequired
	SimStatusCardCrashed    SimStatus = tapi.StatusCardCrashed
	SimStatusCardPowerOff   SimStatus = tapi.StatusCardPowerOff
	SimStatusUnknown        SimStatus = tapi.StatusUnknown
)

var simStatusNames = map[SimStatus]string{
	SimStatusCardError:      "card error",
	SimStatusCardNotPresent: "card not present",
	SimStatusInitializing:   "initializing",
	SimStatusInitCompleted:  "init completed",
	SimStatusPINRequired:    "pin required",
	SimStatusPUKRequired:    "puk required",
	SimStatusCardBlocked:    "card blocked",
	SimStatusNCKRequired:    "nck required",
	SimStatusNSCKRequired:   "nsck required",
	SimStatusSPCKRequired:   "spck required",
	SimStatusCCKRequired:    "cck required",
	SimStatusCardRemoved:    "card removed",
	SimStatusLockRequired:   "lock required",
	SimStatusCardCrashed:    "card crashed",
	SimStatusCardPowerOff:   "card power off",
	SimStatusUnknown:        "unknown",
}

func (s SimStatus) String() string {
	if name, ok := simStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%02x", int32(s))
}

// AccessResult is the outcome the telephony daemon attaches to a SIM access.
type AccessResult int32

const (
	AccessSuccess               AccessResult = tapi.AccessSuccess
	AccessCardError             AccessResult = tapi.AccessCardError
	AccessFileNotFound          AccessResult = tapi.AccessFileNotFound
	AccessConditionNotSatisfied AccessResult = tapi.AccessConditionNotSatisfied
	AccessFailed                AccessResult = tapi.AccessFailed
)

func (a AccessResult) String() string {
	switch a {
	case AccessSuccess:
		return "success"
	case AccessCardError:
		return "card error"
	case AccessFileNotFound:
		return "file not found"
	case AccessConditionNotSatisfied:
		return "access condition not satisfied"
	case AccessFailed:
		return "failed"
	}
	return fmt.Sprintf("result %d", int32(a))
}

// DBusTapiConstructor opens sessions with the telephony daemon over D-Bus.
type DBusTapiConstructor struct {
	// BusAddress overrides the bus; empty uses TAPI_BUS_ADDRESS or the
	// system bus.
	BusAddress string
	// Service overrides the daemon bus name.
	Service string
	// Modem selects a modem; empty picks the first one.
	Modem string
}

// DBusTapiHandle is a TapiHandle backed by a telephony daemon client.
type DBusTapiHandle struct {
	c *tapi.Client
}

var (
	_ TapiConstructor = (*DBusTapiConstructor)(nil)
	_ TapiHandle      = (*DBusTapiHandle)(nil)
)

// nolint:ireturn
func (p *DBusTapiConstructor) NewTapiHandle(ctx context.Context) (TapiHandle, error) {
	c, err := tapi.NewClient(ctx, &tapi.Config{
		BusAddress: p.BusAddress,
		Service:    p.Service,
		Modem:      p.Modem,
	})
	if err != nil {
		return nil, err
	}
	return &DBusTapiHandle{c: c}, nil
}

func (h *DBusTapiHandle) RegisterSimStatus(fn func(SimStatus)) error {
	return h.c.Subscribe(func(status int32) {
		fn(SimStatus(status))
	})
}

func (h *DBusTapiHandle) DeregisterSimStatus() error {
	return h.c.Unsubscribe()
}

func (h *DBusTapiHandle) RequestAPDU(apdu []byte, fn func(AccessResult, []byte)) error {
	return h.c.TransferAPDU(apdu, func(result int32, data []byte) {
		fn(AccessResult(result), data)
	})
}

func (h *DBusTapiHandle) RequestATR(fn func(AccessResult, []byte)) error {
	return h.c.GetATR(func(result int32, data []byte) {
		fn(AccessResult(result), data)
	})
}

func (h *DBusTapiHandle) SimInitInfo() (SimStatus, bool, error) {
	status, changed, err := h.c.GetInitStatus()
	return SimStatus(status), changed, err
}

func (h *DBusTapiHandle) Close() error {
	return h.c.Close()
}
