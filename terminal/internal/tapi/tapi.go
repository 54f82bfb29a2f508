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

// Package tapi implements the SIM half of the telephony daemon protocol.
//
// The telephony daemon owns the modem and exposes every modem as an object on
// the system bus. SIM access requests (APDU transfer, ATR) are plain method
// calls whose replies arrive asynchronously; card status changes are broadcast
// as a signal on the same object. This package only speaks the wire protocol.
// Turning the asynchronous replies into a terminal is done by the terminal
// package.
package tapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	busAddressEnv = "TAPI_BUS_ADDRESS"

	// DefaultService is the bus name the telephony daemon registers.
	DefaultService = "org.tizen.telephony"

	managerPath      = dbus.ObjectPath("/org/tizen/telephony")
	managerInterface = "org.tizen.telephony.Manager"
	simInterface     = "org.tizen.telephony.Sim"

	methodGetModems     = managerInterface + ".GetModems"
	methodTransferAPDU  = simInterface + ".TransferAPDU"
	methodGetATR        = simInterface + ".GetATR"
	methodGetInitStatus = simInterface + ".GetInitStatus"

	memberStatus = "Status"
	signalStatus = simInterface + "." + memberStatus
)

// Access results returned with every SIM access reply.
const (
	AccessSuccess               = 0x0
	AccessCardError             = 0x1
	AccessFileNotFound          = 0x2
	AccessConditionNotSatisfied = 0x3
	AccessFailed                = 0x4
)

// Card status values carried by GetInitStatus and the Status signal.
const (
	StatusCardError      = 0x00
	StatusCardNotPresent = 0x01
	StatusInitializing   = 0x02
	StatusInitCompleted  = 0x03
	StatusPINRequired    = 0x04
	StatusPUKRequired    = 0x05
	StatusCardBlocked    = 0x06
	StatusNCKRequired    = 0x07
	StatusNSCKRequired   = 0x08
	StatusSPCKRequired   = 0x09
	StatusCCKRequired    = 0x0a
	StatusCardRemoved    = 0x0b
	StatusLockRequired   = 0x0c
	StatusCardCrashed    = 0x0d
	StatusCardPowerOff   = 0x0e
	StatusUnknown        = 0xff
)

// ErrNoModem is returned when the daemon reports no modem to bind to.
var ErrNoModem = errors.New("telephony daemon reported no modem")

// ReplyFunc receives the decoded reply of an asynchronous SIM request. It is
// called from a goroutine owned by the client, never from the caller of the
// request.
type ReplyFunc func(result int32, data []byte)

// Client is a connection to the telephony daemon bound to one modem.
type Client struct {
	conn  *dbus.Conn
	modem string
	sim   dbus.BusObject

	mu      sync.Mutex
	signals chan *dbus.Signal
	stop    chan struct{}
}

// Config is used to modify client behavior.
type Config struct {
	// BusAddress overrides the bus to connect to. When empty the value of the
	// TAPI_BUS_ADDRESS environment variable is used, then the system bus.
	BusAddress string

	// Service is the bus name of the telephony daemon. Defaults to
	// DefaultService.
	Service string

	// Modem selects the modem object. When empty the first modem reported by
	// the daemon is used.
	Modem string
}

// NewClient connects to the bus and binds to a modem. The context bounds the
// connection handshake and the modem lookup only; the client stays connected
// until Close.
func NewClient(ctx context.Context, c *Config) (*Client, error) {
	addr := c.BusAddress
	if addr == "" {
		addr = os.Getenv(busAddressEnv)
	}
	service := c.Service
	if service == "" {
		service = DefaultService
	}

	conn, err := connect(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to bus: %w", err)
	}

	modem := c.Modem
	if modem == "" {
		modems, err := listModems(ctx, conn.Object(service, managerPath))
		if err != nil {
			conn.Close()
			return nil, err
		}
		modem = modems[0]
	}

	path, err := modemPath(modem)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Client{
		conn:  conn,
		modem: modem,
		sim:   conn.Object(service, path),
	}, nil
}

// connect opens the bus connection, giving up when ctx is done. ctx is not
// handed to the connection: a dbus.Conn closes itself once its context is
// done, and the client outlives the call that created it.
func connect(ctx context.Context, addr string) (*dbus.Conn, error) {
	type result struct {
		conn *dbus.Conn
		err  error
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan result, 1)
	go func() {
		var r result
		if addr == "" {
			r.conn, r.err = dbus.ConnectSystemBus()
		} else {
			r.conn, r.err = dbus.Connect(addr)
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func listModems(ctx context.Context, obj dbus.BusObject) ([]string, error) {
	var modems []string
	if err := obj.CallWithContext(ctx, methodGetModems, 0).Store(&modems); err != nil {
		return nil, fmt.Errorf("listing modems: %w", err)
	}
	if len(modems) == 0 {
		return nil, ErrNoModem
	}
	return modems, nil
}

func modemPath(modem string) (dbus.ObjectPath, error) {
	p := dbus.ObjectPath(string(managerPath) + "/" + modem)
	if modem == "" || !p.IsValid() {
		return "", fmt.Errorf("invalid modem name %q", modem)
	}
	return p, nil
}

// Modem returns the name of the modem the client is bound to.
func (c *Client) Modem() string {
	return c.modem
}

// TransferAPDU sends an APDU to the SIM. A nil return only means the request
// was handed to the bus; the response is delivered to fn.
func (c *Client) TransferAPDU(apdu []byte, fn ReplyFunc) error {
	return c.goCall(methodTransferAPDU, fn, apdu)
}

// GetATR requests the answer to reset of the SIM. The ATR is delivered to fn.
func (c *Client) GetATR(fn ReplyFunc) error {
	return c.goCall(methodGetATR, fn)
}

func (c *Client) goCall(method string, fn ReplyFunc, args ...interface{}) error {
	call := c.sim.Go(method, 0, make(chan *dbus.Call, 1), args...)

	// Failures to write the message complete the call before Go returns.
	select {
	case done := <-call.Done:
		if done.Err != nil && isSendError(done.Err) {
			return fmt.Errorf("%s: %w", method, done.Err)
		}
		go deliver(done, fn)
	default:
		go func() {
			deliver(<-call.Done, fn)
		}()
	}
	return nil
}

// isSendError reports whether err happened before the daemon saw the request.
// Errors sent back by the daemon are dbus.Error values.
func isSendError(err error) bool {
	var remote dbus.Error
	return !errors.As(err, &remote)
}

func deliver(call *dbus.Call, fn ReplyFunc) {
	result, data := decodeReply(call)
	fn(result, data)
}

func decodeReply(call *dbus.Call) (int32, []byte) {
	if call.Err != nil {
		return AccessFailed, nil
	}
	var (
		result int32
		data   []byte
	)
	if err := call.Store(&result, &data); err != nil {
		return AccessFailed, nil
	}
	return result, data
}

// GetInitStatus returns the current card status and whether the card changed
// since the last boot.
func (c *Client) GetInitStatus() (status int32, changed bool, err error) {
	if err := c.sim.Call(methodGetInitStatus, 0).Store(&status, &changed); err != nil {
		return StatusUnknown, false, fmt.Errorf("%s: %w", methodGetInitStatus, err)
	}
	return status, changed, nil
}

func (c *Client) matchOptions() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(c.sim.Path()),
		dbus.WithMatchInterface(simInterface),
		dbus.WithMatchMember(memberStatus),
	}
}

// Subscribe registers fn for card status changes. Only one subscription is
// held per client; a second call replaces nothing and returns an error.
func (c *Client) Subscribe(fn func(status int32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.signals != nil {
		return errors.New("already subscribed to sim status")
	}
	if err := c.conn.AddMatchSignal(c.matchOptions()...); err != nil {
		return fmt.Errorf("adding match rule: %w", err)
	}

	c.signals = make(chan *dbus.Signal, 16)
	c.stop = make(chan struct{})
	c.conn.Signal(c.signals)
	go c.dispatch(c.sim.Path(), c.signals, c.stop, fn)
	return nil
}

func (c *Client) dispatch(path dbus.ObjectPath, signals <-chan *dbus.Signal, stop <-chan struct{}, fn func(int32)) {
	for {
		select {
		case <-stop:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig == nil || sig.Path != path || sig.Name != signalStatus {
				continue
			}
			if status, ok := decodeStatus(sig.Body); ok {
				fn(status)
			}
		}
	}
}

func decodeStatus(body []interface{}) (int32, bool) {
	if len(body) == 0 {
		return 0, false
	}
	status, ok := body[0].(int32)
	return status, ok
}

// Unsubscribe drops the status subscription. It does not wait for a status
// callback that is already running, so it is safe to call from inside one.
func (c *Client) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.signals == nil {
		return nil
	}
	c.conn.RemoveSignal(c.signals)
	close(c.stop)
	c.signals = nil
	c.stop = nil

	if err := c.conn.RemoveMatchSignal(c.matchOptions()...); err != nil {
		return fmt.Errorf("removing match rule: %w", err)
	}
	return nil
}

// Close drops any subscription and closes the bus connection. Replies still
// in flight are delivered to their ReplyFunc as failures.
func (c *Client) Close() error {
	err1 := c.Unsubscribe()
	if err := c.conn.Close(); err != nil {
		return err
	}
	return err1
}
