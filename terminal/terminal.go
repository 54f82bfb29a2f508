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

// Package terminal exposes the on-device UICC as a secure element terminal.
//
// The smartcard service loads one terminal per secure element and talks to it
// through the Terminal interface. UICCTerminal implements it by relaying APDUs
// and ATR requests to the modem through the telephony daemon, whose API is
// asynchronous only. The synchronous operations block on a single-shot
// completion with a bounded wait; the asynchronous ones hand the completion to
// the caller's callback.
package terminal

import (
	"context"
	"fmt"
)

// Event is a secure element availability transition.
type Event int

const (
	// EventAvailable reports the secure element became usable.
	EventAvailable Event = iota + 1
	// EventNotAvailable reports the secure element went away.
	EventNotAvailable
)

func (e Event) String() string {
	switch e {
	case EventAvailable:
		return "available"
	case EventNotAvailable:
		return "not available"
	}
	return fmt.Sprintf("event %d", int(e))
}

// StatusCallback receives availability transitions. name is the terminal
// name, extra is reserved and always 0, param is the value registered with
// SetStatusCallback.
type StatusCallback func(name string, event Event, extra int, param interface{})

// TransmitCallback receives the response of an asynchronous Transmit. err is
// nil on success, otherwise it matches ErrIOFailed.
type TransmitCallback func(resp []byte, err error, param interface{})

// ATRCallback receives the answer to reset of an asynchronous GetATR.
type ATRCallback func(atr []byte, err error, param interface{})

// Terminal is the capability set the smartcard service expects from a
// secure element terminal.
type Terminal interface {
	Name() string

	// Initialize binds the terminal to its backend. It is a no-op on an
	// initialized terminal.
	Initialize() error
	// Finalize releases the backend. It is a no-op on a terminal that is not
	// initialized.
	Finalize()

	Open() error
	Close()

	IsSecureElementPresence() bool

	TransmitSync(ctx context.Context, command []byte) ([]byte, error)
	GetATRSync(ctx context.Context) ([]byte, error)

	// Transmit and GetATR return once the request is submitted. The callback
	// is invoked exactly once for every submitted request.
	Transmit(ctx context.Context, command []byte, cb TransmitCallback, param interface{}) error
	GetATR(ctx context.Context, cb ATRCallback, param interface{}) error

	SetStatusCallback(cb StatusCallback, param interface{})
}
