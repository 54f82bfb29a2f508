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

package tapi

import (
	"bytes"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestModemPath(t *testing.T) {
	tests := []struct {
		modem   string
		want    dbus.ObjectPath
		wantErr bool
	}{
		{"default", "/org/tizen/telephony/default", false},
		{"SAMSUNG_HIGHEND", "/org/tizen/telephony/SAMSUNG_HIGHEND", false},
		{"", "", true},
		{"bad-name", "", true},
		{"a/", "", true},
	}
	for _, test := range tests {
		got, err := modemPath(test.modem)
		if test.wantErr {
			if err == nil {
				t.Errorf("modemPath(%q) returned %q, expected error", test.modem, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("modemPath(%q): %v", test.modem, err)
			continue
		}
		if got != test.want {
			t.Errorf("modemPath(%q) = %q, want %q", test.modem, got, test.want)
		}
	}
}

func TestDecodeReply(t *testing.T) {
	tests := []struct {
		name       string
		call       *dbus.Call
		wantResult int32
		wantData   []byte
	}{
		{
			name:       "success",
			call:       &dbus.Call{Body: []interface{}{int32(AccessSuccess), []byte{0x90, 0x00}}},
			wantResult: AccessSuccess,
			wantData:   []byte{0x90, 0x00},
		},
		{
			name:       "card error",
			call:       &dbus.Call{Body: []interface{}{int32(AccessCardError), []byte{}}},
			wantResult: AccessCardError,
			wantData:   []byte{},
		},
		{
			name:       "remote error",
			call:       &dbus.Call{Err: dbus.Error{Name: "org.tizen.telephony.Error"}},
			wantResult: AccessFailed,
		},
		{
			name:       "malformed body",
			call:       &dbus.Call{Body: []interface{}{"unexpected"}},
			wantResult: AccessFailed,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result, data := decodeReply(test.call)
			if result != test.wantResult {
				t.Errorf("result = %d, want %d", result, test.wantResult)
			}
			if !bytes.Equal(data, test.wantData) {
				t.Errorf("data = %x, want %x", data, test.wantData)
			}
		})
	}
}

func TestDecodeStatus(t *testing.T) {
	if s, ok := decodeStatus([]interface{}{int32(StatusCardRemoved)}); !ok || s != StatusCardRemoved {
		t.Errorf("decodeStatus(card removed) = %d, %t", s, ok)
	}
	if _, ok := decodeStatus(nil); ok {
		t.Errorf("decodeStatus(nil) succeeded")
	}
	if _, ok := decodeStatus([]interface{}{"3"}); ok {
		t.Errorf("decodeStatus(string) succeeded")
	}
}

func TestIsSendError(t *testing.T) {
	if isSendError(dbus.Error{Name: "org.freedesktop.DBus.Error.Failed"}) {
		t.Errorf("remote error reported as send error")
	}
	if !isSendError(errors.New("write: broken pipe")) {
		t.Errorf("local error not reported as send error")
	}
}
