package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areese/uicc-terminal/terminal"
)

func run(t *testing.T, h *terminal.TestTapiHandle, args ...string) (string, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "uicc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600))

	var out bytes.Buffer
	root := newRootCommand(&app{tapi: &terminal.TestTapiConstructor{Handle: h}})
	root.SetArgs(append([]string{"--config", path}, args...))
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	h.Wait()
	return out.String(), err
}

func TestCmdName(t *testing.T) {
	h := &terminal.TestTapiHandle{}
	out, err := run(t, h, "name")
	require.NoError(t, err)
	assert.Equal(t, "SIM1\n", out)
	assert.Zero(t, h.Registrations(), "name must not open a telephony session")
}

func TestCmdPresent(t *testing.T) {
	out, err := run(t, &terminal.TestTapiHandle{InitStatus: terminal.SimStatusInitCompleted}, "present")
	require.NoError(t, err)
	assert.Equal(t, "SIM1: present\n", out)

	_, err = run(t, &terminal.TestTapiHandle{InitStatus: terminal.SimStatusCardNotPresent}, "present")
	assert.Error(t, err)
}

func TestCmdATR(t *testing.T) {
	h := &terminal.TestTapiHandle{
		ATRResponse: terminal.TestCompletion{Result: terminal.AccessSuccess, Data: []byte{0x3b, 0x9f, 0x96}},
	}
	out, err := run(t, h, "atr")
	require.NoError(t, err)
	assert.Equal(t, "3B9F96\n", out)
	assert.Equal(t, 1, h.Closes())
}

func TestCmdSend(t *testing.T) {
	h := &terminal.TestTapiHandle{
		APDUResponses: []terminal.TestCompletion{{Result: terminal.AccessSuccess, Data: []byte{0x90, 0x00}}},
	}
	out, err := run(t, h, "send", "00 A4", "0400")
	require.NoError(t, err)
	assert.Equal(t, "[90 00]\n", out)
	assert.Equal(t, [][]byte{{0x00, 0xa4, 0x04, 0x00}}, h.APDUs())
}

func TestCmdSendFailure(t *testing.T) {
	h := &terminal.TestTapiHandle{
		APDUResponses: []terminal.TestCompletion{{Result: terminal.AccessCardError}},
	}
	_, err := run(t, h, "send", "00A40400")
	assert.ErrorIs(t, err, terminal.ErrIOFailed)

	_, err = run(t, &terminal.TestTapiHandle{}, "send", "zz")
	assert.Error(t, err)
}

func TestRunShell(t *testing.T) {
	h := &terminal.TestTapiHandle{
		APDUResponses: []terminal.TestCompletion{{Result: terminal.AccessSuccess, Data: []byte{0x6a, 0x82}}},
		InitStatus:    terminal.SimStatusInitCompleted,
	}
	term := terminal.NewUICCTerminal(&terminal.TestTapiConstructor{Handle: h})
	require.NoError(t, term.Initialize())
	defer term.Finalize()

	in := strings.NewReader("help\n# comment\n\npresent\n00 A4 00 04 02 3F 00\nbogus\nexit\n00B0000000\n")
	var out bytes.Buffer
	require.NoError(t, runShell(context.Background(), term, in, &out, nil))
	h.Wait()

	assert.Contains(t, out.String(), shellHelp)
	assert.Contains(t, out.String(), "present\n")
	assert.Contains(t, out.String(), "[6A 82]\n")
	assert.Contains(t, out.String(), "error: parsing apdu")
	assert.Len(t, h.APDUs(), 1, "commands after exit must not run")
}
