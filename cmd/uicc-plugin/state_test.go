package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/areese/uicc-terminal/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uicc.yaml")
	logFile := filepath.Join(dir, "uicc.log")
	content := "terminal:\n  name: SIM2\n  timeout: 1s\nlog:\n  file: " + logFile + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s := load(path)
	assert.Equal(t, "SIM2", s.plugin.Name())
	assert.Equal(t, time.Second, s.plugin.Timeout())

	tmp := filepath.Join(dir, "uicc.yaml.tmp")
	content = "terminal:\n  name: SIM2\n  timeout: 4s\nlog:\n  file: " + logFile + "\n"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		return s.plugin.Timeout() == 4*time.Second
	}, 5*time.Second, 20*time.Millisecond)
}

func TestLoadBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uicc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("terminal:\n  presence: never\n"), 0o600))

	s := load(path)
	assert.Equal(t, "SIM1", s.plugin.Name())
	assert.NotNil(t, s.log)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, codeOK},
		{terminal.ErrIllegalParam, codeIllegalParam},
		{fmt.Errorf("transmit: %w", terminal.ErrTimeout), codeTimeout},
		{terminal.ErrNotInitialized, codeNotInitialized},
		{terminal.ErrInvalidInstance, codeInvalidInstance},
		{&terminal.VendorError{Result: 3}, codeIOFailed},
		{errors.New("bus gone"), codeIOFailed},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, errorCode(test.err), "%v", test.err)
	}
}
