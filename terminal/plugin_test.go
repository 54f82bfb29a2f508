package terminal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginName(t *testing.T) {
	p := NewPlugin(&TestTapiConstructor{Handle: &TestTapiHandle{}})
	assert.Equal(t, DefaultName, p.Name())

	p = NewPlugin(&TestTapiConstructor{Handle: &TestTapiHandle{}}, WithName("eSE"))
	assert.Equal(t, "eSE", p.Name())
}

func TestPluginCreateInstance(t *testing.T) {
	h := &TestTapiHandle{InitStatus: SimStatusInitCompleted}
	c := &TestTapiConstructor{Handle: h}
	p := NewPlugin(c)

	first := p.CreateInstance()
	require.NotNil(t, first)
	assert.True(t, first.IsInitialized())
	assert.True(t, first.IsSecureElementPresence())

	second := p.CreateInstance()
	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Opens())
	assert.Equal(t, 1, h.Registrations())

	require.NoError(t, p.DestroyInstance(first))
	assert.False(t, first.IsInitialized())
	assert.Equal(t, 1, h.Closes())
}

func TestPluginCreateInstanceOpenFailure(t *testing.T) {
	c := &TestTapiConstructor{Handle: &TestTapiHandle{}, OpenErr: ErrTestTapiClosed}
	p := NewPlugin(c)

	inst := p.CreateInstance()
	require.NotNil(t, inst)
	assert.False(t, inst.IsInitialized())

	c.OpenErr = nil
	inst = p.CreateInstance()
	assert.True(t, inst.IsInitialized())
	require.NoError(t, p.DestroyInstance(inst))
}

func TestPluginDestroyForeignInstance(t *testing.T) {
	h := &TestTapiHandle{}
	p := NewPlugin(&TestTapiConstructor{Handle: h})
	inst := p.CreateInstance()

	other := NewUICCTerminal(&TestTapiConstructor{Handle: &TestTapiHandle{}})
	assert.ErrorIs(t, p.DestroyInstance(other), ErrInvalidInstance)
	assert.ErrorIs(t, p.DestroyInstance(nil), ErrInvalidInstance)
	assert.True(t, inst.IsInitialized(), "owned instance finalized by a foreign destroy")

	require.NoError(t, p.DestroyInstance(inst))
	// Destroying twice only finalizes once.
	require.NoError(t, p.DestroyInstance(inst))
	assert.Equal(t, 1, h.Closes())
}

func TestPluginTimeout(t *testing.T) {
	p := NewPlugin(&TestTapiConstructor{Handle: &TestTapiHandle{}}, WithTimeout(time.Second))
	assert.Equal(t, time.Second, p.Timeout())

	p.SetTimeout(2 * time.Second)
	assert.Equal(t, 2*time.Second, p.Timeout())
	assert.Equal(t, 2*time.Second, p.CreateInstance().Timeout())
	require.NoError(t, p.DestroyInstance(p.CreateInstance()))
}
