package terminal

import (
	"fmt"
	"time"
)

// Plugin owns the one UICC terminal a smartcard service loads from this
// driver. Its methods back the get_name, create_instance and
// destroy_instance entry points.
type Plugin struct {
	instance *UICCTerminal
}

// NewPlugin constructs the terminal. It is initialized by CreateInstance.
func NewPlugin(c TapiConstructor, opts ...Option) *Plugin {
	return &Plugin{instance: NewUICCTerminal(c, opts...)}
}

// Name returns the terminal name.
func (p *Plugin) Name() string {
	return p.instance.Name()
}

// CreateInstance initializes the terminal if needed and returns it. The same
// terminal is returned on every call. An initialization failure is logged and
// the uninitialized terminal is still returned; its requests fail until a
// later CreateInstance or Initialize succeeds.
func (p *Plugin) CreateInstance() *UICCTerminal {
	if err := p.instance.Initialize(); err != nil {
		p.instance.log.ErrorMsg(err, "creating instance")
	}
	return p.instance
}

// DestroyInstance finalizes t if it is the terminal owned by p.
func (p *Plugin) DestroyInstance(t Terminal) error {
	inst, ok := t.(*UICCTerminal)
	if !ok || inst != p.instance {
		err := fmt.Errorf("%w: owned [%p], given [%p]", ErrInvalidInstance, p.instance, t)
		p.instance.log.ErrorMsg(err, "destroying instance")
		return err
	}
	inst.Finalize()
	return nil
}

// Timeout returns the request timeout of the terminal.
func (p *Plugin) Timeout() time.Duration {
	return p.instance.Timeout()
}

// SetTimeout changes the request timeout of the terminal, see
// UICCTerminal.SetTimeout.
func (p *Plugin) SetTimeout(d time.Duration) {
	p.instance.SetTimeout(d)
}
