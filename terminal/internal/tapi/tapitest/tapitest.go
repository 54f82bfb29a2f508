// Package tapitest runs a fake telephony daemon on a private message bus.
//
// The daemon answers the Manager and Sim methods the tapi client uses and
// emits Status signals on demand. Tests that need it are skipped when no
// dbus-daemon binary is installed.
package tapitest

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/areese/uicc-terminal/terminal/internal/tapi"
)

const (
	// Modem is the modem the fake daemon reports.
	Modem = "modem0"

	managerPath   = dbus.ObjectPath("/org/tizen/telephony")
	simPath       = managerPath + "/" + Modem
	managerIface  = "org.tizen.telephony.Manager"
	simIface      = "org.tizen.telephony.Sim"
	statusSignal  = simIface + ".Status"
	startDeadline = 10 * time.Second
)

const busConfig = `<!DOCTYPE busconfig PUBLIC "-//freedesktop//DTD D-BUS Bus Configuration 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/busconfig.dtd">
<busconfig>
  <type>session</type>
  <listen>unix:path=%s</listen>
  <auth>EXTERNAL</auth>
  <policy context="default">
    <allow send_destination="*" eavesdrop="true"/>
    <allow eavesdrop="true"/>
    <allow own="*"/>
  </policy>
</busconfig>
`

// StartBus starts a private dbus-daemon and returns its address. The daemon
// is stopped when the test ends.
func StartBus(t *testing.T) string {
	t.Helper()

	bin, err := exec.LookPath("dbus-daemon")
	if err != nil {
		t.Skipf("dbus-daemon not installed: %v", err)
	}

	dir := t.TempDir()
	conf := filepath.Join(dir, "bus.conf")
	if err := os.WriteFile(conf, []byte(fmt.Sprintf(busConfig, filepath.Join(dir, "bus"))), 0o600); err != nil {
		t.Fatalf("writing bus config: %v", err)
	}

	cmd := exec.Command(bin, "--config-file="+conf, "--nofork", "--nopidfile", "--print-address")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("dbus-daemon stdout: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Skipf("starting dbus-daemon: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	addr := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(stdout).ReadString('\n')
		addr <- strings.TrimSpace(line)
	}()
	select {
	case a := <-addr:
		if a == "" {
			t.Skipf("dbus-daemon printed no address")
		}
		return a
	case <-time.After(startDeadline):
		t.Fatalf("dbus-daemon did not start within %s", startDeadline)
	}
	return ""
}

// Daemon is a fake telephony daemon owning tapi.DefaultService.
type Daemon struct {
	// Address is the bus the daemon is connected to.
	Address string

	conn *dbus.Conn

	mu         sync.Mutex
	apduResult int32
	apduData   []byte
	atrResult  int32
	atr        []byte
	initStatus int32
	delay      time.Duration
	apdus      [][]byte
}

// NewDaemon starts a private bus and a fake daemon on it. By default every
// APDU is answered with 90 00 and the SIM reports init completed.
func NewDaemon(t *testing.T) *Daemon {
	t.Helper()

	d := &Daemon{
		Address:    StartBus(t),
		apduResult: tapi.AccessSuccess,
		apduData:   []byte{0x90, 0x00},
		atrResult:  tapi.AccessSuccess,
		initStatus: tapi.StatusInitCompleted,
	}

	conn, err := dbus.Connect(d.Address)
	if err != nil {
		t.Fatalf("connecting fake daemon: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	d.conn = conn

	if err := conn.Export(manager{d}, managerPath, managerIface); err != nil {
		t.Fatalf("exporting manager: %v", err)
	}
	if err := conn.Export(sim{d}, simPath, simIface); err != nil {
		t.Fatalf("exporting sim: %v", err)
	}
	reply, err := conn.RequestName(tapi.DefaultService, dbus.NameFlagDoNotQueue)
	if err != nil || reply != dbus.RequestNameReplyPrimaryOwner {
		t.Fatalf("requesting %s: reply %d, %v", tapi.DefaultService, reply, err)
	}
	return d
}

// SetAPDUResponse sets the reply to every following TransferAPDU.
func (d *Daemon) SetAPDUResponse(result int32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.apduResult, d.apduData = result, data
}

// SetATR sets the reply to GetATR.
func (d *Daemon) SetATR(result int32, atr []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.atrResult, d.atr = result, atr
}

func (d *Daemon) SetInitStatus(status int32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.initStatus = status
}

// SetDelay postpones every SIM access reply.
func (d *Daemon) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.delay = delay
}

// APDUs returns the APDUs received so far.
func (d *Daemon) APDUs() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([][]byte(nil), d.apdus...)
}

// EmitStatus broadcasts a card status change.
func (d *Daemon) EmitStatus(status int32) error {
	return d.conn.Emit(simPath, statusSignal, status)
}

func (d *Daemon) wait() {
	d.mu.Lock()
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
}

type manager struct {
	d *Daemon
}

func (m manager) GetModems() ([]string, *dbus.Error) {
	return []string{Modem}, nil
}

type sim struct {
	d *Daemon
}

func (s sim) TransferAPDU(apdu []byte) (int32, []byte, *dbus.Error) {
	s.d.wait()

	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	s.d.apdus = append(s.d.apdus, apdu)
	return s.d.apduResult, s.d.apduData, nil
}

func (s sim) GetATR() (int32, []byte, *dbus.Error) {
	s.d.wait()

	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	return s.d.atrResult, s.d.atr, nil
}

func (s sim) GetInitStatus() (int32, bool, *dbus.Error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	return s.d.initStatus, false, nil
}
