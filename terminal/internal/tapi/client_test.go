package tapi_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/areese/uicc-terminal/terminal/internal/tapi"
	"github.com/areese/uicc-terminal/terminal/internal/tapi/tapitest"
)

type reply struct {
	result int32
	data   []byte
}

func collect(ch chan<- reply) tapi.ReplyFunc {
	return func(result int32, data []byte) {
		ch <- reply{result, data}
	}
}

func waitReply(t *testing.T, ch <-chan reply) reply {
	t.Helper()

	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("no reply")
	}
	return reply{}
}

func TestClientOutlivesContext(t *testing.T) {
	d := tapitest.NewDaemon(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	c, err := tapi.NewClient(ctx, &tapi.Config{BusAddress: d.Address})
	cancel()
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer c.Close()

	if got := c.Modem(); got != tapitest.Modem {
		t.Errorf("Modem() = %q, want %q", got, tapitest.Modem)
	}

	status, _, err := c.GetInitStatus()
	if err != nil {
		t.Fatalf("getting init status after the context ended: %v", err)
	}
	if status != tapi.StatusInitCompleted {
		t.Errorf("init status = %d, want %d", status, tapi.StatusInitCompleted)
	}

	replies := make(chan reply, 1)
	if err := c.TransferAPDU([]byte{0x00, 0xa4, 0x04, 0x00}, collect(replies)); err != nil {
		t.Fatalf("transferring apdu: %v", err)
	}
	r := waitReply(t, replies)
	if r.result != tapi.AccessSuccess || !bytes.Equal(r.data, []byte{0x90, 0x00}) {
		t.Errorf("reply = %d %x, want %d 9000", r.result, r.data, tapi.AccessSuccess)
	}
}

func TestClientCanceledContext(t *testing.T) {
	d := tapitest.NewDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if c, err := tapi.NewClient(ctx, &tapi.Config{BusAddress: d.Address}); err == nil {
		c.Close()
		t.Errorf("connecting with a canceled context succeeded")
	}
}

func TestClientATR(t *testing.T) {
	d := tapitest.NewDaemon(t)
	d.SetATR(tapi.AccessSuccess, []byte{0x3b, 0x9f})

	c, err := tapi.NewClient(context.Background(), &tapi.Config{BusAddress: d.Address, Modem: tapitest.Modem})
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer c.Close()

	replies := make(chan reply, 1)
	if err := c.GetATR(collect(replies)); err != nil {
		t.Fatalf("requesting atr: %v", err)
	}
	if r := waitReply(t, replies); !bytes.Equal(r.data, []byte{0x3b, 0x9f}) {
		t.Errorf("atr = %x, want 3b9f", r.data)
	}
}

func TestClientSubscribe(t *testing.T) {
	d := tapitest.NewDaemon(t)

	c, err := tapi.NewClient(context.Background(), &tapi.Config{BusAddress: d.Address})
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer c.Close()

	statuses := make(chan int32, 4)
	if err := c.Subscribe(func(s int32) { statuses <- s }); err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	if err := c.Subscribe(func(int32) {}); err == nil {
		t.Errorf("second subscription succeeded")
	}

	if err := d.EmitStatus(tapi.StatusCardRemoved); err != nil {
		t.Fatalf("emitting status: %v", err)
	}
	select {
	case s := <-statuses:
		if s != tapi.StatusCardRemoved {
			t.Errorf("status = %d, want %d", s, tapi.StatusCardRemoved)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no status signal")
	}

	if err := c.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribing: %v", err)
	}
	if err := c.Unsubscribe(); err != nil {
		t.Errorf("second unsubscribe: %v", err)
	}
}
