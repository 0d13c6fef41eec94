package serialmux

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openpowerquality/opq.report/internal/protocol"
)

func TestNewSerialMux(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if mux.port != port {
		t.Error("SerialMux port not set correctly")
	}
	if mux.subscribers == nil {
		t.Error("SerialMux subscribers map not initialized")
	}
}

func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	if id1 == "" || id1 == id2 {
		t.Fatalf("expected distinct non-empty IDs, got %q and %q", id1, id2)
	}
	if len(mux.subscribers) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", len(mux.subscribers))
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
	if len(mux.subscribers) != 1 {
		t.Errorf("expected 1 subscriber, got %d", len(mux.subscribers))
	}

	// unknown IDs are ignored
	mux.Unsubscribe("missing")
}

func TestSerialMux_SendLine(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.SendLine("# ping"); err != nil {
		t.Fatalf("SendLine: %v", err)
	}
	if err := mux.SendLine("# pong\n"); err != nil {
		t.Fatalf("SendLine: %v", err)
	}
	if got, want := port.WrittenData(), "# ping\n# pong\n"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
}

func TestSerialMux_SendLineErrors(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	port.ShortWrite = true
	if err := mux.SendLine("abcd"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("expected ErrWriteFailed, got %v", err)
	}

	port.ShortWrite = false
	boom := errors.New("boom")
	port.WriteError = boom
	if err := mux.SendLine("abcd"); !errors.Is(err, boom) {
		t.Errorf("expected write error, got %v", err)
	}
}

func TestSerialMux_SendPacket(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	p := protocol.NewPacket()
	p.SetSequenceNumber(7)
	p.SetMeasurement(60, 120)
	p.SetChecksum()

	if err := mux.SendPacket(p); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	if got, want := port.WrittenData(), p.TransportString()+"\n"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}

	port.WriteError = errors.New("unplugged")
	err := mux.SendPacket(p)
	if err == nil || !strings.Contains(err.Error(), "seq=7") {
		t.Errorf("expected wrapped error naming the sequence number, got %v", err)
	}
}

func TestSerialMux_MonitorFansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("AMD/7gAA\n# boot ok\n"))
	mux := NewSerialMux(port)

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor returned %v, want nil at end of input", err)
	}

	for i, ch := range []chan string{ch1, ch2} {
		for _, want := range []string{"AMD/7gAA", "# boot ok"} {
			select {
			case got := <-ch:
				if got != want {
					t.Errorf("subscriber %d got %q, want %q", i, got, want)
				}
			default:
				t.Fatalf("subscriber %d missing line %q", i, want)
			}
		}
	}
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	port := NewTestableSerialPort()
	boom := errors.New("framing error")
	port.ReadError = boom
	mux := NewSerialMux(port)

	if err := mux.Monitor(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Monitor returned %v, want %v", err, boom)
	}
}

func TestSerialMux_MonitorContextCancel(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)
	defer mux.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestSerialMux_Close(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel closed")
	}
	if !port.Closed {
		t.Error("expected port closed")
	}
	if !mux.isClosing() {
		t.Error("expected closing flag set")
	}
}

func TestPipeSerialMux(t *testing.T) {
	mux, port := NewPipeSerialMux()
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	p := protocol.NewPacket()
	p.SetChecksum()
	if _, err := port.DeviceWriter().Write([]byte(p.TransportString() + "\n")); err != nil {
		t.Fatalf("device write: %v", err)
	}

	select {
	case line := <-ch:
		if line != p.TransportString() {
			t.Errorf("got %q, want %q", line, p.TransportString())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
	}

	if err := mux.SendLine("# hello device"); err != nil {
		t.Fatalf("SendLine: %v", err)
	}
	if got := port.Sent(); got != "# hello device\n" {
		t.Errorf("sent = %q", got)
	}
	mux.Close()
}

func TestRandomIDIsUUID(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := randomID()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("randomID() = %q is not a UUID: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}
