// Package device produces packets the way an OPQ box does: each one is
// stamped with the device ID, a sequence number and a millisecond timestamp,
// checksummed, and written to the link as a single transport line.
package device

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/openpowerquality/opq.report/internal/protocol"
	"github.com/openpowerquality/opq.report/internal/timeutil"
)

// SampleFunc returns the grid frequency (Hz) and RMS voltage (V) at t.
type SampleFunc func(t time.Time) (frequency, voltage float64)

// Emitter writes packets for one device to w. It is safe for concurrent use;
// lines from concurrent emits are never interleaved.
type Emitter struct {
	deviceID int64
	clock    timeutil.Clock

	mu  sync.Mutex
	w   io.Writer
	seq int32
}

// NewEmitter creates an Emitter that writes to w. A nil clock uses the
// wall clock.
func NewEmitter(deviceID int64, w io.Writer, clock timeutil.Clock) *Emitter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Emitter{deviceID: deviceID, w: w, clock: clock}
}

// DeviceID returns the ID stamped on every packet.
func (e *Emitter) DeviceID() int64 { return e.deviceID }

// NextSequence is the sequence number the next packet will carry.
func (e *Emitter) NextSequence() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// EmitMeasurement sends a measurement packet.
func (e *Emitter) EmitMeasurement(frequency, voltage float64) (*protocol.Packet, error) {
	p := protocol.NewPacket()
	p.SetType(protocol.TypeMeasurement)
	p.SetMeasurement(frequency, voltage)
	return p, e.emit(p)
}

// EmitAlert sends an alert of the given kind with the extended payload
// carrying how long the condition lasted.
func (e *Emitter) EmitAlert(kind protocol.PacketType, value float64, durationMs int64) (*protocol.Packet, error) {
	if !kind.IsAlert() {
		return nil, fmt.Errorf("emit alert: %s is not an alert type", kind)
	}
	p := protocol.NewPacket()
	p.SetType(kind)
	p.SetAlert(value, durationMs)
	return p, e.emit(p)
}

// EmitDeviceAlert sends a device alert with the value-only payload.
func (e *Emitter) EmitDeviceAlert(value float64) (*protocol.Packet, error) {
	p := protocol.NewPacket()
	p.SetType(protocol.TypeAlertDevice)
	p.SetAlertValue(value)
	return p, e.emit(p)
}

func (e *Emitter) emit(p *protocol.Packet) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p.SetDeviceID(e.deviceID)
	p.SetSequenceNumber(e.seq)
	p.SetTimestamp(timeutil.UnixMillis(e.clock.Now()))
	p.SetChecksum()

	if _, err := io.WriteString(e.w, p.TransportString()+"\n"); err != nil {
		return fmt.Errorf("emit seq=%d: %w", e.seq, err)
	}
	// int32 overflow wraps, matching the field width on the wire
	e.seq++
	return nil
}

// Run emits one measurement per interval, sampled from source, until ctx is
// cancelled or a write fails.
func (e *Emitter) Run(ctx context.Context, interval time.Duration, source SampleFunc) error {
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C():
			f, v := source(t)
			if _, err := e.EmitMeasurement(f, v); err != nil {
				return err
			}
		}
	}
}
