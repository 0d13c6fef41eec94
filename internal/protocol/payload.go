package protocol

import "fmt"

const (
	// MeasurementPayloadSize is frequency then voltage, two doubles.
	MeasurementPayloadSize = 16
	// AlertValuePayloadSize is the older alert shape: a single double.
	AlertValuePayloadSize = 8
	// AlertPayloadSize is the extended alert shape: a double value followed
	// by an int64 duration in milliseconds.
	AlertPayloadSize = 16
)

// Measurement is the decoded payload of a TypeMeasurement packet.
type Measurement struct {
	Frequency float64 `json:"frequency"`
	Voltage   float64 `json:"voltage"`
}

// Alert is the decoded payload of an alert packet. HasDuration is false for
// the 8-byte shape, in which case Duration is zero.
type Alert struct {
	Value       float64 `json:"value"`
	Duration    int64   `json:"duration_ms"`
	HasDuration bool    `json:"has_duration"`
}

// SetMeasurement installs a 16-byte measurement payload.
func (p *Packet) SetMeasurement(frequency, voltage float64) {
	payload := make([]byte, 0, MeasurementPayloadSize)
	payload = append(payload, Float64ToBytes(frequency)...)
	payload = append(payload, Float64ToBytes(voltage)...)
	p.SetPayload(payload)
}

// SetAlertValue installs the 8-byte alert payload. AlertDuration must not be
// read from a packet built this way.
func (p *Packet) SetAlertValue(value float64) {
	p.SetPayload(Float64ToBytes(value))
}

// SetAlert installs the 16-byte alert payload carrying a duration in
// milliseconds.
func (p *Packet) SetAlert(value float64, durationMs int64) {
	payload := make([]byte, 0, AlertPayloadSize)
	payload = append(payload, Float64ToBytes(value)...)
	payload = append(payload, Int64ToBytes(durationMs)...)
	p.SetPayload(payload)
}

// Frequency reads payload bytes 0-7. It panics if the payload is shorter.
func (p *Packet) Frequency() float64 {
	return BytesToFloat64(p.payloadWord(0, "frequency"))
}

// Voltage reads payload bytes 8-15. It panics if the payload is shorter.
func (p *Packet) Voltage() float64 {
	return BytesToFloat64(p.payloadWord(8, "voltage"))
}

// AlertValue reads payload bytes 0-7 and works for both alert shapes.
func (p *Packet) AlertValue() float64 {
	return BytesToFloat64(p.payloadWord(0, "alert value"))
}

// AlertDuration reads payload bytes 8-15. Calling it on the 8-byte alert
// shape is a contract violation and panics.
func (p *Packet) AlertDuration() int64 {
	return BytesToInt64(p.payloadWord(8, "alert duration"))
}

// Measurement decodes a measurement payload, returning ErrShortPayload
// instead of panicking on truncated input.
func (p *Packet) Measurement() (Measurement, error) {
	payload := p.Payload()
	if len(payload) < MeasurementPayloadSize {
		return Measurement{}, fmt.Errorf("%w: measurement needs %d bytes, have %d",
			ErrShortPayload, MeasurementPayloadSize, len(payload))
	}
	return Measurement{
		Frequency: BytesToFloat64(payload[0:8]),
		Voltage:   BytesToFloat64(payload[8:16]),
	}, nil
}

// Alert decodes either alert shape. Payloads of 16 bytes or more are read as
// the extended shape.
func (p *Packet) Alert() (Alert, error) {
	payload := p.Payload()
	switch {
	case len(payload) >= AlertPayloadSize:
		return Alert{
			Value:       BytesToFloat64(payload[0:8]),
			Duration:    BytesToInt64(payload[8:16]),
			HasDuration: true,
		}, nil
	case len(payload) >= AlertValuePayloadSize:
		return Alert{Value: BytesToFloat64(payload[0:8])}, nil
	default:
		return Alert{}, fmt.Errorf("%w: alert needs %d bytes, have %d",
			ErrShortPayload, AlertValuePayloadSize, len(payload))
	}
}

func (p *Packet) payloadWord(offset int, what string) []byte {
	start := HeaderSize + offset
	if len(p.data) < start+8 {
		panic(fmt.Sprintf("protocol: %s needs payload bytes %d-%d, payload is %d bytes",
			what, offset, offset+7, len(p.Payload())))
	}
	out := make([]byte, 8)
	copy(out, p.data[start:start+8])
	return out
}
