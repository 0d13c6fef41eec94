package protocol

import (
	"encoding/hex"
	"time"
)

// Description is a flat, JSON-friendly view of every field of a packet,
// including the decoded payload when its shape allows.
type Description struct {
	Header           uint32       `json:"header"`
	HeaderOK         bool         `json:"header_ok"`
	Type             string       `json:"type"`
	TypeCode         int32        `json:"type_code"`
	KnownType        bool         `json:"known_type"`
	SequenceNumber   int32        `json:"sequence_number"`
	DeviceID         int64        `json:"device_id"`
	Timestamp        int64        `json:"timestamp_ms"`
	Time             time.Time    `json:"time"`
	Bitfield         int32        `json:"bitfield"`
	PayloadSize      int32        `json:"payload_size"`
	Reserved         string       `json:"reserved"`
	Checksum         int32        `json:"checksum"`
	ComputedChecksum int32        `json:"computed_checksum"`
	ChecksumOK       bool         `json:"checksum_ok"`
	Payload          string       `json:"payload"`
	Measurement      *Measurement `json:"measurement,omitempty"`
	Alert            *Alert       `json:"alert,omitempty"`
	PayloadError     string       `json:"payload_error,omitempty"`
}

// Describe reads every field of p. Packets shorter than the header report
// zero for the fields they do not cover.
func Describe(p *Packet) Description {
	if p.Len() < HeaderSize {
		padded := make([]byte, HeaderSize)
		copy(padded, p.data)
		d := Describe(FromBytes(padded))
		d.Payload = ""
		d.PayloadError = ErrShortPacket.Error()
		d.Measurement, d.Alert = nil, nil
		return d
	}

	typ, known := p.Type()
	d := Description{
		Header:           p.Header(),
		HeaderOK:         p.Header() == MagicWord,
		Type:             PacketType(p.TypeCode()).String(),
		TypeCode:         p.TypeCode(),
		KnownType:        known,
		SequenceNumber:   p.SequenceNumber(),
		DeviceID:         p.DeviceID(),
		Timestamp:        p.Timestamp(),
		Time:             p.Time().UTC(),
		Bitfield:         p.Bitfield(),
		PayloadSize:      p.PayloadSize(),
		Reserved:         hex.EncodeToString(p.Reserved()),
		Checksum:         p.Checksum(),
		ComputedChecksum: p.ComputeChecksum(),
		Payload:          hex.EncodeToString(p.Payload()),
	}
	d.ChecksumOK = d.Checksum == d.ComputedChecksum

	switch {
	case !known:
	case typ == TypeMeasurement:
		if m, err := p.Measurement(); err != nil {
			d.PayloadError = err.Error()
		} else {
			d.Measurement = &m
		}
	default:
		if a, err := p.Alert(); err != nil {
			d.PayloadError = err.Error()
		} else {
			d.Alert = &a
		}
	}
	return d
}
