package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Packet is one protocol message backed by a single owned byte buffer. The
// zero value is not usable; build one with NewPacket, FromBytes or
// FromTransportString.
type Packet struct {
	data []byte
}

// NewPacket returns an empty packet: header stamped, every other field zero,
// no payload.
func NewPacket() *Packet {
	p := &Packet{data: make([]byte, HeaderSize)}
	p.SetHeader()
	return p
}

// FromBytes wraps a copy of raw packet bytes. Nothing is validated, so a short
// or foreign buffer yields a packet whose field reads may panic.
func FromBytes(b []byte) *Packet {
	data := make([]byte, len(b))
	copy(data, b)
	return &Packet{data: data}
}

// Bytes returns a copy of the whole buffer, header through payload.
func (p *Packet) Bytes() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// Len is the current buffer length, HeaderSize plus the payload length for a
// well-formed packet.
func (p *Packet) Len() int { return len(p.data) }

// Part returns a copy of the bytes of field f. For FieldPayload that is
// everything from HeaderSize to the end of the buffer.
func (p *Packet) Part(f Field) []byte {
	s := f.span()
	end := s.end()
	if f == FieldPayload {
		end = len(p.data)
		if end < s.offset {
			return []byte{}
		}
	}
	out := make([]byte, end-s.offset)
	copy(out, p.data[s.offset:end])
	return out
}

// SetPart overwrites field f in place. Fixed-width fields must be given
// exactly their width; anything else is a programming error and panics.
// FieldPayload is delegated to SetPayload.
func (p *Packet) SetPart(f Field, b []byte) {
	if f == FieldPayload {
		p.SetPayload(b)
		return
	}
	s := f.span()
	if len(b) != s.length {
		panic(fmt.Sprintf("protocol: %s is %d bytes wide, got %d", f, s.length, len(b)))
	}
	copy(p.data[s.offset:s.end()], b)
}

func (p *Packet) uint32At(f Field) uint32 {
	s := f.span()
	return binary.BigEndian.Uint32(p.data[s.offset:s.end()])
}

func (p *Packet) putUint32(f Field, v uint32) {
	s := f.span()
	binary.BigEndian.PutUint32(p.data[s.offset:s.end()], v)
}

func (p *Packet) uint64At(f Field) uint64 {
	s := f.span()
	return binary.BigEndian.Uint64(p.data[s.offset:s.end()])
}

func (p *Packet) putUint64(f Field, v uint64) {
	s := f.span()
	binary.BigEndian.PutUint64(p.data[s.offset:s.end()], v)
}

// Header returns the header word. It equals MagicWord for packets built
// locally; decoded packets carry whatever the sender wrote.
func (p *Packet) Header() uint32 { return p.uint32At(FieldHeader) }

// SetHeader stamps MagicWord into the header. It is idempotent.
func (p *Packet) SetHeader() { p.putUint32(FieldHeader, MagicWord) }

// Type returns the packet type and whether the stored code is a known one.
func (p *Packet) Type() (PacketType, bool) {
	return ParsePacketType(p.TypeCode())
}

// TypeCode returns the raw type code, known or not.
func (p *Packet) TypeCode() int32 { return int32(p.uint32At(FieldType)) }

func (p *Packet) SetType(t PacketType) { p.putUint32(FieldType, uint32(t)) }

func (p *Packet) SequenceNumber() int32 { return int32(p.uint32At(FieldSequenceNumber)) }

func (p *Packet) SetSequenceNumber(seq int32) { p.putUint32(FieldSequenceNumber, uint32(seq)) }

func (p *Packet) DeviceID() int64 { return int64(p.uint64At(FieldDeviceID)) }

func (p *Packet) SetDeviceID(id int64) { p.putUint64(FieldDeviceID, uint64(id)) }

// Timestamp is milliseconds since the Unix epoch.
func (p *Packet) Timestamp() int64 { return int64(p.uint64At(FieldTimestamp)) }

func (p *Packet) SetTimestamp(ms int64) { p.putUint64(FieldTimestamp, uint64(ms)) }

// Time converts Timestamp to a time.Time.
func (p *Packet) Time() time.Time { return time.UnixMilli(p.Timestamp()) }

// Bitfield holds opaque device flags.
func (p *Packet) Bitfield() int32 { return int32(p.uint32At(FieldBitfield)) }

func (p *Packet) SetBitfield(bits int32) { p.putUint32(FieldBitfield, uint32(bits)) }

// PayloadSize is informational; Payload always reads to the end of the
// buffer regardless of this value.
func (p *Packet) PayloadSize() int32 { return int32(p.uint32At(FieldPayloadSize)) }

// SetPayloadSize overwrites the payload size field without touching the
// payload. SetPayload keeps it consistent on its own.
func (p *Packet) SetPayloadSize(n int32) { p.putUint32(FieldPayloadSize, uint32(n)) }

// Reserved returns a copy of the 16 reserved bytes.
func (p *Packet) Reserved() []byte { return p.Part(FieldReserved) }

// Checksum returns the stored checksum. It is only meaningful right after
// SetChecksum.
func (p *Packet) Checksum() int32 { return int32(p.uint32At(FieldChecksum)) }

// Payload returns a copy of every byte after the header.
func (p *Packet) Payload() []byte { return p.Part(FieldPayload) }

// SetPayload replaces the payload, resizing the buffer to HeaderSize plus
// len(payload) and updating the payload size field. The header region is
// preserved. The new buffer is fully built before it replaces the old one.
func (p *Packet) SetPayload(payload []byte) {
	buf := make([]byte, HeaderSize+len(payload))
	copy(buf[:HeaderSize], p.data)
	copy(buf[HeaderSize:], payload)
	s := FieldPayloadSize.span()
	binary.BigEndian.PutUint32(buf[s.offset:s.end()], uint32(len(payload)))
	p.data = buf
}

func (p *Packet) String() string {
	return fmt.Sprintf("type=%s seq=%d device=%d ts=%d bitfield=%#x payload=%dB checksum=%d",
		PacketType(p.TypeCode()), p.SequenceNumber(), p.DeviceID(), p.Timestamp(),
		uint32(p.Bitfield()), len(p.Payload()), p.Checksum())
}
