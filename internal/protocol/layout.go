package protocol

import "fmt"

// MagicWord is stamped into the header of every freshly built packet.
const MagicWord uint32 = 0x00C0FFEE

// HeaderSize is the length of the fixed region that precedes the payload.
const HeaderSize = 56

// Field names one fixed-offset region of a packet.
type Field int

const (
	FieldHeader Field = iota
	FieldType
	FieldSequenceNumber
	FieldDeviceID
	FieldTimestamp
	FieldBitfield
	FieldPayloadSize
	FieldReserved
	FieldChecksum
	FieldPayload
)

// span is the byte range of a field. A negative length runs to the end of
// the buffer.
type span struct {
	offset int
	length int
}

func (s span) end() int { return s.offset + s.length }

var layout = [...]span{
	FieldHeader:         {0, 4},
	FieldType:           {4, 4},
	FieldSequenceNumber: {8, 4},
	FieldDeviceID:       {12, 8},
	FieldTimestamp:      {20, 8},
	FieldBitfield:       {28, 4},
	FieldPayloadSize:    {32, 4},
	FieldReserved:       {36, 16},
	FieldChecksum:       {52, 4},
	FieldPayload:        {HeaderSize, -1},
}

var fieldNames = [...]string{
	FieldHeader:         "header",
	FieldType:           "type",
	FieldSequenceNumber: "sequence_number",
	FieldDeviceID:       "device_id",
	FieldTimestamp:      "timestamp",
	FieldBitfield:       "bitfield",
	FieldPayloadSize:    "payload_size",
	FieldReserved:       "reserved",
	FieldChecksum:       "checksum",
	FieldPayload:        "payload",
}

func (f Field) valid() bool { return f >= FieldHeader && f <= FieldPayload }

func (f Field) String() string {
	if !f.valid() {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Offset returns the byte offset of the field within a packet.
func (f Field) Offset() int { return f.span().offset }

// Width returns the fixed byte width of the field, or -1 for the payload.
func (f Field) Width() int { return f.span().length }

func (f Field) span() span {
	if !f.valid() {
		panic(fmt.Sprintf("protocol: unknown field %d", int(f)))
	}
	return layout[f]
}
