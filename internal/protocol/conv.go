package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Int32ToBytes returns the 4-byte big-endian encoding of v.
func Int32ToBytes(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

// Int64ToBytes returns the 8-byte big-endian encoding of v.
func Int64ToBytes(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// Float64ToBytes returns the 8-byte big-endian IEEE-754 encoding of v.
func Float64ToBytes(v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b
}

// BytesToInt32 decodes exactly 4 big-endian bytes.
func BytesToInt32(b []byte) int32 {
	mustLen(b, 4)
	return int32(binary.BigEndian.Uint32(b))
}

// BytesToInt64 decodes exactly 8 big-endian bytes.
func BytesToInt64(b []byte) int64 {
	mustLen(b, 8)
	return int64(binary.BigEndian.Uint64(b))
}

// BytesToFloat64 decodes exactly 8 big-endian IEEE-754 bytes.
func BytesToFloat64(b []byte) float64 {
	mustLen(b, 8)
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func mustLen(b []byte, n int) {
	if len(b) != n {
		panic(fmt.Sprintf("protocol: want %d bytes, got %d", n, len(b)))
	}
}
