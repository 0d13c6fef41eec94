package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntConversions(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0xC0, 0xFF, 0xEE}, Int32ToBytes(int32(MagicWord)))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, Int32ToBytes(-1))
	assert.Equal(t, []byte{0x7F, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, Int64ToBytes(math.MaxInt64))

	for _, v := range []int32{0, 1, -1, math.MaxInt32, math.MinInt32} {
		assert.Equal(t, v, BytesToInt32(Int32ToBytes(v)))
	}
	for _, v := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64} {
		assert.Equal(t, v, BytesToInt64(Int64ToBytes(v)))
	}
	for _, v := range []float64{0, 59.111, -1e300, math.MaxFloat64} {
		assert.Equal(t, v, BytesToFloat64(Float64ToBytes(v)))
	}
}

func TestConversionWidthPanics(t *testing.T) {
	assert.Panics(t, func() { BytesToInt32([]byte{1, 2, 3}) })
	assert.Panics(t, func() { BytesToInt64(make([]byte, 4)) })
	assert.Panics(t, func() { BytesToFloat64(make([]byte, 9)) })
}
