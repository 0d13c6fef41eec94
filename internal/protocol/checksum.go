package protocol

// ComputeChecksum sums every byte of the buffer except the checksum field.
// Bytes are sign-extended as int8 and the sum wraps at 32 bits, which is what
// deployed devices compute; values above 0x7f therefore subtract. Nothing is
// written.
func (p *Packet) ComputeChecksum() int32 {
	s := FieldChecksum.span()
	var sum int32
	for i := 0; i < s.offset && i < len(p.data); i++ {
		sum += int32(int8(p.data[i]))
	}
	for i := s.end(); i < len(p.data); i++ {
		sum += int32(int8(p.data[i]))
	}
	return sum
}

// SetChecksum writes ComputeChecksum into the checksum field. Call it after
// the last field write; nothing else updates the checksum.
func (p *Packet) SetChecksum() {
	p.putUint32(FieldChecksum, uint32(p.ComputeChecksum()))
}
