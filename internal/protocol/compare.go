package protocol

import (
	"bytes"
	"cmp"
	"hash/fnv"
	"slices"
)

// Compare orders packets by timestamp alone: negative if p is earlier than
// other, zero if equal, positive if later.
func (p *Packet) Compare(other *Packet) int {
	return cmp.Compare(p.Timestamp(), other.Timestamp())
}

// Equal reports whether both buffers are byte-for-byte identical, payload
// length included.
func (p *Packet) Equal(other *Packet) bool {
	if p == other {
		return true
	}
	if p == nil || other == nil {
		return false
	}
	return bytes.Equal(p.data, other.data)
}

// Hash is a 64-bit FNV-1a digest of the full buffer. Equal packets hash
// equal.
func (p *Packet) Hash() uint64 {
	h := fnv.New64a()
	h.Write(p.data)
	return h.Sum64()
}

// SortByTimestamp sorts packets chronologically in place, keeping the
// arrival order of packets that share a timestamp.
func SortByTimestamp(packets []*Packet) {
	slices.SortStableFunc(packets, func(a, b *Packet) int { return a.Compare(b) })
}
