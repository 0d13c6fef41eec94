// Package capture feeds OPQ packets that arrive over UDP, live or replayed
// from a pcap capture, into an ingest sink.
package capture

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/openpowerquality/opq.report/internal/protocol"
)

// Sink receives decoded traffic. *ingest.Handler implements it.
type Sink interface {
	HandleLine(line string) error
	HandlePacket(p *protocol.Packet) error
}

// IsRawPacket reports whether b starts with the packet magic word, meaning
// the datagram carries packet bytes rather than transport text.
func IsRawPacket(b []byte) bool {
	return len(b) >= 4 && binary.BigEndian.Uint32(b) == protocol.MagicWord
}

// DecodeDatagram hands one datagram to sink. A raw datagram is a single
// packet; anything else is treated as newline-separated transport strings.
// It returns how many items were delivered and the errors sink reported.
func DecodeDatagram(b []byte, sink Sink) (int, error) {
	if IsRawPacket(b) {
		return 1, sink.HandlePacket(protocol.FromBytes(b))
	}

	var errs []error
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, len(b)+1), len(b)+1)
	for sc.Scan() {
		line := sc.Text()
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		n++
		if err := sink.HandleLine(line); err != nil {
			errs = append(errs, err)
		}
	}
	return n, errors.Join(errs...)
}
