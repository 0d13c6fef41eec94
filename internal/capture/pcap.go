package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapngMagic is the block type of a pcapng section header.
const pcapngMagic = 0x0A0D0D0A

// ReplayStats summarises a capture replay.
type ReplayStats struct {
	Frames    int `json:"frames"`
	Datagrams int `json:"datagrams"`
	Items     int `json:"items"`
	Errors    int `json:"errors"`
}

// ReadPCAP replays the UDP datagrams addressed to udpPort in the capture at
// path into sink. Both pcap and pcapng files are accepted.
func ReadPCAP(ctx context.Context, path string, udpPort int, sink Sink) (ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()
	return ReadPCAPFrom(ctx, f, udpPort, sink)
}

// ReadPCAPFrom is ReadPCAP over an already open capture stream. A udpPort of
// zero accepts every UDP datagram.
func ReadPCAPFrom(ctx context.Context, r io.Reader, udpPort int, sink Sink) (ReplayStats, error) {
	var stats ReplayStats

	src, err := newPacketSource(r)
	if err != nil {
		return stats, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		packet, err := src.NextPacket()
		if errors.Is(err, io.EOF) {
			log.Printf("PCAP replay complete: %d frames, %d datagrams, %d items, %d errors",
				stats.Frames, stats.Datagrams, stats.Items, stats.Errors)
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("read frame %d: %w", stats.Frames+1, err)
		}
		stats.Frames++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}
		if udpPort != 0 && int(udp.DstPort) != udpPort {
			continue
		}
		if len(udp.Payload) == 0 {
			continue
		}
		stats.Datagrams++

		n, err := DecodeDatagram(udp.Payload, sink)
		stats.Items += n
		if err != nil {
			stats.Errors++
			log.Printf("PCAP frame %d: %v", stats.Frames, err)
		}
	}
}

func newPacketSource(r io.Reader) (*gopacket.PacketSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("open pcapng: %w", err)
		}
		return gopacket.NewPacketSource(ng, ng.LinkType()), nil
	}

	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("open pcap: %w", err)
	}
	return gopacket.NewPacketSource(pr, pr.LinkType()), nil
}
