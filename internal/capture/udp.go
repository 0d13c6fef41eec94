package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

// UDPSocket is the part of *net.UDPConn the listener uses.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// ListenFunc opens a UDP socket.
type ListenFunc func(network string, laddr *net.UDPAddr) (UDPSocket, error)

// ListenUDP is the ListenFunc backed by net.ListenUDP.
func ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// maxDatagram comfortably holds a packet with a large payload.
const maxDatagram = 64 * 1024

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address string
	RcvBuf  int
	// Listen defaults to ListenUDP.
	Listen ListenFunc
	// PollInterval bounds how long a read blocks before ctx is checked.
	PollInterval time.Duration
}

// UDPListener receives OPQ datagrams on a socket and feeds them to a Sink.
type UDPListener struct {
	cfg  UDPListenerConfig
	sink Sink
}

func NewUDPListener(cfg UDPListenerConfig, sink Sink) *UDPListener {
	if cfg.Listen == nil {
		cfg.Listen = ListenUDP
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &UDPListener{cfg: cfg, sink: sink}
}

// Start listens until ctx is done. It returns ctx.Err() on cancellation.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.cfg.Listen("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			log.Printf("Warning: Failed to set UDP receive buffer size to %d: %v", l.cfg.RcvBuf, err)
		}
	}
	log.Printf("UDP listener started on %s", conn.LocalAddr())

	buf := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// without a deadline the read below could block past cancellation
		if err := conn.SetReadDeadline(time.Now().Add(l.cfg.PollInterval)); err != nil {
			return fmt.Errorf("failed to set UDP read deadline: %w", err)
		}

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("UDP read error: %v", err)
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		if _, err := DecodeDatagram(datagram, l.sink); err != nil {
			log.Printf("Error handling datagram from %v: %v", from, err)
		}
	}
}
