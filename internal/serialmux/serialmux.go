// Package serialmux multiplexes a serial link to an OPQ device: every line
// read from the port is fanned out to any number of subscribers, and
// downlink lines are written to the port one at a time.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/openpowerquality/opq.report/internal/monitoring"
	"github.com/openpowerquality/opq.report/internal/protocol"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// maxLineLength bounds a single scanned line. A transport string for a
// 16-byte payload is 96 characters; the limit leaves room for large payloads.
const maxLineLength = 1 << 20

// subscriberBuffer is how many lines a subscriber may lag before lines are
// dropped for it.
const subscriberBuffer = 64

// SerialMux is a serial port multiplexer that lets many clients subscribe to
// lines from a single port.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	writeMu      sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface is what the rest of the backend depends on.
type SerialMuxInterface interface {
	// Subscribe creates a channel that receives every line read from the
	// port. The ID is used to unsubscribe.
	Subscribe() (string, chan string)
	// Unsubscribe closes and removes a subscriber channel.
	Unsubscribe(string)
	// SendLine writes one newline-terminated line to the port.
	SendLine(string) error
	// SendPacket transport-encodes a packet and writes it as one line.
	SendPacket(*protocol.Packet) error
	// Monitor reads lines until ctx is done or the port fails.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the port.
	Close() error
	// AttachAdminRoutes mounts debug endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux wraps an already opened port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a subscriber ID.
func randomID() string { return uuid.NewString() }

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *SerialMux[T]) SendLine(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

func (s *SerialMux[T]) SendPacket(p *protocol.Packet) error {
	if err := s.SendLine(p.TransportString()); err != nil {
		return fmt.Errorf("send packet seq=%d: %w", p.SequenceNumber(), err)
	}
	return nil
}

// Monitor scans lines from the port and delivers each to every subscriber.
// A subscriber whose buffer is full misses the line rather than stalling
// the reader.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	scan.Buffer(make([]byte, 0, 4096), maxLineLength)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking Scan runs on its own goroutine so the loop below can
	// still observe ctx cancellation
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			if s.isClosing() {
				return nil
			}
			s.publish(line)
		}
	}
}

func (s *SerialMux[T]) publish(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	dropped := 0
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		monitoring.Logf("serialmux: %d subscriber(s) not ready, line dropped", dropped)
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}
