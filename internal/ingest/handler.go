// Package ingest turns lines and datagrams from OPQ devices into stored
// packets, measurements and alerts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openpowerquality/opq.report/internal/db"
	"github.com/openpowerquality/opq.report/internal/monitoring"
	"github.com/openpowerquality/opq.report/internal/protocol"
	"github.com/openpowerquality/opq.report/internal/serialmux"
	"github.com/openpowerquality/opq.report/internal/timeutil"
)

var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrUnknownLine      = errors.New("line is not a packet")
)

var logf = monitoring.Prefixed("ingest: ")

// Store is the persistence the handler writes to. *db.DB implements it.
type Store interface {
	RecordSession(sessionID, source string, startedAt time.Time) error
	// StorePacket records the packet and its payload row atomically.
	StorePacket(p *protocol.Packet, meta db.PacketMeta, payload db.Payload) (int64, error)
}

// Subscriber is the line source Run consumes, normally a serial mux.
type Subscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
}

// Stats counts what the handler has seen since it was created.
type Stats struct {
	SessionID    string `json:"session_id"`
	Received     uint64 `json:"received"`
	Diagnostics  uint64 `json:"diagnostics"`
	Decoded      uint64 `json:"decoded"`
	Stored       uint64 `json:"stored"`
	BadChecksums uint64 `json:"bad_checksums"`
	Rejected     uint64 `json:"rejected"`
	Malformed    uint64 `json:"malformed"`
	StoreErrors  uint64 `json:"store_errors"`
}

// Handler decodes and stores packets. It is safe for concurrent use, so the
// serial link and a UDP listener may feed the same handler.
type Handler struct {
	store     Store
	policy    ChecksumPolicy
	clock     timeutil.Clock
	sessionID string

	received, diagnostics, decoded, stored   atomic.Uint64
	badChecksums, rejected, malformed, failed atomic.Uint64
}

// NewHandler creates a handler with a fresh session ID. A nil clock uses
// the wall clock.
func NewHandler(store Store, policy ChecksumPolicy, clock timeutil.Clock) *Handler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Handler{
		store:     store,
		policy:    policy,
		clock:     clock,
		sessionID: uuid.NewString(),
	}
}

// SessionID identifies this handler's packets in the store.
func (h *Handler) SessionID() string { return h.sessionID }

// Policy is the checksum policy in force.
func (h *Handler) Policy() ChecksumPolicy { return h.policy }

// StartSession records the session with a description of where packets
// come from, such as "serial:/dev/ttyUSB0" or "udp::9000". It must be called
// before any packet is stored.
func (h *Handler) StartSession(source string) error {
	logf("session %s started, source %s, checksum policy %s", h.sessionID, source, h.policy)
	return h.store.RecordSession(h.sessionID, source, h.clock.Now())
}

// Stats returns a snapshot of the counters.
func (h *Handler) Stats() Stats {
	return Stats{
		SessionID:    h.sessionID,
		Received:     h.received.Load(),
		Diagnostics:  h.diagnostics.Load(),
		Decoded:      h.decoded.Load(),
		Stored:       h.stored.Load(),
		BadChecksums: h.badChecksums.Load(),
		Rejected:     h.rejected.Load(),
		Malformed:    h.malformed.Load(),
		StoreErrors:  h.failed.Load(),
	}
}

// HandleLine processes one line from a device. Blank lines and diagnostics
// are accepted without storing anything.
func (h *Handler) HandleLine(line string) error {
	h.received.Add(1)

	switch serialmux.ClassifyLine(line) {
	case serialmux.LineTypeEmpty:
		return nil
	case serialmux.LineTypeDiagnostic:
		h.diagnostics.Add(1)
		logf("device: %s", line)
		return nil
	case serialmux.LineTypeUnknown:
		h.malformed.Add(1)
		return fmt.Errorf("%w: %.40q", ErrUnknownLine, line)
	}

	p, err := protocol.FromTransportString(strings.TrimSpace(line))
	if err != nil {
		h.malformed.Add(1)
		return err
	}
	return h.storePacket(p)
}

// HandlePacket processes a packet that arrived already decoded, such as a
// raw UDP datagram.
func (h *Handler) HandlePacket(p *protocol.Packet) error {
	h.received.Add(1)
	return h.storePacket(p)
}

func (h *Handler) storePacket(p *protocol.Packet) error {
	if p.Len() < protocol.HeaderSize {
		h.malformed.Add(1)
		return fmt.Errorf("%w: %d bytes", protocol.ErrShortPacket, p.Len())
	}
	h.decoded.Add(1)

	checksumOK := p.ComputeChecksum() == p.Checksum()
	if !checksumOK {
		h.badChecksums.Add(1)
		switch h.policy {
		case ChecksumDrop:
			h.rejected.Add(1)
			return fmt.Errorf("%w: device=%d seq=%d", ErrChecksumMismatch, p.DeviceID(), p.SequenceNumber())
		case ChecksumFlag:
			logf("checksum mismatch device=%d seq=%d: stored %d, computed %d",
				p.DeviceID(), p.SequenceNumber(), p.Checksum(), p.ComputeChecksum())
		}
	}

	// A payload too short for its type is stored raw only and reported.
	var payload db.Payload
	var payloadErr error
	typ, known := p.Type()
	switch {
	case !known:
	case typ == protocol.TypeMeasurement:
		m, err := p.Measurement()
		if err != nil {
			payloadErr = err
		} else {
			payload.Measurement = &m
		}
	default:
		a, err := p.Alert()
		if err != nil {
			payloadErr = err
		} else {
			payload.Alert, payload.AlertKind = &a, typ
		}
	}

	id, err := h.store.StorePacket(p, db.PacketMeta{
		SessionID:  h.sessionID,
		ChecksumOK: checksumOK,
		ReceivedAt: h.clock.Now(),
	}, payload)
	if err != nil {
		h.failed.Add(1)
		return err
	}
	h.stored.Add(1)

	switch {
	case payloadErr != nil:
		h.malformed.Add(1)
		return fmt.Errorf("packet %d: %w", id, payloadErr)
	case !known:
		logf("stored packet %d with unknown type %d", id, p.TypeCode())
	}
	return nil
}

// Run handles every line from sub until ctx is done or the subscription
// channel closes. Per-line errors are logged, not returned.
func (h *Handler) Run(ctx context.Context, sub Subscriber) error {
	id, lines := sub.Subscribe()
	defer sub.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := h.HandleLine(line); err != nil {
				logf("%v", err)
			}
		}
	}
}
