package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/openpowerquality/opq.report/internal/protocol"
)

// PacketMeta is what the ingest side knows about a packet beyond its bytes.
type PacketMeta struct {
	SessionID  string
	ChecksumOK bool
	ReceivedAt time.Time
}

// PacketRecord is one row of the packets table.
type PacketRecord struct {
	ID             int64     `json:"id"`
	DeviceID       int64     `json:"device_id"`
	SequenceNumber int32     `json:"sequence_number"`
	TypeCode       int32     `json:"type_code"`
	Type           string    `json:"type"`
	TimestampMs    int64     `json:"timestamp_ms"`
	Bitfield       int32     `json:"bitfield"`
	PayloadSize    int32     `json:"payload_size"`
	Checksum       int32     `json:"checksum"`
	ChecksumOK     bool      `json:"checksum_ok"`
	Hash           string    `json:"hash"`
	SessionID      string    `json:"session_id,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
	Raw            []byte    `json:"-"`
}

// Packet rebuilds the stored packet.
func (r PacketRecord) Packet() *protocol.Packet { return protocol.FromBytes(r.Raw) }

// MeasurementRecord is one row of the measurements table. A nil reading was
// not a finite number on the wire; the packet's raw bytes hold the exact value.
type MeasurementRecord struct {
	PacketID    int64    `json:"packet_id"`
	DeviceID    int64    `json:"device_id"`
	TimestampMs int64    `json:"timestamp_ms"`
	Frequency   *float64 `json:"frequency"`
	Voltage     *float64 `json:"voltage"`
}

// AlertRecord is one row of the alerts table. DurationMs is nil for alerts
// that arrived with the value-only payload; Value is nil when it was not
// finite.
type AlertRecord struct {
	PacketID    int64    `json:"packet_id"`
	DeviceID    int64    `json:"device_id"`
	TimestampMs int64    `json:"timestamp_ms"`
	Kind        string   `json:"kind"`
	Value       *float64 `json:"value"`
	DurationMs  *int64   `json:"duration_ms,omitempty"`
}

// HashString formats a packet hash the way it is stored.
func HashString(p *protocol.Packet) string { return fmt.Sprintf("%016x", p.Hash()) }

// RecordSession registers an ingest session so packets can refer to it.
func (db *DB) RecordSession(sessionID, source string, startedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO ingest_sessions (session_id, source, started_at_ms) VALUES (?, ?, ?)`,
		sessionID, source, startedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", sessionID, err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Payload is the decoded content stored beside a packet row. At most one of
// Measurement and Alert is set; packets of unknown type carry neither.
type Payload struct {
	Measurement *protocol.Measurement
	Alert       *protocol.Alert
	AlertKind   protocol.PacketType
}

// StorePacket records the packet and its payload row in one transaction, so
// a packet is never left without the measurement or alert it carries.
func (db *DB) StorePacket(p *protocol.Packet, meta PacketMeta, payload Payload) (id int64, err error) {
	tx, err := db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin store packet: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if id, err = insertPacket(tx, p, meta); err != nil {
		return 0, err
	}
	switch {
	case payload.Measurement != nil:
		err = insertMeasurement(tx, id, p, *payload.Measurement)
	case payload.Alert != nil:
		err = insertAlert(tx, id, p, payload.AlertKind, *payload.Alert)
	}
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit packet seq=%d: %w", p.SequenceNumber(), err)
	}
	return id, nil
}

// RecordPacket stores the raw packet and its header fields and returns the
// new row ID.
func (db *DB) RecordPacket(p *protocol.Packet, meta PacketMeta) (int64, error) {
	return insertPacket(db.DB, p, meta)
}

// RecordMeasurement stores the measurement carried by the packet stored as
// packetID.
func (db *DB) RecordMeasurement(packetID int64, p *protocol.Packet, m protocol.Measurement) error {
	return insertMeasurement(db.DB, packetID, p, m)
}

// RecordAlert stores the alert carried by the packet stored as packetID.
func (db *DB) RecordAlert(packetID int64, p *protocol.Packet, kind protocol.PacketType, a protocol.Alert) error {
	return insertAlert(db.DB, packetID, p, kind, a)
}

func insertPacket(x execer, p *protocol.Packet, meta PacketMeta) (int64, error) {
	if p.Len() < protocol.HeaderSize {
		return 0, fmt.Errorf("record packet: %w (%d bytes)", protocol.ErrShortPacket, p.Len())
	}
	receivedAt := meta.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	session := sql.NullString{String: meta.SessionID, Valid: meta.SessionID != ""}

	res, err := x.Exec(
		`INSERT INTO packets (
			device_id, sequence_number, type_code, timestamp_ms, bitfield,
			payload_size, checksum, checksum_ok, hash, raw, received_at_ms, session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.DeviceID(), p.SequenceNumber(), p.TypeCode(), p.Timestamp(), p.Bitfield(),
		p.PayloadSize(), p.Checksum(), meta.ChecksumOK, HashString(p), p.Bytes(),
		receivedAt.UnixMilli(), session,
	)
	if err != nil {
		return 0, fmt.Errorf("record packet seq=%d: %w", p.SequenceNumber(), err)
	}
	return res.LastInsertId()
}

func insertMeasurement(x execer, packetID int64, p *protocol.Packet, m protocol.Measurement) error {
	_, err := x.Exec(
		`INSERT INTO measurements (packet_id, device_id, timestamp_ms, frequency, voltage)
		VALUES (?, ?, ?, ?, ?)`,
		packetID, p.DeviceID(), p.Timestamp(), reading(m.Frequency), reading(m.Voltage),
	)
	if err != nil {
		return fmt.Errorf("record measurement for packet %d: %w", packetID, err)
	}
	return nil
}

func insertAlert(x execer, packetID int64, p *protocol.Packet, kind protocol.PacketType, a protocol.Alert) error {
	var duration sql.NullInt64
	if a.HasDuration {
		duration = sql.NullInt64{Int64: a.Duration, Valid: true}
	}
	_, err := x.Exec(
		`INSERT INTO alerts (packet_id, device_id, timestamp_ms, kind, value, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		packetID, p.DeviceID(), p.Timestamp(), kind.String(), reading(a.Value), duration,
	)
	if err != nil {
		return fmt.Errorf("record alert for packet %d: %w", packetID, err)
	}
	return nil
}

// reading maps non-finite values to NULL.
func reading(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
}

func readingPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

const packetColumns = `packet_id, device_id, sequence_number, type_code, timestamp_ms, bitfield,
	payload_size, checksum, checksum_ok, hash, raw, received_at_ms, COALESCE(session_id, '')`

// RecentPackets returns up to limit packets, newest first by arrival.
func (db *DB) RecentPackets(limit int) ([]PacketRecord, error) {
	rows, err := db.Query(
		`SELECT `+packetColumns+` FROM packets ORDER BY packet_id DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packets []PacketRecord
	for rows.Next() {
		var (
			r          PacketRecord
			receivedAt int64
		)
		if err := rows.Scan(
			&r.ID, &r.DeviceID, &r.SequenceNumber, &r.TypeCode, &r.TimestampMs, &r.Bitfield,
			&r.PayloadSize, &r.Checksum, &r.ChecksumOK, &r.Hash, &r.Raw, &receivedAt, &r.SessionID,
		); err != nil {
			return nil, err
		}
		r.Type = protocol.PacketType(r.TypeCode).String()
		r.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		packets = append(packets, r)
	}
	return packets, rows.Err()
}

// Measurements returns up to limit measurements, newest first. A nil
// deviceID selects every device.
func (db *DB) Measurements(deviceID *int64, limit int) ([]MeasurementRecord, error) {
	rows, err := db.Query(
		`SELECT packet_id, device_id, timestamp_ms, frequency, voltage FROM measurements
		WHERE (? IS NULL OR device_id = ?)
		ORDER BY timestamp_ms DESC, packet_id DESC LIMIT ?`,
		deviceID, deviceID, clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MeasurementRecord
	for rows.Next() {
		var (
			m    MeasurementRecord
			f, v sql.NullFloat64
		)
		if err := rows.Scan(&m.PacketID, &m.DeviceID, &m.TimestampMs, &f, &v); err != nil {
			return nil, err
		}
		m.Frequency, m.Voltage = readingPtr(f), readingPtr(v)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Alerts returns up to limit alerts, newest first. A nil deviceID selects
// every device.
func (db *DB) Alerts(deviceID *int64, limit int) ([]AlertRecord, error) {
	rows, err := db.Query(
		`SELECT packet_id, device_id, timestamp_ms, kind, value, duration_ms FROM alerts
		WHERE (? IS NULL OR device_id = ?)
		ORDER BY timestamp_ms DESC, packet_id DESC LIMIT ?`,
		deviceID, deviceID, clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertRecord
	for rows.Next() {
		var (
			a        AlertRecord
			value    sql.NullFloat64
			duration sql.NullInt64
		)
		if err := rows.Scan(&a.PacketID, &a.DeviceID, &a.TimestampMs, &a.Kind, &value, &duration); err != nil {
			return nil, err
		}
		a.Value = readingPtr(value)
		if duration.Valid {
			d := duration.Int64
			a.DurationMs = &d
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeviceSummary is per-device packet bookkeeping.
type DeviceSummary struct {
	DeviceID        int64 `json:"device_id"`
	Packets         int64 `json:"packets"`
	BadChecksums    int64 `json:"bad_checksums"`
	LastTimestampMs int64 `json:"last_timestamp_ms"`
}

// Devices lists every device that has sent at least one packet.
func (db *DB) Devices() ([]DeviceSummary, error) {
	rows, err := db.Query(
		`SELECT device_id, COUNT(*), SUM(CASE WHEN checksum_ok THEN 0 ELSE 1 END), MAX(timestamp_ms)
		FROM packets GROUP BY device_id ORDER BY device_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceSummary
	for rows.Next() {
		var d DeviceSummary
		if err := rows.Scan(&d.DeviceID, &d.Packets, &d.BadChecksums, &d.LastTimestampMs); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const (
	defaultLimit = 100
	maxLimit     = 10000
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
