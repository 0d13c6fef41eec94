package db

import (
	"errors"
	"math"
	"testing"

	"github.com/openpowerquality/opq.report/internal/protocol"
)

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestStorePacketMeasurementAndAlert(t *testing.T) {
	db := newTestDB(t)

	p := measurementPacket(4, 1, 1000, 59.97, 120.4)
	m, _ := p.Measurement()
	if _, err := db.StorePacket(p, PacketMeta{ChecksumOK: true}, Payload{Measurement: &m}); err != nil {
		t.Fatalf("StorePacket measurement: %v", err)
	}

	a := protocol.NewPacket()
	a.SetType(protocol.TypeAlertVoltage)
	a.SetDeviceID(4)
	a.SetTimestamp(2000)
	a.SetAlert(131, 80)
	alert, _ := a.Alert()
	if _, err := db.StorePacket(a, PacketMeta{}, Payload{Alert: &alert, AlertKind: protocol.TypeAlertVoltage}); err != nil {
		t.Fatalf("StorePacket alert: %v", err)
	}

	raw := protocol.NewPacket()
	raw.SetType(protocol.PacketType(9))
	if _, err := db.StorePacket(raw, PacketMeta{}, Payload{}); err != nil {
		t.Fatalf("StorePacket raw: %v", err)
	}

	if got := countRows(t, db, "packets"); got != 3 {
		t.Errorf("packets = %d, want 3", got)
	}
	if got := countRows(t, db, "measurements"); got != 1 {
		t.Errorf("measurements = %d, want 1", got)
	}
	alerts, err := db.Alerts(int64Ptr(4), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || alerts[0].Kind != "alert_voltage" || *alerts[0].Value != 131 {
		t.Errorf("unexpected alerts %+v", alerts)
	}
}

func TestStorePacketRollsBackOnPayloadFailure(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.Exec(`CREATE TRIGGER reject_measurement BEFORE INSERT ON measurements
		BEGIN SELECT RAISE(ABORT, 'measurement rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	p := measurementPacket(1, 0, 0, 60, 120)
	m, _ := p.Measurement()
	if _, err := db.StorePacket(p, PacketMeta{ChecksumOK: true}, Payload{Measurement: &m}); err == nil {
		t.Fatal("expected StorePacket to fail")
	}
	if got := countRows(t, db, "packets"); got != 0 {
		t.Errorf("packet row left behind after failed payload insert: %d rows", got)
	}
}

func TestStorePacketNonFiniteReadings(t *testing.T) {
	db := newTestDB(t)

	p := measurementPacket(2, 0, 100, math.NaN(), 120)
	m, _ := p.Measurement()
	if _, err := db.StorePacket(p, PacketMeta{}, Payload{Measurement: &m}); err != nil {
		t.Fatalf("StorePacket NaN measurement: %v", err)
	}
	q := measurementPacket(2, 1, 200, 60, math.Inf(1))
	m2, _ := q.Measurement()
	if _, err := db.StorePacket(q, PacketMeta{}, Payload{Measurement: &m2}); err != nil {
		t.Fatalf("StorePacket Inf measurement: %v", err)
	}

	a := protocol.NewPacket()
	a.SetType(protocol.TypeAlertFrequency)
	a.SetAlertValue(math.NaN())
	alert, _ := a.Alert()
	if _, err := db.StorePacket(a, PacketMeta{}, Payload{Alert: &alert, AlertKind: protocol.TypeAlertFrequency}); err != nil {
		t.Fatalf("StorePacket NaN alert: %v", err)
	}

	ms, err := db.Measurements(int64Ptr(2), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 {
		t.Fatalf("expected 2 measurements, got %d", len(ms))
	}
	if ms[0].Voltage != nil || ms[0].Frequency == nil || *ms[0].Frequency != 60 {
		t.Errorf("Inf voltage row = %+v", ms[0])
	}
	if ms[1].Frequency != nil || ms[1].Voltage == nil || *ms[1].Voltage != 120 {
		t.Errorf("NaN frequency row = %+v", ms[1])
	}

	// the raw packet keeps the exact bits
	packets, err := db.RecentPackets(10)
	if err != nil {
		t.Fatal(err)
	}
	if f := packets[2].Packet().Frequency(); !math.IsNaN(f) {
		t.Errorf("raw frequency = %v, want NaN", f)
	}

	alerts, err := db.Alerts(nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || alerts[0].Value != nil {
		t.Errorf("unexpected alerts %+v", alerts)
	}

	s, err := db.MeasurementSummary(int64Ptr(2), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 2 || s.Frequency.Mean != 60 || s.Voltage.Mean != 120 {
		t.Errorf("summary = %+v", s)
	}
}

func TestRecordPacketRejectsShortBuffer(t *testing.T) {
	db := newTestDB(t)
	short := protocol.FromBytes([]byte{0x00, 0xC0, 0xFF, 0xEE})

	_, err := db.StorePacket(short, PacketMeta{}, Payload{})
	if !errors.Is(err, protocol.ErrShortPacket) {
		t.Errorf("StorePacket err = %v, want ErrShortPacket", err)
	}
	if _, err := db.RecordPacket(short, PacketMeta{}); !errors.Is(err, protocol.ErrShortPacket) {
		t.Errorf("RecordPacket err = %v, want ErrShortPacket", err)
	}
	if got := countRows(t, db, "packets"); got != 0 {
		t.Errorf("packets = %d, want 0", got)
	}
}
