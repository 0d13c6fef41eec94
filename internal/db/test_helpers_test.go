package db

import (
	"path/filepath"
	"testing"

	"github.com/openpowerquality/opq.report/internal/protocol"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "opq.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func measurementPacket(deviceID int64, seq int32, ts int64, f, v float64) *protocol.Packet {
	p := protocol.NewPacket()
	p.SetType(protocol.TypeMeasurement)
	p.SetDeviceID(deviceID)
	p.SetSequenceNumber(seq)
	p.SetTimestamp(ts)
	p.SetMeasurement(f, v)
	p.SetChecksum()
	return p
}

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }
