package db

import (
	"math"
	"testing"
)

func TestMeasurementSummary(t *testing.T) {
	db := newTestDB(t)

	freqs := []float64{59.98, 60.00, 60.02, 60.00}
	for i, f := range freqs {
		p := measurementPacket(7, int32(i), int64(1000*i), f, 118+float64(i))
		id, err := db.RecordPacket(p, PacketMeta{ChecksumOK: true})
		if err != nil {
			t.Fatal(err)
		}
		m, _ := p.Measurement()
		if err := db.RecordMeasurement(id, p, m); err != nil {
			t.Fatal(err)
		}
	}

	s, err := db.MeasurementSummary(int64Ptr(7), 0, 0)
	if err != nil {
		t.Fatalf("MeasurementSummary: %v", err)
	}
	if s.Count != 4 || s.FirstMs != 0 || s.LastMs != 3000 {
		t.Errorf("unexpected window %+v", s)
	}
	if math.Abs(s.Frequency.Mean-60.0) > 1e-9 {
		t.Errorf("frequency mean = %v", s.Frequency.Mean)
	}
	if s.Frequency.Min != 59.98 || s.Frequency.Max != 60.02 {
		t.Errorf("frequency range = [%v, %v]", s.Frequency.Min, s.Frequency.Max)
	}
	if s.Voltage.Min != 118 || s.Voltage.Max != 121 {
		t.Errorf("voltage range = [%v, %v]", s.Voltage.Min, s.Voltage.Max)
	}
	// sample standard deviation of 118..121
	if want := math.Sqrt(5.0 / 3.0); math.Abs(s.Voltage.StdDev-want) > 1e-9 {
		t.Errorf("voltage std dev = %v, want %v", s.Voltage.StdDev, want)
	}
	if s.Frequency.Median != 60.00 {
		t.Errorf("frequency median = %v", s.Frequency.Median)
	}

	windowed, err := db.MeasurementSummary(nil, 1000, 3000)
	if err != nil {
		t.Fatal(err)
	}
	if windowed.Count != 2 || windowed.FirstMs != 1000 || windowed.LastMs != 2000 {
		t.Errorf("unexpected windowed summary %+v", windowed)
	}
}

func TestMeasurementSummaryEmpty(t *testing.T) {
	db := newTestDB(t)
	s, err := db.MeasurementSummary(int64Ptr(1), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 0 || s.Frequency != (SeriesStats{}) {
		t.Errorf("expected empty summary, got %+v", s)
	}
}

func TestSeriesStatsSingleSample(t *testing.T) {
	s := seriesStats([]float64{120})
	if s.StdDev != 0 || s.Mean != 120 || s.Median != 120 || s.P95 != 120 {
		t.Errorf("unexpected stats %+v", s)
	}
}
