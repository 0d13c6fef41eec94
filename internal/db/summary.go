package db

import (
	"database/sql"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SeriesStats summarises one measured quantity.
type SeriesStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P05    float64 `json:"p05"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
}

// Summary aggregates stored measurements over a time window.
type Summary struct {
	DeviceID  *int64      `json:"device_id,omitempty"`
	Count     int         `json:"count"`
	FirstMs   int64       `json:"first_ms"`
	LastMs    int64       `json:"last_ms"`
	Frequency SeriesStats `json:"frequency"`
	Voltage   SeriesStats `json:"voltage"`
}

// MeasurementSummary computes statistics over measurements with
// sinceMs <= timestamp_ms < untilMs. Zero bounds are open. A nil deviceID
// selects every device. With no matching rows the summary has Count 0.
// Count includes rows with non-finite readings; the series stats skip them.
func (db *DB) MeasurementSummary(deviceID *int64, sinceMs, untilMs int64) (Summary, error) {
	if untilMs == 0 {
		untilMs = math.MaxInt64
	}
	rows, err := db.Query(
		`SELECT timestamp_ms, frequency, voltage FROM measurements
		WHERE (? IS NULL OR device_id = ?) AND timestamp_ms >= ? AND timestamp_ms < ?
		ORDER BY timestamp_ms`,
		deviceID, deviceID, sinceMs, untilMs,
	)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	s := Summary{DeviceID: deviceID}
	var freq, volt []float64
	for rows.Next() {
		var ts int64
		var f, v sql.NullFloat64
		if err := rows.Scan(&ts, &f, &v); err != nil {
			return Summary{}, err
		}
		if s.Count == 0 {
			s.FirstMs = ts
		}
		s.LastMs = ts
		s.Count++
		if f.Valid {
			freq = append(freq, f.Float64)
		}
		if v.Valid {
			volt = append(volt, v.Float64)
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	s.Frequency = seriesStats(freq)
	s.Voltage = seriesStats(volt)
	return s, nil
}

// seriesStats sorts xs in place. An empty series has zero stats.
func seriesStats(xs []float64) SeriesStats {
	if len(xs) == 0 {
		return SeriesStats{}
	}
	sort.Float64s(xs)
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		std = 0
	}
	return SeriesStats{
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(xs),
		Max:    floats.Max(xs),
		P05:    stat.Quantile(0.05, stat.Empirical, xs, nil),
		Median: stat.Quantile(0.5, stat.Empirical, xs, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, xs, nil),
	}
}
