package device

import (
	"math"
	"math/rand/v2"
	"time"
)

// Nominal North American grid values.
const (
	NominalFrequency = 60.0
	NominalVoltage   = 120.0
)

// SimulatedGrid returns a SampleFunc that wanders around the nominal values:
// a slow sinusoidal drift plus a little noise. The same seed yields the same
// sequence.
func SimulatedGrid(seed uint64) SampleFunc {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func(t time.Time) (float64, float64) {
		phase := float64(t.UnixMilli()%600_000) / 600_000 * 2 * math.Pi
		f := NominalFrequency + 0.02*math.Sin(phase) + rng.NormFloat64()*0.005
		v := NominalVoltage + 1.5*math.Sin(phase/2) + rng.NormFloat64()*0.3
		return f, v
	}
}
