package vitals

import (
	"math/rand"
	"time"
)

// Simulator generates synthetic readings with a diurnal shape: lower targets
// during the sleep window, higher during active hours, plus a bounded random
// residual clamped to physiological ranges.
type Simulator struct {
	now  func() time.Time
	rand *rand.Rand
}

// NewSimulator creates a simulator using the wall clock and the given seed.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		now:  time.Now,
		rand: rand.New(rand.NewSource(seed)),
	}
}

// NewSimulatorAt creates a simulator with an injected clock, for tests.
func NewSimulatorAt(now func() time.Time, seed int64) *Simulator {
	return &Simulator{
		now:  now,
		rand: rand.New(rand.NewSource(seed)),
	}
}

// Generate produces the next reading for a patient.
func (s *Simulator) Generate(patientID string) VitalReading {
	t := s.now()
	hour := t.Hour()

	hr := 70
	switch {
	case hour >= 0 && hour < 6:
		hr -= 10
	case hour >= 9 && hour < 21:
		hr += 5
	}
	hr += s.rand.Intn(11) - 5
	hr = clamp(hr, 50, 100)

	rr := 16
	if hour >= 0 && hour < 6 {
		rr -= 2
	}
	rr += s.rand.Intn(5) - 2
	rr = clamp(rr, 12, 20)

	return VitalReading{
		PatientID:       patientID,
		Timestamp:       t.UnixMilli(),
		HeartRate:       hr,
		RespiratoryRate: rr,
		Activity:        s.activity(hour),
		Source:          SourceSimulated,
		Quality:         "good",
		BatteryLevel:    70 + s.rand.Intn(31),
	}
}

// activity is biased toward sleeping at night and resting during the day.
func (s *Simulator) activity(hour int) string {
	if hour >= 23 || hour < 7 {
		if s.rand.Float64() < 0.95 {
			return ActivitySleeping
		}
		return ActivityRestless
	}
	r := s.rand.Float64()
	switch {
	case r > 0.9:
		return ActivityActive
	case r > 0.7:
		return ActivityWalking
	default:
		return ActivityResting
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
