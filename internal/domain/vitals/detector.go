package vitals

import (
	"fmt"
	"math"
)

// Vital thresholds. A rate outside the outer band is an anomaly; beyond the
// extreme band it is critical.
const (
	hrLow          = 50
	hrHigh         = 120
	hrCriticalLow  = 40
	hrCriticalHigh = 140

	rrLow          = 8
	rrHigh         = 25
	rrCriticalLow  = 6
	rrCriticalHigh = 30

	fallMagnitudeThreshold = 20.0
)

// Detector is a pure classifier from readings and sensor signals to alert
// candidates. It holds no per-patient state.
type Detector struct {
	// SoundThreshold is the baseline sound level; a sample above twice
	// this value is flagged.
	SoundThreshold float64
}

// NewDetector creates a detector with the given sound baseline.
func NewDetector(soundThreshold float64) *Detector {
	return &Detector{SoundThreshold: soundThreshold}
}

// Evaluate classifies a reading. A reading can yield zero, one, or several
// candidates; apnea is emitted in addition to the respiration candidate when
// the rate drops below the apnea bound.
func (d *Detector) Evaluate(r VitalReading) []Candidate {
	var out []Candidate

	if r.HeartRate < hrLow || r.HeartRate > hrHigh {
		sev := SeverityHigh
		if r.HeartRate < hrCriticalLow || r.HeartRate > hrCriticalHigh {
			sev = SeverityCritical
		}
		out = append(out, Candidate{
			PatientID: r.PatientID,
			Type:      TypeAbnormalHeartRate,
			Severity:  sev,
			Message:   fmt.Sprintf("Abnormal heart rate: %d bpm", r.HeartRate),
			Data:      map[string]any{"heartRate": r.HeartRate, "timestamp": r.Timestamp},
		})
	}

	if r.RespiratoryRate < rrLow || r.RespiratoryRate > rrHigh {
		sev := SeverityHigh
		if r.RespiratoryRate < rrCriticalLow || r.RespiratoryRate > rrCriticalHigh {
			sev = SeverityCritical
		}
		out = append(out, Candidate{
			PatientID: r.PatientID,
			Type:      TypeAbnormalRespiration,
			Severity:  sev,
			Message:   fmt.Sprintf("Abnormal respiratory rate: %d breaths/min", r.RespiratoryRate),
			Data:      map[string]any{"respiratoryRate": r.RespiratoryRate, "timestamp": r.Timestamp},
		})
	}

	if r.RespiratoryRate < rrCriticalLow {
		out = append(out, Candidate{
			PatientID: r.PatientID,
			Type:      TypeApnea,
			Severity:  SeverityCritical,
			Message:   fmt.Sprintf("Possible apnea detected: %d breaths/min", r.RespiratoryRate),
			Data:      map[string]any{"respiratoryRate": r.RespiratoryRate, "timestamp": r.Timestamp},
		})
	}

	return out
}

// Magnitude returns the vector magnitude of an accelerometer sample.
func Magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

// EvaluateAccelerometer applies the fall rule to an accelerometer sample.
// Returns nil when the magnitude is below the fall threshold.
func (d *Detector) EvaluateAccelerometer(patientID string, x, y, z float64) *Candidate {
	mag := Magnitude(x, y, z)
	if mag <= fallMagnitudeThreshold {
		return nil
	}
	return &Candidate{
		PatientID: patientID,
		Type:      TypeFall,
		Severity:  SeverityCritical,
		Message:   fmt.Sprintf("Possible fall detected (magnitude %.1f)", mag),
		Data:      map[string]any{"magnitude": mag, "x": x, "y": y, "z": z},
	}
}

// EvaluateSound applies the loud-sound rule to a sound-level sample.
// Returns nil when the level is within twice the baseline.
func (d *Detector) EvaluateSound(patientID string, level float64) *Candidate {
	if level <= d.SoundThreshold*2 {
		return nil
	}
	return &Candidate{
		PatientID: patientID,
		Type:      TypeLoudSound,
		Severity:  SeverityWarning,
		Message:   fmt.Sprintf("Unusually loud sound detected (level %.1f)", level),
		Data:      map[string]any{"level": level, "threshold": d.SoundThreshold},
	}
}
