package vitals

// Activity labels attached to generated readings.
const (
	ActivitySleeping = "sleeping"
	ActivityRestless = "restless"
	ActivityResting  = "resting"
	ActivityWalking  = "walking"
	ActivityActive   = "active"
)

// Reading sources.
const (
	SourceSimulated = "simulated"
	SourceSensor    = "sensor"
	SourceManual    = "manual"
)

// VitalReading is one timestamped vital-sign sample for a patient.
// Readings are immutable once emitted.
type VitalReading struct {
	PatientID       string  `json:"patientId"`
	Timestamp       int64   `json:"timestamp"` // unix milliseconds
	HeartRate       int     `json:"heartRate"`
	RespiratoryRate int     `json:"respiratoryRate"`
	Activity        string  `json:"activity"`
	Source          string  `json:"source"`
	Quality         string  `json:"quality,omitempty"`
	BatteryLevel    int     `json:"batteryLevel,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

// Candidate is a detected anomaly proposed to the alert ledger. Every
// candidate the detector emits yields exactly one alert.
type Candidate struct {
	PatientID string         `json:"patientId"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Candidate types.
const (
	TypeAbnormalHeartRate   = "abnormal_heart_rate"
	TypeAbnormalRespiration = "abnormal_respiration"
	TypeApnea               = "apnea"
	TypeFall                = "fall"
	TypeLoudSound           = "loud_sound"
)

// Severities, ordered from most to least urgent.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityWarning  = "warning"
)
