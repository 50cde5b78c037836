package patient

// Guardian is a caregiver linked to a patient. Guardians receive alert
// notifications on their registered channels.
type Guardian struct {
	ID        string `json:"id"`
	PatientID string `json:"patientId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// PushToken is one registered device token for a guardian.
type PushToken struct {
	Token        string `json:"token"`
	Platform     string `json:"platform,omitempty"`
	RegisteredAt int64  `json:"registeredAt"`
}

// Event is a patient-scoped occurrence outside the vitals stream, such as a
// manual check-in or a raw sensor submission.
type Event struct {
	ID        string         `json:"id"`
	PatientID string         `json:"patientId"`
	Type      string         `json:"type"`
	Status    string         `json:"status,omitempty"`
	Note      string         `json:"note,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Notification is a delivered alert notification, kept so guardians can
// review and mark them read.
type Notification struct {
	ID         string `json:"id"`
	GuardianID string `json:"guardianId"`
	PatientID  string `json:"patientId"`
	AlertID    string `json:"alertId,omitempty"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Severity   string `json:"severity,omitempty"`
	Read       bool   `json:"read"`
	CreatedAt  int64  `json:"createdAt"`
}
