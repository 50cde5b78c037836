package alert

// Alert lifecycle statuses. pending and acknowledged alerts are active;
// only resolve retires an alert.
const (
	StatusPending      = "pending"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Derived patient statuses.
const (
	PatientNormal    = "normal"
	PatientWarning   = "warning"
	PatientEmergency = "emergency"
)

// NotificationsSent records which channels were used for an alert.
type NotificationsSent struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

// Alert is one detected event in its lifecycle.
type Alert struct {
	ID                string            `json:"id"`
	PatientID         string            `json:"patientId"`
	Type              string            `json:"type"`
	Severity          string            `json:"severity"`
	Status            string            `json:"status"`
	Message           string            `json:"message"`
	Data              map[string]any    `json:"data,omitempty"`
	CreatedAt         int64             `json:"timestamp"` // unix milliseconds
	AcknowledgedBy    string            `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt    int64             `json:"acknowledgedAt,omitempty"`
	ResolvedAt        int64             `json:"resolvedAt,omitempty"`
	NotificationsSent NotificationsSent `json:"notificationsSent"`
}

// Active reports whether the alert still counts toward the patient status.
func (a *Alert) Active() bool {
	return a.Status != StatusResolved
}

// PatientStatusDoc is the persisted derived status for a patient.
type PatientStatusDoc struct {
	PatientID string `json:"patientId"`
	Status    string `json:"status"`
	UpdatedAt int64  `json:"updatedAt"`
}
