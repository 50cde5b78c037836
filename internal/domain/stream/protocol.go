package stream

import "encoding/json"

// Client-originated message types.
const (
	MsgSubscribe        = "subscribe"
	MsgUnsubscribe      = "unsubscribe"
	MsgSensorData       = "sensor_data"
	MsgSmartphoneSensor = "smartphone_sensor"
	MsgManualCheckin    = "manual_checkin"
)

// Server-originated message types.
const (
	MsgSubscribed      = "subscribed"
	MsgVitalSigns      = "vital_signs"
	MsgAlert           = "alert"
	MsgCheckin         = "checkin"
	MsgCheckinReceived = "checkin_received"
)

// Protocol error messages. Sent as {"error": ...} frames; the connection
// stays open.
const (
	errInvalidFormat   = "Invalid message format"
	errUnknownType     = "Unknown message type"
	errPatientRequired = "Patient ID required"
)

// envelope is the outer shape of every inbound frame. Payload fields may
// also appear at the top level, so the raw frame doubles as the payload
// when "payload" is absent.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type subscribePayload struct {
	PatientID string `json:"patientId"`
	Mode      string `json:"mode"`
}

type unsubscribePayload struct {
	PatientID string `json:"patientId"`
}

type sensorPayload struct {
	PatientID  string         `json:"patientId"`
	SensorType string         `json:"sensorType"`
	Data       map[string]any `json:"data"`
}

type checkinPayload struct {
	PatientID string `json:"patientId"`
	Status    string `json:"status"`
	Note      string `json:"note"`
}

// serverFrame is the outer shape of broadcast frames.
type serverFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type errorFrame struct {
	Error string `json:"error"`
}
