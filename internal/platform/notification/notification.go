// Package notification delivers alert notifications to guardians over push
// and email channels. Delivery is best-effort: failures are aggregated into
// a result, never propagated as fatal errors.
package notification

import (
	"context"
	"errors"
)

// ErrInvalidToken marks a device token the provider rejected permanently.
// Invalid tokens are pruned and never retried.
var ErrInvalidToken = errors.New("invalid device token")

// Push priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Channel and sound used for critical alerts on Android.
const (
	EmergencyChannel = "emergency_alerts"
	EmergencySound   = "emergency"
)

// PushMessage is one push delivery to a single device token.
type PushMessage struct {
	Token     string            `json:"token"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Priority  string            `json:"priority"`
	Sound     string            `json:"sound,omitempty"`
	ChannelID string            `json:"channelId,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// PushSender delivers a push message to one device.
type PushSender interface {
	SendPush(ctx context.Context, msg PushMessage) error
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}
