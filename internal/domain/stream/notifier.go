package stream

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/carewatch/carewatch/internal/domain/alert"
	"github.com/carewatch/carewatch/internal/domain/patient"
	"github.com/carewatch/carewatch/internal/platform/notification"
)

// Notifier resolves an alert's guardians, dispatches the notification, and
// records the outcome on the alert and in each guardian's inbox.
type Notifier struct {
	dispatcher *notification.Dispatcher
	patients   *patient.Service
	ledger     *alert.Ledger
	log        zerolog.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(d *notification.Dispatcher, patients *patient.Service, ledger *alert.Ledger, log zerolog.Logger) *Notifier {
	return &Notifier{dispatcher: d, patients: patients, ledger: ledger, log: log}
}

// NotifyAlert fans the alert out to the patient's guardians. Never fails:
// delivery problems are aggregated and logged by the dispatcher.
func (n *Notifier) NotifyAlert(ctx context.Context, a *alert.Alert) {
	guardians, err := n.patients.Guardians(ctx, a.PatientID)
	if err != nil {
		n.log.Error().Err(err).Str("patient_id", a.PatientID).Msg("failed to load guardians")
		return
	}
	if len(guardians) == 0 {
		return
	}

	recipients := make([]notification.Recipient, len(guardians))
	for i, g := range guardians {
		recipients[i] = notification.Recipient{GuardianID: g.ID, Email: g.Email}
	}

	notice := notification.Notice{
		PatientID: a.PatientID,
		AlertID:   a.ID,
		Type:      a.Type,
		Severity:  a.Severity,
		Title:     noticeTitle(a),
		Body:      a.Message,
	}
	res := n.dispatcher.Dispatch(ctx, notice, recipients)

	sent := alert.NotificationsSent{
		Push:  res.Success > 0,
		Email: res.EmailsSent > 0,
	}
	if err := n.ledger.MarkNotified(ctx, a.PatientID, a.ID, sent); err != nil {
		n.log.Error().Err(err).Str("alert_id", a.ID).Msg("failed to record notification outcome")
	}

	for _, g := range guardians {
		err := n.patients.SaveNotification(ctx, &patient.Notification{
			GuardianID: g.ID,
			PatientID:  a.PatientID,
			AlertID:    a.ID,
			Title:      notice.Title,
			Body:       notice.Body,
			Severity:   a.Severity,
		})
		if err != nil {
			n.log.Error().Err(err).Str("guardian_id", g.ID).Msg("failed to record notification")
		}
	}
}

func noticeTitle(a *alert.Alert) string {
	if a.Severity == "critical" {
		return "EMERGENCY: patient needs attention"
	}
	return "Patient alert"
}
