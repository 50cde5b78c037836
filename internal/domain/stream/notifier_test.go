package stream

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carewatch/carewatch/internal/domain/alert"
	"github.com/carewatch/carewatch/internal/domain/patient"
	"github.com/carewatch/carewatch/internal/domain/vitals"
	"github.com/carewatch/carewatch/internal/platform/notification"
	"github.com/carewatch/carewatch/internal/platform/store"
)

func TestNotifyAlert_CriticalReachesAllChannels(t *testing.T) {
	mem := store.NewMemoryStore()
	log := zerolog.Nop()
	ctx := context.Background()

	patients := patient.NewService(mem, log)
	ledger := alert.NewLedger(alert.NewStoreRepository(mem), log)

	g := &patient.Guardian{PatientID: "p1", Name: "Ana", Email: "ana@example.com"}
	if err := patients.AddGuardian(ctx, g); err != nil {
		t.Fatalf("add guardian: %v", err)
	}
	if err := patients.RegisterToken(ctx, g.ID, "tok-1", "android"); err != nil {
		t.Fatalf("register token: %v", err)
	}

	push := notification.NewMockPushSender()
	email := notification.NewMockEmailSender()
	dispatcher := notification.NewDispatcher(push, email, patients, time.Second, log)
	notifier := NewNotifier(dispatcher, patients, ledger, log)

	a, err := ledger.Create(ctx, vitals.Candidate{
		PatientID: "p1",
		Type:      vitals.TypeFall,
		Severity:  vitals.SeverityCritical,
		Message:   "Possible fall detected",
	})
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}

	notifier.NotifyAlert(ctx, a)

	if len(push.Calls()) != 1 || push.Calls()[0].Token != "tok-1" {
		t.Fatalf("expected one push, got %+v", push.Calls())
	}
	if len(email.Calls()) != 1 || email.Calls()[0].To != "ana@example.com" {
		t.Fatalf("expected one email, got %+v", email.Calls())
	}

	got, _ := ledger.Get(ctx, "p1", a.ID)
	if !got.NotificationsSent.Push || !got.NotificationsSent.Email {
		t.Fatalf("expected notification flags recorded, got %+v", got.NotificationsSent)
	}

	inbox, err := patients.Notifications(ctx, g.ID, 0)
	if err != nil || len(inbox) != 1 {
		t.Fatalf("expected one inbox notification, got %v, %v", inbox, err)
	}
	if inbox[0].AlertID != a.ID || inbox[0].Severity != vitals.SeverityCritical {
		t.Fatalf("unexpected inbox notification: %+v", inbox[0])
	}
}

func TestNotifyAlert_NoGuardiansIsQuiet(t *testing.T) {
	mem := store.NewMemoryStore()
	log := zerolog.Nop()
	ctx := context.Background()

	patients := patient.NewService(mem, log)
	ledger := alert.NewLedger(alert.NewStoreRepository(mem), log)
	push := notification.NewMockPushSender()
	dispatcher := notification.NewDispatcher(push, nil, patients, time.Second, log)
	notifier := NewNotifier(dispatcher, patients, ledger, log)

	a, _ := ledger.Create(ctx, vitals.Candidate{
		PatientID: "p1", Type: vitals.TypeFall, Severity: vitals.SeverityCritical, Message: "fall",
	})
	notifier.NotifyAlert(ctx, a)

	if len(push.Calls()) != 0 {
		t.Fatalf("expected no deliveries without guardians, got %+v", push.Calls())
	}
	got, _ := ledger.Get(ctx, "p1", a.ID)
	if got.NotificationsSent.Push || got.NotificationsSent.Email {
		t.Fatalf("expected no flags recorded, got %+v", got.NotificationsSent)
	}
}
