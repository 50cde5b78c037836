package stream

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carewatch/carewatch/internal/domain/alert"
	"github.com/carewatch/carewatch/internal/domain/patient"
	"github.com/carewatch/carewatch/internal/domain/vitals"
	"github.com/carewatch/carewatch/internal/platform/store"
	ws "github.com/carewatch/carewatch/internal/platform/websocket"
)

// fakeConn satisfies websocket.Conn; tests read outbound frames straight
// from the client's Send channel instead.
type fakeConn struct{}

func (fakeConn) ReadMessage() (int, []byte, error)  { select {} }
func (fakeConn) WriteMessage(int, []byte) error     { return nil }
func (fakeConn) Close() error                       { return nil }

type mockNotifier struct {
	mu    sync.Mutex
	calls []*alert.Alert
}

func (m *mockNotifier) NotifyAlert(_ context.Context, a *alert.Alert) {
	m.mu.Lock()
	m.calls = append(m.calls, a)
	m.mu.Unlock()
}

func (m *mockNotifier) Calls() []*alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*alert.Alert, len(m.calls))
	copy(out, m.calls)
	return out
}

type testEnv struct {
	registry *Registry
	ledger   *alert.Ledger
	patients *patient.Service
	notifier *mockNotifier
}

// newTestEnv builds a registry over in-memory services with a fast tick and
// a deterministic source producing the given reading.
func newTestEnv(t *testing.T, reading vitals.VitalReading) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	log := zerolog.Nop()
	ledger := alert.NewLedger(alert.NewStoreRepository(mem), log)
	patients := patient.NewService(mem, log)
	notifier := &mockNotifier{}

	registry := NewRegistry(Config{
		Vitals:   vitals.NewService(mem, log),
		Detector: vitals.NewDetector(70),
		Ledger:   ledger,
		Patients: patients,
		Notifier: notifier,
		NewSource: func(patientID string) SourceFunc {
			return func() vitals.VitalReading {
				r := reading
				r.PatientID = patientID
				r.Timestamp = time.Now().UnixMilli()
				return r
			}
		},
		TickInterval: 10 * time.Millisecond,
		Logger:       log,
	})
	return &testEnv{registry: registry, ledger: ledger, patients: patients, notifier: notifier}
}

func normalReading() vitals.VitalReading {
	return vitals.VitalReading{HeartRate: 72, RespiratoryRate: 16, Activity: vitals.ActivityResting, Source: vitals.SourceSimulated}
}

func newClient(buffer int) *ws.Client {
	return ws.NewClient(fakeConn{}, buffer)
}

// recvFrame waits for the next outbound frame on the client.
func recvFrame(t *testing.T, c *ws.Client) map[string]any {
	t.Helper()
	select {
	case raw := <-c.Send:
		var frame map[string]any
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("undecodable frame %s: %v", raw, err)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// waitForType discards frames until one of the wanted type arrives.
func waitForType(t *testing.T, c *ws.Client, frameType string) map[string]any {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case raw := <-c.Send:
			var frame map[string]any
			if err := json.Unmarshal(raw, &frame); err != nil {
				t.Fatalf("undecodable frame %s: %v", raw, err)
			}
			if frame["type"] == frameType {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", frameType)
			return nil
		}
	}
}

func subscribe(r *Registry, c *ws.Client, patientID string) {
	r.HandleMessage(c, []byte(`{"type":"subscribe","payload":{"patientId":"`+patientID+`"}}`))
}

func TestSubscribeStartsSourceAndStreams(t *testing.T) {
	env := newTestEnv(t, normalReading())
	c := newClient(64)

	subscribe(env.registry, c, "p1")

	frame := recvFrame(t, c)
	if frame["type"] != MsgSubscribed || frame["patientId"] != "p1" {
		t.Fatalf("expected subscribed ack, got %v", frame)
	}
	if frame["mode"] != "simulator" {
		t.Fatalf("expected simulator mode by default, got %v", frame["mode"])
	}
	if _, ok := env.registry.SourceGeneration("p1"); !ok {
		t.Fatal("expected running source after subscribe")
	}

	vs := waitForType(t, c, MsgVitalSigns)
	data := vs["data"].(map[string]any)
	if data["patientId"] != "p1" || data["heartRate"].(float64) != 72 {
		t.Fatalf("unexpected vital_signs payload: %v", data)
	}
}

func TestOneSourcePerPatient(t *testing.T) {
	env := newTestEnv(t, normalReading())
	c1 := newClient(64)
	c2 := newClient(64)

	subscribe(env.registry, c1, "p1")
	gen1, _ := env.registry.SourceGeneration("p1")
	subscribe(env.registry, c2, "p1")
	gen2, ok := env.registry.SourceGeneration("p1")
	if !ok || gen1 != gen2 {
		t.Fatalf("second subscribe must reuse the source: %d != %d", gen1, gen2)
	}
	if env.registry.SubscriberCount("p1") != 2 {
		t.Fatalf("expected 2 subscribers, got %d", env.registry.SubscriberCount("p1"))
	}

	// Both subscribers receive the stream.
	waitForType(t, c1, MsgVitalSigns)
	waitForType(t, c2, MsgVitalSigns)
}

func TestLastUnsubscribeStopsSource(t *testing.T) {
	env := newTestEnv(t, normalReading())
	c1 := newClient(64)
	c2 := newClient(64)

	subscribe(env.registry, c1, "p1")
	subscribe(env.registry, c2, "p1")

	env.registry.HandleMessage(c1, []byte(`{"type":"unsubscribe","payload":{"patientId":"p1"}}`))
	if _, ok := env.registry.SourceGeneration("p1"); !ok {
		t.Fatal("source must keep running while a subscriber remains")
	}

	env.registry.HandleMessage(c2, []byte(`{"type":"unsubscribe","payload":{"patientId":"p1"}}`))
	if _, ok := env.registry.SourceGeneration("p1"); ok {
		t.Fatal("source must stop when the last subscriber leaves")
	}
}

func TestResubscribeGetsFreshSource(t *testing.T) {
	env := newTestEnv(t, normalReading())
	c := newClient(64)

	subscribe(env.registry, c, "p1")
	gen1, _ := env.registry.SourceGeneration("p1")

	env.registry.HandleMessage(c, []byte(`{"type":"unsubscribe","payload":{"patientId":"p1"}}`))
	subscribe(env.registry, c, "p1")

	gen2, ok := env.registry.SourceGeneration("p1")
	if !ok {
		t.Fatal("expected running source after resubscribe")
	}
	if gen2 <= gen1 {
		t.Fatalf("expected a fresh generation, got %d after %d", gen2, gen1)
	}
	waitForType(t, c, MsgVitalSigns)
}

func TestDisconnectStopsOrphanedSources(t *testing.T) {
	env := newTestEnv(t, normalReading())
	c := newClient(64)

	subscribe(env.registry, c, "p1")
	subscribe(env.registry, c, "p2")

	env.registry.HandleDisconnect(c)
	if _, ok := env.registry.SourceGeneration("p1"); ok {
		t.Fatal("expected p1 source stopped after disconnect")
	}
	if _, ok := env.registry.SourceGeneration("p2"); ok {
		t.Fatal("expected p2 source stopped after disconnect")
	}

	// Send channel is closed; a further receive must not block.
	select {
	case _, open := <-c.Send:
		if open {
			// Drain queued frames until closed.
			for range c.Send {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed after disconnect")
	}
}

func TestAnomalousStreamRaisesAlert(t *testing.T) {
	r := normalReading()
	r.HeartRate = 145
	env := newTestEnv(t, r)
	c := newClient(256)

	subscribe(env.registry, c, "p1")

	frame := waitForType(t, c, MsgAlert)
	data := frame["data"].(map[string]any)
	if data["type"] != vitals.TypeAbnormalHeartRate || data["severity"] != vitals.SeverityCritical {
		t.Fatalf("unexpected alert payload: %v", data)
	}
	if data["status"] != alert.StatusPending {
		t.Fatalf("expected pending alert, got %v", data["status"])
	}

	// Ledger recorded it and derived the patient status.
	alerts, err := env.ledger.List(context.Background(), "p1", "", "", 0)
	if err != nil || len(alerts) == 0 {
		t.Fatalf("expected persisted alerts, got %v, %v", alerts, err)
	}
	doc, _ := env.ledger.PatientStatus(context.Background(), "p1")
	if doc.Status != alert.PatientEmergency {
		t.Fatalf("expected emergency status, got %s", doc.Status)
	}

	// Notifier sees the alert.
	deadline := time.After(time.Second)
	for len(env.notifier.Calls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("notifier never called")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestProtocolErrors(t *testing.T) {
	env := newTestEnv(t, normalReading())
	c := newClient(64)

	env.registry.HandleMessage(c, []byte(`{not json`))
	if frame := recvFrame(t, c); frame["error"] != errInvalidFormat {
		t.Fatalf("expected invalid format error, got %v", frame)
	}

	env.registry.HandleMessage(c, []byte(`{"type":"selfdestruct"}`))
	if frame := recvFrame(t, c); frame["error"] != errUnknownType {
		t.Fatalf("expected unknown type error, got %v", frame)
	}

	env.registry.HandleMessage(c, []byte(`{"type":"subscribe","payload":{}}`))
	if frame := recvFrame(t, c); frame["error"] != errPatientRequired {
		t.Fatalf("expected patient required error, got %v", frame)
	}

	// The connection survives protocol errors.
	subscribe(env.registry, c, "p1")
	if frame := recvFrame(t, c); frame["type"] != MsgSubscribed {
		t.Fatalf("expected subscribed after errors, got %v", frame)
	}
}

func TestSmartphoneAccelerometerFall(t *testing.T) {
	env := newTestEnv(t, normalReading())
	watcher := newClient(256)
	phone := newClient(64)

	subscribe(env.registry, watcher, "p1")
	recvFrame(t, watcher) // subscribed ack

	env.registry.HandleMessage(phone, []byte(
		`{"type":"smartphone_sensor","payload":{"patientId":"p1","sensorType":"accelerometer","data":{"x":15,"y":15,"z":10}}}`))

	frame := waitForType(t, watcher, MsgSmartphoneSensor)
	if frame["sensorType"] != "accelerometer" {
		t.Fatalf("expected sensorType on the frame, got %v", frame)
	}
	data := frame["data"].(map[string]any)
	if _, ok := data["magnitude"]; !ok {
		t.Fatalf("expected derived magnitude in broadcast, got %v", data)
	}

	frame = waitForType(t, watcher, MsgAlert)
	payload := frame["data"].(map[string]any)
	if payload["type"] != vitals.TypeFall || payload["severity"] != vitals.SeverityCritical {
		t.Fatalf("expected critical fall alert, got %v", payload)
	}
}

func TestSmartphoneSoundBelowThresholdIsQuiet(t *testing.T) {
	env := newTestEnv(t, normalReading())
	watcher := newClient(256)

	subscribe(env.registry, watcher, "p1")
	recvFrame(t, watcher)

	env.registry.HandleMessage(watcher, []byte(
		`{"type":"smartphone_sensor","payload":{"patientId":"p1","sensorType":"sound","data":{"level":90}}}`))
	waitForType(t, watcher, MsgSmartphoneSensor)

	alerts, _ := env.ledger.List(context.Background(), "p1", "", "", 0)
	for _, a := range alerts {
		if a.Type == vitals.TypeLoudSound {
			t.Fatalf("sound below twice the threshold must not alert: %+v", a)
		}
	}
}

func TestManualCheckin(t *testing.T) {
	env := newTestEnv(t, normalReading())
	watcher := newClient(256)
	sender := newClient(64)

	subscribe(env.registry, watcher, "p1")
	recvFrame(t, watcher)

	env.registry.HandleMessage(sender, []byte(
		`{"type":"manual_checkin","payload":{"patientId":"p1","status":"ok","note":"feeling fine"}}`))

	ack := recvFrame(t, sender)
	if ack["type"] != MsgCheckinReceived {
		t.Fatalf("expected checkin ack to sender, got %v", ack)
	}

	frame := waitForType(t, watcher, MsgCheckin)
	data := frame["data"].(map[string]any)
	if data["status"] != "ok" || data["note"] != "feeling fine" {
		t.Fatalf("unexpected checkin broadcast: %v", data)
	}

	// Event is persisted asynchronously.
	deadline := time.After(time.Second)
	for {
		events, err := env.patients.Events(context.Background(), "p1", 0)
		if err != nil {
			t.Fatalf("events failed: %v", err)
		}
		if len(events) == 1 {
			if events[0].Type != MsgManualCheckin || events[0].Status != "ok" {
				t.Fatalf("unexpected event: %+v", events[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("checkin event never persisted")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSlowSubscriberDropsFramesOnly(t *testing.T) {
	env := newTestEnv(t, normalReading())
	slow := newClient(1)

	subscribe(env.registry, slow, "p1")
	// Leave the subscribed ack in the buffer so everything after drops.
	time.Sleep(100 * time.Millisecond)

	if slow.Dropped() == 0 {
		t.Fatal("expected dropped frames on full buffer")
	}
	// The registry still counts the subscription and the source runs.
	if env.registry.SubscriberCount("p1") != 1 {
		t.Fatal("slow subscriber must stay registered")
	}
	if _, ok := env.registry.SourceGeneration("p1"); !ok {
		t.Fatal("source must keep running for a slow subscriber")
	}
}

func TestBroadcastOrderPreserved(t *testing.T) {
	env := newTestEnv(t, normalReading())
	c := newClient(256)

	subscribe(env.registry, c, "p1")
	recvFrame(t, c)

	for i := 0; i < 20; i++ {
		env.registry.Broadcast("p1", "seq", i)
	}
	got := 0
	for got < 20 {
		frame := waitForType(t, c, "seq")
		if int(frame["data"].(float64)) != got {
			t.Fatalf("out of order: expected %d, got %v", got, frame["data"])
		}
		got++
	}
}
