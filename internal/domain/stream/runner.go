package stream

import (
	"context"
	"time"

	"github.com/carewatch/carewatch/internal/domain/patient"
	"github.com/carewatch/carewatch/internal/domain/vitals"
	ws "github.com/carewatch/carewatch/internal/platform/websocket"
)

// runSource drives one patient's vital source until its context is
// cancelled. Each tick broadcasts the reading, classifies it, and feeds any
// candidates through the alert pipeline. Persistence runs off the tick
// goroutine so a slow store never delays fan-out.
func (r *Registry) runSource(ctx context.Context, patientID string) {
	next := r.cfg.NewSource(patientID)
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, patientID, next)
		}
	}
}

func (r *Registry) tick(ctx context.Context, patientID string, next SourceFunc) {
	reading := next()
	r.Broadcast(patientID, MsgVitalSigns, reading)

	go func() {
		if err := r.cfg.Vitals.SaveReading(context.Background(), reading); err != nil {
			r.log.Error().Err(err).Str("patient_id", patientID).Msg("failed to persist reading")
		}
	}()

	for _, cand := range r.cfg.Detector.Evaluate(reading) {
		r.raiseAlert(ctx, cand)
	}
}

// raiseAlert records a candidate in the ledger, broadcasts the resulting
// alert, and dispatches notifications in the background. A ledger failure is
// logged; the stream keeps running.
func (r *Registry) raiseAlert(ctx context.Context, cand vitals.Candidate) {
	a, err := r.cfg.Ledger.Create(ctx, cand)
	if err != nil {
		r.log.Error().Err(err).Str("patient_id", cand.PatientID).
			Str("type", cand.Type).Msg("failed to create alert")
		return
	}
	r.Broadcast(a.PatientID, MsgAlert, a)

	if r.cfg.Notifier != nil {
		go r.cfg.Notifier.NotifyAlert(context.Background(), a)
	}
}

func (r *Registry) handleSensorData(c *ws.Client, p sensorPayload) {
	if p.PatientID == "" {
		r.sendError(c, errPatientRequired)
		return
	}
	// Device frames carry the sensor type alongside the payload, not inside it.
	r.broadcastFrame(p.PatientID, map[string]any{
		"type":       MsgSensorData,
		"sensorType": p.SensorType,
		"data":       p.Data,
	})

	go func() {
		err := r.cfg.Patients.SaveEvent(context.Background(), &patient.Event{
			PatientID: p.PatientID,
			Type:      MsgSensorData,
			Data:      map[string]any{"sensorType": p.SensorType, "data": p.Data},
		})
		if err != nil {
			r.log.Error().Err(err).Str("patient_id", p.PatientID).Msg("failed to persist sensor event")
		}
	}()
}

// handleSmartphoneSensor broadcasts phone sensor data and independently
// evaluates the fall and loud-sound rules on it.
func (r *Registry) handleSmartphoneSensor(c *ws.Client, p sensorPayload) {
	if p.PatientID == "" {
		r.sendError(c, errPatientRequired)
		return
	}

	data := p.Data
	var cand *vitals.Candidate
	switch p.SensorType {
	case "accelerometer":
		x, y, z := floatField(data, "x"), floatField(data, "y"), floatField(data, "z")
		if data == nil {
			data = map[string]any{}
		}
		data["magnitude"] = vitals.Magnitude(x, y, z)
		cand = r.cfg.Detector.EvaluateAccelerometer(p.PatientID, x, y, z)
	case "sound":
		cand = r.cfg.Detector.EvaluateSound(p.PatientID, floatField(data, "level"))
	}

	r.broadcastFrame(p.PatientID, map[string]any{
		"type":       MsgSmartphoneSensor,
		"sensorType": p.SensorType,
		"data":       data,
	})

	if cand != nil {
		r.raiseAlert(context.Background(), *cand)
	}
}

func (r *Registry) handleCheckin(c *ws.Client, p checkinPayload) {
	if p.PatientID == "" {
		r.sendError(c, errPatientRequired)
		return
	}
	now := time.Now().UnixMilli()

	r.Broadcast(p.PatientID, MsgCheckin, map[string]any{
		"patientId": p.PatientID,
		"status":    p.Status,
		"note":      p.Note,
		"timestamp": now,
	})
	r.send(c, map[string]any{"type": MsgCheckinReceived, "timestamp": now})

	go func() {
		err := r.cfg.Patients.SaveEvent(context.Background(), &patient.Event{
			PatientID: p.PatientID,
			Type:      MsgManualCheckin,
			Status:    p.Status,
			Note:      p.Note,
			Timestamp: now,
		})
		if err != nil {
			r.log.Error().Err(err).Str("patient_id", p.PatientID).Msg("failed to persist checkin")
		}
	}()
}

func floatField(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	v, _ := m[key].(float64)
	return v
}
