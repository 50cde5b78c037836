// Package stream routes the real-time protocol: per-patient subscriptions,
// vital source lifecycle, anomaly handling, and fan-out to subscribers.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/carewatch/carewatch/internal/domain/alert"
	"github.com/carewatch/carewatch/internal/domain/patient"
	"github.com/carewatch/carewatch/internal/domain/vitals"
	ws "github.com/carewatch/carewatch/internal/platform/websocket"
)

// AlertNotifier dispatches guardian notifications for a created alert.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, a *alert.Alert)
}

// SourceFunc produces the next reading for the patient it was built for.
type SourceFunc func() vitals.VitalReading

// Config wires a Registry.
type Config struct {
	Vitals   *vitals.Service
	Detector *vitals.Detector
	Ledger   *alert.Ledger
	Patients *patient.Service
	// Notifier may be nil when no notification channels are configured.
	Notifier AlertNotifier
	// NewSource builds the per-patient reading source started on first
	// subscribe.
	NewSource    func(patientID string) SourceFunc
	TickInterval time.Duration
	Logger       zerolog.Logger
}

type subscription struct {
	mode string
}

// sourceRun is one running per-patient source. The generation distinguishes
// a fresh source from a stopping one when unsubscribe races resubscribe.
type sourceRun struct {
	cancel     context.CancelFunc
	generation uint64
}

// Registry tracks which connections watch which patients and keeps exactly
// one running source per watched patient. All subscription and source
// transitions happen under one mutex.
type Registry struct {
	cfg Config
	log zerolog.Logger

	mu         sync.Mutex
	subs       map[string]map[*ws.Client]subscription
	clients    map[*ws.Client]map[string]struct{}
	sources    map[string]*sourceRun
	generation uint64
}

// NewRegistry creates a registry. TickInterval defaults to 3s.
func NewRegistry(cfg Config) *Registry {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 3 * time.Second
	}
	if cfg.NewSource == nil {
		cfg.NewSource = func(patientID string) SourceFunc {
			sim := vitals.NewSimulator(time.Now().UnixNano())
			return func() vitals.VitalReading { return sim.Generate(patientID) }
		}
	}
	return &Registry{
		cfg:     cfg,
		log:     cfg.Logger,
		subs:    make(map[string]map[*ws.Client]subscription),
		clients: make(map[*ws.Client]map[string]struct{}),
		sources: make(map[string]*sourceRun),
	}
}

// HandleMessage implements websocket.Router.
func (r *Registry) HandleMessage(c *ws.Client, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		r.sendError(c, errInvalidFormat)
		return
	}
	payload := []byte(env.Payload)
	if len(payload) == 0 {
		payload = raw
	}

	switch env.Type {
	case MsgSubscribe:
		var p subscribePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			r.sendError(c, errInvalidFormat)
			return
		}
		r.subscribe(c, p)
	case MsgUnsubscribe:
		var p unsubscribePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			r.sendError(c, errInvalidFormat)
			return
		}
		r.unsubscribe(c, p.PatientID)
	case MsgSensorData:
		var p sensorPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			r.sendError(c, errInvalidFormat)
			return
		}
		r.handleSensorData(c, p)
	case MsgSmartphoneSensor:
		var p sensorPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			r.sendError(c, errInvalidFormat)
			return
		}
		r.handleSmartphoneSensor(c, p)
	case MsgManualCheckin:
		var p checkinPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			r.sendError(c, errInvalidFormat)
			return
		}
		r.handleCheckin(c, p)
	default:
		r.sendError(c, errUnknownType)
	}
}

// HandleDisconnect implements websocket.Router. It deregisters the
// connection and stops any source left without subscribers.
func (r *Registry) HandleDisconnect(c *ws.Client) {
	r.mu.Lock()
	for patientID := range r.clients[c] {
		delete(r.subs[patientID], c)
		if len(r.subs[patientID]) == 0 {
			delete(r.subs, patientID)
			r.stopSourceLocked(patientID)
		}
	}
	delete(r.clients, c)
	r.mu.Unlock()

	c.CloseSend()
}

func (r *Registry) subscribe(c *ws.Client, p subscribePayload) {
	if p.PatientID == "" {
		r.sendError(c, errPatientRequired)
		return
	}
	mode := p.Mode
	if mode == "" {
		mode = "simulator"
	}

	r.mu.Lock()
	if r.subs[p.PatientID] == nil {
		r.subs[p.PatientID] = make(map[*ws.Client]subscription)
	}
	r.subs[p.PatientID][c] = subscription{mode: mode}
	if r.clients[c] == nil {
		r.clients[c] = make(map[string]struct{})
	}
	r.clients[c][p.PatientID] = struct{}{}
	r.startSourceLocked(p.PatientID)
	r.mu.Unlock()

	r.send(c, map[string]any{
		"type":      MsgSubscribed,
		"patientId": p.PatientID,
		"mode":      mode,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (r *Registry) unsubscribe(c *ws.Client, patientID string) {
	if patientID == "" {
		r.sendError(c, errPatientRequired)
		return
	}
	r.mu.Lock()
	if subs, ok := r.subs[patientID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(r.subs, patientID)
			r.stopSourceLocked(patientID)
		}
	}
	delete(r.clients[c], patientID)
	r.mu.Unlock()
}

// startSourceLocked starts the patient's source unless one is running.
// Callers hold r.mu.
func (r *Registry) startSourceLocked(patientID string) {
	if _, running := r.sources[patientID]; running {
		return
	}
	r.generation++
	ctx, cancel := context.WithCancel(context.Background())
	run := &sourceRun{cancel: cancel, generation: r.generation}
	r.sources[patientID] = run

	go r.runSource(ctx, patientID)
	r.log.Info().Str("patient_id", patientID).Uint64("generation", run.generation).
		Msg("vital source started")
}

// stopSourceLocked cancels and forgets the patient's source. Callers hold
// r.mu, so a concurrent subscribe observes the removal and starts a fresh
// source with a new generation.
func (r *Registry) stopSourceLocked(patientID string) {
	run, ok := r.sources[patientID]
	if !ok {
		return
	}
	run.cancel()
	delete(r.sources, patientID)
	r.log.Info().Str("patient_id", patientID).Uint64("generation", run.generation).
		Msg("vital source stopped")
}

// Broadcast fans a typed frame with a data envelope out to every subscriber
// of the patient.
func (r *Registry) Broadcast(patientID, frameType string, data any) {
	r.broadcastFrame(patientID, serverFrame{Type: frameType, Data: data})
}

// broadcastFrame fans a frame out as-is to every subscriber of the patient.
// Frames are enqueued without blocking; a subscriber with a full buffer drops
// the frame.
func (r *Registry) broadcastFrame(patientID string, frame any) {
	raw, err := json.Marshal(frame)
	if err != nil {
		r.log.Error().Err(err).Str("patient_id", patientID).Msg("failed to marshal frame")
		return
	}

	r.mu.Lock()
	targets := make([]*ws.Client, 0, len(r.subs[patientID]))
	for c := range r.subs[patientID] {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	for _, c := range targets {
		if !c.Enqueue(raw) {
			r.log.Warn().Str("client_id", c.ID).Str("patient_id", patientID).
				Msg("subscriber buffer full, frame dropped")
		}
	}
}

// SubscriberCount returns how many connections watch a patient.
func (r *Registry) SubscriberCount(patientID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[patientID])
}

// SourceGeneration reports the running source's generation for a patient.
func (r *Registry) SourceGeneration(patientID string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.sources[patientID]
	if !ok {
		return 0, false
	}
	return run.generation, true
}

// Shutdown stops every running source. Connections are torn down by the
// transport; this only releases the source goroutines.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for patientID := range r.sources {
		r.stopSourceLocked(patientID)
	}
}

func (r *Registry) send(c *ws.Client, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to marshal frame")
		return
	}
	c.Enqueue(raw)
}

func (r *Registry) sendError(c *ws.Client, msg string) {
	r.send(c, errorFrame{Error: msg})
}
