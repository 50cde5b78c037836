package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carewatch/carewatch/internal/domain/vitals"
)

// Statistics summarizes a patient's alerts over a period.
type Statistics struct {
	PatientID  string         `json:"patientId"`
	Period     string         `json:"period"`
	Total      int            `json:"total"`
	ByType     map[string]int `json:"byType"`
	BySeverity map[string]int `json:"bySeverity"`
	ByStatus   map[string]int `json:"byStatus"`
	// AverageResponseTime is the mean seconds between creation and
	// acknowledgment, over acknowledged or resolved alerts.
	AverageResponseTime float64 `json:"averageResponseTime"`
}

// Ledger owns the alert lifecycle. The in-memory per-patient active set is
// authoritative: a created alert exists, is returned to callers, and is
// reflected in the derived patient status even when the store is
// unreachable. The store holds a best-effort mirror plus resolved history.
type Ledger struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time

	mu       sync.Mutex
	patients map[string]*patientState
}

// patientState serializes one patient's alert transitions and holds the
// authoritative active-alert set and the status derived from it.
type patientState struct {
	mu        sync.Mutex
	hydrated  bool
	active    map[string]*Alert
	status    string
	updatedAt int64
}

// NewLedger creates an alert ledger.
func NewLedger(repo Repository, log zerolog.Logger) *Ledger {
	return &Ledger{
		repo:     repo,
		log:      log,
		now:      time.Now,
		patients: make(map[string]*patientState),
	}
}

// lockPatient returns the patient's state with its lock held. First use
// seeds the active set from the store so a restart picks up alerts that
// were persisted before it; a store failure seeds an empty set.
func (l *Ledger) lockPatient(ctx context.Context, patientID string) *patientState {
	l.mu.Lock()
	ps, ok := l.patients[patientID]
	if !ok {
		ps = &patientState{active: make(map[string]*Alert), status: PatientNormal}
		l.patients[patientID] = ps
	}
	l.mu.Unlock()

	ps.mu.Lock()
	if !ps.hydrated {
		ps.hydrated = true
		alerts, err := l.repo.ListByPatient(ctx, patientID)
		if err != nil {
			l.log.Warn().Err(err).Str("patient_id", patientID).Msg("could not seed active alerts from store")
		} else {
			for _, a := range alerts {
				if a.Active() {
					ps.active[a.ID] = a
				}
			}
		}
		ps.status = deriveStatus(ps.active)
		ps.updatedAt = l.now().UnixMilli()
	}
	return ps
}

// deriveStatus maps the active set to a patient status: any critical alert
// means emergency, any high alert means warning, otherwise normal.
func deriveStatus(active map[string]*Alert) string {
	status := PatientNormal
	for _, a := range active {
		switch a.Severity {
		case vitals.SeverityCritical:
			return PatientEmergency
		case vitals.SeverityHigh:
			status = PatientWarning
		}
	}
	return status
}

// Create turns a detector candidate into a pending alert. Every valid
// candidate yields exactly one alert and the patient status is recomputed
// before return; a store failure is logged and does not drop the alert.
func (l *Ledger) Create(ctx context.Context, c vitals.Candidate) (*Alert, error) {
	if c.PatientID == "" {
		return nil, fmt.Errorf("patientId is required")
	}
	if c.Type == "" {
		return nil, fmt.Errorf("type is required")
	}
	switch c.Severity {
	case vitals.SeverityCritical, vitals.SeverityHigh, vitals.SeverityWarning:
	default:
		return nil, fmt.Errorf("invalid severity %q", c.Severity)
	}

	ps := l.lockPatient(ctx, c.PatientID)
	defer ps.mu.Unlock()

	a := &Alert{
		ID:        uuid.NewString(),
		PatientID: c.PatientID,
		Type:      c.Type,
		Severity:  c.Severity,
		Status:    StatusPending,
		Message:   c.Message,
		Data:      c.Data,
		CreatedAt: l.now().UnixMilli(),
	}
	ps.active[a.ID] = a
	l.recomputeStatusLocked(ctx, c.PatientID, ps)
	if err := l.repo.Save(ctx, a); err != nil {
		l.log.Error().Err(err).Str("patient_id", a.PatientID).Str("alert_id", a.ID).
			Msg("failed to persist alert")
	}

	l.log.Info().Str("patient_id", a.PatientID).Str("alert_id", a.ID).
		Str("type", a.Type).Str("severity", a.Severity).Msg("alert created")
	return cloneAlert(a), nil
}

// AcceptCandidate satisfies vitals.CandidateSink.
func (l *Ledger) AcceptCandidate(ctx context.Context, c vitals.Candidate) error {
	_, err := l.Create(ctx, c)
	return err
}

// Acknowledge records who is handling the alert. The alert stays active;
// resolved alerts cannot be acknowledged.
func (l *Ledger) Acknowledge(ctx context.Context, patientID, alertID, userID string) (*Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("userId is required")
	}
	ps := l.lockPatient(ctx, patientID)
	defer ps.mu.Unlock()

	a, err := l.findLocked(ctx, ps, patientID, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusResolved {
		return nil, fmt.Errorf("alert %s is already resolved", alertID)
	}
	a.Status = StatusAcknowledged
	a.AcknowledgedBy = userID
	a.AcknowledgedAt = l.now().UnixMilli()
	ps.active[a.ID] = a
	if err := l.repo.Save(ctx, a); err != nil {
		l.log.Error().Err(err).Str("alert_id", alertID).Msg("failed to persist acknowledgment")
	}
	return cloneAlert(a), nil
}

// Resolve retires an alert and recomputes the patient status. Resolving an
// already resolved alert is a no-op.
func (l *Ledger) Resolve(ctx context.Context, patientID, alertID string) (*Alert, error) {
	ps := l.lockPatient(ctx, patientID)
	defer ps.mu.Unlock()

	a, err := l.findLocked(ctx, ps, patientID, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusResolved {
		return cloneAlert(a), nil
	}
	a.Status = StatusResolved
	a.ResolvedAt = l.now().UnixMilli()
	delete(ps.active, alertID)
	l.recomputeStatusLocked(ctx, patientID, ps)
	if err := l.repo.Save(ctx, a); err != nil {
		l.log.Error().Err(err).Str("alert_id", alertID).Msg("failed to persist resolution")
	}

	l.log.Info().Str("patient_id", patientID).Str("alert_id", alertID).Msg("alert resolved")
	return cloneAlert(a), nil
}

// findLocked resolves an alert from the active set first, falling back to
// the store for resolved history. Callers hold ps.mu.
func (l *Ledger) findLocked(ctx context.Context, ps *patientState, patientID, alertID string) (*Alert, error) {
	if a, ok := ps.active[alertID]; ok {
		return a, nil
	}
	return l.repo.Get(ctx, patientID, alertID)
}

// Get returns one alert.
func (l *Ledger) Get(ctx context.Context, patientID, alertID string) (*Alert, error) {
	l.mu.Lock()
	ps, ok := l.patients[patientID]
	l.mu.Unlock()
	if ok {
		ps.mu.Lock()
		a, found := ps.active[alertID]
		if found {
			cp := cloneAlert(a)
			ps.mu.Unlock()
			return cp, nil
		}
		ps.mu.Unlock()
	}
	return l.repo.Get(ctx, patientID, alertID)
}

// List returns a patient's alerts, newest first, optionally filtered by
// status and severity. The active set overlays the persisted history, so
// live alerts are listed even when the store is unavailable.
func (l *Ledger) List(ctx context.Context, patientID, status, severity string, limit int) ([]*Alert, error) {
	byID := make(map[string]*Alert)
	persisted, err := l.repo.ListByPatient(ctx, patientID)
	if err != nil {
		l.log.Warn().Err(err).Str("patient_id", patientID).Msg("store unavailable, listing active set only")
	}
	for _, a := range persisted {
		byID[a.ID] = a
	}

	l.mu.Lock()
	ps, ok := l.patients[patientID]
	l.mu.Unlock()
	if ok {
		ps.mu.Lock()
		for id, a := range ps.active {
			byID[id] = cloneAlert(a)
		}
		ps.mu.Unlock()
	}

	filtered := make([]*Alert, 0, len(byID))
	for _, a := range byID {
		if status != "" && a.Status != status {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		filtered = append(filtered, a)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt > filtered[j].CreatedAt })
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// PatientStatus returns the derived status. The in-memory value is used once
// the patient has state; otherwise the persisted mirror (normal when nothing
// is recorded).
func (l *Ledger) PatientStatus(ctx context.Context, patientID string) (*PatientStatusDoc, error) {
	l.mu.Lock()
	ps, ok := l.patients[patientID]
	l.mu.Unlock()
	if ok {
		ps.mu.Lock()
		hydrated, status, updatedAt := ps.hydrated, ps.status, ps.updatedAt
		ps.mu.Unlock()
		if hydrated {
			return &PatientStatusDoc{PatientID: patientID, Status: status, UpdatedAt: updatedAt}, nil
		}
	}
	return l.repo.GetPatientStatus(ctx, patientID)
}

// MarkNotified records which notification channels were used for an alert.
func (l *Ledger) MarkNotified(ctx context.Context, patientID, alertID string, sent NotificationsSent) error {
	ps := l.lockPatient(ctx, patientID)
	defer ps.mu.Unlock()

	a, err := l.findLocked(ctx, ps, patientID, alertID)
	if err != nil {
		return err
	}
	a.NotificationsSent = sent
	return l.repo.Save(ctx, a)
}

// Stats aggregates a patient's persisted alerts over "24h", "7d", or "30d".
func (l *Ledger) Stats(ctx context.Context, patientID, period string) (*Statistics, error) {
	var d time.Duration
	switch period {
	case "24h":
		d = 24 * time.Hour
	case "7d":
		d = 7 * 24 * time.Hour
	case "30d":
		d = 30 * 24 * time.Hour
	default:
		return nil, fmt.Errorf("invalid period %q (want 24h, 7d, or 30d)", period)
	}
	cutoff := l.now().Add(-d).UnixMilli()

	alerts, err := l.List(ctx, patientID, "", "", 0)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		PatientID:  patientID,
		Period:     period,
		ByType:     map[string]int{},
		BySeverity: map[string]int{},
		ByStatus:   map[string]int{},
	}
	var respSum float64
	var respCount int
	for _, a := range alerts {
		if a.CreatedAt < cutoff {
			continue
		}
		stats.Total++
		stats.ByType[a.Type]++
		stats.BySeverity[a.Severity]++
		stats.ByStatus[a.Status]++
		if a.AcknowledgedAt > 0 {
			respSum += float64(a.AcknowledgedAt-a.CreatedAt) / 1000
			respCount++
		}
	}
	if respCount > 0 {
		stats.AverageResponseTime = respSum / float64(respCount)
	}
	return stats, nil
}

// recomputeStatusLocked re-derives the status from the active set and
// mirrors it to the store best-effort. Callers hold ps.mu.
func (l *Ledger) recomputeStatusLocked(ctx context.Context, patientID string, ps *patientState) {
	ps.status = deriveStatus(ps.active)
	ps.updatedAt = l.now().UnixMilli()
	doc := PatientStatusDoc{PatientID: patientID, Status: ps.status, UpdatedAt: ps.updatedAt}
	if err := l.repo.SavePatientStatus(ctx, doc); err != nil {
		l.log.Error().Err(err).Str("patient_id", patientID).Msg("failed to persist patient status")
	}
}

func cloneAlert(a *Alert) *Alert {
	cp := *a
	return &cp
}
