package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/carewatch/carewatch/internal/platform/store"
)

// ErrAlertNotFound is returned when an alert id does not exist for a patient.
var ErrAlertNotFound = errors.New("alert not found")

// Repository persists alerts and the derived patient status.
type Repository interface {
	Save(ctx context.Context, a *Alert) error
	Get(ctx context.Context, patientID, alertID string) (*Alert, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Alert, error)
	SavePatientStatus(ctx context.Context, doc PatientStatusDoc) error
	GetPatientStatus(ctx context.Context, patientID string) (*PatientStatusDoc, error)
}

// storeRepository keeps alerts under alerts/{patientId}/{alertId} and the
// status mirror under patients/{patientId}/status.
type storeRepository struct {
	store store.Store
}

// NewStoreRepository creates a Repository backed by the document store.
func NewStoreRepository(s store.Store) Repository {
	return &storeRepository{store: s}
}

func alertPath(patientID, alertID string) string {
	return fmt.Sprintf("alerts/%s/%s", patientID, alertID)
}

func statusPath(patientID string) string {
	return fmt.Sprintf("patients/%s/status", patientID)
}

func (r *storeRepository) Save(ctx context.Context, a *Alert) error {
	return r.store.Put(ctx, alertPath(a.PatientID, a.ID), a)
}

func (r *storeRepository) Get(ctx context.Context, patientID, alertID string) (*Alert, error) {
	var a Alert
	err := r.store.Get(ctx, alertPath(patientID, alertID), &a)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *storeRepository) ListByPatient(ctx context.Context, patientID string) ([]*Alert, error) {
	entries, err := r.store.List(ctx, "alerts/"+patientID+"/", store.ListOptions{})
	if err != nil {
		return nil, err
	}
	alerts := make([]*Alert, 0, len(entries))
	for _, e := range entries {
		var a Alert
		if err := json.Unmarshal(e.Value, &a); err != nil {
			return nil, fmt.Errorf("decode alert %s: %w", e.Path, err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, nil
}

func (r *storeRepository) SavePatientStatus(ctx context.Context, doc PatientStatusDoc) error {
	return r.store.Put(ctx, statusPath(doc.PatientID), doc)
}

func (r *storeRepository) GetPatientStatus(ctx context.Context, patientID string) (*PatientStatusDoc, error) {
	var doc PatientStatusDoc
	err := r.store.Get(ctx, statusPath(patientID), &doc)
	if errors.Is(err, store.ErrNotFound) {
		return &PatientStatusDoc{PatientID: patientID, Status: PatientNormal}, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
