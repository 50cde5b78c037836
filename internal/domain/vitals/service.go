package vitals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/carewatch/carewatch/internal/platform/store"
)

// ErrNoReadings is returned when a patient has no stored readings.
var ErrNoReadings = errors.New("no readings for patient")

// Statistics summarizes a patient's readings over a period.
type Statistics struct {
	PatientID       string     `json:"patientId"`
	Period          string     `json:"period"`
	Count           int        `json:"count"`
	HeartRate       RangeStats `json:"heartRate"`
	RespiratoryRate RangeStats `json:"respiratoryRate"`
}

// RangeStats holds min/max/avg for one vital over a period.
type RangeStats struct {
	Min int     `json:"min"`
	Max int     `json:"max"`
	Avg float64 `json:"avg"`
}

// Service persists and queries readings through the document store.
type Service struct {
	store store.Store
	log   zerolog.Logger
}

// NewService creates a vitals service.
func NewService(s store.Store, log zerolog.Logger) *Service {
	return &Service{store: s, log: log}
}

// readingPath keys readings by zero-padded millisecond timestamp so that
// lexicographic path order matches time order.
func readingPath(patientID string, ts int64) string {
	return fmt.Sprintf("vitals/%s/%013d", patientID, ts)
}

// SaveReading validates and persists a reading.
func (s *Service) SaveReading(ctx context.Context, r VitalReading) error {
	if r.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("timestamp is required")
	}
	return s.store.Put(ctx, readingPath(r.PatientID, r.Timestamp), r)
}

// History returns up to limit readings for a patient, newest first.
func (s *Service) History(ctx context.Context, patientID string, limit int) ([]VitalReading, error) {
	entries, err := s.store.List(ctx, "vitals/"+patientID+"/", store.ListOptions{
		Limit:      limit,
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	readings := make([]VitalReading, 0, len(entries))
	for _, e := range entries {
		var r VitalReading
		if err := json.Unmarshal(e.Value, &r); err != nil {
			s.log.Warn().Err(err).Str("path", e.Path).Msg("skipping unreadable reading")
			continue
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// Latest returns the most recent reading for a patient.
func (s *Service) Latest(ctx context.Context, patientID string) (*VitalReading, error) {
	readings, err := s.History(ctx, patientID, 1)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, ErrNoReadings
	}
	return &readings[0], nil
}

// Stats computes min/max/avg heart and respiratory rate over a period
// ("24h", "7d", or "30d").
func (s *Service) Stats(ctx context.Context, patientID, period string) (*Statistics, error) {
	cutoff, err := periodCutoff(period, time.Now())
	if err != nil {
		return nil, err
	}
	readings, err := s.History(ctx, patientID, 0)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{PatientID: patientID, Period: period}
	var hrSum, rrSum int
	for _, r := range readings {
		if r.Timestamp < cutoff {
			continue
		}
		if stats.Count == 0 {
			stats.HeartRate = RangeStats{Min: r.HeartRate, Max: r.HeartRate}
			stats.RespiratoryRate = RangeStats{Min: r.RespiratoryRate, Max: r.RespiratoryRate}
		} else {
			stats.HeartRate.Min = min(stats.HeartRate.Min, r.HeartRate)
			stats.HeartRate.Max = max(stats.HeartRate.Max, r.HeartRate)
			stats.RespiratoryRate.Min = min(stats.RespiratoryRate.Min, r.RespiratoryRate)
			stats.RespiratoryRate.Max = max(stats.RespiratoryRate.Max, r.RespiratoryRate)
		}
		hrSum += r.HeartRate
		rrSum += r.RespiratoryRate
		stats.Count++
	}
	if stats.Count > 0 {
		stats.HeartRate.Avg = float64(hrSum) / float64(stats.Count)
		stats.RespiratoryRate.Avg = float64(rrSum) / float64(stats.Count)
	}
	return stats, nil
}

// periodCutoff translates a period name to the earliest included timestamp.
func periodCutoff(period string, now time.Time) (int64, error) {
	var d time.Duration
	switch period {
	case "24h":
		d = 24 * time.Hour
	case "7d":
		d = 7 * 24 * time.Hour
	case "30d":
		d = 30 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid period %q (want 24h, 7d, or 30d)", period)
	}
	return now.Add(-d).UnixMilli(), nil
}
