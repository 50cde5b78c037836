package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carewatch/carewatch/internal/platform/store"
)

// ErrNotificationNotFound is returned when a notification id does not exist.
var ErrNotificationNotFound = errors.New("notification not found")

// Service manages guardian links, device tokens, and the notification
// read model through the document store.
type Service struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewService creates a patient service.
func NewService(s store.Store, log zerolog.Logger) *Service {
	return &Service{store: s, log: log, now: time.Now}
}

// tokenKey derives a store key from a device token. Tokens can be long and
// contain path separators, so the key is a sanitized prefix.
func tokenKey(token string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, token)
	if len(cleaned) > 20 {
		cleaned = cleaned[:20]
	}
	return cleaned
}

func guardianPath(patientID, guardianID string) string {
	return fmt.Sprintf("guardians/%s/%s", patientID, guardianID)
}

func pushTokenPath(guardianID, token string) string {
	return fmt.Sprintf("users/%s/tokens/%s", guardianID, tokenKey(token))
}

func notificationPath(guardianID, id string) string {
	return fmt.Sprintf("notifications/%s/%s", guardianID, id)
}

// AddGuardian links a guardian to a patient.
func (s *Service) AddGuardian(ctx context.Context, g *Guardian) error {
	if g.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if g.Name == "" {
		return fmt.Errorf("name is required")
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = s.now().UnixMilli()
	return s.store.Put(ctx, guardianPath(g.PatientID, g.ID), g)
}

// RemoveGuardian unlinks a guardian from a patient.
func (s *Service) RemoveGuardian(ctx context.Context, patientID, guardianID string) error {
	return s.store.Delete(ctx, guardianPath(patientID, guardianID))
}

// Guardians returns every guardian linked to a patient.
func (s *Service) Guardians(ctx context.Context, patientID string) ([]Guardian, error) {
	entries, err := s.store.List(ctx, "guardians/"+patientID+"/", store.ListOptions{})
	if err != nil {
		return nil, err
	}
	guardians := make([]Guardian, 0, len(entries))
	for _, e := range entries {
		var g Guardian
		if err := json.Unmarshal(e.Value, &g); err != nil {
			return nil, fmt.Errorf("decode guardian %s: %w", e.Path, err)
		}
		guardians = append(guardians, g)
	}
	return guardians, nil
}

// RegisterToken stores a device token for a guardian. Re-registering the
// same token refreshes its timestamp.
func (s *Service) RegisterToken(ctx context.Context, guardianID, token, platform string) error {
	if guardianID == "" {
		return fmt.Errorf("guardianId is required")
	}
	if token == "" {
		return fmt.Errorf("token is required")
	}
	pt := PushToken{Token: token, Platform: platform, RegisteredAt: s.now().UnixMilli()}
	return s.store.Put(ctx, pushTokenPath(guardianID, token), pt)
}

// UnregisterToken removes a device token. Also used by the dispatcher to
// prune tokens the provider reports as invalid.
func (s *Service) UnregisterToken(ctx context.Context, guardianID, token string) error {
	return s.store.Delete(ctx, pushTokenPath(guardianID, token))
}

// Tokens returns a guardian's registered device tokens.
func (s *Service) Tokens(ctx context.Context, guardianID string) ([]string, error) {
	entries, err := s.store.List(ctx, "users/"+guardianID+"/tokens/", store.ListOptions{})
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(entries))
	for _, e := range entries {
		var pt PushToken
		if err := json.Unmarshal(e.Value, &pt); err != nil {
			return nil, fmt.Errorf("decode token %s: %w", e.Path, err)
		}
		tokens = append(tokens, pt.Token)
	}
	return tokens, nil
}

// SaveEvent records a patient event such as a manual check-in.
func (s *Service) SaveEvent(ctx context.Context, e *Event) error {
	if e.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp == 0 {
		e.Timestamp = s.now().UnixMilli()
	}
	return s.store.Put(ctx, fmt.Sprintf("events/%s/%013d-%s", e.PatientID, e.Timestamp, e.ID), e)
}

// Events returns a patient's events, newest first.
func (s *Service) Events(ctx context.Context, patientID string, limit int) ([]Event, error) {
	entries, err := s.store.List(ctx, "events/"+patientID+"/", store.ListOptions{
		Limit:      limit,
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(entries))
	for _, e := range entries {
		var ev Event
		if err := json.Unmarshal(e.Value, &ev); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", e.Path, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// SaveNotification records a delivered notification for later review.
func (s *Service) SaveNotification(ctx context.Context, n *Notification) error {
	if n.GuardianID == "" {
		return fmt.Errorf("guardianId is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = s.now().UnixMilli()
	}
	return s.store.Put(ctx, notificationPath(n.GuardianID, n.ID), n)
}

// Notifications returns a guardian's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, guardianID string, limit int) ([]Notification, error) {
	entries, err := s.store.List(ctx, "notifications/"+guardianID+"/", store.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(entries))
	for _, e := range entries {
		var n Notification
		if err := json.Unmarshal(e.Value, &n); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", e.Path, err)
		}
		out = append(out, n)
	}
	// Notification ids are random, so sort by time rather than path.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRead flags one notification as read.
func (s *Service) MarkRead(ctx context.Context, guardianID, notificationID string) (*Notification, error) {
	var n Notification
	err := s.store.Get(ctx, notificationPath(guardianID, notificationID), &n)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	n.Read = true
	if err := s.store.Put(ctx, notificationPath(guardianID, notificationID), &n); err != nil {
		return nil, err
	}
	return &n, nil
}
