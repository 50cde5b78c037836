package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Recipient is one guardian to notify.
type Recipient struct {
	GuardianID string
	Email      string
}

// Notice is the alert content carried to every channel.
type Notice struct {
	PatientID string
	AlertID   string
	Type      string
	Severity  string
	Title     string
	Body      string
}

// Critical reports whether the notice escalates delivery (email channel,
// high-priority push, emergency sound).
func (n Notice) Critical() bool { return n.Severity == "critical" }

// TokenSource resolves and prunes per-guardian device tokens.
// Satisfied by the patient service.
type TokenSource interface {
	Tokens(ctx context.Context, guardianID string) ([]string, error)
	UnregisterToken(ctx context.Context, guardianID, token string) error
}

// Result aggregates one dispatch across all recipients and channels.
type Result struct {
	Success       int      `json:"success"`
	Failure       int      `json:"failure"`
	InvalidTokens int      `json:"invalidTokens"`
	EmailsSent    int      `json:"emailsSent"`
	Errors        []string `json:"errors,omitempty"`

	mu sync.Mutex
}

func (r *Result) recordError(format string, args ...any) {
	r.mu.Lock()
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

// Dispatcher fans a notice out to every recipient. Each token is delivered
// independently under a bounded timeout; a token the provider rejects as
// invalid is pruned and counted, any other failure is counted as transient.
type Dispatcher struct {
	push    PushSender
	email   EmailSender
	tokens  TokenSource
	timeout time.Duration
	log     zerolog.Logger
}

// NewDispatcher creates a dispatcher. push and email may be nil when the
// corresponding channel is not configured.
func NewDispatcher(push PushSender, email EmailSender, tokens TokenSource, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{push: push, email: email, tokens: tokens, timeout: timeout, log: log}
}

// Dispatch notifies every recipient and returns the aggregate outcome.
// It never returns an error: notification failure must not disturb the
// alerting pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notice, recipients []Recipient) *Result {
	res := &Result{}
	var wg sync.WaitGroup
	for _, rcp := range recipients {
		wg.Add(1)
		go func(rcp Recipient) {
			defer wg.Done()
			d.notifyOne(ctx, n, rcp, res)
		}(rcp)
	}
	wg.Wait()

	d.log.Info().Str("patient_id", n.PatientID).Str("alert_id", n.AlertID).
		Int("success", res.Success).Int("failure", res.Failure).
		Int("invalid_tokens", res.InvalidTokens).Int("emails", res.EmailsSent).
		Msg("notification dispatch finished")
	return res
}

func (d *Dispatcher) notifyOne(ctx context.Context, n Notice, rcp Recipient, res *Result) {
	if d.push != nil {
		d.pushOne(ctx, n, rcp, res)
	}

	if n.Critical() && d.email != nil && rcp.Email != "" {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := d.email.SendEmail(sendCtx, rcp.Email, n.Title, n.Body)
		cancel()
		if err != nil {
			res.mu.Lock()
			res.Failure++
			res.mu.Unlock()
			res.recordError("email to %s: %v", rcp.Email, err)
			return
		}
		res.mu.Lock()
		res.EmailsSent++
		res.mu.Unlock()
	}
}

func (d *Dispatcher) pushOne(ctx context.Context, n Notice, rcp Recipient, res *Result) {
	tokens, err := d.tokens.Tokens(ctx, rcp.GuardianID)
	if err != nil {
		d.log.Error().Err(err).Str("guardian_id", rcp.GuardianID).Msg("failed to load device tokens")
		res.mu.Lock()
		res.Failure++
		res.mu.Unlock()
		res.recordError("tokens for %s: %v", rcp.GuardianID, err)
		return
	}

	msg := PushMessage{
		Title:    n.Title,
		Body:     n.Body,
		Priority: PriorityNormal,
		Data: map[string]string{
			"patientId": n.PatientID,
			"alertId":   n.AlertID,
			"type":      n.Type,
			"severity":  n.Severity,
		},
	}
	if n.Critical() {
		msg.Priority = PriorityHigh
		msg.Sound = EmergencySound
		msg.ChannelID = EmergencyChannel
	}

	for _, token := range tokens {
		msg.Token = token
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := d.push.SendPush(sendCtx, msg)
		cancel()

		switch {
		case err == nil:
			res.mu.Lock()
			res.Success++
			res.mu.Unlock()
		case errors.Is(err, ErrInvalidToken):
			res.mu.Lock()
			res.InvalidTokens++
			res.mu.Unlock()
			if err := d.tokens.UnregisterToken(ctx, rcp.GuardianID, token); err != nil {
				d.log.Error().Err(err).Str("guardian_id", rcp.GuardianID).Msg("failed to prune invalid token")
			}
		default:
			res.mu.Lock()
			res.Failure++
			res.mu.Unlock()
			res.recordError("push to %s: %v", rcp.GuardianID, err)
		}
	}
}
