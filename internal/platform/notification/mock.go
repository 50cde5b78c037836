package notification

import (
	"context"
	"sync"
)

// MockPushSender records push deliveries and fails on configured tokens.
// Used by tests across packages.
type MockPushSender struct {
	mu    sync.Mutex
	calls []PushMessage
	// FailWith maps a token to the error its delivery should return.
	FailWith map[string]error
}

func NewMockPushSender() *MockPushSender {
	return &MockPushSender{FailWith: make(map[string]error)}
}

func (m *MockPushSender) SendPush(_ context.Context, msg PushMessage) error {
	m.mu.Lock()
	m.calls = append(m.calls, msg)
	m.mu.Unlock()
	if err, ok := m.FailWith[msg.Token]; ok {
		return err
	}
	return nil
}

// Calls returns a copy of the recorded deliveries.
func (m *MockPushSender) Calls() []PushMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushMessage, len(m.calls))
	copy(out, m.calls)
	return out
}

// MockEmailSender records email deliveries.
type MockEmailSender struct {
	mu    sync.Mutex
	calls []MockEmailCall
	Err   error
}

// MockEmailCall is one recorded email delivery.
type MockEmailCall struct {
	To      string
	Subject string
	Body    string
}

func NewMockEmailSender() *MockEmailSender {
	return &MockEmailSender{}
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	m.calls = append(m.calls, MockEmailCall{To: to, Subject: subject, Body: body})
	m.mu.Unlock()
	return m.Err
}

// Calls returns a copy of the recorded deliveries.
func (m *MockEmailSender) Calls() []MockEmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockEmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
