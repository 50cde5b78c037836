package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider error codes that mean the token is permanently dead.
var invalidTokenCodes = []string{
	"invalid-registration-token",
	"registration-token-not-registered",
}

// HTTPPushSender delivers push messages to an FCM-style HTTP endpoint.
type HTTPPushSender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// HTTPPushOption configures an HTTPPushSender.
type HTTPPushOption func(*HTTPPushSender)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) HTTPPushOption {
	return func(s *HTTPPushSender) { s.client = c }
}

// NewHTTPPushSender creates a push sender for the given provider endpoint.
func NewHTTPPushSender(endpoint, apiKey string, opts ...HTTPPushOption) *HTTPPushSender {
	s := &HTTPPushSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type pushRequest struct {
	To           string            `json:"to"`
	Notification pushNotification  `json:"notification"`
	Priority     string            `json:"priority,omitempty"`
	Android      *pushAndroid      `json:"android,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type pushAndroid struct {
	Priority  string `json:"priority,omitempty"`
	Sound     string `json:"sound,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
}

func (s *HTTPPushSender) SendPush(ctx context.Context, msg PushMessage) error {
	body := pushRequest{
		To:           msg.Token,
		Notification: pushNotification{Title: msg.Title, Body: msg.Body},
		Priority:     msg.Priority,
		Data:         msg.Data,
	}
	if msg.Sound != "" || msg.ChannelID != "" {
		body.Android = &pushAndroid{Priority: msg.Priority, Sound: msg.Sound, ChannelID: msg.ChannelID}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("%w: provider returned %d", ErrInvalidToken, resp.StatusCode)
	}
	for _, code := range invalidTokenCodes {
		if strings.Contains(string(respBody), code) {
			return fmt.Errorf("%w: %s", ErrInvalidToken, code)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push provider returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
