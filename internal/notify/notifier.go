// Package notify provides notification backends for gitup run summaries.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Event represents a notification event.
type Event struct {
	Type      EventType
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Message   string
	Timestamp time.Time
	// Details maps repository paths to their outcome when it was not a success.
	Details map[string]string
}

// EventType represents the type of notification event.
type EventType string

const (
	EventUpdateSucceeded EventType = "update_succeeded"
	EventUpdatePartial   EventType = "update_partial"
	EventUpdateStopped   EventType = "update_stopped"
)

// Notifier is the interface for notification backends.
type Notifier interface {
	// Name returns the name of the notifier.
	Name() string

	// Send sends a notification event.
	Send(ctx context.Context, event Event) error

	// Close cleans up any resources.
	Close() error
}

// Config holds the endpoints of the configured backends.
// Empty URLs leave the backend disabled.
type Config struct {
	WebhookURL     string
	SlackWebhook   string
	SlackChannel   string
	DiscordWebhook string
}

// Manager manages multiple notification backends.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
	}
}

// NewManagerFromConfig registers a backend for every endpoint set in cfg.
func NewManagerFromConfig(cfg Config) *Manager {
	m := NewManager()
	if cfg.WebhookURL != "" {
		m.Register(NewWebhookNotifier(cfg.WebhookURL, nil))
	}
	if cfg.SlackWebhook != "" {
		m.Register(NewSlackNotifier(cfg.SlackWebhook, cfg.SlackChannel, ""))
	}
	if cfg.DiscordWebhook != "" {
		m.Register(NewDiscordNotifier(cfg.DiscordWebhook, ""))
	}
	return m
}

// NewRunEvent builds the event summarizing one batch run.
// failures maps each unsuccessful repository to a description of its outcome.
func NewRunEvent(runID string, total int, failures map[string]string, stopped bool) Event {
	event := Event{
		Type:      EventUpdateSucceeded,
		RunID:     runID,
		Total:     total,
		Failed:    len(failures),
		Succeeded: total - len(failures),
		Details:   failures,
	}
	switch {
	case stopped:
		event.Type = EventUpdateStopped
	case len(failures) > 0:
		event.Type = EventUpdatePartial
	}
	return event
}

// Register adds a notifier to the manager.
func (m *Manager) Register(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Notify sends an event to all registered notifiers.
func (m *Manager) Notify(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, n := range m.notifiers {
		wg.Add(1)
		go func(notifier Notifier) {
			defer wg.Done()
			if err := notifier.Send(ctx, event); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
				mu.Unlock()
			}
		}(n)
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}
	return nil
}

// Close closes all registered notifiers.
func (m *Manager) Close() error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// Count returns the number of registered notifiers.
func (m *Manager) Count() int {
	return len(m.notifiers)
}

// FormatMessage creates a human-readable message from an event.
func FormatMessage(event Event) string {
	switch event.Type {
	case EventUpdateSucceeded:
		return fmt.Sprintf("✅ Updated %d repositories", event.Total)
	case EventUpdatePartial:
		return fmt.Sprintf("⚠️ %d of %d repositories need attention", event.Failed, event.Total)
	case EventUpdateStopped:
		return fmt.Sprintf("⏹️ Update stopped; %d of %d repositories updated", event.Succeeded, event.Total)
	default:
		return fmt.Sprintf("[%s] %s", event.Type, event.Message)
	}
}

// GetEventTitle returns a human-readable title for an event type.
func GetEventTitle(event Event) string {
	switch event.Type {
	case EventUpdateSucceeded:
		return "✅ Update Succeeded"
	case EventUpdatePartial:
		return "⚠️ Update Needs Attention"
	case EventUpdateStopped:
		return "⏹️ Update Stopped"
	default:
		return string(event.Type)
	}
}

// sortedDetailKeys returns the event's detail keys in a stable order.
func sortedDetailKeys(event Event) []string {
	keys := make([]string, 0, len(event.Details))
	for k := range event.Details {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// postJSON marshals payload and POSTs it to url, retrying server errors.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	newRequest := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	}

	return retryableSend(ctx, client, newRequest, 2)
}

// retryableSend executes an HTTP request with retry logic for transient failures.
// Each attempt gets a fresh request so the body is never reused.
func retryableSend(ctx context.Context, client *http.Client, newRequest func() (*http.Request, error), maxRetries int) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			}
		}

		req, err := newRequest()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		// Don't retry client errors (4xx), only server errors (5xx)
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
