package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureServer records the last request body and headers it received.
type captureServer struct {
	*httptest.Server
	mu      sync.Mutex
	body    []byte
	headers http.Header
	method  string
}

func newCaptureServer(t *testing.T, status int) *captureServer {
	t.Helper()
	cs := &captureServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.body = body
		cs.headers = r.Header.Clone()
		cs.method = r.Method
		cs.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *captureServer) decode(t *testing.T, v any) {
	t.Helper()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	require.NoError(t, json.Unmarshal(cs.body, v))
}

func (cs *captureServer) header(name string) string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.headers.Get(name)
}

func (cs *captureServer) requestMethod() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.method
}

func partialEvent() Event {
	return Event{
		Type:      EventUpdatePartial,
		RunID:     "3f2a9c1e",
		Total:     3,
		Succeeded: 1,
		Failed:    2,
		Timestamp: time.Date(2026, 6, 15, 14, 30, 0, 0, time.UTC),
		Details: map[string]string{
			"/srv/b": "conflict; resolve manually",
			"/srv/a": "uncommitted changes",
		},
	}
}

// =============================================================================
// Webhook
// =============================================================================

func TestNewWebhookNotifier(t *testing.T) {
	headers := map[string]string{"Authorization": "Bearer token123"}
	notifier := NewWebhookNotifier("https://example.com/webhook", headers)

	require.NotNil(t, notifier)
	assert.Equal(t, "https://example.com/webhook", notifier.url)
	assert.Equal(t, headers, notifier.headers)
	assert.NotNil(t, notifier.client)
	assert.Equal(t, "webhook", notifier.Name())
}

func TestWebhookNotifier_Send(t *testing.T) {
	t.Run("creates correct payload", func(t *testing.T) {
		server := newCaptureServer(t, http.StatusOK)
		notifier := NewWebhookNotifier(server.URL, nil)

		require.NoError(t, notifier.Send(context.Background(), partialEvent()))

		var payload WebhookPayload
		server.decode(t, &payload)
		assert.Equal(t, "update_partial", payload.Type)
		assert.Equal(t, "3f2a9c1e", payload.RunID)
		assert.Equal(t, 3, payload.Total)
		assert.Equal(t, 1, payload.Succeeded)
		assert.Equal(t, 2, payload.Failed)
		assert.Equal(t, "2026-06-15T14:30:00Z", payload.Timestamp)
		assert.Equal(t, "conflict; resolve manually", payload.Details["/srv/b"])
		assert.Equal(t, "⚠️ 2 of 3 repositories need attention", payload.Message)
		assert.Equal(t, "application/json", server.header("Content-Type"))
		assert.Equal(t, http.MethodPost, server.requestMethod())
	})

	t.Run("includes custom headers", func(t *testing.T) {
		server := newCaptureServer(t, http.StatusOK)
		notifier := NewWebhookNotifier(server.URL, map[string]string{
			"Authorization": "Bearer my-secret-token",
			"X-Request-ID":  "req-12345",
		})

		require.NoError(t, notifier.Send(context.Background(), Event{Type: EventUpdateSucceeded, Timestamp: time.Now()}))

		assert.Equal(t, "Bearer my-secret-token", server.header("Authorization"))
		assert.Equal(t, "req-12345", server.header("X-Request-ID"))
		assert.Equal(t, "application/json", server.header("Content-Type"))
	})

	t.Run("handles successful response codes", func(t *testing.T) {
		for _, code := range []int{200, 201, 202, 204} {
			t.Run(http.StatusText(code), func(t *testing.T) {
				server := newCaptureServer(t, code)
				notifier := NewWebhookNotifier(server.URL, nil)
				assert.NoError(t, notifier.Send(context.Background(), Event{Type: EventUpdateSucceeded, Timestamp: time.Now()}))
			})
		}
	})

	t.Run("returns error on client error response", func(t *testing.T) {
		server := newCaptureServer(t, http.StatusBadRequest)
		notifier := NewWebhookNotifier(server.URL, nil)

		err := notifier.Send(context.Background(), Event{Type: EventUpdateSucceeded, Timestamp: time.Now()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// Non-routable address; the request never leaves.
		notifier := NewWebhookNotifier("http://192.0.2.1:12345/test", nil)

		err := notifier.Send(ctx, Event{Type: EventUpdateSucceeded, Timestamp: time.Now()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "context canceled")
	})

	t.Run("omits empty details", func(t *testing.T) {
		server := newCaptureServer(t, http.StatusOK)
		notifier := NewWebhookNotifier(server.URL, nil)

		require.NoError(t, notifier.Send(context.Background(), Event{Type: EventUpdateSucceeded, Timestamp: time.Now()}))

		var raw map[string]any
		server.decode(t, &raw)
		assert.NotContains(t, raw, "details")
		assert.NotContains(t, raw, "run_id")
	})
}

func TestWebhookNotifier_Close(t *testing.T) {
	notifier := NewWebhookNotifier("https://example.com/webhook", nil)
	assert.NoError(t, notifier.Close())
	assert.NoError(t, notifier.Close())
}

// =============================================================================
// Slack
// =============================================================================

func TestSlackNotifier_Send(t *testing.T) {
	server := newCaptureServer(t, http.StatusOK)
	notifier := NewSlackNotifier(server.URL, "#ops", "")

	require.NoError(t, notifier.Send(context.Background(), partialEvent()))

	var msg SlackMessage
	server.decode(t, &msg)
	assert.Equal(t, "#ops", msg.Channel)
	assert.Equal(t, "gitup", msg.Username)
	require.Len(t, msg.Attachments, 1)

	attachment := msg.Attachments[0]
	assert.Equal(t, SlackColorDanger, attachment.Color)
	assert.Equal(t, "⚠️ Update Needs Attention", attachment.Title)

	var titles []string
	for _, f := range attachment.Fields {
		titles = append(titles, f.Title)
	}
	assert.Equal(t, []string{"Repositories", "Failed", "Run", "/srv/a", "/srv/b"}, titles)
}

func TestSlackNotifier_Colors(t *testing.T) {
	s := NewSlackNotifier("https://example.com", "", "bot")
	assert.Equal(t, "bot", s.username)
	assert.Equal(t, SlackColorGood, s.getColor(Event{Type: EventUpdateSucceeded}))
	assert.Equal(t, SlackColorWarning, s.getColor(Event{Type: EventUpdateStopped}))
	assert.Equal(t, "", s.getColor(Event{Type: "other"}))
}

// =============================================================================
// Discord
// =============================================================================

func TestDiscordNotifier_Send(t *testing.T) {
	server := newCaptureServer(t, http.StatusNoContent)
	notifier := NewDiscordNotifier(server.URL, "")

	require.NoError(t, notifier.Send(context.Background(), partialEvent()))

	var msg DiscordMessage
	server.decode(t, &msg)
	assert.Equal(t, "gitup", msg.Username)
	require.Len(t, msg.Embeds, 1)

	embed := msg.Embeds[0]
	assert.Equal(t, ColorRed, embed.Color)
	assert.Equal(t, "2026-06-15T14:30:00Z", embed.Timestamp)
	assert.Equal(t, "⚠️ 2 of 3 repositories need attention", embed.Description)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "gitup", embed.Footer.Text)
	assert.Len(t, embed.Fields, 5)
}

func TestDiscordNotifier_CapsFields(t *testing.T) {
	details := make(map[string]string)
	for i := 0; i < 40; i++ {
		details[string(rune('a'+i%26))+string(rune('0'+i/26))] = "dirty"
	}

	d := NewDiscordNotifier("https://example.com", "")
	embed := d.createEmbed(Event{Type: EventUpdatePartial, Details: details})
	assert.Len(t, embed.Fields, maxDiscordFields)
}

func TestDiscordNotifier_ReturnsStatusError(t *testing.T) {
	server := newCaptureServer(t, http.StatusForbidden)
	notifier := NewDiscordNotifier(server.URL, "")

	err := notifier.Send(context.Background(), partialEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Discord returned status 403")
}

// TestNotifiers_ImplementInterface verifies the interface contract.
func TestNotifiers_ImplementInterface(t *testing.T) {
	var _ Notifier = (*WebhookNotifier)(nil)
	var _ Notifier = (*SlackNotifier)(nil)
	var _ Notifier = (*DiscordNotifier)(nil)
}
