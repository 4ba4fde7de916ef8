package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// SlackNotifier sends notifications to Slack via webhooks.
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	client     *http.Client
}

// SlackMessage represents a Slack webhook message.
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment.
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	Ts     int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment.
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short,omitempty"`
}

// Slack attachment colors.
const (
	SlackColorGood    = "good"    // Green
	SlackColorWarning = "warning" // Yellow
	SlackColorDanger  = "danger"  // Red
)

// NewSlackNotifier creates a new Slack notifier.
func NewSlackNotifier(webhookURL, channel, username string) *SlackNotifier {
	if username == "" {
		username = "gitup"
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		username:   username,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the notifier name.
func (s *SlackNotifier) Name() string {
	return "slack"
}

// Send sends a notification to Slack.
func (s *SlackNotifier) Send(ctx context.Context, event Event) error {
	msg := SlackMessage{
		Channel:     s.channel,
		Username:    s.username,
		IconEmoji:   ":arrows_counterclockwise:",
		Attachments: []SlackAttachment{s.createAttachment(event)},
	}

	resp, err := postJSON(ctx, s.client, s.webhookURL, nil, msg)
	if err != nil {
		return fmt.Errorf("failed to send to Slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Slack returned status %d", resp.StatusCode)
	}

	return nil
}

// Close cleans up resources.
func (s *SlackNotifier) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *SlackNotifier) createAttachment(event Event) SlackAttachment {
	attachment := SlackAttachment{
		Title:  GetEventTitle(event),
		Text:   FormatMessage(event),
		Color:  s.getColor(event),
		Footer: "gitup",
		Ts:     event.Timestamp.Unix(),
	}

	fields := []SlackField{
		{Title: "Repositories", Value: strconv.Itoa(event.Total), Short: true},
		{Title: "Failed", Value: strconv.Itoa(event.Failed), Short: true},
	}

	if event.RunID != "" {
		fields = append(fields, SlackField{Title: "Run", Value: event.RunID, Short: true})
	}

	for _, path := range sortedDetailKeys(event) {
		fields = append(fields, SlackField{
			Title: path,
			Value: event.Details[path],
		})
	}

	attachment.Fields = fields
	return attachment
}

func (s *SlackNotifier) getColor(event Event) string {
	switch event.Type {
	case EventUpdateSucceeded:
		return SlackColorGood
	case EventUpdatePartial:
		return SlackColorDanger
	case EventUpdateStopped:
		return SlackColorWarning
	default:
		return ""
	}
}
