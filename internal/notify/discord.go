package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// DiscordNotifier sends notifications to Discord via webhooks.
type DiscordNotifier struct {
	webhookURL string
	username   string
	client     *http.Client
}

// DiscordMessage represents a Discord webhook message.
type DiscordMessage struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed.
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
}

// DiscordEmbedField represents a field in a Discord embed.
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordEmbedFooter represents a footer in a Discord embed.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// Discord embed colors.
const (
	ColorGreen  = 0x2ECC71 // Success
	ColorRed    = 0xE74C3C // Error
	ColorYellow = 0xF1C40F // Warning
	ColorBlue   = 0x3498DB // Info
)

// Discord rejects embeds with more than 25 fields.
const maxDiscordFields = 25

// NewDiscordNotifier creates a new Discord notifier.
func NewDiscordNotifier(webhookURL, username string) *DiscordNotifier {
	if username == "" {
		username = "gitup"
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		username:   username,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the notifier name.
func (d *DiscordNotifier) Name() string {
	return "discord"
}

// Send sends a notification to Discord.
func (d *DiscordNotifier) Send(ctx context.Context, event Event) error {
	msg := DiscordMessage{
		Username: d.username,
		Embeds:   []DiscordEmbed{d.createEmbed(event)},
	}

	resp, err := postJSON(ctx, d.client, d.webhookURL, nil, msg)
	if err != nil {
		return fmt.Errorf("failed to send to Discord: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Discord returned status %d", resp.StatusCode)
	}

	return nil
}

// Close cleans up resources.
func (d *DiscordNotifier) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

func (d *DiscordNotifier) createEmbed(event Event) DiscordEmbed {
	embed := DiscordEmbed{
		Title:       GetEventTitle(event),
		Description: FormatMessage(event),
		Color:       d.getColor(event),
		Timestamp:   event.Timestamp.Format(time.RFC3339),
		Footer: &DiscordEmbedFooter{
			Text: "gitup",
		},
	}

	fields := []DiscordEmbedField{
		{Name: "Repositories", Value: strconv.Itoa(event.Total), Inline: true},
		{Name: "Failed", Value: strconv.Itoa(event.Failed), Inline: true},
	}

	if event.RunID != "" {
		fields = append(fields, DiscordEmbedField{Name: "Run", Value: event.RunID, Inline: true})
	}

	for _, path := range sortedDetailKeys(event) {
		if len(fields) == maxDiscordFields {
			break
		}
		fields = append(fields, DiscordEmbedField{
			Name:  path,
			Value: event.Details[path],
		})
	}

	embed.Fields = fields
	return embed
}

func (d *DiscordNotifier) getColor(event Event) int {
	switch event.Type {
	case EventUpdateSucceeded:
		return ColorGreen
	case EventUpdatePartial:
		return ColorRed
	case EventUpdateStopped:
		return ColorYellow
	default:
		return ColorBlue
	}
}
