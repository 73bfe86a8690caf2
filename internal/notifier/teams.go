package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/evtxhunter/evtxhunter/internal/detect"
)

// TeamsConfig holds Microsoft Teams webhook configuration.
type TeamsConfig struct {
	WebhookURL string // Teams incoming webhook URL
}

// Validate validates the Teams configuration.
func (c *TeamsConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// TeamsNotifier sends alerts to Microsoft Teams via webhook.
type TeamsNotifier struct {
	config     TeamsConfig
	httpClient *http.Client
}

// NewTeamsNotifier creates a new Teams notifier.
func NewTeamsNotifier(config TeamsConfig) (*TeamsNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid teams config: %w", err)
	}

	return &TeamsNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns "teams".
func (t *TeamsNotifier) Name() string {
	return "teams"
}

// Send sends an alert to Microsoft Teams.
func (t *TeamsNotifier) Send(ctx context.Context, row *detect.AlertRow) error {
	payload := t.buildPayload(row)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("teams API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close is a no-op for Teams notifier.
func (t *TeamsNotifier) Close() error {
	return nil
}

// teamsMessage represents the Teams webhook payload with Adaptive Card.
type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

// teamsAttachment represents an attachment in the Teams message.
type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

// adaptiveCard represents a Microsoft Adaptive Card.
type adaptiveCard struct {
	Schema  string        `json:"$schema"`
	Type    string        `json:"type"`
	Version string        `json:"version"`
	Body    []interface{} `json:"body"`
}

// Adaptive Card element types
type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type factSet struct {
	Type  string `json:"type"`
	Facts []fact `json:"facts"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type container struct {
	Type  string        `json:"type"`
	Style string        `json:"style,omitempty"`
	Items []interface{} `json:"items"`
}

// buildPayload builds the Teams Adaptive Card message payload.
func (t *TeamsNotifier) buildPayload(row *detect.AlertRow) teamsMessage {
	timestamp := row.Timestamp.Format("2006-01-02 15:04:05 MST")
	emoji := severityEmoji(row.RuleLevel)
	color := teamsSeverityStyle(row.RuleLevel)

	body := []interface{}{}

	headerContainer := container{
		Type:  "Container",
		Style: color,
		Items: []interface{}{
			textBlock{
				Type:   "TextBlock",
				Text:   fmt.Sprintf("%s evtxhunter Alert: %s", emoji, row.RuleTitle),
				Size:   "Large",
				Weight: "Bolder",
				Wrap:   true,
			},
		},
	}
	body = append(body, headerContainer)

	facts := []fact{
		{Title: "Level", Value: fmt.Sprintf("%s %s", emoji, strings.ToUpper(row.RuleLevel))},
		{Title: "Time", Value: timestamp},
		{Title: "Channel", Value: orDash(row.Channel)},
		{Title: "Computer", Value: orDash(row.Computer)},
	}

	body = append(body,
		factSet{
			Type:  "FactSet",
			Facts: facts,
		},
		textBlock{
			Type: "TextBlock",
			Text: fmt.Sprintf("**Details:** %s", row.Details),
			Wrap: true,
		},
	)

	if row.IsAggregate {
		body = append(body, textBlock{
			Type:  "TextBlock",
			Text:  "_Aggregate match across a time window_",
			Wrap:  true,
			Color: "light",
		})
	}

	body = append(body, textBlock{
		Type:  "TextBlock",
		Text:  fmt.Sprintf("_Rule: %s_", row.RuleID),
		Wrap:  true,
		Color: "light",
	})

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				ContentURL:  nil,
				Content: adaptiveCard{
					Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body:    body,
				},
			},
		},
	}
}

// teamsSeverityStyle returns an Adaptive Card container style for a rule level.
func teamsSeverityStyle(level string) string {
	switch level {
	case "critical":
		return "attention" // red
	case "high":
		return "warning" // orange/yellow
	case "medium":
		return "accent" // blue
	case "low":
		return "good" // green
	default:
		return "default"
	}
}
