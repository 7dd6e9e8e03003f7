package notify

import (
	"context"
	"fmt"
	"time"
)

// TeamsNotifier sends notifications to Microsoft Teams via webhook
type TeamsNotifier struct {
	webhook
}

// NewTeamsNotifier creates a new Teams notifier
func NewTeamsNotifier(webhookURL string) *TeamsNotifier {
	return &TeamsNotifier{webhook: newWebhook(webhookURL)}
}

func (t *TeamsNotifier) Name() string {
	return "teams"
}

// teamsMessage wraps one Adaptive Card.
type teamsMessage struct {
	Type        string      `json:"type"`
	Attachments []teamsCard `json:"attachments"`
}

type teamsCard struct {
	ContentType string           `json:"contentType"`
	ContentURL  *string          `json:"contentUrl"`
	Content     teamsCardContent `json:"content"`
}

type teamsCardContent struct {
	Schema  string       `json:"$schema"`
	Type    string       `json:"type"`
	Version string       `json:"version"`
	Body    []teamsBlock `json:"body"`
}

type teamsBlock struct {
	Type      string `json:"type"`
	Size      string `json:"size,omitempty"`
	Weight    string `json:"weight,omitempty"`
	Text      string `json:"text,omitempty"`
	Color     string `json:"color,omitempty"`
	Wrap      bool   `json:"wrap,omitempty"`
	Spacing   string `json:"spacing,omitempty"`
	Separator bool   `json:"separator,omitempty"`
	Facts     []fact `json:"facts,omitempty"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Notify sends a notification to Microsoft Teams
func (t *TeamsNotifier) Notify(ctx context.Context, summary *Summary) error {
	return t.post(ctx, "teams", t.message(summary), 200, 202)
}

func (t *TeamsNotifier) message(summary *Summary) teamsMessage {
	color := "good"
	if !summary.Passed() {
		color = "attention"
	}

	body := []teamsBlock{
		{Type: "TextBlock", Size: "Large", Weight: "Bolder", Text: headline(summary), Color: color},
		{
			Type:      "FactSet",
			Separator: true,
			Spacing:   "Medium",
			Facts: []fact{
				{Title: "Scenarios", Value: fmt.Sprintf("%d", summary.Scenarios)},
				{Title: "Steps passed", Value: fmt.Sprintf("%d/%d", summary.Steps.Passed, summary.Steps.Total)},
				{Title: "Steps skipped", Value: fmt.Sprintf("%d", summary.Steps.Skipped)},
				{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String()},
			},
		},
	}

	for _, f := range summary.Failures {
		body = append(body, teamsBlock{Type: "TextBlock", Text: fmt.Sprintf("**%s**", f.Scenario), Separator: true, Wrap: true})
		for _, step := range f.Steps {
			body = append(body, teamsBlock{Type: "TextBlock", Text: "- " + step, Wrap: true})
		}
	}

	return teamsMessage{
		Type: "message",
		Attachments: []teamsCard{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: teamsCardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.2",
				Body:    body,
			},
		}},
	}
}
