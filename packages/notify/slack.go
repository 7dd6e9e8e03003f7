package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhook
	channel   string
	username  string
	iconEmoji string
}

// SlackOption is a functional option for SlackNotifier
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the Slack channel
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

// WithSlackUsername sets the Slack bot username
func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhook:   newWebhook(webhookURL),
		username:  "flowspec",
		iconEmoji: ":test_tube:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notify sends a notification to Slack
func (s *SlackNotifier) Notify(ctx context.Context, summary *Summary) error {
	return s.post(ctx, "slack", s.message(summary), 200)
}

func (s *SlackNotifier) message(summary *Summary) slackMessage {
	color, emoji := "good", ":white_check_mark:"
	switch {
	case !summary.Passed():
		color, emoji = "danger", ":x:"
	case summary.IsRecovery:
		emoji = ":tada:"
	}

	fields := []slackField{
		{Title: "Scenarios", Value: fmt.Sprintf("%d", summary.Scenarios), Short: true},
		{Title: "Steps passed", Value: fmt.Sprintf("%d/%d", summary.Steps.Passed, summary.Steps.Total), Short: true},
		{Title: "Steps failed", Value: fmt.Sprintf("%d", summary.Steps.Failed+summary.Steps.Error), Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
	}

	var text strings.Builder
	if len(summary.Failures) > 0 {
		text.WriteString("*Failed scenarios:*\n")
		for _, f := range summary.Failures {
			fmt.Fprintf(&text, "• `%s`", f.Scenario)
			if f.File != "" {
				fmt.Fprintf(&text, " (%s)", f.File)
			}
			text.WriteString("\n")
			for _, step := range f.Steps {
				fmt.Fprintf(&text, "  - %s\n", step)
			}
		}
	}

	return slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  emoji + " " + headline(summary),
			Text:   text.String(),
			Fields: fields,
			Footer: "flowspec",
			TS:     time.Now().Unix(),
		}},
	}
}
