// Package notify delivers high-urgency ticket alerts to an outbound
// Slack-compatible webhook.
package notify

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/triagekit/triage/go/ticket"
)

// DefaultThreshold is the urgency score above which tickets are notified.
const DefaultThreshold = 0.8

const previewLen = 200

// Notifier is the outbound high-urgency sink consumed by workers.
type Notifier interface {
	// HighUrgency fires when score exceeds the configured threshold;
	// below it the call is a no-op.
	HighUrgency(ctx context.Context, ticketID string, score float64, category ticket.Category, text string) error
}

// SlackNotifier posts to a Slack incoming webhook. An empty URL disables
// outbound calls: the would-be notification is only logged, which keeps
// local and test deployments quiet.
type SlackNotifier struct {
	WebhookURL string
	Threshold  float64
}

// NewSlackNotifier builds a notifier with the default threshold.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{WebhookURL: webhookURL, Threshold: DefaultThreshold}
}

func (n *SlackNotifier) HighUrgency(ctx context.Context, ticketID string, score float64, category ticket.Category, text string) error {
	if score <= n.Threshold {
		return nil
	}
	var message = buildMessage(ticketID, score, category, text)

	if n.WebhookURL == "" {
		log.WithFields(log.Fields{"ticket": ticketID, "score": score}).
			Info("webhook not configured; high-urgency notification suppressed")
		return nil
	}
	if err := slack.PostWebhookContext(ctx, n.WebhookURL, &slack.WebhookMessage{Text: message}); err != nil {
		return fmt.Errorf("posting webhook for %s: %w", ticketID, err)
	}
	log.WithField("ticket", ticketID).Info("high-urgency webhook sent")
	return nil
}

func buildMessage(ticketID string, score float64, category ticket.Category, text string) string {
	return fmt.Sprintf(
		":rotating_light: *High-urgency ticket* (S=%.2f)\n*ID:* `%s` | *Category:* %s\n*Preview:* %s",
		score, ticketID, category, Preview(text))
}

// Preview returns the first 200 characters of text with newlines
// collapsed to spaces.
func Preview(text string) string {
	if text == "" {
		return "(no content)"
	}
	text = strings.ReplaceAll(text, "\n", " ")
	var runes = []rune(text)
	if len(runes) > previewLen {
		text = string(runes[:previewLen])
	}
	return text
}
