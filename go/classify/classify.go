// Package classify provides the Scorer capability consumed by processing
// workers, together with the deterministic keyword baseline used when the
// scorer is unavailable or the circuit breaker is open.
package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/triagekit/triage/go/ticket"
)

// Scorer classifies ticket text into a category and scores its urgency
// in [0, 1]. Implementations may be slow or fail; callers measure latency.
type Scorer interface {
	Score(ctx context.Context, text string) (ticket.Category, float64, error)
}

// Scorers see at most this many runes of text.
const maxScorerText = 512

// categoryRules are scanned in order; precedence Legal > Billing > Technical.
var categoryRules = []struct {
	category ticket.Category
	keywords []string
}{
	{ticket.Legal, []string{"lawyer", "legal", "compliance", "gdpr", "contract", "lawsuit", "subpoena"}},
	{ticket.Billing, []string{"invoice", "payment", "refund", "subscription", "charge", "billing", "credit card"}},
	{ticket.Technical, []string{"error", "bug", "crash", "login", "api", "broken", "not working", "down", "outage"}},
}

var urgencyPattern = regexp.MustCompile(
	`(?i)\b(ASAP|urgent|critical|broken|down|outage|emergency|immediately|` +
		`high priority|P0|as soon as possible)\b`)

// Category routes text into Billing, Technical, or Legal by keyword scan.
// Empty or unmatched text defaults to Technical.
func Category(text string) ticket.Category {
	if strings.TrimSpace(text) == "" {
		return ticket.Technical
	}
	var lower = strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return ticket.Technical
}

// Urgency returns the baseline urgency score: 1 if any urgency signal
// matches, else 0.
func Urgency(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	if urgencyPattern.MatchString(text) {
		return 1
	}
	return 0
}

// Baseline applies both keyword heuristics at once.
func Baseline(text string) (ticket.Category, float64) {
	return Category(text), Urgency(text)
}

// KeywordScorer is a Scorer backed by the keyword baseline. It never
// fails and is the default scorer of the worker binary; deployments with
// a model-backed scorer plug their own Scorer in.
type KeywordScorer struct{}

func (KeywordScorer) Score(_ context.Context, text string) (ticket.Category, float64, error) {
	var category, score = Baseline(Truncate(text))
	return category, score, nil
}

// Truncate caps text at the scorer input limit.
func Truncate(text string) string {
	var runes = []rune(text)
	if len(runes) <= maxScorerText {
		return text
	}
	return string(runes[:maxScorerText])
}
