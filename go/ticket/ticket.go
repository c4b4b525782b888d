// Package ticket holds the data model of the triage engine: submitted
// tickets, their mutable status records, and the queue message passed
// from the ingest API to processing workers.
package ticket

import (
	"errors"
	"strings"
)

// Category of a routed ticket.
type Category string

const (
	Billing   Category = "Billing"
	Technical Category = "Technical"
	Legal     Category = "Legal"
)

// State of a ticket's lifecycle. Transitions form a DAG:
// pending -> processing -> completed, or
// pending -> processing -> master_incident.
// Both completed and master_incident are terminal.
type State string

const (
	StatePending        State = "pending"
	StateProcessing     State = "processing"
	StateCompleted      State = "completed"
	StateMasterIncident State = "master_incident"
)

// ErrNoText is returned when a submission carries no text at all.
var ErrNoText = errors.New("at least one of subject, body, or description is required")

// Submission is the immutable ingest payload of POST /tickets.
// TicketID is optional; one is generated at admission if absent.
type Submission struct {
	TicketID    string `json:"ticket_id,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body,omitempty"`
	Description string `json:"description,omitempty"`
}

// Validate enforces the admission contract: at least one text field present.
func (s *Submission) Validate() error {
	if s.Subject == "" && s.Body == "" && s.Description == "" {
		return ErrNoText
	}
	return nil
}

// CombinedText is the single text used for classification, urgency
// scoring, and de-duplication: the space-joined non-empty text fields.
func (s *Submission) CombinedText() string {
	return JoinText(s.Subject, s.Body, s.Description)
}

// JoinText space-joins its non-empty arguments.
func JoinText(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.TrimSpace(strings.Join(out, " "))
}

// Message is what the ingest controller enqueues and a worker consumes.
type Message struct {
	TicketID     string  `json:"ticket_id"`
	Subject      string  `json:"subject,omitempty"`
	Body         string  `json:"body,omitempty"`
	Description  string  `json:"description,omitempty"`
	CombinedText string  `json:"combined_text,omitempty"`
	CreatedAt    float64 `json:"created_at"`
}

// Text returns the message's combined text, falling back to joining the
// individual fields for messages enqueued without one.
func (m *Message) Text() string {
	if m.CombinedText != "" {
		return m.CombinedText
	}
	return JoinText(m.Subject, m.Body, m.Description)
}

// Status is the mutable record keyed by ticket_id. Classification fields
// are set only once a worker has processed the ticket.
type Status struct {
	TicketID      string   `json:"ticket_id"`
	Status        State    `json:"status"`
	Subject       string   `json:"subject,omitempty"`
	Body          string   `json:"body,omitempty"`
	Description   string   `json:"description,omitempty"`
	Category      Category `json:"category,omitempty"`
	UrgencyScore  *float64 `json:"urgency_score,omitempty"`
	UrgencyLabel  string   `json:"urgency_label,omitempty"`
	AssignedAgent string   `json:"assigned_agent,omitempty"`
	CreatedAt     float64  `json:"created_at,omitempty"`
}

// Accepted is the 202 response of POST /tickets.
type Accepted struct {
	TicketID  string `json:"ticket_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

// UrgencyLabel derives the label from an urgency score.
// It is a pure function: high iff score >= 0.5.
func UrgencyLabel(score float64) string {
	if score >= 0.5 {
		return "high"
	}
	return "low"
}
