// Package worker consumes the ticket queue and drives each ticket through
// classification, flood detection, agent assignment, and the ready index.
// Workers coordinate only through the broker: any number of them, across
// any number of processes, may run against the same queue.
package worker

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/triagekit/triage/go/agents"
	"github.com/triagekit/triage/go/breaker"
	"github.com/triagekit/triage/go/broker"
	"github.com/triagekit/triage/go/classify"
	"github.com/triagekit/triage/go/dedup"
	"github.com/triagekit/triage/go/notify"
	"github.com/triagekit/triage/go/ticket"
)

// DefaultDequeueTimeout is the blocking-pop poll interval; it bounds how
// long shutdown waits for the current tick.
const DefaultDequeueTimeout = 5 * time.Second

// Worker processes tickets from the shared queue. The breaker, dedup
// window, and agent registry are local to the process: a pool of Run
// loops inside one process shares them.
type Worker struct {
	Broker   *broker.Broker
	Scorer   classify.Scorer
	Breaker  *breaker.Breaker
	Window   *dedup.Window
	Agents   *agents.Registry
	Notifier notify.Notifier

	// DequeueTimeout overrides DefaultDequeueTimeout when set.
	DequeueTimeout time.Duration
}

// Run consumes the queue until ctx is canceled. A failure processing one
// ticket never terminates the loop.
func (w *Worker) Run(ctx context.Context) error {
	var timeout = w.DequeueTimeout
	if timeout <= 0 {
		timeout = DefaultDequeueTimeout
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var msg, err = w.Broker.Dequeue(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithField("err", err).Error("worker dequeue failed")
			continue
		}
		if msg == nil {
			continue
		}
		w.ProcessTicket(ctx, msg)
	}
}

// ProcessTicket runs one ticket through the pipeline. The per-ticket
// processing lock guarantees at most one concurrent processor; a denied
// lock drops the message.
func (w *Worker) ProcessTicket(ctx context.Context, msg *ticket.Message) {
	if msg.TicketID == "" {
		log.WithField("msg", msg).Warn("dropping queue message without ticket_id")
		droppedTotal.WithLabelValues("no_id").Inc()
		return
	}
	var logger = log.WithField("ticket", msg.TicketID)

	var ok, err = w.Broker.AcquireProcessingLock(ctx, msg.TicketID)
	if err != nil {
		// The message is lost to this worker; the lock TTL bounds how
		// long a half-processed ticket stays claimed.
		logger.WithField("err", err).Error("acquiring processing lock")
		return
	}
	if !ok {
		logger.Warn("skipping ticket: already being processed")
		droppedTotal.WithLabelValues("locked").Inc()
		return
	}
	defer func() {
		if err := w.Broker.ReleaseProcessingLock(ctx, msg.TicketID); err != nil {
			logger.WithField("err", err).Error("releasing processing lock")
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("ticket processing panicked; writing defensive status")
			w.writeDefensiveStatus(ctx, msg)
		}
	}()

	w.process(ctx, msg, logger)
}

func (w *Worker) process(ctx context.Context, msg *ticket.Message, logger *log.Entry) {
	var text = msg.Text()

	if err := w.Broker.SetStatus(ctx, msg.TicketID, ticket.Status{
		TicketID:    msg.TicketID,
		Status:      ticket.StateProcessing,
		Subject:     msg.Subject,
		Body:        msg.Body,
		Description: msg.Description,
	}); err != nil {
		logger.WithField("err", err).Error("writing processing status")
		return
	}

	var category, score = w.classifyStage(ctx, text, logger)
	var label = ticket.UrgencyLabel(score)

	if w.Window.IsFlashFlood(msg.TicketID, text) {
		logger.WithFields(log.Fields{"category": category, "score": score}).
			Warn("flash flood detected; terminating as master incident")
		if err := w.Broker.SetStatus(ctx, msg.TicketID, ticket.Status{
			TicketID:     msg.TicketID,
			Status:       ticket.StateMasterIncident,
			Subject:      msg.Subject,
			Body:         msg.Body,
			Description:  msg.Description,
			Category:     category,
			UrgencyScore: &score,
			UrgencyLabel: label,
			CreatedAt:    msg.CreatedAt,
		}); err != nil {
			logger.WithField("err", err).Error("writing master_incident status")
		}
		processedTotal.WithLabelValues("master_incident").Inc()
		return
	}

	var assigned, picked = w.Agents.Select(category)
	if !picked {
		assigned = agents.Unassigned
	}

	var rounded = math.Round(score*1e4) / 1e4
	if err := w.Broker.SetStatus(ctx, msg.TicketID, ticket.Status{
		TicketID:      msg.TicketID,
		Status:        ticket.StateCompleted,
		Subject:       msg.Subject,
		Body:          msg.Body,
		Description:   msg.Description,
		Category:      category,
		UrgencyScore:  &rounded,
		UrgencyLabel:  label,
		AssignedAgent: assigned,
		CreatedAt:     msg.CreatedAt,
	}); err != nil {
		logger.WithField("err", err).Error("writing completed status")
		return
	}
	if err := w.Broker.ReadyAdd(ctx, msg.TicketID, rounded); err != nil {
		logger.WithField("err", err).Error("adding ticket to ready index")
		return
	}

	if err := w.Notifier.HighUrgency(ctx, msg.TicketID, score, category, text); err != nil {
		logger.WithField("err", err).Warn("high-urgency notification failed")
	}

	logger.WithFields(log.Fields{
		"category": category,
		"score":    rounded,
		"agent":    assigned,
	}).Info("completed ticket")
	processedTotal.WithLabelValues("completed").Inc()
}

// classifyStage consults the breaker, then either the scorer or the
// keyword baseline. A scorer error is recorded as a breaker failure and
// falls back to the baseline for this ticket.
func (w *Worker) classifyStage(ctx context.Context, text string, logger *log.Entry) (ticket.Category, float64) {
	if !w.Breaker.Allow() {
		logger.Debug("breaker open; using keyword baseline")
		baselineTotal.Inc()
		return classify.Baseline(text)
	}

	var start = time.Now()
	var category, score, err = w.Scorer.Score(ctx, classify.Truncate(text))
	var latency = time.Since(start)
	if err != nil {
		w.Breaker.RecordError()
		logger.WithField("err", err).Warn("scorer failed; using keyword baseline")
		baselineTotal.Inc()
		return classify.Baseline(text)
	}
	w.Breaker.Record(latency)
	scorerLatency.Observe(latency.Seconds())

	return category, math.Max(0, math.Min(1, score))
}

// writeDefensiveStatus completes a ticket with safe defaults after an
// unexpected mid-processing failure, so it never wedges in processing.
func (w *Worker) writeDefensiveStatus(ctx context.Context, msg *ticket.Message) {
	var zero = 0.0
	if err := w.Broker.SetStatus(ctx, msg.TicketID, ticket.Status{
		TicketID:     msg.TicketID,
		Status:       ticket.StateCompleted,
		Subject:      msg.Subject,
		Body:         msg.Body,
		Description:  msg.Description,
		Category:     ticket.Technical,
		UrgencyScore: &zero,
		UrgencyLabel: ticket.UrgencyLabel(zero),
		CreatedAt:    msg.CreatedAt,
	}); err != nil {
		log.WithFields(log.Fields{"ticket": msg.TicketID, "err": err}).
			Error("writing defensive status")
		return
	}
	// Completed tickets always reach the ready index, defensive ones at
	// the bottom of the order.
	if err := w.Broker.ReadyAdd(ctx, msg.TicketID, zero); err != nil {
		log.WithFields(log.Fields{"ticket": msg.TicketID, "err": err}).
			Error("adding defensive ticket to ready index")
	}
	processedTotal.WithLabelValues("defensive").Inc()
}
