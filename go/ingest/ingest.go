// Package ingest implements ticket admission and the consumer-side
// queries, together with the HTTP API that exposes both.
//
// Admission runs under the broker's process-wide submit lock so that the
// status write and the enqueue of a ticket never interleave with another
// admission.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/triagekit/triage/go/broker"
	"github.com/triagekit/triage/go/ticket"
)

// ErrOverloaded is returned when the submit lock could not be acquired
// within the retry budget; clients should back off and retry.
var ErrOverloaded = errors.New("system busy, retry")

const (
	lockRetries     = 10
	lockBackoffStep = 50 * time.Millisecond
)

// Ingester admits tickets into the pipeline.
type Ingester struct {
	broker *broker.Broker
	now    func() time.Time
	sleep  func(time.Duration)
}

// NewIngester returns an Ingester over the broker.
func NewIngester(b *broker.Broker) *Ingester {
	return &Ingester{broker: b, now: time.Now, sleep: time.Sleep}
}

// Admit validates and admits one submission: under the submit lock it
// writes the pending status, records the id, and enqueues the message.
func (i *Ingester) Admit(ctx context.Context, sub ticket.Submission) (*ticket.Accepted, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := i.acquireSubmitLock(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := i.broker.ReleaseSubmitLock(ctx); err != nil {
			log.WithField("err", err).Error("releasing submit lock")
		}
	}()

	var id = sub.TicketID
	if id == "" {
		id = i.broker.GenerateTicketID()
	}
	var createdAt = float64(i.now().UnixNano()) / float64(time.Second)

	var status = ticket.Status{
		TicketID:    id,
		Status:      ticket.StatePending,
		Subject:     sub.Subject,
		Body:        sub.Body,
		Description: sub.Description,
		CreatedAt:   createdAt,
	}
	if err := i.broker.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	if err := i.broker.AddToAllIDs(ctx, id); err != nil {
		return nil, err
	}
	if err := i.broker.Enqueue(ctx, ticket.Message{
		TicketID:     id,
		Subject:      sub.Subject,
		Body:         sub.Body,
		Description:  sub.Description,
		CombinedText: sub.CombinedText(),
		CreatedAt:    createdAt,
	}); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"ticket": id}).Info("admitted ticket")
	return &ticket.Accepted{
		TicketID:  id,
		Status:    "accepted",
		StatusURL: fmt.Sprintf("/tickets/%s/status", id),
	}, nil
}

// acquireSubmitLock retries with linear backoff before reporting the
// system overloaded.
func (i *Ingester) acquireSubmitLock(ctx context.Context) error {
	for attempt := 0; attempt <= lockRetries; attempt++ {
		var ok, err = i.broker.AcquireSubmitLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt < lockRetries {
			i.sleep(lockBackoffStep * time.Duration(attempt+1))
		}
	}
	return ErrOverloaded
}
