package ingest

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/triagekit/triage/go/broker"
	"github.com/triagekit/triage/go/ticket"
)

// NextReady consumes the highest-urgency completed ticket from the ready
// index and returns its status; (nil, nil) when the index is empty.
func NextReady(ctx context.Context, b *broker.Broker) (*ticket.Status, error) {
	var id, ok, err = b.ReadyPopMax(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return b.GetStatus(ctx, id)
}

// ListQueue reads every admitted ticket's status and sorts them for
// GET /queue: completed first by descending urgency, then the rest by
// admission time. Ids whose status has expired are skipped.
func ListQueue(ctx context.Context, b *broker.Broker) ([]ticket.Status, error) {
	var ids, err = b.ListAllIDs(ctx)
	if err != nil {
		return nil, err
	}

	var out = make([]ticket.Status, 0, len(ids))
	for _, id := range ids {
		var status *ticket.Status
		status, err = b.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if status == nil {
			log.WithField("ticket", id).Debug("status expired; omitting from queue listing")
			continue
		}
		out = append(out, *status)
	}
	ticket.SortQueue(out)
	return out, nil
}
