// Package broker provides the durable coordination primitives of the
// triage engine over a Redis-compatible store: the FIFO ticket queue,
// status records, the all-ids set, the urgency-sorted ready index, and
// the submit and per-ticket processing locks.
//
// All primitives are safe for concurrent use from any number of ingest
// handlers and workers; coordination happens entirely in the store.
// Locks are advisory with TTLs, so a holder that crashes is supplanted
// once its TTL lapses.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/triagekit/triage/go/ticket"
)

const (
	// SubmitLockTTL bounds recovery after a crashed ingest handler.
	SubmitLockTTL = 5 * time.Second
	// ProcessingLockTTL bounds recovery after a crashed worker.
	ProcessingLockTTL = 300 * time.Second
	// StatusTTL expires status records of long-forgotten tickets.
	StatusTTL = 7 * 24 * time.Hour
)

// Keys names every Redis key the broker owns.
type Keys struct {
	Queue                string
	StatusPrefix         string
	AllIDs               string
	Ready                string
	SubmitLock           string
	ProcessingLockPrefix string
}

// DefaultKeys derives the standard key layout from a namespace prefix.
func DefaultKeys(prefix string) Keys {
	return Keys{
		Queue:                prefix + ":ticket_queue",
		StatusPrefix:         prefix + ":status:",
		AllIDs:               prefix + ":all_ids",
		Ready:                prefix + ":ready",
		SubmitLock:           prefix + ":lock:submit",
		ProcessingLockPrefix: prefix + ":lock:processing:",
	}
}

// Broker wraps a Redis client with the triage key layout.
type Broker struct {
	rdb  redis.UniversalClient
	keys Keys
}

// New returns a Broker over the given client.
func New(rdb redis.UniversalClient, keys Keys) *Broker {
	return &Broker{rdb: rdb, keys: keys}
}

// GenerateTicketID returns an opaque, globally unique ticket id.
func (b *Broker) GenerateTicketID() string {
	return "ticket-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// AcquireSubmitLock attempts the process-wide admission lock.
// It does not block; callers retry on their own schedule.
func (b *Broker) AcquireSubmitLock(ctx context.Context) (bool, error) {
	var ok, err = b.rdb.SetNX(ctx, b.keys.SubmitLock, "1", SubmitLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring submit lock: %w", err)
	}
	return ok, nil
}

// ReleaseSubmitLock unconditionally releases the admission lock.
func (b *Broker) ReleaseSubmitLock(ctx context.Context) error {
	if err := b.rdb.Del(ctx, b.keys.SubmitLock).Err(); err != nil {
		return fmt.Errorf("releasing submit lock: %w", err)
	}
	return nil
}

// Enqueue pushes a message onto the FIFO tail.
func (b *Broker) Enqueue(ctx context.Context, msg ticket.Message) error {
	var raw, err = json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding queue message: %w", err)
	}
	if err = b.rdb.LPush(ctx, b.keys.Queue, raw).Err(); err != nil {
		return fmt.Errorf("enqueuing ticket %s: %w", msg.TicketID, err)
	}
	enqueuedTotal.Inc()
	return nil
}

// Dequeue blocks for up to timeout on the FIFO head. It returns (nil, nil)
// when no message arrived in time.
func (b *Broker) Dequeue(ctx context.Context, timeout time.Duration) (*ticket.Message, error) {
	var res, err = b.rdb.BRPop(ctx, timeout, b.keys.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeuing: %w", err)
	}
	// BRPop returns [key, value].
	var msg ticket.Message
	if err = json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("decoding queue message: %w", err)
	}
	dequeuedTotal.Inc()
	return &msg, nil
}

// SetStatus upserts a ticket's status record with the 7-day TTL.
func (b *Broker) SetStatus(ctx context.Context, id string, status ticket.Status) error {
	var raw, err = json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encoding status for %s: %w", id, err)
	}
	if err = b.rdb.Set(ctx, b.keys.StatusPrefix+id, raw, StatusTTL).Err(); err != nil {
		return fmt.Errorf("writing status for %s: %w", id, err)
	}
	statusWritesTotal.WithLabelValues(string(status.Status)).Inc()
	return nil
}

// GetStatus reads a ticket's status record; (nil, nil) if unknown.
func (b *Broker) GetStatus(ctx context.Context, id string) (*ticket.Status, error) {
	var raw, err = b.rdb.Get(ctx, b.keys.StatusPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading status for %s: %w", id, err)
	}
	var status ticket.Status
	if err = json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("decoding status for %s: %w", id, err)
	}
	return &status, nil
}

// AddToAllIDs records an admitted ticket id.
func (b *Broker) AddToAllIDs(ctx context.Context, id string) error {
	if err := b.rdb.SAdd(ctx, b.keys.AllIDs, id).Err(); err != nil {
		return fmt.Errorf("recording ticket id %s: %w", id, err)
	}
	return nil
}

// ListAllIDs returns every ticket id ever admitted.
func (b *Broker) ListAllIDs(ctx context.Context) ([]string, error) {
	var ids, err = b.rdb.SMembers(ctx, b.keys.AllIDs).Result()
	if err != nil {
		return nil, fmt.Errorf("listing ticket ids: %w", err)
	}
	return ids, nil
}

// AcquireProcessingLock attempts the per-ticket mutex held for one
// processing attempt.
func (b *Broker) AcquireProcessingLock(ctx context.Context, id string) (bool, error) {
	var ok, err = b.rdb.SetNX(ctx, b.keys.ProcessingLockPrefix+id, "1", ProcessingLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring processing lock for %s: %w", id, err)
	}
	return ok, nil
}

// ReleaseProcessingLock releases the per-ticket mutex.
func (b *Broker) ReleaseProcessingLock(ctx context.Context, id string) error {
	if err := b.rdb.Del(ctx, b.keys.ProcessingLockPrefix+id).Err(); err != nil {
		return fmt.Errorf("releasing processing lock for %s: %w", id, err)
	}
	return nil
}

// ReadyAdd upserts a completed ticket into the urgency-sorted ready index.
func (b *Broker) ReadyAdd(ctx context.Context, id string, score float64) error {
	if err := b.rdb.ZAdd(ctx, b.keys.Ready, redis.Z{Score: score, Member: id}).Err(); err != nil {
		return fmt.Errorf("adding %s to ready index: %w", id, err)
	}
	return nil
}

// ReadyPopMax atomically pops the highest-urgency ready ticket id.
// ok is false when the index is empty.
func (b *Broker) ReadyPopMax(ctx context.Context) (id string, ok bool, err error) {
	var popped []redis.Z
	popped, err = b.rdb.ZPopMax(ctx, b.keys.Ready, 1).Result()
	if err != nil {
		return "", false, fmt.Errorf("popping ready index: %w", err)
	}
	if len(popped) == 0 {
		return "", false, nil
	}
	readyPoppedTotal.Inc()
	return popped[0].Member.(string), true, nil
}
