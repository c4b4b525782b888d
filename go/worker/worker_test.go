package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/triagekit/triage/go/agents"
	"github.com/triagekit/triage/go/breaker"
	"github.com/triagekit/triage/go/broker"
	"github.com/triagekit/triage/go/classify"
	"github.com/triagekit/triage/go/dedup"
	"github.com/triagekit/triage/go/ticket"
)

type scorerFunc func(ctx context.Context, text string) (ticket.Category, float64, error)

func (f scorerFunc) Score(ctx context.Context, text string) (ticket.Category, float64, error) {
	return f(ctx, text)
}

type captureNotifier struct {
	tickets []string
	scores  []float64
}

func (n *captureNotifier) HighUrgency(_ context.Context, ticketID string, score float64, _ ticket.Category, _ string) error {
	if score > 0.8 {
		n.tickets = append(n.tickets, ticketID)
		n.scores = append(n.scores, score)
	}
	return nil
}

func newTestWorker(t *testing.T, scorer classify.Scorer) (*Worker, *broker.Broker, *captureNotifier) {
	t.Helper()
	var mr = miniredis.RunT(t)
	var rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var b = broker.New(rdb, broker.DefaultKeys("mvr"))
	var notifier = &captureNotifier{}
	var w = &Worker{
		Broker:   b,
		Scorer:   scorer,
		Breaker:  breaker.New(),
		Window:   dedup.NewWindow(dedup.HashingEmbedder{}),
		Agents:   agents.DefaultRegistry(),
		Notifier: notifier,
	}
	return w, b, notifier
}

func msgFor(id, description string) *ticket.Message {
	return &ticket.Message{
		TicketID:     id,
		Description:  description,
		CombinedText: description,
		CreatedAt:    1700000000,
	}
}

func TestProcessCompletesTicket(t *testing.T) {
	var w, b, _ = newTestWorker(t, scorerFunc(func(_ context.Context, _ string) (ticket.Category, float64, error) {
		return ticket.Technical, 0.7, nil
	}))
	var ctx = context.Background()

	w.ProcessTicket(ctx, msgFor("ticket-1", "Cannot login, 500 error"))

	var status, err = b.GetStatus(ctx, "ticket-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	require.Equal(t, ticket.StateCompleted, status.Status)
	require.Equal(t, ticket.Technical, status.Category)
	require.Equal(t, 0.7, *status.UrgencyScore)
	require.Equal(t, "high", status.UrgencyLabel)
	require.Equal(t, "Agent1", status.AssignedAgent)
	require.Equal(t, float64(1700000000), status.CreatedAt)

	var id, ok, _ = b.ReadyPopMax(ctx)
	require.True(t, ok)
	require.Equal(t, "ticket-1", id)

	// The processing lock was released.
	var free, _ = b.AcquireProcessingLock(ctx, "ticket-1")
	require.True(t, free)
}

func TestProcessClampsScore(t *testing.T) {
	var w, b, _ = newTestWorker(t, scorerFunc(func(_ context.Context, _ string) (ticket.Category, float64, error) {
		return ticket.Billing, 1.7, nil
	}))
	var ctx = context.Background()

	w.ProcessTicket(ctx, msgFor("ticket-clamp", "invoice question"))

	var status, _ = b.GetStatus(ctx, "ticket-clamp")
	require.Equal(t, 1.0, *status.UrgencyScore)
}

func TestScorerErrorFallsBackToBaseline(t *testing.T) {
	var w, b, _ = newTestWorker(t, scorerFunc(func(_ context.Context, _ string) (ticket.Category, float64, error) {
		return "", 0, errors.New("model unavailable")
	}))
	var ctx = context.Background()

	w.ProcessTicket(ctx, msgFor("ticket-fb", "Please contact our lawyer about this invoice"))

	var status, _ = b.GetStatus(ctx, "ticket-fb")
	require.Equal(t, ticket.StateCompleted, status.Status)
	// Baseline gives Legal precedence over Billing; urgency is binary.
	require.Equal(t, ticket.Legal, status.Category)
	require.Equal(t, 0.0, *status.UrgencyScore)
	require.Equal(t, "low", status.UrgencyLabel)
}

func TestBreakerOpensAfterScorerFailures(t *testing.T) {
	var calls int
	var w, b, _ = newTestWorker(t, scorerFunc(func(_ context.Context, _ string) (ticket.Category, float64, error) {
		calls++
		return "", 0, errors.New("timeout")
	}))
	var ctx = context.Background()

	for i := 0; i < 4; i++ {
		w.ProcessTicket(ctx, msgFor(fmt.Sprintf("ticket-%d", i), "urgent outage, everything is down"))
	}

	// Three failures trip the breaker; the fourth ticket never reaches
	// the scorer and the baseline assigns a binary urgency.
	require.Equal(t, 3, calls)
	require.Equal(t, breaker.Open, w.Breaker.State())

	var status, _ = b.GetStatus(ctx, "ticket-3")
	require.Equal(t, ticket.StateCompleted, status.Status)
	require.Contains(t, []float64{0, 1}, *status.UrgencyScore)
	require.Equal(t, 1.0, *status.UrgencyScore)
}

func TestFlashFloodBecomesMasterIncident(t *testing.T) {
	var w, b, _ = newTestWorker(t, scorerFunc(func(_ context.Context, _ string) (ticket.Category, float64, error) {
		return ticket.Technical, 0.6, nil
	}))
	var ctx = context.Background()
	var text = "Checkout page is down, customers cannot pay"

	for i := 0; i < 12; i++ {
		w.ProcessTicket(ctx, msgFor(fmt.Sprintf("ticket-%d", i), text))
	}

	for i := 0; i < 10; i++ {
		var status, _ = b.GetStatus(ctx, fmt.Sprintf("ticket-%d", i))
		require.Equal(t, ticket.StateCompleted, status.Status, "ticket-%d", i)
	}
	for _, id := range []string{"ticket-10", "ticket-11"} {
		var status, _ = b.GetStatus(ctx, id)
		require.Equal(t, ticket.StateMasterIncident, status.Status, id)
		require.Equal(t, ticket.Technical, status.Category)
		require.NotNil(t, status.UrgencyScore)
	}

	// Master incidents never reach the ready index.
	var popped []string
	for {
		var id, ok, err = b.ReadyPopMax(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		popped = append(popped, id)
	}
	require.Len(t, popped, 10)
	require.NotContains(t, popped, "ticket-10")
	require.NotContains(t, popped, "ticket-11")
}

func TestProcessingLockDeniedDropsMessage(t *testing.T) {
	var w, b, _ = newTestWorker(t, classify.KeywordScorer{})
	var ctx = context.Background()

	var ok, err = b.AcquireProcessingLock(ctx, "ticket-busy")
	require.NoError(t, err)
	require.True(t, ok)

	w.ProcessTicket(ctx, msgFor("ticket-busy", "some text"))

	// No status transition happened.
	var status, _ = b.GetStatus(ctx, "ticket-busy")
	require.Nil(t, status)
}

func TestMissingTicketIDDropped(t *testing.T) {
	var w, b, _ = newTestWorker(t, classify.KeywordScorer{})
	var ctx = context.Background()

	w.ProcessTicket(ctx, &ticket.Message{Description: "anonymous"})

	var ids, _ = b.ListAllIDs(ctx)
	require.Empty(t, ids)
}

func TestHighUrgencyNotification(t *testing.T) {
	var w, _, notifier = newTestWorker(t, scorerFunc(func(_ context.Context, _ string) (ticket.Category, float64, error) {
		return ticket.Technical, 0.95, nil
	}))

	w.ProcessTicket(context.Background(), msgFor("ticket-hot", "production is on fire"))
	require.Equal(t, []string{"ticket-hot"}, notifier.tickets)
}

func TestNoNotificationForMasterIncident(t *testing.T) {
	var w, _, notifier = newTestWorker(t, scorerFunc(func(_ context.Context, _ string) (ticket.Category, float64, error) {
		return ticket.Technical, 0.95, nil
	}))
	var ctx = context.Background()
	var text = "identical flood text for notification test"

	for i := 0; i < 13; i++ {
		w.ProcessTicket(ctx, msgFor(fmt.Sprintf("ticket-%d", i), text))
	}
	// Only the first ten (completed) notified; flood terminations do not.
	require.Len(t, notifier.tickets, 10)
}

func TestPanicWritesDefensiveStatus(t *testing.T) {
	var w, b, _ = newTestWorker(t, scorerFunc(func(_ context.Context, _ string) (ticket.Category, float64, error) {
		panic("scorer blew up")
	}))
	var ctx = context.Background()

	w.ProcessTicket(ctx, msgFor("ticket-boom", "whatever"))

	var status, _ = b.GetStatus(ctx, "ticket-boom")
	require.NotNil(t, status)
	require.Equal(t, ticket.StateCompleted, status.Status)
	require.Equal(t, ticket.Technical, status.Category)
	require.Equal(t, 0.0, *status.UrgencyScore)
	require.Equal(t, "low", status.UrgencyLabel)

	// The lock is released even on panic.
	var free, _ = b.AcquireProcessingLock(ctx, "ticket-boom")
	require.True(t, free)
}

func TestRunStopsOnCancel(t *testing.T) {
	var w, b, _ = newTestWorker(t, classify.KeywordScorer{})
	w.DequeueTimeout = 50 * time.Millisecond

	require.NoError(t, b.Enqueue(context.Background(), *msgFor("ticket-run", "login error ASAP")))

	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		var status, _ = b.GetStatus(context.Background(), "ticket-run")
		return status != nil && status.Status == ticket.StateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
