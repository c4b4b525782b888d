package dedup

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmbedUnitNorm(t *testing.T) {
	var e = HashingEmbedder{}
	var vec = e.Embed("cannot login to the portal, urgent")

	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}

func TestEmbedSimilarity(t *testing.T) {
	var e = HashingEmbedder{}

	var a = e.Embed("The VPN is broken and nobody can connect")
	var b = e.Embed("The VPN is broken and nobody can connect")
	require.InDelta(t, 1.0, Dot(a, b), 1e-9)

	var c = e.Embed("Please refund my last invoice")
	require.Less(t, Dot(a, c), 0.9)
}

func TestEmbedEmptyText(t *testing.T) {
	var vec = HashingEmbedder{}.Embed("")
	require.InDelta(t, 0.0, Dot(vec, vec), 1e-9)
	require.False(t, math.IsNaN(vec[0]))
}

func newTestWindow() (*Window, *time.Time) {
	var w = NewWindow(HashingEmbedder{})
	var clock = time.Unix(1700000000, 0)
	w.now = func() time.Time { return clock }
	return w, &clock
}

func TestFlashFloodThreshold(t *testing.T) {
	var w, _ = newTestWindow()
	var text = "Checkout page is down, customers cannot pay"

	// The first 10 identical tickets see 0..9 similar predecessors.
	for i := 0; i < 10; i++ {
		require.False(t, w.IsFlashFlood(fmt.Sprintf("ticket-%d", i), text), "ticket %d", i)
	}
	// The 11th and 12th see >= 10.
	require.True(t, w.IsFlashFlood("ticket-10", text))
	require.True(t, w.IsFlashFlood("ticket-11", text))
}

func TestFlashFloodIgnoresDissimilar(t *testing.T) {
	var w, _ = newTestWindow()

	for i := 0; i < 20; i++ {
		w.IsFlashFlood(fmt.Sprintf("noise-%d", i), fmt.Sprintf("completely unrelated topic number %d about gardening", i*7919))
	}
	require.False(t, w.IsFlashFlood("probe", "Checkout page is down, customers cannot pay"))
}

func TestWindowEviction(t *testing.T) {
	var w, clock = newTestWindow()
	var text = "Same outage report over and over"

	for i := 0; i < 10; i++ {
		w.IsFlashFlood(fmt.Sprintf("old-%d", i), text)
	}

	// Past the window the old entries no longer count.
	*clock = clock.Add(5*time.Minute + time.Second)
	require.False(t, w.IsFlashFlood("fresh", text))
	require.Equal(t, 1, w.Len())
}

func TestFloodEntryAddedRegardless(t *testing.T) {
	var w, _ = newTestWindow()
	var text = "Same outage report over and over"

	for i := 0; i < 12; i++ {
		w.IsFlashFlood(fmt.Sprintf("t-%d", i), text)
	}
	// Flood-matched tickets still enter the window.
	require.Equal(t, 12, w.Len())
}
