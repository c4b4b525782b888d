package dedup

import (
	"sync"
	"time"
)

const (
	defaultWindowAge      = 5 * time.Minute
	defaultSimilarity     = 0.9
	defaultFloodThreshold = 10
)

type entry struct {
	ticketID  string
	embedding []float64
	arrivedAt time.Time
}

// Window is the sliding flood detector. It is local to a worker process:
// each worker forms its own view of recent traffic. Safe for concurrent
// use by a pool of processing goroutines.
type Window struct {
	mu      sync.Mutex
	entries []entry

	embedder       Embedder
	maxAge         time.Duration
	similarity     float64
	floodThreshold int
	now            func() time.Time
}

// NewWindow returns a Window with the default policy: a ticket is part of
// a flash flood when at least 10 predecessors in the last 5 minutes have
// cosine similarity above 0.9 with it.
func NewWindow(embedder Embedder) *Window {
	return &Window{
		embedder:       embedder,
		maxAge:         defaultWindowAge,
		similarity:     defaultSimilarity,
		floodThreshold: defaultFloodThreshold,
		now:            time.Now,
	}
}

// IsFlashFlood embeds text, evicts entries older than the window, counts
// similar predecessors, and appends the new entry. The arriving ticket is
// recorded regardless of the outcome.
func (w *Window) IsFlashFlood(ticketID, text string) bool {
	var embedding = w.embedder.Embed(text)

	w.mu.Lock()
	defer w.mu.Unlock()

	var now = w.now()
	var cutoff = now.Add(-w.maxAge)

	var keep = 0
	for keep < len(w.entries) && w.entries[keep].arrivedAt.Before(cutoff) {
		keep++
	}
	w.entries = w.entries[keep:]

	var similar = 0
	for i := range w.entries {
		if Dot(w.entries[i].embedding, embedding) > w.similarity {
			similar++
		}
	}

	w.entries = append(w.entries, entry{ticketID, embedding, now})
	return similar >= w.floodThreshold
}

// Len reports the current number of window entries, without evicting.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
