// Package agents implements the skill-and-load agent router. The registry
// is process-local: load counters are a best-effort view per worker
// process and are not persisted or shared across the fleet.
package agents

import (
	"sync"

	"github.com/triagekit/triage/go/ticket"
)

// Unassigned is recorded on tickets for which no agent had spare capacity.
const Unassigned = "unassigned"

// Agent describes one human agent: per-category skill affinities in
// [0, 1] and a hard capacity on concurrently assigned tickets.
type Agent struct {
	Name     string
	Skills   map[ticket.Category]float64
	Capacity int

	load int
}

// Registry holds agents in insertion order, which also breaks scoring
// ties. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	agents []*Agent
}

// NewRegistry builds a registry from the given agents.
func NewRegistry(list ...Agent) *Registry {
	var r = &Registry{}
	for i := range list {
		var a = list[i]
		r.agents = append(r.agents, &a)
	}
	return r
}

// DefaultRegistry returns the stock two-agent roster.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Agent{
			Name:     "Agent1",
			Skills:   map[ticket.Category]float64{ticket.Technical: 0.9, ticket.Billing: 0.1, ticket.Legal: 0.0},
			Capacity: 5,
		},
		Agent{
			Name:     "Agent2",
			Skills:   map[ticket.Category]float64{ticket.Billing: 0.8, ticket.Legal: 0.2, ticket.Technical: 0.2},
			Capacity: 4,
		},
	)
}

// Select picks the best eligible agent for a category and increments its
// load. The blended score is 0.6 * skill affinity + 0.4 * spare capacity
// fraction; agents at capacity are skipped. Returns ok=false when every
// agent is saturated.
func (r *Registry) Select(category ticket.Category) (name string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Agent
	var bestScore = -1.0

	for _, a := range r.agents {
		if a.load >= a.Capacity {
			continue
		}
		var availability = 1 - float64(a.load)/float64(a.Capacity)
		var score = 0.6*a.Skills[category] + 0.4*availability
		if score > bestScore {
			best, bestScore = a, score
		}
	}
	if best == nil {
		return "", false
	}
	best.load++
	return best.Name, true
}

// Load reports an agent's current load; -1 for unknown agents.
func (r *Registry) Load(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		if a.Name == name {
			return a.load
		}
	}
	return -1
}
