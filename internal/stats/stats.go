// Package stats keeps the monotonic per-(service, category) counters.
// Counters feed both the Prometheus registry and the JSON stats
// endpoint, and may be bumped from any goroutine.
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the shared counter table.
type Stats struct {
	counter *prometheus.CounterVec

	mu     sync.RWMutex
	values map[string]map[string]uint64
}

// New creates the counter table and registers its Prometheus vector.
func New(reg prometheus.Registerer) *Stats {
	s := &Stats{
		counter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adsb1090_events_total",
			Help: "Monotonic event counters by service and category.",
		}, []string{"service", "category"}),
		values: make(map[string]map[string]uint64),
	}
	if reg != nil {
		reg.MustRegister(s.counter)
	}
	return s
}

// Inc bumps a counter by one.
func (s *Stats) Inc(service, category string) { s.Add(service, category, 1) }

// Add bumps a counter by n.
func (s *Stats) Add(service, category string, n uint64) {
	s.counter.WithLabelValues(service, category).Add(float64(n))

	s.mu.Lock()
	svc, ok := s.values[service]
	if !ok {
		svc = make(map[string]uint64)
		s.values[service] = svc
	}
	svc[category] += n
	s.mu.Unlock()
}

// Get returns one counter value.
func (s *Stats) Get(service, category string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[service][category]
}

// Snapshot copies out the whole table for JSON encoding.
func (s *Stats) Snapshot() map[string]map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]uint64, len(s.values))
	for svc, cats := range s.values {
		c := make(map[string]uint64, len(cats))
		for k, v := range cats {
			c[k] = v
		}
		out[svc] = c
	}
	return out
}
