package resilience

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ProviderHealth is a snapshot of one upstream as seen by its client.
type ProviderHealth struct {
	Name         string
	CircuitState gobreaker.State
	Counts       gobreaker.Counts

	// LastSuccessAt and LastFailureAt are nil until the first fetch of that
	// outcome. A failure is a fetch that exhausted its retries.
	LastSuccessAt *time.Time
	LastFailureAt *time.Time

	// ConsecutiveFailures resets on the next successful fetch.
	ConsecutiveFailures int

	LastError string
}

// IsHealthy reports a closed circuit and a successful (or no) last fetch.
func (h *ProviderHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed && h.ConsecutiveFailures == 0
}

// IsDegraded reports a half-open circuit, or a closed one whose last fetch
// failed.
func (h *ProviderHealth) IsDegraded() bool {
	return !h.IsHealthy() && !h.IsUnhealthy()
}

// IsUnhealthy reports an open circuit.
func (h *ProviderHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks upstream clients and the outcome of their fetches. One
// registry is shared by the clients of a pipeline and read by the worker
// health check and the ops status endpoint.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*tracked
}

type tracked struct {
	client *Client
	health ProviderHealth
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*tracked)}
}

// Register adds a client. Registering a name again replaces the client and
// clears its history.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &tracked{client: client, health: ProviderHealth{Name: name}}
}

// Record stores the outcome of a fetch finished at at. Unknown names are
// ignored.
func (r *Registry) Record(name string, at time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return
	}
	if err == nil {
		p.health.LastSuccessAt = &at
		p.health.ConsecutiveFailures = 0
		return
	}
	p.health.LastFailureAt = &at
	p.health.ConsecutiveFailures++
	p.health.LastError = err.Error()
}

// GetHealth returns the health of one provider, or nil if it is unknown.
func (r *Registry) GetHealth(name string) *ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil
	}
	return p.snapshot()
}

// GetAllHealth returns every provider ordered by name.
func (r *Registry) GetAllHealth() []*ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*ProviderHealth, 0, len(r.providers))
	for _, p := range r.providers {
		all = append(all, p.snapshot())
	}
	slices.SortFunc(all, func(a, b *ProviderHealth) int { return cmp.Compare(a.Name, b.Name) })
	return all
}

func (p *tracked) snapshot() *ProviderHealth {
	h := p.health
	h.CircuitState = p.client.CircuitBreakerState()
	h.Counts = p.client.CircuitBreakerCounts()
	return &h
}
