package panel

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/joeblew999/plat-bcat/internal/metrics"
)

// Registry maps browser sessions to their panels. Sessions idle for longer
// than the TTL are dropped, and with them any selection.
type Registry struct {
	mu       sync.Mutex
	sessions *lru.LRU[string, *Panel]
	live     atomic.Int64
	newPanel func() *Panel
	metrics  *metrics.Provider
}

func NewRegistry(size int, ttl time.Duration, newPanel func() *Panel, m *metrics.Provider) *Registry {
	if size <= 0 {
		size = 1024
	}
	r := &Registry{newPanel: newPanel, metrics: m}
	// onEvict runs under the LRU's lock, so it must not call back into it.
	r.sessions = lru.NewLRU[string, *Panel](size, func(string, *Panel) {
		r.metrics.SetSessions(int(r.live.Add(-1)))
	}, ttl)
	return r
}

// Get returns the session's panel and refreshes its TTL.
func (r *Registry) Get(session string) (*Panel, bool) {
	p, ok := r.sessions.Get(session)
	if ok {
		r.sessions.Add(session, p)
	}
	return p, ok
}

// Open returns the session's panel, creating it on first use.
func (r *Registry) Open(session string) *Panel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.Get(session); ok {
		return p
	}
	// An expired entry not yet swept is replaced in place without an
	// eviction, so it is already counted.
	counted := r.sessions.Contains(session)
	p := r.newPanel()
	r.sessions.Add(session, p)
	if !counted {
		r.metrics.SetSessions(int(r.live.Add(1)))
	}
	return p
}

// Len is the number of sessions held, including expired ones not yet swept.
func (r *Registry) Len() int { return int(r.live.Load()) }
