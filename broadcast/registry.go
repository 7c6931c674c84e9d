package broadcast

import "sync"

// Registry tracks the currently connected clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[*Client]struct{})}
}

func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	delete(r.clients, c)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ForEach calls fn for every client registered when the call started. fn runs
// outside the registry lock so it may add or remove clients.
func (r *Registry) ForEach(fn func(*Client)) {
	r.mu.RLock()
	members := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		members = append(members, c)
	}
	r.mu.RUnlock()

	for _, c := range members {
		fn(c)
	}
}
