package ws

import (
	"sort"
	"sync"
)

// Presence maps each online user to the connection registered for them. The latest connection wins.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[string]string)}
}

// Register records connID as the live connection of userID and returns the connection it replaced, if any.
func (p *Presence) Register(userID, connID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, ok := p.entries[userID]
	p.entries[userID] = connID
	return prev, ok && prev != connID
}

// Unregister removes userID only while it still maps to connID.
func (p *Presence) Unregister(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.entries[userID]; !ok || current != connID {
		return false
	}
	delete(p.entries, userID)
	return true
}

func (p *Presence) Lookup(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	connID, ok := p.entries[userID]
	return connID, ok
}

// Online returns the online user ids in ascending order.
func (p *Presence) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]string, 0, len(p.entries))
	for userID := range p.entries {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
