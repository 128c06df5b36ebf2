// Package gamebridge is the game server's side door into linkbot: it tracks
// which players are online, queues in-game messages for them and accepts
// linking codes over HTTP.
package gamebridge

import (
	"errors"
	"sync"
	"sync/atomic"

	"linkbot/internal/link"
)

// DefaultOutboxSize applies when NewPresence gets size <= 0.
const DefaultOutboxSize = 16

var ErrNotConnected = errors.New("player not connected")

type client struct {
	profile link.Profile
	online  bool
	outbox  []string
}

// Presence implements link.Clients from what the game server reports.
// Profiles stay cached after a player leaves.
type Presence struct {
	mu      sync.Mutex
	clients map[link.GameID]*client
	size    atomic.Int64

	dropped atomic.Uint64
}

func NewPresence(outboxSize int) *Presence {
	p := &Presence{clients: map[link.GameID]*client{}}
	p.SetOutboxSize(outboxSize)
	return p
}

// SetOutboxSize applies to messages queued from now on.
func (p *Presence) SetOutboxSize(n int) {
	if n <= 0 {
		n = DefaultOutboxSize
	}
	p.size.Store(int64(n))
}

// Update records a presence report. An empty name keeps the cached one.
func (p *Presence) Update(id link.GameID, prof link.Profile, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.clients[id]
	if c == nil {
		c = &client{}
		p.clients[id] = c
	}
	if prof.Name != "" {
		c.profile.Name = prof.Name
	}
	if prof.DisplayName != "" {
		c.profile.DisplayName = prof.DisplayName
	}
	c.online = online
	if !online {
		c.outbox = nil
	}
}

func (p *Presence) Profile(id link.GameID) (link.Profile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.clients[id]
	if c == nil || c.profile.Name == "" {
		return link.Profile{}, false
	}
	return c.profile, true
}

func (p *Presence) IsConnected(id link.GameID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.clients[id]
	return c != nil && c.online
}

// Notify queues text for the player. When the outbox is full the oldest
// message is dropped.
func (p *Presence) Notify(id link.GameID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.clients[id]
	if c == nil || !c.online {
		return ErrNotConnected
	}
	limit := int(p.size.Load())
	if n := len(c.outbox) - limit + 1; n > 0 {
		c.outbox = append(c.outbox[:0], c.outbox[n:]...)
		p.dropped.Add(uint64(n))
	}
	c.outbox = append(c.outbox, text)
	return nil
}

// Drain returns and clears the queued messages of id.
func (p *Presence) Drain(id link.GameID) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.clients[id]
	if c == nil || len(c.outbox) == 0 {
		return nil
	}
	out := c.outbox
	c.outbox = nil
	return out
}

func (p *Presence) Online() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.clients {
		if c.online {
			n++
		}
	}
	return n
}

// Dropped counts messages lost to full outboxes.
func (p *Presence) Dropped() uint64 { return p.dropped.Load() }
