// Package codes keeps the linking codes handed out by the game server until
// they are redeemed in chat or expire.
package codes

import (
	"sync"
	"time"

	"linkbot/internal/link"
)

// DefaultTTL applies when Put is called with ttl <= 0.
const DefaultTTL = 10 * time.Minute

type entry struct {
	id      link.GameID
	expires time.Time
}

// Table is a concurrency-safe code -> game id map with expiry.
// It implements link.CodeSource.
type Table struct {
	mu    sync.Mutex
	codes map[string]entry
	byID  map[link.GameID]string

	now func() time.Time
}

func New() *Table {
	return &Table{
		codes: map[string]entry{},
		byID:  map[link.GameID]string{},
		now:   time.Now,
	}
}

// Put registers code for id. Non-digits are stripped from code. An older code
// issued for the same id is dropped. It returns the normalised code ("" if
// nothing was stored).
func (t *Table) Put(code string, id link.GameID, ttl time.Duration) string {
	code = link.DigitsOnly(code)
	if code == "" || id.IsZero() {
		return ""
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.byID[id]; ok && prev != code {
		delete(t.codes, prev)
	}
	if old, ok := t.codes[code]; ok && old.id != id {
		delete(t.byID, old.id)
	}
	t.codes[code] = entry{id: id, expires: t.now().Add(ttl)}
	t.byID[id] = code
	return code
}

func (t *Table) Lookup(code string) (link.GameID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.codes[code]
	if !ok || !t.now().Before(e.expires) {
		return link.NilGameID, false
	}
	return e.id, true
}

func (t *Table) Consume(code string) (link.GameID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.codes[code]
	if !ok {
		return link.NilGameID, false
	}
	t.removeLocked(code, e)
	if !t.now().Before(e.expires) {
		return link.NilGameID, false
	}
	return e.id, true
}

// Prune drops expired codes and returns how many were removed.
func (t *Table) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for code, e := range t.codes {
		if !now.Before(e.expires) {
			t.removeLocked(code, e)
			n++
		}
	}
	return n
}

// Len counts stored codes, expired ones included until pruned.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.codes)
}

func (t *Table) removeLocked(code string, e entry) {
	delete(t.codes, code)
	if t.byID[e.id] == code {
		delete(t.byID, e.id)
	}
}
