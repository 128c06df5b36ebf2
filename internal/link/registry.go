package link

import (
	"errors"
	"strings"
	"sync"

	logx "linkbot/pkg/logx"
)

var (
	// ErrBlankChatID reports a caller bug: links need a chat identity.
	ErrBlankChatID = errors.New("link: empty chat id is not allowed")
	// ErrNilGameID reports a caller bug: the zero identity cannot be linked.
	ErrNilGameID = errors.New("link: nil game id is not allowed")
)

// Config configures a Registry.
type Config struct {
	// Path is the JSON file read on construction and written by Save.
	// Empty means in-memory only.
	Path  string
	Hooks Hooks
}

// Registry is the in-memory link table.
//
// mu guards the maps. wmu serialises mutations (and the hook calls around them)
// so the plan computed for a change stays valid until it is applied.
type Registry struct {
	path  string
	log   logx.Logger
	hooks Hooks

	wmu sync.Mutex

	// saveMu orders concurrent Save calls so the newest snapshot lands last.
	saveMu sync.Mutex

	mu     sync.Mutex
	byChat map[string]Record
	byGame map[GameID]string
}

type unlinkEvent struct {
	id     GameID
	chatID string
}

// New creates a registry and loads cfg.Path. Load failures are logged and leave
// the table empty; use Load directly to observe them.
func New(cfg Config, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = nopHooks{}
	}
	r := &Registry{
		path:   strings.TrimSpace(cfg.Path),
		log:    log,
		hooks:  hooks,
		byChat: map[string]Record{},
		byGame: map[GameID]string{},
	}
	if r.path != "" {
		if err := r.Load(); err != nil {
			r.log.Error("failed to load linked accounts", logx.String("path", r.path), logx.Err(err))
		}
	}
	return r
}

// Path returns the backing file path ("" when in-memory only).
func (r *Registry) Path() string { return r.path }

// ---- queries ----

// ChatIDFor returns the chat identity owning id, matching either slot of a pair.
func (r *Registry) ChatIDFor(id GameID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chatID, ok := r.byGame[id]
	return chatID, ok
}

// GameIDFor returns the primary identity of chatID (Java slot for a pair).
func (r *Registry) GameIDFor(chatID string) (GameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byChat[chatID]
	if !ok {
		return NilGameID, false
	}
	return rec.Primary(), true
}

// GameIDsFor returns the whole record of chatID.
func (r *Registry) GameIDsFor(chatID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byChat[chatID]
	return rec, ok
}

// ChatIDsForMany resolves ids; unresolved ids are omitted.
func (r *Registry) ChatIDsForMany(ids []GameID) map[GameID]string {
	out := make(map[GameID]string, len(ids))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if chatID, ok := r.byGame[id]; ok {
			out[id] = chatID
		}
	}
	return out
}

// GameIDsForMany resolves chat ids; unresolved ones are omitted.
func (r *Registry) GameIDsForMany(chatIDs []string) map[string]Record {
	out := make(map[string]Record, len(chatIDs))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, chatID := range chatIDs {
		if rec, ok := r.byChat[chatID]; ok {
			out[chatID] = rec
		}
	}
	return out
}

// Count returns the number of linked chat identities. A pair counts once.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byChat)
}

// All returns a copy of the table.
func (r *Registry) All() map[string]Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Record, len(r.byChat))
	for k, v := range r.byChat {
		out[k] = v
	}
	return out
}

// The registry has no cache tier; these keep the cached/uncached call sites
// of pluggable link backends working against the live table.

func (r *Registry) IsCachedGame(GameID) bool                        { return true }
func (r *Registry) IsCachedChat(string) bool                        { return true }
func (r *Registry) ChatIDFromCache(id GameID) (string, bool)        { return r.ChatIDFor(id) }
func (r *Registry) ChatIDBypassCache(id GameID) (string, bool)      { return r.ChatIDFor(id) }
func (r *Registry) GameIDFromCache(chatID string) (GameID, bool)    { return r.GameIDFor(chatID) }
func (r *Registry) GameIDBypassCache(chatID string) (GameID, bool)  { return r.GameIDFor(chatID) }
func (r *Registry) GameIDsFromCache(chatID string) (Record, bool)   { return r.GameIDsFor(chatID) }
func (r *Registry) GameIDsBypassCache(chatID string) (Record, bool) { return r.GameIDsFor(chatID) }

// ---- mutations ----

// Link attaches id to chatID.
//
// A record holding id under another chat identity is removed first, pair
// included. If chatID already holds an id of the other kind the record becomes
// a pair; an id of the same kind is replaced.
func (r *Registry) Link(chatID string, id GameID) error {
	if strings.TrimSpace(chatID) == "" {
		return ErrBlankChatID
	}
	if id.IsZero() {
		return ErrNilGameID
	}
	r.log.Debug("link", logx.String("chat_id", chatID), logx.String("game_id", id.String()), logx.String("kind", id.Kind().String()))

	r.wmu.Lock()
	defer r.wmu.Unlock()

	r.mu.Lock()
	var displaced []unlinkEvent
	owner, moved := r.byGame[id]
	moved = moved && owner != chatID
	if moved {
		for _, old := range r.byChat[owner].IDs() {
			displaced = append(displaced, unlinkEvent{id: old, chatID: owner})
		}
	}
	next := Single(id)
	if cur, ok := r.byChat[chatID]; ok {
		next = cur.with(id)
		for _, old := range cur.IDs() {
			if !next.Contains(old) {
				displaced = append(displaced, unlinkEvent{id: old, chatID: chatID})
			}
		}
	}
	r.mu.Unlock()

	for _, ev := range displaced {
		r.hooks.BeforeUnlink(ev.id, ev.chatID)
	}

	r.mu.Lock()
	if moved {
		r.deleteLocked(owner)
	}
	r.putLocked(chatID, next)
	r.mu.Unlock()

	for _, ev := range displaced {
		r.hooks.AfterUnlink(ev.id, ev.chatID)
	}
	for _, linked := range next.IDs() {
		r.hooks.AfterLink(chatID, linked)
	}
	return nil
}

// UnlinkGame removes the record holding id, both slots of a pair included.
// Unknown ids are ignored.
func (r *Registry) UnlinkGame(id GameID) {
	r.wmu.Lock()
	defer r.wmu.Unlock()

	r.mu.Lock()
	chatID, ok := r.byGame[id]
	r.mu.Unlock()
	if ok {
		r.unlinkChat(chatID)
	}
}

// UnlinkChat removes every identity linked to chatID. Unknown ids are ignored.
func (r *Registry) UnlinkChat(chatID string) {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	r.unlinkChat(chatID)
}

// unlinkChat runs with wmu held.
func (r *Registry) unlinkChat(chatID string) {
	r.mu.Lock()
	rec, ok := r.byChat[chatID]
	r.mu.Unlock()
	if !ok {
		return
	}

	ids := rec.IDs()
	for _, id := range ids {
		r.hooks.BeforeUnlink(id, chatID)
	}
	r.mu.Lock()
	r.deleteLocked(chatID)
	r.mu.Unlock()
	for _, id := range ids {
		r.hooks.AfterUnlink(id, chatID)
	}

	r.log.Debug("unlinked chat id", logx.String("chat_id", chatID), logx.Int("ids", len(ids)))
}

// ---- table maintenance (mu held) ----

func (r *Registry) putLocked(chatID string, rec Record) {
	putInto(r.byChat, r.byGame, chatID, rec)
}

func (r *Registry) deleteLocked(chatID string) {
	rec, ok := r.byChat[chatID]
	if !ok {
		return
	}
	for _, id := range rec.IDs() {
		if r.byGame[id] == chatID {
			delete(r.byGame, id)
		}
	}
	delete(r.byChat, chatID)
}

func putInto(byChat map[string]Record, byGame map[GameID]string, chatID string, rec Record) {
	if old, ok := byChat[chatID]; ok {
		for _, id := range old.IDs() {
			if byGame[id] == chatID {
				delete(byGame, id)
			}
		}
	}
	byChat[chatID] = rec
	for _, id := range rec.IDs() {
		byGame[id] = chatID
	}
}
