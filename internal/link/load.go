package link

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	logx "linkbot/pkg/logx"
)

// ErrMalformedDocument means the link file is not a JSON object (and not the
// tolerated bare-primitive legacy shape).
var ErrMalformedDocument = errors.New("link: malformed linked accounts document")

type loadedEntry struct {
	chatID string
	rec    Record
}

// Load replaces the table with the contents of the backing file.
//
// A missing or empty file yields an empty table. On I/O or document errors the
// current table is kept and the error returned.
func (r *Registry) Load() error {
	if r.path == "" {
		return nil
	}
	b, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.replace(nil)
			return nil
		}
		return fmt.Errorf("read linked accounts: %w", err)
	}
	entries, err := decodeEntries(b, r.log)
	if err != nil {
		return err
	}
	n := r.replace(entries)
	r.log.Info("linked accounts loaded", logx.String("path", r.path), logx.Int("accounts", n))
	return nil
}

// LoadBytes replaces the table with a decoded document held in memory.
func (r *Registry) LoadBytes(b []byte) error {
	entries, err := decodeEntries(b, r.log)
	if err != nil {
		return err
	}
	r.replace(entries)
	return nil
}

func (r *Registry) replace(entries []loadedEntry) int {
	byChat := make(map[string]Record, len(entries))
	byGame := make(map[GameID]string, len(entries))
	for _, e := range entries {
		// Later entries win over earlier owners of the same game id.
		for _, id := range e.rec.IDs() {
			owner, ok := byGame[id]
			if !ok || owner == e.chatID {
				continue
			}
			r.log.Warn("game id linked twice in file; keeping the later entry",
				logx.String("game_id", id.String()),
				logx.String("dropped_chat_id", owner),
				logx.String("chat_id", e.chatID),
			)
			if rest, keep := byChat[owner].without(id); keep {
				putInto(byChat, byGame, owner, rest)
			} else {
				delete(byChat, owner)
				delete(byGame, id)
			}
		}
		putInto(byChat, byGame, e.chatID, e.rec)
	}

	r.wmu.Lock()
	r.mu.Lock()
	r.byChat = byChat
	r.byGame = byGame
	r.mu.Unlock()
	r.wmu.Unlock()
	return len(byChat)
}

// decodeEntries parses the link document, keeping file order.
func decodeEntries(b []byte, log logx.Logger) ([]loadedEntry, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	delim, isDelim := tok.(json.Delim)
	if !isDelim {
		// Some old releases wrote a bare primitive here.
		if err := expectEOF(dec); err != nil {
			return nil, err
		}
		log.Warn("linked accounts file holds a bare value; starting with an empty table")
		return nil, nil
	}
	if delim != '{' {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrMalformedDocument)
	}

	var out []loadedEntry
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		if e, ok := parseEntry(key, raw, log); ok {
			out = append(out, e)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}
	return out, nil
}

func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return fmt.Errorf("%w: trailing data", ErrMalformedDocument)
		}
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return nil
}

func parseEntry(key string, raw json.RawMessage, log logx.Logger) (loadedEntry, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return loadedEntry{}, false
	}
	switch raw[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			log.Warn("skipping unreadable linked account", logx.String("key", key), logx.Err(err))
			return loadedEntry{}, false
		}
		// Fewer than two elements is a leftover of a broken writer, not a single link.
		if len(arr) < 2 || key == "" {
			return loadedEntry{}, false
		}
		a, errA := parseArrayID(arr[0])
		b, errB := parseArrayID(arr[1])
		if err := errors.Join(errA, errB); err != nil {
			log.Warn("skipping linked account with bad game id", logx.String("key", key), logx.Err(err))
			return loadedEntry{}, false
		}
		rec, ok := Dual(a, b)
		if !ok {
			log.Warn("skipping linked account pair of the same kind; the entry will be lost on the next save",
				logx.String("key", key),
				logx.String("kind", a.Kind().String()),
			)
			return loadedEntry{}, false
		}
		return loadedEntry{chatID: key, rec: rec}, true

	default:
		val, err := scalarString(raw)
		if err != nil {
			log.Warn("skipping linked account with unsupported value", logx.String("key", key), logx.String("value", string(raw)), logx.Err(err))
			return loadedEntry{}, false
		}
		if key == "" || val == "" {
			return loadedEntry{}, false
		}
		if id, err := ParseGameID(val); err == nil && !id.IsZero() {
			return loadedEntry{chatID: key, rec: Single(id)}, true
		}
		// Inverted legacy layout: game id as key, chat id as value.
		if id, err := ParseGameID(key); err == nil && !id.IsZero() {
			return loadedEntry{chatID: val, rec: Single(id)}, true
		}
		log.Warn("failed to load a linked account entry; deleting the linked accounts file is strongly recommended",
			logx.String("key", key),
			logx.String("value", val),
		)
		return loadedEntry{}, false
	}
}

// scalarString reads a string value, or the literal text of a number (old
// files stored numeric chat ids unquoted).
func scalarString(raw json.RawMessage) (string, error) {
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func parseArrayID(raw json.RawMessage) (GameID, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return NilGameID, err
	}
	id, err := ParseGameID(s)
	if err != nil {
		return NilGameID, err
	}
	if id.IsZero() {
		return NilGameID, ErrNilGameID
	}
	return id, nil
}
