package app

import (
	"context"
	"errors"
	"sync/atomic"

	kit "linkbot/internal/transport"
)

var errNoGroupLog = errors.New("telegram.group_log is not set")

// groupLog sends to the operators' chat (telegram.group_log). It is the
// logx chat Sender and the target of link announcements.
type groupLog struct {
	adapter kit.Adapter
	target  atomic.Pointer[kit.ChatTarget]
}

// set parses "chat_id[:thread]"; threadID > 0 overrides the thread.
func (g *groupLog) set(raw string, threadID int) {
	t, ok := kit.ParseChatTarget(raw)
	if !ok {
		g.target.Store(nil)
		return
	}
	if threadID > 0 {
		t.ThreadID = threadID
	}
	g.target.Store(&t)
}

func (g *groupLog) configured() bool { return g.target.Load() != nil }

func (g *groupLog) send(ctx context.Context, text string) error {
	t := g.target.Load()
	if t == nil {
		return errNoGroupLog
	}
	_, err := g.adapter.SendText(ctx, *t, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// SendLog implements logx.Sender.
func (g *groupLog) SendLog(ctx context.Context, text string) error { return g.send(ctx, text) }
