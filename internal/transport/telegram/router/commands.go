// Package router dispatches chat updates to commands through a bounded worker
// pool.
package router

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "linkbot/internal/runtime/supervisor"
	kit "linkbot/internal/transport"
	logx "linkbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Timeout overrides the manager default when > 0.
	Timeout time.Duration
	Handle  HandlerFunc
}

// Request is one routed message.
type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	// Command is the canonical name, "" for the fallback handler.
	Command string
	Args    []string
	// ArgText is everything after the command token, untokenized.
	ArgText string
	IsOwner bool
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply answers in the originating chat, quoting the message.
func (r *Request) Reply(ctx context.Context, text string) error {
	opt := &kit.SendOptions{DisablePreview: true}
	if r.Message != nil {
		opt.ReplyToMessageID = r.Message.ID
	}
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

func (r *Request) logger(def logx.Logger) logx.Logger {
	if r != nil && !r.Logger.IsZero() {
		return r.Logger
	}
	return def
}

type Options struct {
	Workers   int
	QueueSize int
	// Timeout is the default per-command timeout.
	Timeout time.Duration
}

type CommandManager struct {
	log     logx.Logger
	adapter kit.Adapter

	mu       sync.RWMutex
	cmds     map[string]*Command // name and aliases
	list     []*Command
	fallback HandlerFunc
	owners   []int64

	timeout atomic.Int64
	workers int
	jobs    chan func()
	closed  atomic.Bool
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64, opt Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	m := &CommandManager{
		log:     log,
		adapter: adapter,
		cmds:    map[string]*Command{},
		owners:  slices.Clone(owners),
		workers: opt.Workers,
		jobs:    make(chan func(), opt.QueueSize),
	}
	m.timeout.Store(int64(opt.Timeout))
	return m
}

// SetOwners replaces the owner list; safe during hot reload.
func (m *CommandManager) SetOwners(owners []int64) {
	m.mu.Lock()
	m.owners = slices.Clone(owners)
	m.mu.Unlock()
}

func (m *CommandManager) SetDefaultTimeout(d time.Duration) { m.timeout.Store(int64(d)) }

func (m *CommandManager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.owners, id)
}

// SetFallback installs the handler for private-chat text that is not a
// command.
func (m *CommandManager) SetFallback(h HandlerFunc) {
	m.mu.Lock()
	m.fallback = h
	m.mu.Unlock()
}

// SetRegistry replaces the command set. /help is always added. The menu is
// pushed to the adapter in the background when supported.
func (m *CommandManager) SetRegistry(cmds []Command) {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "list commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.Args, req.IsOwner))
		},
	})

	byName := map[string]*Command{}
	var list []*Command
	for i := range cmds {
		c := &cmds[i]
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		list = append(list, c)
	}
	for _, c := range list {
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if _, taken := byName[a]; a != "" && !taken {
				byName[a] = c
			}
		}
	}
	slices.SortFunc(list, func(a, b *Command) int { return strings.Compare(a.Name, b.Name) })

	m.mu.Lock()
	m.cmds = byName
	m.list = list
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenu(list)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Warn("command menu update failed", logx.Err(err))
			}
		}()
	}
}

// DispatchLoop routes updates until ctx ends or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(m.log.With(logx.String("comp", "router"))))
	for i := 0; i < m.workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), m.worker,
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("queue_cap", cap(m.jobs)))

	defer func() {
		m.closed.Store(true)
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.Route(ctx, up)
		}
	}
}

func (m *CommandManager) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-m.jobs:
			job()
		}
	}
}

// Route resolves one update and queues its handler.
func (m *CommandManager) Route(ctx context.Context, up kit.Update) {
	msg := up.Message
	if up.Kind != kit.UpdateMessage || msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	owner := m.isOwner(msg.FromID)

	if !strings.HasPrefix(text, "/") {
		m.mu.RLock()
		fb := m.fallback
		m.mu.RUnlock()
		if fb == nil || !msg.IsPrivate || text == "" {
			return
		}
		m.enqueue(ctx, &Command{Handle: fb}, &Request{
			Message: msg, Chat: chat, FromID: msg.FromID, ArgText: text,
			Args: tokenizeCommandLine(text), IsOwner: owner, Adapter: m.adapter,
		})
		return
	}

	tokens := tokenizeCommandLine(text)
	word := commandWord(tokens[0])
	m.mu.RLock()
	cmd := m.cmds[word]
	m.mu.RUnlock()
	if cmd == nil {
		// Groups may host other bots; stay quiet there.
		if msg.IsPrivate {
			_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		}
		return
	}
	if cmd.Access == AccessOwnerOnly && !owner {
		_, _ = m.adapter.SendText(ctx, chat, "unauthorized", nil)
		return
	}
	m.enqueue(ctx, cmd, &Request{
		Message: msg, Chat: chat, FromID: msg.FromID, Command: cmd.Name,
		Args: tokens[1:], ArgText: argText(text), IsOwner: owner, Adapter: m.adapter,
	})
}

func (m *CommandManager) enqueue(ctx context.Context, cmd *Command, req *Request) {
	req.ReqID = newReqID()
	req.Logger = m.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
		logx.String("cmd", req.Command),
	)
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = time.Duration(m.timeout.Load())
	}
	h := Chain(cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	if m.closed.Load() {
		return
	}
	select {
	case m.jobs <- func() { _ = h(ctx, req) }:
	default:
		_, _ = m.adapter.SendText(ctx, req.Chat, "busy, try again", nil)
	}
}
