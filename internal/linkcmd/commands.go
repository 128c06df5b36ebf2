// Package linkcmd is the chat surface of the link registry: the /link flow
// and its owner tools.
package linkcmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"linkbot/internal/link"
	"linkbot/internal/storage"
	"linkbot/internal/transport/telegram/router"
	logx "linkbot/pkg/logx"
)

const (
	defaultLogLimit = 10
	maxLogLimit     = 50
)

// Registry is what the commands need from link.Registry.
type Registry interface {
	link.Linker
	ChatIDFor(id link.GameID) (string, bool)
	Count() int
	Save() error
	Path() string
}

type AuditReader interface {
	RecentAudit(ctx context.Context, limit int) ([]storage.AuditEntry, error)
}

type Deps struct {
	Links    Registry
	Redeemer *link.Redeemer
	Clients  link.Clients       // optional
	Users    link.ChatDirectory // optional
	Audit    AuditReader        // optional
	// Codes reports pending codes for /links; optional.
	PendingCodes func() int
}

type Module struct {
	deps    Deps
	log     logx.Logger
	limiter *attemptLimiter
}

func New(deps Deps, attemptsPerMinute int, log logx.Logger) *Module {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Module{deps: deps, log: log, limiter: newAttemptLimiter(attemptsPerMinute)}
}

// SetAttemptsPerMinute applies a reloaded rate; counters restart.
func (m *Module) SetAttemptsPerMinute(n int) { m.limiter.setRate(n) }

func (m *Module) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "link",
			Description: "link your game account with a code",
			Usage:       "/link <code>",
			Handle:      m.handleLink,
		},
		{
			Name:        "unlink",
			Description: "remove your linked game accounts",
			Usage:       "/unlink",
			Handle:      m.handleUnlink,
		},
		{
			Name:        "whoami",
			Aliases:     []string{"me"},
			Description: "show your linked game accounts",
			Usage:       "/whoami",
			Handle:      m.handleWhoami,
		},
		{
			Name:        "links",
			Description: "link table stats; 'save' writes it now",
			Usage:       "/links [save]",
			Access:      router.AccessOwnerOnly,
			Timeout:     time.Minute,
			Handle:      m.handleLinks,
		},
		{
			Name:        "lookup",
			Description: "find a link by game id or chat id",
			Usage:       "/lookup <game-id|chat-id>",
			Access:      router.AccessOwnerOnly,
			Handle:      m.handleLookup,
		},
		{
			Name:        "linklog",
			Description: "recent link changes",
			Usage:       "/linklog [n]",
			Access:      router.AccessOwnerOnly,
			Handle:      m.handleLinkLog,
		},
	}
}

// Fallback redeems a code sent as a plain private message.
func (m *Module) Fallback() router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if link.DigitsOnly(req.ArgText) == "" {
			return req.Reply(ctx, "Send the code shown in game to link your account, or /help.")
		}
		return m.redeem(ctx, req, req.ArgText)
	}
}

func (m *Module) handleLink(ctx context.Context, req *router.Request) error {
	if strings.TrimSpace(req.ArgText) == "" {
		return req.Reply(ctx, "usage: /link <code>\nRun the link command in game to get a code.")
	}
	return m.redeem(ctx, req, req.ArgText)
}

func (m *Module) redeem(ctx context.Context, req *router.Request, code string) error {
	if !m.limiter.allow(req.FromID) {
		req.Logger.Info("link attempt throttled")
		return req.Reply(ctx, "Too many attempts. Wait a minute and try again.")
	}
	return req.Reply(ctx, m.deps.Redeemer.Process(ctx, code, chatID(req)))
}

func (m *Module) handleUnlink(ctx context.Context, req *router.Request) error {
	id := chatID(req)
	rec, ok := m.deps.Links.GameIDsFor(id)
	if !ok {
		return req.Reply(ctx, "You have no linked game account.")
	}
	m.deps.Links.UnlinkChat(id)
	return req.Reply(ctx, "Unlinked "+m.describe(rec)+".")
}

func (m *Module) handleWhoami(ctx context.Context, req *router.Request) error {
	rec, ok := m.deps.Links.GameIDsFor(chatID(req))
	if !ok {
		return req.Reply(ctx, "You have no linked game account. Use /link <code>.")
	}
	return req.Reply(ctx, "Linked to "+m.describe(rec)+".")
}

func (m *Module) handleLinks(ctx context.Context, req *router.Request) error {
	if len(req.Args) > 0 && strings.EqualFold(req.Args[0], "save") {
		if m.deps.Links.Path() == "" {
			return req.Reply(ctx, "links are in-memory only; nothing to save")
		}
		start := time.Now()
		if err := m.deps.Links.Save(); err != nil {
			_ = req.Reply(ctx, "save failed: "+err.Error())
			return err
		}
		return req.Reply(ctx, fmt.Sprintf("saved %d links to %s in %s",
			m.deps.Links.Count(), m.deps.Links.Path(), time.Since(start).Round(time.Millisecond)))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "linked accounts: %d", m.deps.Links.Count())
	if m.deps.PendingCodes != nil {
		fmt.Fprintf(&b, "\npending codes: %d", m.deps.PendingCodes())
	}
	if p := m.deps.Links.Path(); p != "" {
		fmt.Fprintf(&b, "\nfile: %s", p)
	}
	return req.Reply(ctx, b.String())
}

func (m *Module) handleLookup(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, "usage: /lookup <game-id|chat-id>")
	}
	arg := req.Args[0]
	if id, err := link.ParseGameID(arg); err == nil {
		cid, ok := m.deps.Links.ChatIDFor(id)
		if !ok {
			return req.Reply(ctx, id.String()+" is not linked.")
		}
		return req.Reply(ctx, fmt.Sprintf("%s (%s) -> %s", id, id.Kind(), m.chatLabel(ctx, cid)))
	}
	if _, err := strconv.ParseInt(arg, 10, 64); err != nil {
		return req.Reply(ctx, "not a game id or chat id: "+arg)
	}
	rec, ok := m.deps.Links.GameIDsFor(arg)
	if !ok {
		return req.Reply(ctx, m.chatLabel(ctx, arg)+" has no linked game account.")
	}
	return req.Reply(ctx, m.chatLabel(ctx, arg)+" -> "+m.describe(rec))
}

func (m *Module) handleLinkLog(ctx context.Context, req *router.Request) error {
	if m.deps.Audit == nil {
		return req.Reply(ctx, "audit log is disabled (storage.driver)")
	}
	n := defaultLogLimit
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v <= 0 {
			return req.Reply(ctx, "usage: /linklog [n]")
		}
		n = min(v, maxLogLimit)
	}
	entries, err := m.deps.Audit.RecentAudit(ctx, n)
	if err != nil {
		_ = req.Reply(ctx, "audit read failed: "+err.Error())
		return err
	}
	if len(entries) == 0 {
		return req.Reply(ctx, "no link changes recorded")
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %-6s %s %s (%s)", e.At.Local().Format("01-02 15:04:05"), e.Action, e.ChatID, e.GameID, e.Kind)
	}
	return req.Reply(ctx, b.String())
}

func (m *Module) describe(rec link.Record) string {
	ids := rec.IDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		name := ""
		if m.deps.Clients != nil {
			if p, ok := m.deps.Clients.Profile(id); ok {
				name = p.Name + " "
			}
		}
		parts = append(parts, fmt.Sprintf("%s %s(%s)", id.Kind(), name, id))
	}
	return strings.Join(parts, " and ")
}

func (m *Module) chatLabel(ctx context.Context, cid string) string {
	if m.deps.Users != nil {
		if u, ok := m.deps.Users.LookupUser(ctx, cid); ok && u.Mention != "" {
			return u.Mention + " (" + cid + ")"
		}
	}
	return cid
}

func chatID(req *router.Request) string { return strconv.FormatInt(req.FromID, 10) }
