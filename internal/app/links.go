package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"linkbot/internal/config"
	"linkbot/internal/eventbus"
	"linkbot/internal/gamebridge"
	"linkbot/internal/link"
	"linkbot/internal/link/codes"
	"linkbot/internal/storage"
	logx "linkbot/pkg/logx"
)

const (
	jobAutosave   = "links.autosave"
	jobPruneCodes = "codes.prune"
)

// linkState holds the hot-reloadable link settings and the unsaved-change
// flag shared by hooks, jobs and commands.
type linkState struct {
	relink   atomic.Bool
	announce atomic.Bool
	autosave atomic.Bool
	codeTTL  atomic.Int64
	messages atomic.Pointer[link.Messages]

	dirty atomic.Bool
	kick  chan struct{}
}

func newLinkState() *linkState {
	return &linkState{kick: make(chan struct{}, 1)}
}

func (s *linkState) apply(cfg *config.Config, to config.Timeouts) {
	s.relink.Store(cfg.Links.AllowRelinkByNewCode)
	s.announce.Store(cfg.Links.Announce)
	s.autosave.Store(cfg.Links.AutosaveEnabled())
	s.codeTTL.Store(int64(to.CodeTTL))
	m := cfg.Links.Messages.WithDefaults()
	s.messages.Store(&m)
}

func (s *linkState) currentMessages() link.Messages {
	if p := s.messages.Load(); p != nil {
		return *p
	}
	return link.DefaultMessages()
}

func (s *linkState) ttl() time.Duration { return time.Duration(s.codeTTL.Load()) }

// changed marks the table dirty. Without autosave it also wakes the
// save-on-change loop.
func (s *linkState) changed() {
	s.dirty.Store(true)
	if s.autosave.Load() {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *linkState) hooks() link.Hooks {
	return link.HookFuncs{
		OnAfterLink:   func(string, link.GameID) { s.changed() },
		OnAfterUnlink: func(link.GameID, string) { s.changed() },
	}
}

// saveIfDirty writes the registry when it changed since the last save.
func (a *App) saveIfDirty(context.Context) error {
	if !a.links.dirty.Swap(false) {
		return nil
	}
	if err := a.reg.Save(); err != nil {
		a.links.dirty.Store(true)
		return err
	}
	a.log.Debug("linked accounts saved", logx.Int("count", a.reg.Count()))
	return nil
}

func (a *App) saveOnChangeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.links.kick:
			if err := a.saveIfDirty(ctx); err != nil {
				a.log.Error("save linked accounts failed", logx.Err(err))
			}
		}
	}
}

func pruneJob(table *codes.Table, log logx.Logger) func(context.Context) error {
	return func(context.Context) error {
		if n := table.Prune(); n > 0 {
			log.Debug("expired codes pruned", logx.Int("count", n), logx.Int("left", table.Len()))
		}
		return nil
	}
}

// registerJobs (re)installs the periodic jobs from cfg.
func (a *App) registerJobs(cfg *config.Config) {
	if cfg.Links.AutosaveEnabled() {
		if err := a.sched.Add(jobAutosave, cfg.Links.Autosave, time.Minute, a.saveIfDirty); err != nil {
			a.log.Error("autosave schedule rejected", logx.String("spec", cfg.Links.Autosave), logx.Err(err))
		}
	} else if a.sched.Remove(jobAutosave) {
		a.log.Info("autosave disabled; saving on change")
	}
	if err := a.sched.Add(jobPruneCodes, cfg.Scheduler.PruneCodes, 10*time.Second, pruneJob(a.codes, a.log)); err != nil {
		a.log.Error("code prune schedule rejected", logx.String("spec", cfg.Scheduler.PruneCodes), logx.Err(err))
	}
}

// auditLoop writes link events to the store.
func (a *App) auditLoop(ctx context.Context, events <-chan eventbus.Event) {
	write := func(e eventbus.Event) {
		ch, ok := e.Data.(eventbus.LinkChange)
		if !ok {
			return
		}
		action := storage.ActionLink
		if e.Type == eventbus.TypeUnlinked {
			action = storage.ActionUnlink
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err := a.store.AppendAudit(wctx, storage.AuditEntry{
			At:     e.Time,
			Action: action,
			ChatID: ch.ChatID,
			GameID: ch.GameID.String(),
			Kind:   ch.GameID.Kind().String(),
		})
		if err != nil {
			a.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
		}
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return
					}
					write(e)
				default:
					return
				}
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			write(e)
		}
	}
}

// announceLoop posts link changes to the group log while links.announce is
// on.
func (a *App) announceLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			ch, ok := e.Data.(eventbus.LinkChange)
			if !ok || !a.links.announce.Load() || !a.groupLog.configured() {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := a.groupLog.send(sctx, a.announcement(sctx, e.Type, ch)); err != nil {
				a.log.Warn("link announcement failed", logx.Err(err))
			}
			cancel()
		}
	}
}

func (a *App) announcement(ctx context.Context, typ string, ch eventbus.LinkChange) string {
	who := ch.ChatID
	if u, ok := a.users.LookupUser(ctx, ch.ChatID); ok && u.Mention != "" {
		who = u.Mention + " (" + ch.ChatID + ")"
	}
	player := ch.GameID.String()
	if p, ok := a.presence.Profile(ch.GameID); ok {
		player = p.Name + " (" + player + ")"
	}
	verb := "linked"
	if typ == eventbus.TypeUnlinked {
		verb = "unlinked"
	}
	return fmt.Sprintf("%s %s %s account %s", who, verb, ch.GameID.Kind(), player)
}

var _ link.Clients = (*gamebridge.Presence)(nil)
