// Package app wires linkbot together: config, logging, the Telegram
// transport, the link registry and its surfaces (commands, bridge, jobs).
package app

import (
	"context"
	"fmt"
	"time"

	"linkbot/internal/config"
	"linkbot/internal/eventbus"
	"linkbot/internal/gamebridge"
	"linkbot/internal/link"
	"linkbot/internal/link/codes"
	"linkbot/internal/linkcmd"
	rtsup "linkbot/internal/runtime/supervisor"
	"linkbot/internal/scheduler"
	"linkbot/internal/storage"
	kit "linkbot/internal/transport"
	telegram "linkbot/internal/transport/telegram/adapter"
	"linkbot/internal/transport/telegram/router"
	logx "linkbot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.ConfigManager
	sup     *rtsup.Supervisor

	log      logx.Logger
	logs     *logx.Service
	groupLog *groupLog
	bus      eventbus.Bus
	store    storage.Store

	adapter *telegram.Adapter
	users   linkcmd.Directory

	links    *linkState
	reg      *link.Registry
	codes    *codes.Table
	presence *gamebridge.Presence
	cmds     *linkcmd.Module
	cmdm     *router.CommandManager
	sched    *scheduler.Service
	bridge   *gamebridge.Service

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	to, err := cfg.Timeouts()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: to.Poll}, bootLog)
	if err != nil {
		return nil, err
	}

	// Target first so the chat sink has somewhere to send once enabled.
	gl := &groupLog{adapter: ad}
	gl.set(cfg.Telegram.GroupLog, cfg.Logging.Telegram.ThreadID)
	logSvc, log := logx.New(mapLogConfig(cfg), gl)
	log = log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg, to); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = st
		log.Info("audit storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	bus := eventbus.New()
	state := newLinkState()
	state.apply(cfg, to)

	reg := link.New(link.Config{
		Path:  cfg.Links.File,
		Hooks: link.MultiHooks{state.hooks(), eventbus.LinkHooks(bus)},
	}, log.With(logx.String("comp", "links")))

	table := codes.New()
	presence := gamebridge.NewPresence(cfg.Bridge.OutboxSize)
	users := linkcmd.Directory{Users: ad}

	redeemer := link.NewRedeemer(link.RedeemerConfig{
		Links:       reg,
		Codes:       table,
		Users:       users,
		Clients:     presence,
		AllowRelink: state.relink.Load,
		Messages:    state.currentMessages,
	}, log.With(logx.String("comp", "redeem")))

	deps := linkcmd.Deps{
		Links:        reg,
		Redeemer:     redeemer,
		Clients:      presence,
		Users:        users,
		PendingCodes: table.Len,
	}
	if store != nil {
		deps.Audit = store
	}
	cmds := linkcmd.New(deps, cfg.Links.AttemptsPerMinute, log.With(logx.String("comp", "linkcmd")))

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs, router.Options{
		Workers: cfg.Telegram.Workers,
		Timeout: to.Command,
	})
	cmdm.SetRegistry(cmds.Commands())
	cmdm.SetFallback(cmds.Fallback())

	sched := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, log.With(logx.String("comp", "scheduler")))

	bridge := gamebridge.New(mapBridgeConfig(cfg, to), gamebridge.Deps{
		Links:    reg,
		Codes:    table,
		Presence: presence,
		CodeTTL:  state.ttl,
	}, log.With(logx.String("comp", "bridge")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		groupLog: gl,
		bus:      bus,
		store:    store,
		adapter:  ad,
		users:    users,
		links:    state,
		reg:      reg,
		codes:    table,
		presence: presence,
		cmds:     cmds,
		cmdm:     cmdm,
		sched:    sched,
		bridge:   bridge,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.Links.AutosaveEnabled() {
			if _, err := scheduler.ParseSchedule(cfg.Links.Autosave); err != nil {
				return fmt.Errorf("links.autosave: %w", err)
			}
		}
		if _, err := scheduler.ParseSchedule(cfg.Scheduler.PruneCodes); err != nil {
			return fmt.Errorf("scheduler.prune_codes: %w", err)
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if a.store != nil {
		events, unsub := a.bus.Subscribe(1024, eventbus.TypeLinked, eventbus.TypeUnlinked)
		a.sup.Go0("links.audit", func(c context.Context) {
			defer unsub()
			a.auditLoop(c, events)
		})
	}
	announce, unsubAnnounce := a.bus.Subscribe(64, eventbus.TypeLinked, eventbus.TypeUnlinked)
	a.sup.Go0("links.announce", func(c context.Context) {
		defer unsubAnnounce()
		a.announceLoop(c, announce)
	})
	a.sup.Go0("links.save_on_change", a.saveOnChangeLoop)

	a.registerJobs(a.cfgm.Get())
	a.sched.Start(a.sup.Context())

	a.sup.GoRestart("bridge", a.bridge.Run,
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		rtsup.WithStopOnCleanExit(true),
	)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Int("links", a.reg.Count()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	// Dispatcher, bridge and audit writer unwind under the supervisor.
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "links.save", 5*time.Second, func(context.Context) error {
		if a.reg.Path() == "" {
			return nil
		}
		a.links.dirty.Store(false)
		return a.reg.Save()
	})
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Int("links", a.reg.Count()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs fn bounded by max (and ctx); a step that overruns is logged and
// left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, no time left", logx.String("name", name))
		return
	}
	sctx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(sctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-sctx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
