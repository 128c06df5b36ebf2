package app

import (
	"context"
	"strings"

	"linkbot/internal/config"
	"linkbot/internal/scheduler"
	logx "linkbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// keep only the newest of a burst
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, fields := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if config.RequiresRestart(prev, next) {
		a.log.Warn("telegram.token, links.file or storage changed; restart required for those to take effect")
	}
	to, err := next.Timeouts()
	if err != nil {
		a.log.Warn("invalid durations in reloaded config; keeping previous", logx.Err(err))
		return
	}

	a.groupLog.set(next.Telegram.GroupLog, next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(next))

	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)
	a.cmdm.SetDefaultTimeout(to.Command)

	a.links.apply(next, to)
	a.cmds.SetAttemptsPerMinute(next.Links.AttemptsPerMinute)
	a.presence.SetOutboxSize(next.Bridge.OutboxSize)

	a.sched.Apply(scheduler.Config{Timezone: next.Scheduler.Timezone})
	a.registerJobs(next)
	if !next.Links.AutosaveEnabled() && a.links.dirty.Load() {
		a.links.changed()
	}

	a.bridge.Reconfigure(mapBridgeConfig(next, to))

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}
