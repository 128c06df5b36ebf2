package config

import (
	"reflect"
	"strings"

	logx "linkbot/pkg/logx"
)

// SummarizeChange lists the sections that differ and log fields describing
// the new values. Secrets are reported only as "set".
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout || ot.GroupLog != nt.GroupLog ||
		ot.Workers != nt.Workers || ot.CommandTimeout != nt.CommandTimeout ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if newCfg.Storage != nil {
			fields = append(fields, logx.String("storage.driver", newCfg.Storage.Driver))
		}
	}

	if !reflect.DeepEqual(oldCfg.Links, newCfg.Links) {
		changed = append(changed, "links")
		fields = append(fields,
			logx.String("links.file", newCfg.Links.File),
			logx.String("links.autosave", newCfg.Links.Autosave),
			logx.Bool("links.allow_relink", newCfg.Links.AllowRelinkByNewCode),
			logx.Bool("links.announce", newCfg.Links.Announce),
			logx.Int("links.attempts_per_minute", newCfg.Links.AttemptsPerMinute),
		)
	}

	if oldCfg.Bridge != newCfg.Bridge {
		nb := newCfg.Bridge
		changed = append(changed, "bridge")
		fields = append(fields,
			logx.Bool("bridge.enabled", nb.Enabled),
			logx.String("bridge.addr", nb.Addr),
			logx.Bool("bridge.token_set", strings.TrimSpace(nb.Token) != ""),
			logx.Bool("bridge.token_changed", oldCfg.Bridge.Token != nb.Token),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.prune_codes", newCfg.Scheduler.PruneCodes),
		)
	}
	return changed, fields
}

// RequiresRestart reports whether the change touches settings only read at
// startup.
func RequiresRestart(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Links.File != newCfg.Links.File {
		return true
	}
	return !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage)
}
