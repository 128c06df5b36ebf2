package app

import (
	"fmt"
	"strings"

	"linkbot/internal/config"
	"linkbot/internal/gamebridge"
	"linkbot/internal/storage"
	logx "linkbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config, to config.Timeouts) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "file":
		if path == "" {
			path = "./data/audit.jsonl"
		}
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: to.StorageBusy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapBridgeConfig(cfg *config.Config, to config.Timeouts) gamebridge.Config {
	b := cfg.Bridge
	return gamebridge.Config{
		Enabled:       b.Enabled,
		Addr:          b.Addr,
		Token:         b.Token,
		AllowInsecure: b.AllowInsecure,
		ReadTimeout:   to.BridgeRead,
		WriteTimeout:  to.BridgeWrite,
		IdleTimeout:   to.BridgeIdle,
	}
}
