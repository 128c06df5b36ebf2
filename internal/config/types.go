package config

import "linkbot/internal/link"

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage backs the link audit log. Omitted means no audit log.
	Storage *StorageConfig `json:"storage,omitempty"`

	Links     LinksConfig     `json:"links"`
	Bridge    BridgeConfig    `json:"bridge,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the operators' chat id; link announcements and log lines go
	// there.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout"`
	// Workers handling commands in parallel. Default 4.
	Workers int `json:"workers,omitempty"`
	// CommandTimeout bounds every command handler. Default "30s".
	CommandTimeout string `json:"command_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the audit log backend.
//
//	"storage": { "driver": "sqlite", "path": "./data/audit.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // file | sqlite | none
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// LinksConfig drives the account-link registry and code redemption.
type LinksConfig struct {
	// File is the linked-accounts JSON document.
	File string `json:"file"`
	// Autosave is a cron spec for periodic saves ("@every 5m" by default,
	// "off" to save on change and shutdown only).
	Autosave string `json:"autosave,omitempty"`
	// AllowRelinkByNewCode lets an already linked chat user redeem a new code,
	// replacing the existing link.
	AllowRelinkByNewCode bool `json:"allow_relink_by_new_code"`
	// CodeTTL is how long a code issued by the game server stays valid.
	CodeTTL string `json:"code_ttl,omitempty"`
	// Announce posts link changes to telegram.group_log.
	Announce bool `json:"announce,omitempty"`
	// AttemptsPerMinute caps /link attempts per chat user. Default 5.
	AttemptsPerMinute int `json:"attempts_per_minute,omitempty"`

	Messages link.Messages `json:"messages,omitempty"`
}

// BridgeConfig controls the HTTP endpoint the game server talks to.
//
// Bind to loopback unless a token is set; a public address without a token is
// refused unless allow_insecure is set.
type BridgeConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8765"
	Token         string `json:"token,omitempty"` // bearer token, never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// OutboxSize bounds queued in-game messages per player. Default 16.
	OutboxSize int `json:"outbox_size,omitempty"`
}

type SchedulerConfig struct {
	// Timezone for cron specs, IANA name. Default local.
	Timezone string `json:"timezone,omitempty"`
	// PruneCodes is the cron spec of the expired-code sweep. Default "@every 1m".
	PruneCodes string `json:"prune_codes,omitempty"`
}

const (
	DefaultLinksFile      = "./data/linked-accounts.json"
	DefaultAutosave       = "@every 5m"
	DefaultPruneCodes     = "@every 1m"
	DefaultBridgeAddr     = "127.0.0.1:8765"
	DefaultAttemptsPerMin = 5
)
