package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config selects a driver. Driver "" or "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

const (
	ActionLink   = "link"
	ActionUnlink = "unlink"
)

// AuditEntry records one change of the link table.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Action string    `json:"action"`
	ChatID string    `json:"chat_id"`
	GameID string    `json:"game_id"`
	Kind   string    `json:"kind"`
}
