package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Timeouts are the duration-valued settings with defaults applied.
type Timeouts struct {
	Poll        time.Duration
	Command     time.Duration
	CodeTTL     time.Duration
	BridgeRead  time.Duration
	BridgeWrite time.Duration
	BridgeIdle  time.Duration
	StorageBusy time.Duration
}

const (
	DefaultPollTimeout    = 10 * time.Second
	DefaultCommandTimeout = 30 * time.Second
	DefaultCodeTTL        = 10 * time.Minute
	DefaultBridgeTimeout  = 15 * time.Second
	DefaultBridgeIdle     = time.Minute
	DefaultBusyTimeout    = 5 * time.Second
)

// Timeouts parses every duration field. Empty or zero values take the
// default.
func (c *Config) Timeouts() (Timeouts, error) {
	var (
		t    Timeouts
		errs []error
	)
	get := func(dst *time.Duration, path, raw string, def time.Duration) {
		d, err := ParseDurationField(path, raw)
		if err != nil {
			errs = append(errs, err)
			return
		}
		if d == 0 {
			d = def
		}
		*dst = d
	}
	get(&t.Poll, "telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	get(&t.Command, "telegram.command_timeout", c.Telegram.CommandTimeout, DefaultCommandTimeout)
	get(&t.CodeTTL, "links.code_ttl", c.Links.CodeTTL, DefaultCodeTTL)
	get(&t.BridgeRead, "bridge.read_timeout", c.Bridge.ReadTimeout, DefaultBridgeTimeout)
	get(&t.BridgeWrite, "bridge.write_timeout", c.Bridge.WriteTimeout, DefaultBridgeTimeout)
	get(&t.BridgeIdle, "bridge.idle_timeout", c.Bridge.IdleTimeout, DefaultBridgeIdle)
	busy := ""
	if c.Storage != nil {
		busy = c.Storage.BusyTimeout
	}
	get(&t.StorageBusy, "storage.busy_timeout", busy, DefaultBusyTimeout)
	return t, errors.Join(errs...)
}

// ParseDurationField parses a Go duration; "" is 0. path prefixes errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
