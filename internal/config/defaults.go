package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Normalize fills omitted fields with their defaults. It does not validate.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Links.File) == "" {
		c.Links.File = DefaultLinksFile
	}
	if strings.TrimSpace(c.Links.Autosave) == "" {
		c.Links.Autosave = DefaultAutosave
	}
	if c.Links.AttemptsPerMinute <= 0 {
		c.Links.AttemptsPerMinute = DefaultAttemptsPerMin
	}
	if strings.TrimSpace(c.Bridge.Addr) == "" {
		c.Bridge.Addr = DefaultBridgeAddr
	}
	if strings.TrimSpace(c.Scheduler.PruneCodes) == "" {
		c.Scheduler.PruneCodes = DefaultPruneCodes
	}
	if c.Telegram.Workers <= 0 {
		c.Telegram.Workers = 4
	}
}

// AutosaveEnabled reports whether a periodic save job should be scheduled.
func (l LinksConfig) AutosaveEnabled() bool {
	s := strings.ToLower(strings.TrimSpace(l.Autosave))
	return s != "off" && s != "false" && s != "0"
}

// Validate checks cross-field rules. It expects a normalized config.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if _, err := c.Timeouts(); err != nil {
		errs = append(errs, err)
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
		}
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if c.Bridge.Enabled {
		if _, _, err := net.SplitHostPort(c.Bridge.Addr); err != nil {
			errs = append(errs, fmt.Errorf("bridge.addr: %w", err))
		} else if !IsLoopbackAddr(c.Bridge.Addr) && strings.TrimSpace(c.Bridge.Token) == "" && !c.Bridge.AllowInsecure {
			errs = append(errs, fmt.Errorf("bridge.addr %q is not loopback; set bridge.token or bridge.allow_insecure", c.Bridge.Addr))
		}
	}
	return errors.Join(errs...)
}

// IsLoopbackAddr reports whether a host:port listen address only accepts local
// connections. An empty host ("":8765) listens on all interfaces.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
