package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender delivers a rendered log line to the operators' chat.
type Sender interface {
	SendLog(ctx context.Context, text string) error
}

const (
	chatQueueSize   = 256
	chatMaxLen      = 3500
	chatFieldMax    = 600
	chatSendTimeout = 10 * time.Second
)

// chatSink is a zerolog.LevelWriter that never blocks the logging call: lines
// are rate limited, queued and sent by a single worker. Overflow is dropped.
type chatSink struct {
	mu       sync.Mutex
	sender   Sender
	limiter  *rate.Limiter
	minLevel zerolog.Level

	queue  chan string
	start  sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newChatSink(sender Sender) *chatSink {
	return &chatSink{
		sender:   sender,
		limiter:  rate.NewLimiter(1, 1),
		minLevel: zerolog.WarnLevel,
		queue:    make(chan string, chatQueueSize),
	}
}

func (c *chatSink) setSender(s Sender) {
	c.mu.Lock()
	c.sender = s
	c.mu.Unlock()
}

func (c *chatSink) configure(cfg ChatConfig) {
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 1
	}
	c.mu.Lock()
	c.minLevel = ParseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	c.mu.Unlock()

	if cfg.Enabled {
		c.start.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			c.mu.Lock()
			c.cancel = cancel
			c.mu.Unlock()
			c.wg.Add(1)
			go c.run(ctx)
		})
	}
}

func (c *chatSink) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-c.queue:
			c.mu.Lock()
			sender := c.sender
			c.mu.Unlock()
			if sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, chatSendTimeout)
			_ = sender.SendLog(sctx, text)
			cancel()
		}
	}
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	ready := c.sender != nil && level >= c.minLevel && c.limiter.Allow()
	c.mu.Unlock()
	if !ready {
		return len(p), nil
	}
	if text := formatChatLine(p); text != "" {
		select {
		case c.queue <- text:
		default:
		}
	}
	return len(p), nil
}

// formatChatLine renders a zerolog JSON line as "[LEVEL] message" followed by
// one "- key=value" line per field, keys sorted.
func formatChatLine(p []byte) string {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(string(p), chatMaxLen)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(m[k]), chatFieldMax))
	}
	return truncate(b.String(), chatMaxLen)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
