package router

import (
	"strings"
	"unicode"

	kit "linkbot/internal/transport"
)

// helpText lists the commands visible to the caller, or details one command.
func (m *CommandManager) helpText(args []string, owner bool) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(args) > 0 {
		name := strings.ToLower(strings.TrimPrefix(args[0], "/"))
		c := m.cmds[name]
		if c == nil || (c.Access == AccessOwnerOnly && !owner) {
			return "Unknown command. Try /help"
		}
		var b strings.Builder
		b.WriteString("/" + c.Name)
		if c.Description != "" {
			b.WriteString(" - " + c.Description)
		}
		if c.Usage != "" {
			b.WriteString("\nUsage: " + c.Usage)
		}
		if len(c.Aliases) > 0 {
			b.WriteString("\nAliases: /" + strings.Join(c.Aliases, ", /"))
		}
		return b.String()
	}

	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range m.list {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		b.WriteString("\n/" + c.Name)
		if c.Description != "" {
			b.WriteString(" - " + c.Description)
		}
		if c.Access == AccessOwnerOnly {
			b.WriteString(" (owner)")
		}
	}
	return b.String()
}

// sanitizeCommand maps a name to Telegram's [a-z0-9_]{1,32} command charset.
func sanitizeCommand(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// buildMenu lists public commands first, owner-only ones after.
func buildMenu(list []*Command) []kit.BotCommand {
	var public, owner []kit.BotCommand
	for _, c := range list {
		name := sanitizeCommand(c.Name)
		if name == "" {
			continue
		}
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if c.Access == AccessOwnerOnly {
			owner = append(owner, kit.BotCommand{Command: name, Description: "(owner) " + desc})
			continue
		}
		public = append(public, kit.BotCommand{Command: name, Description: desc})
	}
	return append(public, owner...)
}
