package router

import (
	"sort"
	"strings"
	"unicode"

	kit "woltbot/internal/transport"
)

// sanitizeTelegramCommand converts an arbitrary command name into a
// Telegram-safe bot command. Telegram restricts command names to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == '/' || unicode.IsSpace(r):
			// Separators collapse into a single underscore.
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		default:
			// drop anything else
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return ""
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out == "" {
		return ""
	}
	// Telegram clients generally expect commands to start with a letter.
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
		if len(out) > 32 {
			out = strings.TrimRight(out[:32], "_")
		}
	}
	return out
}

// buildMenuCommands turns the registry into the Telegram "/" autocomplete
// list. Owner-only commands are not advertised.
func buildMenuCommands(cmds map[string]Command) []kit.BotCommand {
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]kit.BotCommand, 0, len(names))
	for _, name := range names {
		c := cmds[name]
		if c.Access == AccessOwnerOnly {
			continue
		}
		menu := sanitizeTelegramCommand(name)
		if menu == "" {
			continue
		}
		desc := strings.TrimSpace(strings.ReplaceAll(c.Description, "\n", " "))
		if desc == "" {
			desc = menu
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: menu, Description: desc})
		if len(out) >= 100 {
			break
		}
	}
	return out
}
