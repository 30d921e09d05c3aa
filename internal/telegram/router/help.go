package router

import (
	"sort"
	"strings"
)

// helpText renders the command list as plain text, public commands first and
// owner-only ones at the bottom.
func (m *CommandManager) helpText() string {
	m.mu.RLock()
	cmds := m.commands
	m.mu.RUnlock()

	rows := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		rows = append(rows, c)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		li, lj := rows[i].Access == AccessOwnerOnly, rows[j].Access == AccessOwnerOnly
		if li != lj {
			return !li
		}
		return rows[i].Name < rows[j].Name
	})

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, "Available commands:")
	for _, c := range rows {
		usage := strings.TrimSpace(c.Usage)
		if usage == "" {
			usage = "/" + c.Name
		}
		line := usage
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + d
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
