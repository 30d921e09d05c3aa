package router

import (
	"strings"
	"testing"
)

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"help", "help"},
		{"Help", "help"},
		{"MONITOR", "monitor"},
		{"speedtest-stats", "speedtest_stats"},
		{"a b  c", "a_b_c"},
		{"__x__", "x"},
		{"!!!", ""},
		{"", ""},
		{"9lives", "cmd_9lives"},
		{"שלום", ""},
		{strings.Repeat("a", 40), strings.Repeat("a", 32)},
	}
	for _, tt := range tests {
		if got := sanitizeTelegramCommand(tt.in); got != tt.want {
			t.Fatalf("sanitizeTelegramCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildMenuCommandsSortedAndFiltered(t *testing.T) {
	t.Parallel()
	cmds := map[string]Command{
		"status":  {Name: "status", Description: "list watched restaurants"},
		"admin":   {Name: "admin", Access: AccessOwnerOnly, Description: "hidden"},
		"monitor": {Name: "monitor"},
	}

	got := buildMenuCommands(cmds)
	if len(got) != 2 {
		t.Fatalf("got %d menu entries, want 2: %v", len(got), got)
	}
	if got[0].Command != "monitor" || got[0].Description != "monitor" {
		t.Fatalf("entry[0] = %+v, want monitor with fallback description", got[0])
	}
	if got[1].Command != "status" || got[1].Description != "list watched restaurants" {
		t.Fatalf("entry[1] = %+v", got[1])
	}
}
