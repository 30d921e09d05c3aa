package router

import (
	"strings"
	"testing"
)

func TestSplitCommandVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		word string
		rest string
		ok   bool
	}{
		{name: "plain text", text: "hello", ok: false},
		{name: "bare number", text: "42", ok: false},
		{name: "bare slash", text: "/", ok: false},
		{name: "simple", text: "/status", word: "status", ok: true},
		{name: "free text args", text: "/monitor pizza roma", word: "monitor", rest: "pizza roma", ok: true},
		{name: "hebrew args", text: "/monitor ניצת הדובדבן", word: "monitor", rest: "ניצת הדובדבן", ok: true},
		{name: "bot suffix", text: "/status@woltbot", word: "status", ok: true},
		{name: "bot suffix with args", text: "/monitor@woltbot pizza", word: "monitor", rest: "pizza", ok: true},
		{name: "tab separator", text: "/monitor\tpizza", word: "monitor", rest: "pizza", ok: true},
		{name: "newline separator", text: "/monitor\npizza", word: "monitor", rest: "pizza", ok: true},
		{name: "surrounding space", text: "  /monitor pizza  ", word: "monitor", rest: "pizza", ok: true},
		{name: "mention only", text: "/@woltbot", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			word, rest, ok := splitCommand(tt.text)
			if ok != tt.ok {
				t.Fatalf("splitCommand(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if !ok {
				return
			}
			if word != tt.word {
				t.Fatalf("word = %q, want %q", word, tt.word)
			}
			if rest != tt.rest {
				t.Fatalf("rest = %q, want %q", rest, tt.rest)
			}
		})
	}
}

func TestNewReqIDUnique(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id := newReqID()
		if id == "" || !strings.Contains(id, "-") {
			t.Fatalf("unexpected request id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}

func TestBase36(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{35, "z"},
		{36, "10"},
		{1295, "zz"},
		{-36, "10"},
	}
	for _, tt := range tests {
		if got := base36(tt.in); got != tt.want {
			t.Fatalf("base36(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
