package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"woltbot/internal/monitor"
	"woltbot/internal/session"
	"woltbot/internal/stats"
	"woltbot/internal/telegram/router"
	kit "woltbot/internal/transport"
	"woltbot/internal/wolt"
	logx "woltbot/pkg/logx"
)

type sentMsg struct {
	to   kit.ChatTarget
	text string
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Message) error { return nil }

func (f *fakeAdapter) Stop(ctx context.Context) error { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{to: to, text: text})
	return nil
}

func (f *fakeAdapter) last(t *testing.T) sentMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no message was sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSearcher struct {
	mu      sync.Mutex
	results []wolt.Restaurant
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]wolt.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeStats struct {
	general    *stats.GeneralStats
	generalErr error
	chat       *stats.ChatStats
	chatErr    error
	restaurant *stats.RestaurantStats
	restErr    error
}

func (f *fakeStats) ReportEvents(ctx context.Context, events []stats.MonitorEvent) error { return nil }

func (f *fakeStats) GeneralStats(ctx context.Context) (*stats.GeneralStats, error) {
	return f.general, f.generalErr
}

func (f *fakeStats) RestaurantStats(ctx context.Context, name string) (*stats.RestaurantStats, error) {
	return f.restaurant, f.restErr
}

func (f *fakeStats) ChatStats(ctx context.Context, chatID int64) (*stats.ChatStats, error) {
	return f.chat, f.chatErr
}

func (f *fakeStats) Close() error { return nil }

func newTestHandlers(dir searcher, store stats.Store) *handlers {
	return &handlers{
		dir:      dir,
		registry: monitor.NewRegistry(),
		sessions: session.New(session.Config{TTL: time.Minute}),
		store:    store,
		log:      logx.Nop(),
	}
}

func newRequest(ad kit.Adapter, chatID int64, args, text string) *router.Request {
	return &router.Request{
		Message: kit.Message{ChatID: chatID, Text: text},
		Chat:    kit.ChatTarget{ChatID: chatID},
		FromID:  chatID,
		Args:    args,
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func TestHandleStart(t *testing.T) {
	t.Parallel()

	h := newTestHandlers(&fakeSearcher{}, nil)
	ad := &fakeAdapter{}

	if err := h.handleStart(context.Background(), newRequest(ad, 7, "", "/start")); err != nil {
		t.Fatalf("handleStart: %v", err)
	}
	got := ad.last(t)
	if got.to.ChatID != 7 {
		t.Fatalf("replied to chat %d, want 7", got.to.ChatID)
	}
	if !strings.Contains(got.text, "/monitor <restaurant name>") {
		t.Fatalf("greeting does not explain /monitor: %q", got.text)
	}
}

func TestHandleMonitor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		args      string
		results   []wolt.Restaurant
		searchErr error
		wantReply string
		wantWatch int
	}{
		{
			name:      "empty args",
			args:      "   ",
			wantReply: "Usage: /monitor <restaurant name>",
		},
		{
			name:      "no results",
			args:      "nope",
			wantReply: "No restaurant found.",
		},
		{
			name:      "search error",
			args:      "burger",
			searchErr: errors.New("upstream down"),
			wantReply: "Search failed, please try again later.",
		},
		{
			name:      "single result subscribes",
			args:      "burgus",
			results:   []wolt.Restaurant{{Name: "Burgus Burger Bar", Slug: "burgus"}},
			wantReply: `Starting to monitor "Burgus Burger Bar"`,
			wantWatch: 1,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newTestHandlers(&fakeSearcher{results: tt.results, err: tt.searchErr}, nil)
			ad := &fakeAdapter{}

			if err := h.handleMonitor(context.Background(), newRequest(ad, 11, tt.args, "/monitor "+tt.args)); err != nil {
				t.Fatalf("handleMonitor: %v", err)
			}
			if got := ad.last(t).text; got != tt.wantReply {
				t.Fatalf("reply = %q, want %q", got, tt.wantReply)
			}
			if got := h.registry.Len(); got != tt.wantWatch {
				t.Fatalf("registry has %d watches, want %d", got, tt.wantWatch)
			}
		})
	}
}

func TestHandleMonitorManyResults(t *testing.T) {
	t.Parallel()

	dir := &fakeSearcher{results: []wolt.Restaurant{
		{Name: "Pizza Roma", Slug: "pizza-roma"},
		{Name: "Pizza Napoli", Slug: "pizza-napoli"},
	}}
	h := newTestHandlers(dir, nil)
	ad := &fakeAdapter{}

	if err := h.handleMonitor(context.Background(), newRequest(ad, 5, "pizza", "/monitor pizza")); err != nil {
		t.Fatalf("handleMonitor: %v", err)
	}

	want := "More than one result found, pick one:\n[0]: Pizza Roma\n[1]: Pizza Napoli"
	if got := ad.last(t).text; got != want {
		t.Fatalf("prompt = %q, want %q", got, want)
	}
	if h.registry.Len() != 0 {
		t.Fatal("nothing should be watched before the pick")
	}
	if h.sessions.Len() != 1 {
		t.Fatal("the candidate list should be parked for the chat")
	}
}

func TestHandleMonitorReplacesPendingPrompt(t *testing.T) {
	t.Parallel()

	dir := &fakeSearcher{results: []wolt.Restaurant{
		{Name: "A", Slug: "a"},
		{Name: "B", Slug: "b"},
	}}
	h := newTestHandlers(dir, nil)
	ad := &fakeAdapter{}

	if err := h.handleMonitor(context.Background(), newRequest(ad, 5, "ab", "/monitor ab")); err != nil {
		t.Fatalf("first search: %v", err)
	}

	// The second search fails; the stale prompt must not survive it.
	dir.mu.Lock()
	dir.err = errors.New("boom")
	dir.mu.Unlock()
	if err := h.handleMonitor(context.Background(), newRequest(ad, 5, "cd", "/monitor cd")); err != nil {
		t.Fatalf("second search: %v", err)
	}

	if _, _, oc := h.sessions.Pick(5, 0); oc != session.PickNone {
		t.Fatalf("pick outcome = %v, want PickNone after the prompt was cleared", oc)
	}
}

func TestHandleTextPicks(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) (*handlers, *fakeAdapter) {
		t.Helper()
		dir := &fakeSearcher{results: []wolt.Restaurant{
			{Name: "Falafel Gina", Slug: "falafel-gina"},
			{Name: "Falafel Oved", Slug: "falafel-oved"},
		}}
		h := newTestHandlers(dir, nil)
		ad := &fakeAdapter{}
		if err := h.handleMonitor(context.Background(), newRequest(ad, 9, "falafel", "/monitor falafel")); err != nil {
			t.Fatalf("handleMonitor: %v", err)
		}
		return h, ad
	}

	t.Run("valid index subscribes", func(t *testing.T) {
		t.Parallel()
		h, ad := setup(t)

		if err := h.HandleText(context.Background(), newRequest(ad, 9, "", "1")); err != nil {
			t.Fatalf("HandleText: %v", err)
		}
		if got, want := ad.last(t).text, `Starting to monitor "Falafel Oved"`; got != want {
			t.Fatalf("reply = %q, want %q", got, want)
		}
		if h.registry.Len() != 1 {
			t.Fatal("pick should have started a watch")
		}
		if h.sessions.Len() != 0 {
			t.Fatal("prompt should be consumed by the pick")
		}
	})

	t.Run("out of range keeps prompt", func(t *testing.T) {
		t.Parallel()
		h, ad := setup(t)

		if err := h.HandleText(context.Background(), newRequest(ad, 9, "", "5")); err != nil {
			t.Fatalf("HandleText: %v", err)
		}
		if got, want := ad.last(t).text, "Invalid index: 5, max index is 1"; got != want {
			t.Fatalf("reply = %q, want %q", got, want)
		}
		if h.sessions.Len() != 1 {
			t.Fatal("prompt should survive an invalid pick")
		}
	})

	t.Run("non-numeric text ignored", func(t *testing.T) {
		t.Parallel()
		h, ad := setup(t)
		before := ad.count()

		if err := h.HandleText(context.Background(), newRequest(ad, 9, "", "what about pizza")); err != nil {
			t.Fatalf("HandleText: %v", err)
		}
		if ad.count() != before {
			t.Fatal("chatter must not trigger a reply")
		}
	})

	t.Run("number without prompt ignored", func(t *testing.T) {
		t.Parallel()
		h, ad := setup(t)
		before := ad.count()

		// Another chat never searched; its numbers mean nothing.
		if err := h.HandleText(context.Background(), newRequest(ad, 1234, "", "0")); err != nil {
			t.Fatalf("HandleText: %v", err)
		}
		if ad.count() != before {
			t.Fatal("a number with no pending prompt must be ignored")
		}
	})
}

func TestSubscribeAppendsAverageWait(t *testing.T) {
	t.Parallel()

	store := &fakeStats{restaurant: &stats.RestaurantStats{
		RequestCount: 4,
		UniqueChats:  2,
		AverageWait:  17*time.Minute + 3*time.Second,
	}}
	h := newTestHandlers(&fakeSearcher{results: []wolt.Restaurant{{Name: "HaKosem", Slug: "hakosem"}}}, store)
	ad := &fakeAdapter{}

	if err := h.handleMonitor(context.Background(), newRequest(ad, 3, "kosem", "/monitor kosem")); err != nil {
		t.Fatalf("handleMonitor: %v", err)
	}
	want := "Starting to monitor \"HaKosem\"\nOn average, people wait 17m3s for it to open."
	if got := ad.last(t).text; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestSubscribeToleratesStatsFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStats{restErr: errors.New("db closed")}
	h := newTestHandlers(&fakeSearcher{results: []wolt.Restaurant{{Name: "HaKosem", Slug: "hakosem"}}}, store)
	ad := &fakeAdapter{}

	if err := h.handleMonitor(context.Background(), newRequest(ad, 3, "kosem", "/monitor kosem")); err != nil {
		t.Fatalf("handleMonitor: %v", err)
	}
	if got, want := ad.last(t).text, `Starting to monitor "HaKosem"`; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	if h.registry.Len() != 1 {
		t.Fatal("a stats failure must not block the subscription")
	}
}

func TestHandleStatus(t *testing.T) {
	t.Parallel()

	h := newTestHandlers(&fakeSearcher{}, nil)
	ad := &fakeAdapter{}

	if err := h.handleStatus(context.Background(), newRequest(ad, 2, "", "/status")); err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	if got, want := ad.last(t).text, "No restaurants are being monitored."; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}

	h.registry.Subscribe(wolt.Restaurant{Name: "Zakaim", Slug: "zakaim"}, 2)
	h.registry.Subscribe(wolt.Restaurant{Name: "Anita", Slug: "anita"}, 8)

	if err := h.handleStatus(context.Background(), newRequest(ad, 2, "", "/status")); err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	// Watched() sorts by name.
	want := "Currently monitoring:\n- Anita\n- Zakaim"
	if got := ad.last(t).text; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestHandleStats(t *testing.T) {
	t.Parallel()

	general := &stats.GeneralStats{
		UsageCount:               12,
		MostRequested:            "HaKosem",
		MostRequestedCount:       5,
		MostRequestedUniqueChats: 3,
		Slowest:                  "Zakaim",
		SlowestAverageWait:       40 * time.Minute,
	}
	chat := &stats.ChatStats{
		UsageCount:    4,
		Favorite:      "HaKosem",
		FavoriteCount: 3,
		TotalWait:     90 * time.Minute,
	}

	tests := []struct {
		name  string
		store stats.Store
		want  string
	}{
		{
			name:  "disabled",
			store: nil,
			want:  "Statistics are not enabled.",
		},
		{
			name:  "query error",
			store: &fakeStats{generalErr: errors.New("db closed")},
			want:  "Could not fetch statistics, please try again later.",
		},
		{
			name:  "no data yet",
			store: &fakeStats{},
			want:  "No statistics recorded yet.",
		},
		{
			name:  "general only",
			store: &fakeStats{general: general},
			want:  general.PrettyPrint(),
		},
		{
			name:  "general plus own block",
			store: &fakeStats{general: general, chat: chat},
			want:  general.PrettyPrint() + "\n\n" + chat.PrettyPrint(),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newTestHandlers(&fakeSearcher{}, tt.store)
			ad := &fakeAdapter{}

			if err := h.handleStats(context.Background(), newRequest(ad, 6, "", "/stats")); err != nil {
				t.Fatalf("handleStats: %v", err)
			}
			if got := ad.last(t).text; got != tt.want {
				t.Fatalf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandsIncludeChatSurface(t *testing.T) {
	t.Parallel()

	h := newTestHandlers(&fakeSearcher{}, nil)
	got := map[string]bool{}
	for _, c := range h.Commands() {
		got[c.Name] = true
		if c.Handle == nil {
			t.Fatalf("command %q has no handler", c.Name)
		}
		if c.Access != router.AccessEveryone {
			t.Fatalf("command %q must be public", c.Name)
		}
	}
	for _, name := range []string{"start", "monitor", "status", "stats"} {
		if !got[name] {
			t.Fatalf("command %q missing from the registry", name)
		}
	}
}
