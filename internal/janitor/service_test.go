package janitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	logx "woltbot/pkg/logx"

	"woltbot/internal/stats"
	kit "woltbot/internal/transport"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSweeper) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 1
}

func (f *fakeSweeper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []kit.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, msg kit.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeStore struct {
	general *stats.GeneralStats
	err     error
}

func (f *fakeStore) ReportEvents(context.Context, []stats.MonitorEvent) error { return nil }

func (f *fakeStore) GeneralStats(context.Context) (*stats.GeneralStats, error) {
	return f.general, f.err
}

func (f *fakeStore) RestaurantStats(context.Context, string) (*stats.RestaurantStats, error) {
	return nil, nil
}

func (f *fakeStore) ChatStats(context.Context, int64) (*stats.ChatStats, error) { return nil, nil }

func (f *fakeStore) Close() error { return nil }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("%s did not happen before deadline", what)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestValidateDigestSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"", false},
		{"  ", false},
		{"0 9 * * *", false},
		{"@daily", false},
		{"@every 1h", false},
		{"not a spec", true},
		{"* * *", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.spec, func(t *testing.T) {
			t.Parallel()
			err := ValidateDigestSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateDigestSpec(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestStartSweepsOnSchedule(t *testing.T) {
	t.Parallel()
	sw := &fakeSweeper{}
	s := New(Config{SweepEvery: time.Second}, sw, nil, &fakeNotifier{}, kit.ChatTarget{}, logx.Nop())

	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	waitFor(t, "session sweep", func() bool { return sw.count() >= 1 })
}

func TestApplyRestartsSchedule(t *testing.T) {
	t.Parallel()
	sw := &fakeSweeper{}
	s := New(Config{SweepEvery: time.Hour}, sw, nil, &fakeNotifier{}, kit.ChatTarget{}, logx.Nop())

	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	s.Apply(Config{SweepEvery: time.Second})
	waitFor(t, "session sweep after Apply", func() bool { return sw.count() >= 1 })
}

func TestRunDigestPostsStats(t *testing.T) {
	t.Parallel()
	notif := &fakeNotifier{}
	store := &fakeStore{general: &stats.GeneralStats{
		UsageCount:               42,
		MostRequested:            "Pizza Roma",
		MostRequestedCount:       17,
		MostRequestedUniqueChats: 5,
		Slowest:                  "Slow Sushi",
		SlowestAverageWait:       time.Hour,
	}}
	target := kit.ChatTarget{ChatID: -100123}
	s := New(Config{}, &fakeSweeper{}, store, notif, target, logx.Nop())

	s.runDigest()

	notif.mu.Lock()
	defer notif.mu.Unlock()
	if len(notif.sent) != 1 {
		t.Fatalf("sent = %d notifications, want 1", len(notif.sent))
	}
	got := notif.sent[0]
	if got.Target != target {
		t.Errorf("target = %+v, want %+v", got.Target, target)
	}
	if !strings.Contains(got.Text, "Bot was used 42 times.") {
		t.Errorf("digest text = %q, want usage line", got.Text)
	}
	if !strings.HasPrefix(got.Text, "Statistics digest:") {
		t.Errorf("digest text = %q, want header prefix", got.Text)
	}
}

func TestRunDigestNoDataStaysQuiet(t *testing.T) {
	t.Parallel()
	notif := &fakeNotifier{}
	s := New(Config{}, &fakeSweeper{}, &fakeStore{}, notif, kit.ChatTarget{}, logx.Nop())

	s.runDigest()
	if got := notif.count(); got != 0 {
		t.Fatalf("sent = %d notifications, want 0", got)
	}
}

func TestRunDigestWithoutStore(t *testing.T) {
	t.Parallel()
	notif := &fakeNotifier{}
	s := New(Config{}, &fakeSweeper{}, nil, notif, kit.ChatTarget{}, logx.Nop())

	s.runDigest() // must not panic
	if got := notif.count(); got != 0 {
		t.Fatalf("sent = %d notifications, want 0", got)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &fakeSweeper{}, nil, &fakeNotifier{}, kit.ChatTarget{}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx) // no-op
}

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()
	got := normalize(Config{DigestCron: "  0 9 * * *  "})
	if got.SweepEvery != 5*time.Minute {
		t.Errorf("SweepEvery = %v, want 5m default", got.SweepEvery)
	}
	if got.DigestCron != "0 9 * * *" {
		t.Errorf("DigestCron = %q, want trimmed spec", got.DigestCron)
	}
}
