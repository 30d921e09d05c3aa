package app

import (
	"strings"
	"testing"
	"time"

	"woltbot/internal/config"
)

func TestLogChatTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		groupLog string
		threadID int
		wantChat int64
	}{
		{name: "unset", groupLog: "", wantChat: 0},
		{name: "plain id", groupLog: "-1001234567890", wantChat: -1001234567890},
		{name: "with thread", groupLog: "-100555", threadID: 42, wantChat: -100555},
		{name: "garbage", groupLog: "not-a-chat", wantChat: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			cfg.Telegram.GroupLog = tt.groupLog
			cfg.Logging.Telegram.ThreadID = tt.threadID

			got := logChatTarget(cfg)
			if got.ChatID != tt.wantChat {
				t.Fatalf("ChatID = %d, want %d", got.ChatID, tt.wantChat)
			}
			if tt.wantChat != 0 && got.ThreadID != tt.threadID {
				t.Fatalf("ThreadID = %d, want %d", got.ThreadID, tt.threadID)
			}
		})
	}
}

func TestMapWoltConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	got, err := mapWoltConfig(cfg)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if got.Timeout != 10*time.Second {
		t.Fatalf("Timeout = %v, want 10s default", got.Timeout)
	}

	cfg.Wolt.Lat = 60.17
	if _, err := mapWoltConfig(cfg); err == nil {
		t.Fatal("lat without lon must be rejected")
	}
	cfg.Wolt.Lon = 24.95
	if _, err := mapWoltConfig(cfg); err != nil {
		t.Fatalf("full coordinates: %v", err)
	}

	cfg.Wolt.Timeout = "banana"
	if _, err := mapWoltConfig(cfg); err == nil {
		t.Fatal("invalid duration must be rejected")
	}
}

func TestMapMonitorConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	got, err := mapMonitorConfig(cfg)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if got.IntervalMin != 10*time.Second || got.IntervalMax != 20*time.Second {
		t.Fatalf("interval defaults = %v..%v, want 10s..20s", got.IntervalMin, got.IntervalMax)
	}
	if got.GiveUpAfter != 2*time.Hour {
		t.Fatalf("GiveUpAfter = %v, want 2h default", got.GiveUpAfter)
	}

	cfg.Monitor.IntervalMin = "30s"
	cfg.Monitor.IntervalMax = "15s"
	if _, err := mapMonitorConfig(cfg); err == nil {
		t.Fatal("interval_max < interval_min must be rejected")
	}

	cfg.Monitor.IntervalMax = "45s"
	got, err = mapMonitorConfig(cfg)
	if err != nil {
		t.Fatalf("valid intervals: %v", err)
	}
	if got.IntervalMin != 30*time.Second || got.IntervalMax != 45*time.Second {
		t.Fatalf("intervals = %v..%v, want 30s..45s", got.IntervalMin, got.IntervalMax)
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()

	t.Run("nil section uses defaults", func(t *testing.T) {
		t.Parallel()
		got, err := mapNotifierConfig(&config.Config{})
		if err != nil {
			t.Fatalf("defaults: %v", err)
		}
		if !got.Enabled {
			t.Fatal("notifier must default to enabled")
		}
		if got.Workers != 2 || got.QueueSize != 512 || got.RatePerSec != 3 {
			t.Fatalf("defaults = %+v", got)
		}
		if got.RetryBase != 500*time.Millisecond || got.RetryMaxDelay != 10*time.Second {
			t.Fatalf("retry defaults = %v/%v", got.RetryBase, got.RetryMaxDelay)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{Notifier: &config.NotifierConfig{
			Enabled:       true,
			Workers:       5,
			RetryBase:     "1s",
			RetryMaxDelay: "100ms",
		}}
		got, err := mapNotifierConfig(cfg)
		if err != nil {
			t.Fatalf("overrides: %v", err)
		}
		if got.Workers != 5 {
			t.Fatalf("Workers = %d, want 5", got.Workers)
		}
		// Max delay is clamped up so the backoff never inverts.
		if got.RetryMaxDelay != got.RetryBase {
			t.Fatalf("RetryMaxDelay = %v, want %v", got.RetryMaxDelay, got.RetryBase)
		}
	})

	t.Run("negative bounds rejected", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{Notifier: &config.NotifierConfig{Workers: -1}}
		if _, err := mapNotifierConfig(cfg); err == nil {
			t.Fatal("negative workers must be rejected")
		}
	})
}

func TestMapSessionsAndJanitorConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	sc, err := mapSessionsConfig(cfg)
	if err != nil {
		t.Fatalf("sessions defaults: %v", err)
	}
	if sc.TTL != 15*time.Minute {
		t.Fatalf("TTL = %v, want 15m default", sc.TTL)
	}

	jc, err := mapJanitorConfig(cfg)
	if err != nil {
		t.Fatalf("janitor defaults: %v", err)
	}
	if jc.SweepEvery != 5*time.Minute {
		t.Fatalf("SweepEvery = %v, want 5m default", jc.SweepEvery)
	}
	if jc.DigestCron != "" {
		t.Fatalf("DigestCron = %q, want empty without a stats section", jc.DigestCron)
	}

	cfg.Stats = &config.StatsConfig{DigestCron: "0 9 * * *"}
	jc, err = mapJanitorConfig(cfg)
	if err != nil {
		t.Fatalf("valid digest cron: %v", err)
	}
	if jc.DigestCron != "0 9 * * *" {
		t.Fatalf("DigestCron = %q", jc.DigestCron)
	}

	cfg.Stats.DigestCron = "whenever"
	if _, err := mapJanitorConfig(cfg); err == nil {
		t.Fatal("invalid digest cron must be rejected")
	}
}

func TestMapStatsConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		section    *config.StatsConfig
		wantDriver string
		wantErr    string
	}{
		{name: "nil section disables", section: nil, wantDriver: ""},
		{name: "driver none disables", section: &config.StatsConfig{Driver: "none"}, wantDriver: ""},
		{
			name:       "sqlite",
			section:    &config.StatsConfig{Driver: "SQLite", Path: "./stats.db"},
			wantDriver: "sqlite",
		},
		{
			name:    "sqlite without path",
			section: &config.StatsConfig{Driver: "sqlite"},
			wantErr: "stats.path",
		},
		{
			name:       "postgres",
			section:    &config.StatsConfig{Driver: "postgres", URL: "postgres://localhost/woltbot"},
			wantDriver: "postgres",
		},
		{
			name:    "postgres without url",
			section: &config.StatsConfig{Driver: "postgres"},
			wantErr: "stats.url",
		},
		{
			name:    "unknown driver",
			section: &config.StatsConfig{Driver: "oracle"},
			wantErr: "unknown driver",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := mapStatsConfig(&config.Config{Stats: tt.section})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("mapStatsConfig: %v", err)
			}
			if got.Driver != tt.wantDriver {
				t.Fatalf("Driver = %q, want %q", got.Driver, tt.wantDriver)
			}
		})
	}
}

func TestMapPprofConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	got, err := mapPprofConfig(cfg)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if got.Addr != "127.0.0.1:6060" || got.Prefix != "/debug/pprof/" {
		t.Fatalf("defaults = %q %q", got.Addr, got.Prefix)
	}
	if got.ReadTimeout != 5*time.Second || got.WriteTimeout != 0 || got.IdleTimeout != 120*time.Second {
		t.Fatalf("timeouts = %v/%v/%v", got.ReadTimeout, got.WriteTimeout, got.IdleTimeout)
	}

	// A public bind without auth must not pass validation.
	cfg.Pprof.Enabled = true
	cfg.Pprof.Addr = "0.0.0.0:6060"
	if _, err := mapPprofConfig(cfg); err == nil {
		t.Fatal("non-loopback bind without token must be rejected")
	}
	cfg.Pprof.Token = "s3cret"
	if _, err := mapPprofConfig(cfg); err != nil {
		t.Fatalf("token should allow the bind: %v", err)
	}
	cfg.Pprof.Token = ""
	cfg.Pprof.AllowInsecure = true
	if _, err := mapPprofConfig(cfg); err != nil {
		t.Fatalf("allow_insecure should allow the bind: %v", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{":6060", false},
		{"192.168.1.10:6060", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
