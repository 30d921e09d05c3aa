package app

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"woltbot/internal/config"
	"woltbot/internal/janitor"
	"woltbot/internal/monitor"
	"woltbot/internal/notifier"
	"woltbot/internal/observability/pprof"
	"woltbot/internal/session"
	"woltbot/internal/stats"
	kit "woltbot/internal/transport"
	"woltbot/internal/wolt"
)

// logChatTarget resolves telegram.group_log to a chat target. Unset or
// unparsable values yield the zero target (no log chat).
func logChatTarget(cfg *config.Config) kit.ChatTarget {
	if cfg == nil {
		return kit.ChatTarget{}
	}
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return kit.ChatTarget{}
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return kit.ChatTarget{}
	}
	return kit.ChatTarget{ChatID: chatID, ThreadID: cfg.Logging.Telegram.ThreadID}
}

func mapWoltConfig(cfg *config.Config) (wolt.Config, error) {
	if cfg == nil {
		return wolt.Config{}, nil
	}
	timeout, err := config.ParseDurationOrDefault("wolt.timeout", cfg.Wolt.Timeout, 10*time.Second)
	if err != nil {
		return wolt.Config{}, err
	}
	// Search results are biased toward a delivery point; half a coordinate
	// is a config mistake, not a preference.
	if (cfg.Wolt.Lat == 0) != (cfg.Wolt.Lon == 0) {
		return wolt.Config{}, fmt.Errorf("wolt.lat and wolt.lon must be set together")
	}
	return wolt.Config{
		BaseURL: cfg.Wolt.BaseURL,
		Lat:     cfg.Wolt.Lat,
		Lon:     cfg.Wolt.Lon,
		Timeout: timeout,
	}, nil
}

func mapMonitorConfig(cfg *config.Config) (monitor.Config, error) {
	if cfg == nil {
		return monitor.Config{}, nil
	}
	ivMin, err := config.ParseDurationOrDefault("monitor.interval_min", cfg.Monitor.IntervalMin, 10*time.Second)
	if err != nil {
		return monitor.Config{}, err
	}
	ivMax, err := config.ParseDurationOrDefault("monitor.interval_max", cfg.Monitor.IntervalMax, 20*time.Second)
	if err != nil {
		return monitor.Config{}, err
	}
	giveUp, err := config.ParseDurationOrDefault("monitor.give_up_after", cfg.Monitor.GiveUpAfter, 2*time.Hour)
	if err != nil {
		return monitor.Config{}, err
	}
	if ivMax < ivMin {
		return monitor.Config{}, fmt.Errorf("monitor.interval_max must be >= monitor.interval_min")
	}
	return monitor.Config{
		IntervalMin: ivMin,
		IntervalMax: ivMax,
		GiveUpAfter: giveUp,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	// Defaults: enabled, 2 workers, queue 512, 3 msg/s, 3 retries (500ms..10s).
	out := notifier.Config{
		Enabled:       true,
		Workers:       2,
		QueueSize:     512,
		RatePerSec:    3,
		RetryMax:      3,
		RetryBase:     500 * time.Millisecond,
		RetryMaxDelay: 10 * time.Second,
	}
	if cfg == nil || cfg.Notifier == nil {
		return out, nil
	}
	n := cfg.Notifier

	out.Enabled = n.Enabled

	if n.Workers < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.workers must be >= 0")
	}
	if n.Workers != 0 {
		out.Workers = n.Workers
	}
	if n.QueueSize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.queue_size must be >= 0")
	}
	if n.QueueSize != 0 {
		out.QueueSize = n.QueueSize
	}
	if n.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if n.RatePerSec != 0 {
		out.RatePerSec = n.RatePerSec
	}
	if n.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.retry_max must be >= 0")
	}
	if n.RetryMax != 0 {
		out.RetryMax = n.RetryMax
	}

	if strings.TrimSpace(n.RetryBase) != "" {
		d, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
		if err != nil {
			return notifier.Config{}, err
		}
		if d > 0 {
			out.RetryBase = d
		}
	}
	if strings.TrimSpace(n.RetryMaxDelay) != "" {
		d, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
		if err != nil {
			return notifier.Config{}, err
		}
		if d > 0 {
			out.RetryMaxDelay = d
		}
	}
	if out.RetryMaxDelay < out.RetryBase {
		out.RetryMaxDelay = out.RetryBase
	}
	return out, nil
}

func mapSessionsConfig(cfg *config.Config) (session.Config, error) {
	if cfg == nil {
		return session.Config{}, nil
	}
	ttl, err := config.ParseDurationOrDefault("sessions.ttl", cfg.Sessions.TTL, 15*time.Minute)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{TTL: ttl}, nil
}

func mapJanitorConfig(cfg *config.Config) (janitor.Config, error) {
	if cfg == nil {
		return janitor.Config{}, nil
	}
	sweep, err := config.ParseDurationOrDefault("sessions.sweep_every", cfg.Sessions.SweepEvery, 5*time.Minute)
	if err != nil {
		return janitor.Config{}, err
	}
	digest := ""
	if cfg.Stats != nil {
		digest = strings.TrimSpace(cfg.Stats.DigestCron)
	}
	if digest != "" {
		if err := janitor.ValidateDigestSpec(digest); err != nil {
			return janitor.Config{}, fmt.Errorf("stats.digest_cron: %w", err)
		}
	}
	return janitor.Config{
		SweepEvery: sweep,
		DigestCron: digest,
	}, nil
}

// mapStatsConfig maps the optional stats section; a zero Driver means
// statistics are off and stats.Open will return (nil, nil).
func mapStatsConfig(cfg *config.Config) (stats.Config, error) {
	if cfg == nil || cfg.Stats == nil {
		return stats.Config{}, nil
	}
	s := cfg.Stats
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	if driver == "" || driver == "none" {
		return stats.Config{}, nil
	}

	busy, err := config.ParseDurationOrDefault("stats.busy_timeout", s.BusyTimeout, 5*time.Second)
	if err != nil {
		return stats.Config{}, err
	}

	switch driver {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(s.Path) == "" {
			return stats.Config{}, fmt.Errorf("stats.path is required for the sqlite driver")
		}
	case "postgres", "postgresql":
		if strings.TrimSpace(s.URL) == "" {
			return stats.Config{}, fmt.Errorf("stats.url is required for the postgres driver")
		}
	default:
		return stats.Config{}, fmt.Errorf("stats.driver: unknown driver %q", s.Driver)
	}

	return stats.Config{
		Driver:      driver,
		Path:        s.Path,
		BusyTimeout: busy,
		URL:         s.URL,
		Table:       s.Table,
	}, nil
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	if cfg == nil {
		return pprof.Config{}, nil
	}
	p := cfg.Pprof

	readTimeout, err := config.ParseDurationOrDefault("pprof.read_timeout", p.ReadTimeout, 5*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	// WriteTimeout defaults to 0 (disabled): /profile streams for 30s+.
	writeTimeout, err := config.ParseDurationField("pprof.write_timeout", p.WriteTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	idleTimeout, err := config.ParseDurationOrDefault("pprof.idle_timeout", p.IdleTimeout, 120*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}

	addr := strings.TrimSpace(p.Addr)
	if addr == "" {
		addr = "127.0.0.1:6060"
	}
	prefix := strings.TrimSpace(p.Prefix)
	if prefix == "" {
		prefix = "/debug/pprof/"
	}

	out := pprof.Config{
		Enabled:       p.Enabled,
		Addr:          addr,
		Prefix:        prefix,
		Token:         strings.TrimSpace(p.Token),
		AllowInsecure: p.AllowInsecure,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
		IdleTimeout:   idleTimeout,
	}

	// Refuse a config that would expose profiles publicly without auth.
	if out.Enabled && !out.AllowInsecure && out.Token == "" && !isLoopbackAddr(out.Addr) {
		return pprof.Config{}, fmt.Errorf("pprof.addr %q is not loopback; set pprof.token or pprof.allow_insecure", out.Addr)
	}
	return out, nil
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
