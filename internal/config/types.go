package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`

	Wolt    WoltConfig    `json:"wolt"`
	Monitor MonitorConfig `json:"monitor"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Sessions SessionsConfig  `json:"sessions"`
	Stats    *StatsConfig    `json:"stats,omitempty"`
}

// WoltConfig controls the restaurant directory client.
//
// Lat/Lon bias search results toward a delivery area. The defaults point at
// Tel Aviv, the area this bot started in.
type WoltConfig struct {
	BaseURL string  `json:"base_url,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty"`
	// Timeout is a Go duration string bounding each directory HTTP request.
	Timeout string `json:"timeout,omitempty"`
}

// MonitorConfig controls the polling loop.
//
// All durations are Go duration strings (e.g. "10s", "2h").
//
// Every round schedules the next one at a random delay drawn from
// [interval_min, interval_max]. GiveUpAfter drops a watch once its earliest
// subscriber has been waiting that long.
type MonitorConfig struct {
	IntervalMin string `json:"interval_min,omitempty"`
	IntervalMax string `json:"interval_max,omitempty"`
	GiveUpAfter string `json:"give_up_after,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// SessionsConfig controls pending pick-a-restaurant prompts.
//
// A prompt older than TTL no longer accepts a numeric reply; expired
// entries are swept every SweepEvery.
type SessionsConfig struct {
	TTL        string `json:"ttl,omitempty"`
	SweepEvery string `json:"sweep_every,omitempty"`
}

// StatsConfig controls the optional statistics store.
//
// Example:
//
//	"stats": { "driver": "sqlite", "path": "./woltbot_stats.db" }
//	"stats": { "driver": "postgres", "url": "postgres://...", "table": "monitor_events" }
type StatsConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	URL         string `json:"url,omitempty"`
	Table       string `json:"table,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// DigestCron posts a daily statistics digest to the log group when set
	// (standard cron spec, e.g. "0 9 * * *").
	DigestCron string `json:"digest_cron,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
