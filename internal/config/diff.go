package config

import (
	"reflect"
	"sort"
	"strings"

	logx "woltbot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) ||
		oldCfg.Logging.Telegram.Enabled != newCfg.Logging.Telegram.Enabled ||
		oldCfg.Logging.Telegram.ThreadID != newCfg.Logging.Telegram.ThreadID ||
		oldCfg.Logging.Telegram.MinLevel != newCfg.Logging.Telegram.MinLevel ||
		oldCfg.Logging.Telegram.RatePerSec != newCfg.Logging.Telegram.RatePerSec {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		strings.TrimSpace(oldCfg.Pprof.Prefix) != strings.TrimSpace(newCfg.Pprof.Prefix) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		strings.TrimSpace(oldCfg.Pprof.ReadTimeout) != strings.TrimSpace(newCfg.Pprof.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.WriteTimeout) != strings.TrimSpace(newCfg.Pprof.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.IdleTimeout) != strings.TrimSpace(newCfg.Pprof.IdleTimeout) ||
		(strings.TrimSpace(oldCfg.Pprof.Token) != "") != (strings.TrimSpace(newCfg.Pprof.Token) != "") {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", newCfg.Pprof.AllowInsecure),
		)
	}

	// Wolt (directory client)
	if strings.TrimSpace(oldCfg.Wolt.BaseURL) != strings.TrimSpace(newCfg.Wolt.BaseURL) ||
		oldCfg.Wolt.Lat != newCfg.Wolt.Lat ||
		oldCfg.Wolt.Lon != newCfg.Wolt.Lon ||
		strings.TrimSpace(oldCfg.Wolt.Timeout) != strings.TrimSpace(newCfg.Wolt.Timeout) {
		changed = append(changed, "wolt")
		attrs = append(attrs,
			logx.Bool("wolt.base_url_set", strings.TrimSpace(newCfg.Wolt.BaseURL) != ""),
			logx.Float64("wolt.lat", newCfg.Wolt.Lat),
			logx.Float64("wolt.lon", newCfg.Wolt.Lon),
			logx.String("wolt.timeout", strings.TrimSpace(newCfg.Wolt.Timeout)),
		)
	}

	// Monitor (polling loop)
	if strings.TrimSpace(oldCfg.Monitor.IntervalMin) != strings.TrimSpace(newCfg.Monitor.IntervalMin) ||
		strings.TrimSpace(oldCfg.Monitor.IntervalMax) != strings.TrimSpace(newCfg.Monitor.IntervalMax) ||
		strings.TrimSpace(oldCfg.Monitor.GiveUpAfter) != strings.TrimSpace(newCfg.Monitor.GiveUpAfter) {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.interval_min", strings.TrimSpace(newCfg.Monitor.IntervalMin)),
			logx.String("monitor.interval_max", strings.TrimSpace(newCfg.Monitor.IntervalMax)),
			logx.String("monitor.give_up_after", strings.TrimSpace(newCfg.Monitor.GiveUpAfter)),
		)
	}

	// Notifier (async pipeline)
	// Note: section may be nil (omitted). Treat nil as runtime defaults for a more accurate summary.
	defN := &NotifierConfig{
		Enabled:       true,
		Workers:       2,
		QueueSize:     512,
		RatePerSec:    3,
		RetryMax:      3,
		RetryBase:     "500ms",
		RetryMaxDelay: "10s",
	}
	oldN := oldCfg.Notifier
	newN := newCfg.Notifier
	if oldN == nil {
		oldN = defN
	}
	if newN == nil {
		newN = defN
	}
	if !reflect.DeepEqual(*oldN, *newN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
		)
	}

	// Sessions (pending picks)
	if strings.TrimSpace(oldCfg.Sessions.TTL) != strings.TrimSpace(newCfg.Sessions.TTL) ||
		strings.TrimSpace(oldCfg.Sessions.SweepEvery) != strings.TrimSpace(newCfg.Sessions.SweepEvery) {
		changed = append(changed, "sessions")
		attrs = append(attrs,
			logx.String("sessions.ttl", strings.TrimSpace(newCfg.Sessions.TTL)),
			logx.String("sessions.sweep_every", strings.TrimSpace(newCfg.Sessions.SweepEvery)),
		)
	}

	// Stats (persistence). Nil means disabled; never log URLs (may embed credentials).
	oldS := oldCfg.Stats
	newS := newCfg.Stats
	var oDriver, nDriver, oBusy, nBusy, oDigest, nDigest string
	var oTargetSet, nTargetSet bool
	if oldS != nil {
		oDriver = strings.TrimSpace(oldS.Driver)
		oBusy = strings.TrimSpace(oldS.BusyTimeout)
		oDigest = strings.TrimSpace(oldS.DigestCron)
		oTargetSet = strings.TrimSpace(oldS.Path) != "" || strings.TrimSpace(oldS.URL) != ""
	}
	if newS != nil {
		nDriver = strings.TrimSpace(newS.Driver)
		nBusy = strings.TrimSpace(newS.BusyTimeout)
		nDigest = strings.TrimSpace(newS.DigestCron)
		nTargetSet = strings.TrimSpace(newS.Path) != "" || strings.TrimSpace(newS.URL) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oDigest != nDigest || oTargetSet != nTargetSet {
		changed = append(changed, "stats")
		attrs = append(attrs,
			logx.String("stats.driver", nDriver),
			logx.Bool("stats.target_set", nTargetSet),
			logx.String("stats.busy_timeout", nBusy),
			logx.Bool("stats.digest_set", nDigest != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
