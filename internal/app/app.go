// Package app wires the bot together: config, logging, the Telegram
// adapter, the Wolt directory client, the watch registry with its polling
// loop, and the chat command surface. It owns startup order, config
// hot-reload fan-out, and shutdown sequencing.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"woltbot/internal/config"
	"woltbot/internal/janitor"
	"woltbot/internal/monitor"
	"woltbot/internal/notifier"
	"woltbot/internal/observability/pprof"
	rtsup "woltbot/internal/runtime/supervisor"
	"woltbot/internal/session"
	"woltbot/internal/stats"
	"woltbot/internal/telegram/adapter"
	"woltbot/internal/telegram/router"
	kit "woltbot/internal/transport"
	"woltbot/internal/wolt"
	logx "woltbot/pkg/logx"
)

// StopReason labels why the app is shutting down. It only feeds logs.
type StopReason string

const (
	StopReasonSignal StopReason = "signal"
	StopReasonFatal  StopReason = "fatal"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter *adapter.Adapter

	dir      *wolt.Client
	registry *monitor.Registry
	watcher  *monitor.Service
	notif    *notifier.Service
	store    stats.Store // nil when statistics are off
	sessions *session.Store
	jan      *janitor.Service
	pprof    *pprof.Service

	cmdm *router.CommandManager

	messages chan kit.Message
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := adapter.New(adapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New() calls Apply() immediately. If Telegram logging is enabled but
	// the target chat isn't configured yet, Apply() emits a warning. Bootstrap
	// with Telegram logging disabled, set the target, then Apply() the final
	// config.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    false, // set target first, then enable via Apply()
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	logTarget := logChatTarget(cfg)
	if logTarget.ChatID != 0 {
		logSvc.SetTelegramTarget(logTarget.ChatID, cfg.Logging.Telegram.ThreadID)
	}

	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled
	logSvc.Apply(finalLogCfg)

	// Directory client
	wcfg, err := mapWoltConfig(cfg)
	if err != nil {
		return nil, err
	}
	dir := wolt.New(wcfg, log.With(logx.String("comp", "wolt")))

	// Statistics (optional)
	scfg, err := mapStatsConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := stats.Open(scfg, log.With(logx.String("comp", "stats")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("statistics enabled", logx.String("driver", scfg.Driver))
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")))

	registry := monitor.NewRegistry()

	mcfg, err := mapMonitorConfig(cfg)
	if err != nil {
		return nil, err
	}
	watcher := monitor.New(mcfg, registry, dir, notif, store, log.With(logx.String("comp", "monitor")))

	sessCfg, err := mapSessionsConfig(cfg)
	if err != nil {
		return nil, err
	}
	sessions := session.New(sessCfg)

	jcfg, err := mapJanitorConfig(cfg)
	if err != nil {
		return nil, err
	}
	if jcfg.DigestCron != "" && logTarget.ChatID == 0 {
		log.Warn("stats.digest_cron is set but telegram.group_log is not; digest disabled")
		jcfg.DigestCron = ""
	}
	jan := janitor.New(jcfg, sessions, store, notif, logTarget, log.With(logx.String("comp", "janitor")))

	// pprof service mapping (optional)
	pprofCfg, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	pprofSvc := pprof.New(pprofCfg, log.With(logx.String("comp", "pprof")))

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, cfg.Telegram.OwnerUserIDs)

	h := &handlers{
		dir:      dir,
		registry: registry,
		sessions: sessions,
		store:    store,
		log:      log.With(logx.String("comp", "handlers")),
	}
	cmdm.SetRegistry(h.Commands())
	cmdm.SetTextHandler(h.HandleText)

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		adapter:  ad,
		dir:      dir,
		registry: registry,
		watcher:  watcher,
		notif:    notif,
		store:    store,
		sessions: sessions,
		jan:      jan,
		pprof:    pprofSvc,
		cmdm:     cmdm,
		messages: make(chan kit.Message, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
			if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
				return err
			}
			if _, err := mapWoltConfig(cfg); err != nil {
				return err
			}
			if _, err := mapMonitorConfig(cfg); err != nil {
				return err
			}
			if _, err := mapNotifierConfig(cfg); err != nil {
				return err
			}
			if _, err := mapSessionsConfig(cfg); err != nil {
				return err
			}
			if _, err := mapJanitorConfig(cfg); err != nil {
				return err
			}
			if _, err := mapStatsConfig(cfg); err != nil {
				return err
			}
			if _, err := mapPprofConfig(cfg); err != nil {
				return err
			}
			return nil
		})
	}

	if err := a.adapter.Start(a.sup.Context(), a.messages); err != nil {
		return err
	}

	if a.notif != nil && a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	a.jan.Start(a.sup.Context())
	if a.pprof != nil && a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	// The polling loop is the bot's reason to exist. If it returns an error
	// (directory unreachable beyond what a tick tolerates), cancel-on-error
	// brings the whole app down instead of idling with dead watches.
	a.sup.Go("monitor.loop", a.watcher.Run)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.messages)
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track last applied config to generate a safe diff summary for logs.
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				prev := lastApplied
				sections, attrs := config.SummarizeConfigChange(prev, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				lastApplied = newCfg

				for _, s := range sections {
					// The stats store and the directory client are built once
					// at startup; swapping them under a live polling loop is
					// not worth the complexity.
					if s == "stats" || s == "wolt" {
						a.log.Warn("config changed; restart required for changes to take effect", logx.String("section", s))
					}
				}
				// The bot connection is built once at startup too. The diff
				// never inspects the token, so compare here (and never log it).
				if prev != nil && (prev.Telegram.Token != newCfg.Telegram.Token ||
					strings.TrimSpace(prev.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout)) {
					a.log.Warn("config changed; restart required for changes to take effect", logx.String("section", "telegram.token/poll_timeout"))
				}

				// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
				if t := logChatTarget(newCfg); t.ChatID != 0 {
					a.logs.SetTelegramTarget(t.ChatID, newCfg.Logging.Telegram.ThreadID)
				} else {
					// allow clearing target via config hot-reload
					a.logs.SetTelegramTarget(0, 0)
				}

				// apply logging updates
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
					Telegram: logx.TelegramConfig{
						Enabled:    newCfg.Logging.Telegram.Enabled,
						ThreadID:   newCfg.Logging.Telegram.ThreadID,
						MinLevel:   newCfg.Logging.Telegram.MinLevel,
						RatePerSec: newCfg.Logging.Telegram.RatePerSec,
					},
				})

				// Update owner list used for AccessOwnerOnly checks.
				a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)

				// apply polling loop updates (live; the next tick picks them up)
				if mcfg, err := mapMonitorConfig(newCfg); err != nil {
					a.log.Warn("invalid monitor config; keeping previous", logx.Any("err", err))
				} else {
					a.watcher.Apply(mcfg)
				}

				// apply notifier updates (live)
				if a.notif != nil {
					prevNotifEnabled := a.notif.Enabled()
					ncfg, err := mapNotifierConfig(newCfg)
					if err != nil {
						a.log.Warn("invalid notifier config; keeping previous", logx.Any("err", err))
					} else {
						a.notif.Apply(ncfg)
						if prevNotifEnabled && !ncfg.Enabled {
							a.log.Info("notifier disabled via config")
							stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
							a.notif.Stop(stopCtx)
							cancel()
						} else if !prevNotifEnabled && ncfg.Enabled {
							a.log.Info("notifier enabled via config")
							a.notif.Start(c)
						}
					}
				}

				// apply session TTL updates (live)
				if sessCfg, err := mapSessionsConfig(newCfg); err != nil {
					a.log.Warn("invalid sessions config; keeping previous", logx.Any("err", err))
				} else {
					a.sessions.Apply(sessCfg)
				}

				// apply janitor schedule updates (live)
				if jcfg, err := mapJanitorConfig(newCfg); err != nil {
					a.log.Warn("invalid janitor config; keeping previous", logx.Any("err", err))
				} else {
					if jcfg.DigestCron != "" && logChatTarget(newCfg).ChatID == 0 {
						a.log.Warn("stats.digest_cron is set but telegram.group_log is not; digest disabled")
						jcfg.DigestCron = ""
					}
					a.jan.Apply(jcfg)
				}

				// apply pprof updates (live)
				if a.pprof != nil {
					ppc, err := mapPprofConfig(newCfg)
					if err != nil {
						a.log.Warn("invalid pprof config; keeping previous", logx.Any("err", err))
					} else {
						a.pprof.Reconfigure(c, ppc)
					}
				}

				// Keep the final log line concise and human-friendly (details are in debug logs).
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Int("watches", a.registry.Len()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Stop order: scheduled upkeep first, then the delivery pipeline, then the
	// adapter, finally the store the other components write to.
	step("janitor", 2*time.Second, func(c context.Context) error { a.jan.Stop(c); return nil })
	step("pprof", 1*time.Second, func(c context.Context) error {
		if a.pprof != nil {
			a.pprof.Stop(c)
		}
		return nil
	})
	step("notifier", 1*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("stats", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (monitor loop, config watch/reload, command dispatcher).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
