// Package janitor runs scheduled upkeep: sweeping expired disambiguation
// prompts and, when a statistics store is configured, posting a periodic
// statistics digest to the log chat.
package janitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "woltbot/pkg/logx"

	"woltbot/internal/stats"
	kit "woltbot/internal/transport"
)

// Config controls the upkeep schedules. DigestCron is a standard cron spec
// (or a @every/@daily descriptor); empty disables the digest.
type Config struct {
	SweepEvery time.Duration
	DigestCron string
}

// Sweeper drops expired entries and reports how many went.
// *session.Store satisfies it.
type Sweeper interface {
	Sweep() int
}

type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	c   *cron.Cron

	sessions Sweeper
	store    stats.Store // nil when statistics are off
	notif    Notifier
	digestTo kit.ChatTarget

	log logx.Logger
}

func New(cfg Config, sessions Sweeper, store stats.Store, notif Notifier, digestTo kit.ChatTarget, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sessions: sessions,
		store:    store,
		notif:    notif,
		digestTo: digestTo,
		log:      log,
	}
	s.cfg = normalize(cfg)
	return s
}

func normalize(cfg Config) Config {
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 5 * time.Minute
	}
	cfg.DigestCron = strings.TrimSpace(cfg.DigestCron)
	return cfg
}

// ValidateDigestSpec reports whether spec would be accepted as a digest
// schedule. The config validator calls this before a reload is committed.
func ValidateDigestSpec(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	_, err := cron.ParseStandard(spec)
	return err
}

func (s *Service) Start(ctx context.Context) {
	_ = ctx // cron manages its own goroutines

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.startLocked()
}

func (s *Service) startLocked() {
	cfg := s.cfg
	c := cron.New()

	sweepSpec := fmt.Sprintf("@every %s", cfg.SweepEvery)
	if _, err := c.AddFunc(sweepSpec, s.runSweep); err != nil {
		s.log.Error("registering session sweep failed", logx.String("spec", sweepSpec), logx.Err(err))
	}

	digest := cfg.DigestCron != "" && s.store != nil
	if digest {
		if _, err := c.AddFunc(cfg.DigestCron, s.runDigest); err != nil {
			s.log.Error("registering statistics digest failed", logx.String("spec", cfg.DigestCron), logx.Err(err))
			digest = false
		}
	}

	c.Start()
	s.c = c
	s.log.Info("janitor started",
		logx.Duration("sweep_every", cfg.SweepEvery),
		logx.Bool("digest", digest),
	)
}

// Stop halts the schedules and waits for running jobs, best-effort until ctx
// expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply restarts the schedules when they changed. Safe to call while running.
func (s *Service) Apply(cfg Config) {
	cfg = normalize(cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg {
		return
	}
	s.cfg = cfg
	if s.c == nil {
		return
	}
	old := s.c
	s.c = nil
	go func() { <-old.Stop().Done() }()
	s.startLocked()
}

func (s *Service) runSweep() {
	if s.sessions == nil {
		return
	}
	if dropped := s.sessions.Sweep(); dropped > 0 {
		s.log.Debug("expired prompts swept", logx.Int("dropped", dropped))
	}
}

func (s *Service) runDigest() {
	if s.store == nil || s.notif == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, err := s.store.GeneralStats(ctx)
	if err != nil {
		s.log.Warn("statistics digest query failed", logx.Err(err))
		return
	}
	if g == nil {
		s.log.Debug("statistics digest skipped, no data yet")
		return
	}
	text := "Statistics digest:\n" + g.PrettyPrint()
	if err := s.notif.Notify(ctx, kit.Notification{Target: s.digestTo, Text: text}); err != nil {
		s.log.Warn("statistics digest dropped", logx.Err(err))
	}
}
