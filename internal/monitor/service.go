package monitor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	logx "woltbot/pkg/logx"

	"woltbot/internal/stats"
	kit "woltbot/internal/transport"
	"woltbot/internal/wolt"
)

// Directory reports live venue status. *wolt.Client satisfies it.
type Directory interface {
	CheckOnline(ctx context.Context, r wolt.Restaurant) (bool, error)
}

// Notifier is the slice of the notification pipeline the loop needs.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// Config controls the polling loop. Zero values fall back to defaults:
// 10s-20s between ticks, give up after 2h.
type Config struct {
	IntervalMin time.Duration
	IntervalMax time.Duration
	GiveUpAfter time.Duration
}

type outcome int

const (
	outcomeOnline outcome = iota
	outcomeTimedOut
	outcomeError
)

func (o outcome) String() string {
	switch o {
	case outcomeOnline:
		return "online"
	case outcomeTimedOut:
		return "timed_out"
	default:
		return "error"
	}
}

// Service drives the watches: a supervised loop that probes every watched
// restaurant on a randomized interval and concludes watches that come
// online, exceed the give-up threshold, or hit a directory error.
//
// It is safe for concurrent use; Apply may run while the loop is ticking.
type Service struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand

	reg   *Registry
	dir   Directory
	notif Notifier
	store stats.Store // nil when statistics are off

	log logx.Logger
	now func() time.Time
}

func New(cfg Config, reg *Registry, dir Directory, notif Notifier, store stats.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		reg:   reg,
		dir:   dir,
		notif: notif,
		store: store,
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.IntervalMin <= 0 {
		cfg.IntervalMin = 10 * time.Second
	}
	if cfg.IntervalMax <= 0 {
		cfg.IntervalMax = 20 * time.Second
	}
	if cfg.IntervalMax < cfg.IntervalMin {
		cfg.IntervalMax = cfg.IntervalMin
	}
	if cfg.GiveUpAfter <= 0 {
		cfg.GiveUpAfter = 2 * time.Hour
	}
	s.cfg = cfg
}

// Run polls until ctx is canceled, rescheduling itself with a fresh random
// delay after every tick. It returns ctx.Err() on cancellation; any other
// return is a probe failure the caller should treat as fatal.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	s.log.Info("monitor loop started",
		logx.Duration("interval_min", cfg.IntervalMin),
		logx.Duration("interval_max", cfg.IntervalMax),
		logx.Duration("give_up_after", cfg.GiveUpAfter),
	)

	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := s.tick(ctx); err != nil {
				return err
			}
			timer.Reset(s.nextDelay())
		}
	}
}

// nextDelay draws uniformly from [IntervalMin, IntervalMax]. Randomizing the
// interval keeps the poll pattern from looking mechanical to the upstream.
func (s *Service) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := s.cfg.IntervalMin, s.cfg.IntervalMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int63n(int64(hi-lo)+1))
}

// tick probes every snapshotted watch once. Watches fail independently: a
// DirectoryError drops only the affected watch, while any other probe error
// aborts the tick and is returned to the caller.
func (s *Service) tick(ctx context.Context) error {
	views := s.reg.Snapshot()
	if len(views) == 0 {
		return nil
	}

	s.mu.Lock()
	giveUp := s.cfg.GiveUpAfter
	s.mu.Unlock()

	now := s.now()
	for _, v := range views {
		online, err := s.dir.CheckOnline(ctx, v.Restaurant)
		switch {
		case err != nil && wolt.IsDirectoryError(err):
			s.log.Warn("dropping watch after directory error",
				logx.String("restaurant", v.Restaurant.Name),
				logx.String("slug", v.Restaurant.Slug),
				logx.Err(err),
			)
			s.conclude(ctx, v.Restaurant, outcomeError, now)
		case err != nil:
			return err
		case online:
			s.conclude(ctx, v.Restaurant, outcomeOnline, now)
		case now.Sub(v.EarliestStart) >= giveUp:
			s.conclude(ctx, v.Restaurant, outcomeTimedOut, now)
		}
	}
	return nil
}

// conclude removes the watch, tells every subscriber, and records the
// episode. Notification and statistics failures are logged, never fatal.
func (s *Service) conclude(ctx context.Context, r wolt.Restaurant, oc outcome, endedAt time.Time) {
	subs := s.reg.RemoveAll(r.Slug)
	if len(subs) == 0 {
		return
	}

	var text string
	switch oc {
	case outcomeOnline:
		text = fmt.Sprintf("Restaurant %q is online!", r.Name)
	case outcomeTimedOut:
		text = fmt.Sprintf("Gave up waiting for %q to come online. You can /monitor it again.", r.Name)
	default:
		text = "Could not fetch online status. Aborting monitor."
	}

	for _, sub := range subs {
		n := kit.Notification{Target: kit.ChatTarget{ChatID: sub.ChatID}, Text: text}
		if err := s.notif.Notify(ctx, n); err != nil {
			s.log.Warn("outcome notification dropped",
				logx.Int64("chat_id", sub.ChatID),
				logx.String("restaurant", r.Name),
				logx.Err(err),
			)
		}
	}

	earliest := subs[0].StartTime
	for _, sub := range subs[1:] {
		if sub.StartTime.Before(earliest) {
			earliest = sub.StartTime
		}
	}
	s.log.Info("watch concluded",
		logx.String("restaurant", r.Name),
		logx.String("slug", r.Slug),
		logx.String("outcome", oc.String()),
		logx.Int("chats", len(subs)),
		logx.Duration("waited", endedAt.Sub(earliest)),
	)

	s.reportEvents(ctx, r, subs, oc == outcomeOnline, endedAt)
}

func (s *Service) reportEvents(ctx context.Context, r wolt.Restaurant, subs []ChatSubscription, opened bool, endedAt time.Time) {
	if s.store == nil {
		return
	}
	events := make([]stats.MonitorEvent, 0, len(subs))
	for _, sub := range subs {
		events = append(events, stats.MonitorEvent{
			ChatID:         sub.ChatID,
			StartTime:      sub.StartTime,
			EndTime:        endedAt,
			RestaurantName: r.Name,
			Opened:         opened,
		})
	}
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.store.ReportEvents(rctx, events); err != nil {
		s.log.Warn("recording monitor events failed",
			logx.Int("events", len(events)),
			logx.Err(err),
		)
	}
}
