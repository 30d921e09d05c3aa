// Package monitor owns the watch registry and the polling loop that drives
// it: which restaurants are being waited on, by whom, and since when, plus
// the periodic status probes that conclude each watch with an online,
// timed-out, or error outcome.
package monitor

import (
	"sort"
	"sync"
	"time"

	"woltbot/internal/wolt"
)

// ChatSubscription records one chat waiting on a restaurant.
type ChatSubscription struct {
	ChatID    int64
	StartTime time.Time
}

// WatchView is a read-only snapshot of one watch, taken so status probes and
// notifications can happen without holding the registry lock.
type WatchView struct {
	Restaurant    wolt.Restaurant
	EarliestStart time.Time
	Chats         int
}

type watch struct {
	restaurant wolt.Restaurant
	// chat id -> when that chat started waiting
	chats map[int64]time.Time
}

// Registry tracks active watches, keyed by venue slug. A slug key exists iff
// at least one chat waits on it; concluded watches are removed atomically
// with their subscriber list.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	watches map[string]*watch
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		watches: map[string]*watch{},
		now:     time.Now,
	}
}

// Subscribe adds chatID to the watch for r, creating the watch on the first
// subscriber. It reports whether the restaurant was already being watched.
// Resubscribing is a no-op that keeps the chat's original start time.
func (g *Registry) Subscribe(r wolt.Restaurant, chatID int64) (alreadyWatched bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	w, ok := g.watches[r.Slug]
	if !ok {
		g.watches[r.Slug] = &watch{
			restaurant: r,
			chats:      map[int64]time.Time{chatID: g.now()},
		}
		return false
	}
	if _, dup := w.chats[chatID]; !dup {
		w.chats[chatID] = g.now()
	}
	return true
}

// RemoveAll removes the watch for slug and returns its subscribers, sorted
// by chat id. An unknown slug returns nil; concluding the same watch twice
// is harmless.
func (g *Registry) RemoveAll(slug string) []ChatSubscription {
	g.mu.Lock()
	w, ok := g.watches[slug]
	if ok {
		delete(g.watches, slug)
	}
	g.mu.Unlock()

	if !ok {
		return nil
	}
	subs := make([]ChatSubscription, 0, len(w.chats))
	for id, start := range w.chats {
		subs = append(subs, ChatSubscription{ChatID: id, StartTime: start})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ChatID < subs[j].ChatID })
	return subs
}

// Watched returns the watched restaurants, sorted by name for stable output.
func (g *Registry) Watched() []wolt.Restaurant {
	g.mu.Lock()
	out := make([]wolt.Restaurant, 0, len(g.watches))
	for _, w := range g.watches {
		out = append(out, w.restaurant)
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot returns a per-watch view for the polling loop, sorted by name.
func (g *Registry) Snapshot() []WatchView {
	g.mu.Lock()
	out := make([]WatchView, 0, len(g.watches))
	for _, w := range g.watches {
		v := WatchView{Restaurant: w.restaurant, Chats: len(w.chats)}
		for _, start := range w.chats {
			if v.EarliestStart.IsZero() || start.Before(v.EarliestStart) {
				v.EarliestStart = start
			}
		}
		out = append(out, v)
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Restaurant.Name < out[j].Restaurant.Name })
	return out
}

// Len reports the number of active watches.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.watches)
}
