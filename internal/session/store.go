// Package session parks a chat's pending pick-a-restaurant prompt between a
// /monitor search that found several candidates and the numeric reply that
// picks one. Entries expire after a TTL; the janitor sweeps them out.
package session

import (
	"sync"
	"time"

	"woltbot/internal/wolt"
)

// PickOutcome classifies a numeric reply against the chat's pending prompt.
type PickOutcome int

const (
	// PickNone means no prompt was pending (or it expired); the reply is
	// not for us and must be ignored.
	PickNone PickOutcome = iota
	// PickInvalid means the index was out of range. The prompt is kept so
	// the chat can try again.
	PickInvalid
	// PickOK resolved a candidate and consumed the prompt.
	PickOK
)

type Config struct {
	TTL time.Duration
}

type entry struct {
	candidates []wolt.Restaurant
	createdAt  time.Time
}

// Store holds at most one pending prompt per chat. A new /monitor search
// replaces whatever was pending. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[int64]entry
	now     func() time.Time
}

func New(cfg Config) *Store {
	s := &Store{
		pending: map[int64]entry{},
		now:     time.Now,
	}
	s.apply(cfg)
	return s
}

func (s *Store) Apply(cfg Config) {
	s.mu.Lock()
	s.apply(cfg)
	s.mu.Unlock()
}

func (s *Store) apply(cfg Config) {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	s.ttl = cfg.TTL
}

// Put parks candidates for chatID, replacing any previous prompt.
func (s *Store) Put(chatID int64, candidates []wolt.Restaurant) {
	if len(candidates) == 0 {
		return
	}
	cp := append([]wolt.Restaurant(nil), candidates...)
	s.mu.Lock()
	s.pending[chatID] = entry{candidates: cp, createdAt: s.now()}
	s.mu.Unlock()
}

// Pick resolves a numeric reply. On PickOK the prompt is consumed and the
// chosen restaurant returned; on PickInvalid maxIndex reports the highest
// accepted index and the prompt survives for another try.
func (s *Store) Pick(chatID int64, index int) (r wolt.Restaurant, maxIndex int, oc PickOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending[chatID]
	if !ok {
		return wolt.Restaurant{}, 0, PickNone
	}
	if s.now().Sub(e.createdAt) > s.ttl {
		delete(s.pending, chatID)
		return wolt.Restaurant{}, 0, PickNone
	}
	maxIndex = len(e.candidates) - 1
	if index < 0 || index > maxIndex {
		return wolt.Restaurant{}, maxIndex, PickInvalid
	}
	delete(s.pending, chatID)
	return e.candidates[index], maxIndex, PickOK
}

// Clear drops chatID's pending prompt, if any.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	delete(s.pending, chatID)
	s.mu.Unlock()
}

// Sweep removes expired prompts and reports how many it dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var dropped int
	for chatID, e := range s.pending {
		if now.Sub(e.createdAt) > s.ttl {
			delete(s.pending, chatID)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of pending prompts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
