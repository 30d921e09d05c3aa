package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"woltbot/internal/monitor"
	"woltbot/internal/session"
	"woltbot/internal/stats"
	"woltbot/internal/telegram/router"
	"woltbot/internal/wolt"
	logx "woltbot/pkg/logx"
)

const startMessage = "Hello!\n" +
	"In order to wait for a restaurant to become online, type:\n" +
	"/monitor <restaurant name>\n" +
	"\n" +
	"The restaurant's name could be in Hebrew or English!"

// searcher is the slice of the directory client the handlers need.
type searcher interface {
	Search(ctx context.Context, query string) ([]wolt.Restaurant, error)
}

// handlers implements the chat-facing command set. Replies go straight back
// through the adapter; only monitor outcomes and digests use the async
// notifier pipeline.
type handlers struct {
	dir      searcher
	registry *monitor.Registry
	sessions *session.Store
	store    stats.Store // nil when statistics are off
	log      logx.Logger
}

func (h *handlers) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "how to use the bot",
			Usage:       "/start",
			Access:      router.AccessEveryone,
			Timeout:     5 * time.Second,
			Handle:      h.handleStart,
		},
		{
			Name:        "monitor",
			Description: "wait for a restaurant to come online",
			Usage:       "/monitor <restaurant name>",
			Access:      router.AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      h.handleMonitor,
		},
		{
			Name:        "status",
			Description: "list restaurants being monitored",
			Usage:       "/status",
			Access:      router.AccessEveryone,
			Timeout:     5 * time.Second,
			Handle:      h.handleStatus,
		},
		{
			Name:        "stats",
			Description: "usage statistics",
			Usage:       "/stats",
			Access:      router.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      h.handleStats,
		},
	}
}

func (h *handlers) handleStart(ctx context.Context, req *router.Request) error {
	return req.Adapter.SendText(ctx, req.Chat, startMessage, nil)
}

func (h *handlers) handleMonitor(ctx context.Context, req *router.Request) error {
	query := strings.TrimSpace(req.Args)
	if query == "" {
		return req.Adapter.SendText(ctx, req.Chat, "Usage: /monitor <restaurant name>", nil)
	}

	// A new search supersedes whatever prompt was pending in this chat.
	h.sessions.Clear(req.Chat.ChatID)

	found, err := h.dir.Search(ctx, query)
	if err != nil {
		req.Logger.Warn("restaurant search failed", logx.String("query", query), logx.Err(err))
		return req.Adapter.SendText(ctx, req.Chat, "Search failed, please try again later.", nil)
	}

	switch {
	case len(found) == 0:
		return req.Adapter.SendText(ctx, req.Chat, "No restaurant found.", nil)
	case len(found) == 1:
		return h.subscribe(ctx, req, found[0])
	default:
		h.sessions.Put(req.Chat.ChatID, found)
		return req.Adapter.SendText(ctx, req.Chat, pickPrompt(found), nil)
	}
}

func pickPrompt(found []wolt.Restaurant) string {
	var b strings.Builder
	b.WriteString("More than one result found, pick one:\n")
	for i, r := range found {
		fmt.Fprintf(&b, "[%d]: %s\n", i, r.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

// HandleText resolves bare numeric replies against the chat's pending
// disambiguation prompt. Anything else is ignored; group chats are full of
// text that is not addressed to the bot.
func (h *handlers) HandleText(ctx context.Context, req *router.Request) error {
	index, err := strconv.Atoi(strings.TrimSpace(req.Message.Text))
	if err != nil {
		return nil
	}

	r, maxIndex, oc := h.sessions.Pick(req.Chat.ChatID, index)
	switch oc {
	case session.PickNone:
		return nil
	case session.PickInvalid:
		return req.Adapter.SendText(ctx, req.Chat,
			fmt.Sprintf("Invalid index: %d, max index is %d", index, maxIndex), nil)
	default:
		return h.subscribe(ctx, req, r)
	}
}

func (h *handlers) subscribe(ctx context.Context, req *router.Request, r wolt.Restaurant) error {
	already := h.registry.Subscribe(r, req.Chat.ChatID)
	req.Logger.Info("watch subscribed",
		logx.String("restaurant", r.Name),
		logx.String("slug", r.Slug),
		logx.Bool("already_watched", already),
	)

	msg := fmt.Sprintf("Starting to monitor %q", r.Name)
	if wait, ok := h.averageWait(ctx, r.Name); ok {
		msg += fmt.Sprintf("\nOn average, people wait %s for it to open.", wait)
	}
	return req.Adapter.SendText(ctx, req.Chat, msg, nil)
}

// averageWait looks up the restaurant's historical average wait as a
// best-effort enrichment of the confirmation. It never delays the reply past
// a short bound and never surfaces errors to the chat.
func (h *handlers) averageWait(ctx context.Context, name string) (string, bool) {
	if h.store == nil {
		return "", false
	}
	qctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	rs, err := h.store.RestaurantStats(qctx, name)
	if err != nil {
		h.log.Debug("restaurant stats lookup failed", logx.String("restaurant", name), logx.Err(err))
		return "", false
	}
	if rs == nil || rs.AverageWait <= 0 {
		return "", false
	}
	return rs.AverageWait.Round(time.Second).String(), true
}

func (h *handlers) handleStatus(ctx context.Context, req *router.Request) error {
	watched := h.registry.Watched()
	if len(watched) == 0 {
		return req.Adapter.SendText(ctx, req.Chat, "No restaurants are being monitored.", nil)
	}
	lines := make([]string, 0, len(watched)+1)
	lines = append(lines, "Currently monitoring:")
	for _, r := range watched {
		lines = append(lines, "- "+r.Name)
	}
	return req.Adapter.SendText(ctx, req.Chat, strings.Join(lines, "\n"), nil)
}

func (h *handlers) handleStats(ctx context.Context, req *router.Request) error {
	if h.store == nil {
		return req.Adapter.SendText(ctx, req.Chat, "Statistics are not enabled.", nil)
	}

	general, err := h.store.GeneralStats(ctx)
	if err != nil {
		req.Logger.Warn("general stats query failed", logx.Err(err))
		return req.Adapter.SendText(ctx, req.Chat, "Could not fetch statistics, please try again later.", nil)
	}
	if general == nil {
		return req.Adapter.SendText(ctx, req.Chat, "No statistics recorded yet.", nil)
	}

	msg := general.PrettyPrint()
	if mine, err := h.store.ChatStats(ctx, req.Chat.ChatID); err != nil {
		req.Logger.Debug("chat stats query failed", logx.Err(err))
	} else if mine != nil {
		msg += "\n\n" + mine.PrettyPrint()
	}
	return req.Adapter.SendText(ctx, req.Chat, msg, nil)
}
