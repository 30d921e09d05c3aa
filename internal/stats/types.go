package stats

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MonitorEvent is one chat's completed wait on one restaurant: the chat's
// personal wait window plus whether the restaurant actually came online.
// Events are write-once; every aggregate is derived from them.
type MonitorEvent struct {
	ChatID         int64
	StartTime      time.Time
	EndTime        time.Time
	RestaurantName string
	Opened         bool
}

// GeneralStats summarizes all recorded activity across every chat.
type GeneralStats struct {
	UsageCount int64

	MostRequested            string
	MostRequestedCount       int64
	MostRequestedUniqueChats int64

	Slowest            string
	SlowestAverageWait time.Duration
}

// PrettyPrint renders the stats the way the bot reports them in chat.
func (g *GeneralStats) PrettyPrint() string {
	return strings.Join([]string{
		fmt.Sprintf("Bot was used %d times.", g.UsageCount),
		fmt.Sprintf("The most popular restaurant is %q, it was waited on %d times, by %d different people.",
			g.MostRequested, g.MostRequestedCount, g.MostRequestedUniqueChats),
		fmt.Sprintf("The slowest restaurant is %q. On average, people wait %s for it to open.",
			g.Slowest, formatWait(g.SlowestAverageWait)),
	}, "\n")
}

// RestaurantStats is one restaurant's aggregate history. AverageWait covers
// opened watches only; a restaurant that never came online has no stats at
// all rather than a zero average.
type RestaurantStats struct {
	RequestCount int64
	UniqueChats  int64
	AverageWait  time.Duration
}

// ChatStats is one chat's own history.
type ChatStats struct {
	UsageCount    int64
	Favorite      string
	FavoriteCount int64
	TotalWait     time.Duration
}

// PrettyPrint renders a chat's own block for /stats.
func (c *ChatStats) PrettyPrint() string {
	return strings.Join([]string{
		fmt.Sprintf("You used the bot %d times.", c.UsageCount),
		fmt.Sprintf("Your favorite restaurant is %q, you waited on it %d times.",
			c.Favorite, c.FavoriteCount),
		fmt.Sprintf("In total, you spent %s waiting for restaurants to open.",
			formatWait(c.TotalWait)),
	}, "\n")
}

// formatWait keeps chat output readable; sub-second noise is irrelevant at
// restaurant-wait timescales.
func formatWait(d time.Duration) string {
	return d.Round(time.Second).String()
}

// Store is the persistence boundary for monitor outcomes. Implementations
// must be safe for concurrent use. Query methods return (nil, nil) when no
// matching data has been recorded yet.
type Store interface {
	// ReportEvents durably records a batch of completed episodes.
	// The batch is all-or-nothing.
	ReportEvents(ctx context.Context, events []MonitorEvent) error

	GeneralStats(ctx context.Context) (*GeneralStats, error)
	RestaurantStats(ctx context.Context, name string) (*RestaurantStats, error)
	ChatStats(ctx context.Context, chatID int64) (*ChatStats, error)

	Close() error
}
