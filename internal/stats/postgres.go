package stats

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	logx "woltbot/pkg/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTable = "monitor_events"

// Table names end up interpolated into DDL, so only plain identifiers are
// accepted.
var validTable = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger

	// quoted identifiers for SQL text and the raw one for CopyFrom
	table      string
	view       string
	tableIdent pgx.Identifier
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("postgres url is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultTable
	}
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	poolCfg.MaxConnLifetime = 5 * time.Minute
	poolCfg.MaxConnIdleTime = 1 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	st := &postgresStore{
		pool:       pool,
		log:        log,
		table:      pgx.Identifier{table}.Sanitize(),
		view:       pgx.Identifier{table + "_view"}.Sanitize(),
		tableIdent: pgx.Identifier{table},
	}
	if err := st.setup(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("setup schema: %w", err)
	}
	return st, nil
}

func (s *postgresStore) setup(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    chat_id bigint NOT NULL,
    start_time timestamptz,
    end_time timestamptz,
    restaurant_name text NOT NULL,
    restaurant_opened boolean
);
CREATE MATERIALIZED VIEW IF NOT EXISTS %[2]s AS
    SELECT a.restaurant_name,
           a.request_count,
           a.unique_chat_count,
           a.total_wait_time,
           b.average_wait_time
      FROM (SELECT restaurant_name,
                   count(*) AS request_count,
                   count(DISTINCT chat_id) AS unique_chat_count,
                   sum(end_time-start_time) AS total_wait_time
              FROM %[1]s
          GROUP BY restaurant_name) AS a
INNER JOIN (SELECT restaurant_name,
                   avg(end_time-start_time) AS average_wait_time
              FROM %[1]s
             WHERE restaurant_opened = true
             GROUP BY restaurant_name) AS b
        ON a.restaurant_name = b.restaurant_name;
`, s.table, s.view)
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) ReportEvents(ctx context.Context, events []MonitorEvent) error {
	if s == nil || s.pool == nil {
		return ErrClosed
	}
	if len(events) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []any{ev.ChatID, ev.StartTime, ev.EndTime, ev.RestaurantName, ev.Opened})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.CopyFrom(ctx, s.tableIdent,
		[]string{"chat_id", "start_time", "end_time", "restaurant_name", "restaurant_opened"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	if _, err := tx.Exec(ctx, "REFRESH MATERIALIZED VIEW "+s.view); err != nil {
		return fmt.Errorf("refresh view: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *postgresStore) GeneralStats(ctx context.Context) (*GeneralStats, error) {
	if s == nil || s.pool == nil {
		return nil, ErrClosed
	}

	out := &GeneralStats{}
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT restaurant_name, request_count, unique_chat_count
		   FROM %s
		  ORDER BY request_count DESC
		  LIMIT 1`, s.view),
	).Scan(&out.MostRequested, &out.MostRequestedCount, &out.MostRequestedUniqueChats)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var avgSec float64
	err = s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT restaurant_name, EXTRACT(EPOCH FROM average_wait_time)::float8
		   FROM %s
		  ORDER BY average_wait_time DESC
		  LIMIT 1`, s.view),
	).Scan(&out.Slowest, &avgSec)
	if err != nil {
		return nil, err
	}
	out.SlowestAverageWait = secToDuration(avgSec)

	if err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s`, s.table),
	).Scan(&out.UsageCount); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *postgresStore) RestaurantStats(ctx context.Context, name string) (*RestaurantStats, error) {
	if s == nil || s.pool == nil {
		return nil, ErrClosed
	}

	var (
		out    RestaurantStats
		avgSec float64
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT request_count, unique_chat_count, EXTRACT(EPOCH FROM average_wait_time)::float8
		   FROM %s
		  WHERE restaurant_name = $1`, s.view),
		name,
	).Scan(&out.RequestCount, &out.UniqueChats, &avgSec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.AverageWait = secToDuration(avgSec)
	return &out, nil
}

func (s *postgresStore) ChatStats(ctx context.Context, chatID int64) (*ChatStats, error) {
	if s == nil || s.pool == nil {
		return nil, ErrClosed
	}

	var (
		out      ChatStats
		totalSec float64
	)
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT count(*), coalesce(EXTRACT(EPOCH FROM sum(end_time - start_time)), 0)::float8
		   FROM %s
		  WHERE chat_id = $1`, s.table),
		chatID,
	).Scan(&out.UsageCount, &totalSec); err != nil {
		return nil, err
	}
	if out.UsageCount == 0 {
		return nil, nil
	}
	out.TotalWait = secToDuration(totalSec)

	// Name is the tiebreak so equal counts stay deterministic.
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT restaurant_name, count(*) AS c
		   FROM %s
		  WHERE chat_id = $1
		  GROUP BY restaurant_name
		  ORDER BY c DESC, restaurant_name ASC
		  LIMIT 1`, s.table),
		chatID,
	).Scan(&out.Favorite, &out.FavoriteCount); err != nil {
		return nil, err
	}
	return &out, nil
}

func secToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
