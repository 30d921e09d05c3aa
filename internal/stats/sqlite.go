package stats

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "woltbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrClosed = errors.New("stats store closed")

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ReportEvents(ctx context.Context, events []MonitorEvent) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO monitor_events(chat_id, start_ms, end_ms, restaurant_name, restaurant_opened)
		 VALUES(?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.ChatID, ev.StartTime.UnixMilli(), ev.EndTime.UnixMilli(),
			ev.RestaurantName, ev.Opened,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GeneralStats(ctx context.Context) (*GeneralStats, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}

	out := &GeneralStats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT restaurant_name, request_count, unique_chat_count
		   FROM monitor_events_view
		  ORDER BY request_count DESC
		  LIMIT 1`,
	).Scan(&out.MostRequested, &out.MostRequestedCount, &out.MostRequestedUniqueChats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var avgMs float64
	err = s.db.QueryRowContext(ctx,
		`SELECT restaurant_name, average_wait_ms
		   FROM monitor_events_view
		  ORDER BY average_wait_ms DESC
		  LIMIT 1`,
	).Scan(&out.Slowest, &avgMs)
	if err != nil {
		return nil, err
	}
	out.SlowestAverageWait = msToDuration(avgMs)

	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM monitor_events`,
	).Scan(&out.UsageCount); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqliteStore) RestaurantStats(ctx context.Context, name string) (*RestaurantStats, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}

	var (
		out   RestaurantStats
		avgMs float64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT request_count, unique_chat_count, average_wait_ms
		   FROM monitor_events_view
		  WHERE restaurant_name = ?`,
		name,
	).Scan(&out.RequestCount, &out.UniqueChats, &avgMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.AverageWait = msToDuration(avgMs)
	return &out, nil
}

func (s *sqliteStore) ChatStats(ctx context.Context, chatID int64) (*ChatStats, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}

	var (
		out     ChatStats
		totalMs int64
	)
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*), coalesce(sum(end_ms - start_ms), 0)
		   FROM monitor_events
		  WHERE chat_id = ?`,
		chatID,
	).Scan(&out.UsageCount, &totalMs); err != nil {
		return nil, err
	}
	if out.UsageCount == 0 {
		return nil, nil
	}
	out.TotalWait = time.Duration(totalMs) * time.Millisecond

	// Name is the tiebreak so equal counts stay deterministic.
	if err := s.db.QueryRowContext(ctx,
		`SELECT restaurant_name, count(*) AS c
		   FROM monitor_events
		  WHERE chat_id = ?
		  GROUP BY restaurant_name
		  ORDER BY c DESC, restaurant_name ASC
		  LIMIT 1`,
		chatID,
	).Scan(&out.Favorite, &out.FavoriteCount); err != nil {
		return nil, err
	}
	return &out, nil
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
