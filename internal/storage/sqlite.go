package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"cryptotracker/internal/prices"
	"cryptotracker/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch {
	case driver == "memory" || (driver == "" && path == ""):
		path = ":memory:"
	case path == "":
		return nil, errors.New("storage path is required")
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("storage opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *sqliteStore) AddWatch(ctx context.Context, userID int64, symbol string) (bool, error) {
	symbol = prices.Normalize(symbol)
	if symbol == "" {
		return false, errors.New("empty symbol")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO watchlist (user_id, symbol) VALUES (?, ?)`, userID, symbol)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) RemoveWatch(ctx context.Context, userID int64, symbol string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE user_id = ? AND symbol = ?`, userID, prices.Normalize(symbol))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) Watchlist(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol FROM watchlist WHERE user_id = ? ORDER BY added_at, symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddPosition(ctx context.Context, userID int64, symbol string, amount decimal.Decimal) error {
	symbol = prices.Normalize(symbol)
	if symbol == "" {
		return errors.New("empty symbol")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT amount FROM portfolio WHERE user_id = ? AND symbol = ?`, userID, symbol).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO portfolio (user_id, symbol, amount) VALUES (?, ?, ?)`,
			userID, symbol, amount.String())
	case err == nil:
		cur, perr := decimal.NewFromString(current)
		if perr != nil {
			return fmt.Errorf("corrupt amount for %s: %w", symbol, perr)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE portfolio SET amount = ? WHERE user_id = ? AND symbol = ?`,
			cur.Add(amount).String(), userID, symbol)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) Portfolio(ctx context.Context, userID int64) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, amount FROM portfolio WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Position
	for rows.Next() {
		var sym, amt string
		if err := rows.Scan(&sym, &amt); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(amt)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for %s: %w", sym, err)
		}
		out = append(out, Position{Symbol: sym, Amount: d})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *sqliteStore) SetAutoReply(ctx context.Context, userID int64, keyword, reply string) error {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" || strings.TrimSpace(reply) == "" {
		return errors.New("keyword and reply are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auto_replies (user_id, keyword, reply) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, keyword) DO UPDATE SET reply = excluded.reply`,
		userID, keyword, reply)
	return err
}

func (s *sqliteStore) RemoveAutoReply(ctx context.Context, userID int64, keyword string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auto_replies WHERE user_id = ? AND keyword = ?`,
		userID, strings.ToLower(strings.TrimSpace(keyword)))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) AutoReplies(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT keyword, reply FROM auto_replies WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error { return s.db.Close() }
