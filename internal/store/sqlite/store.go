// Package sqlite is the local watchlist backend: a symbol catalog for
// search, per-user watchlist rows, and last-known quotes so a freshly
// started process shows prices before the first tick arrives.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"marketwatchv1/internal/model"
	"marketwatchv1/internal/watchlist"

	_ "github.com/mattn/go-sqlite3"
)

const searchLimit = 50

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to the database file, e.g. "data/marketwatch.db"
}

// Store implements watchlist.Store against a local SQLite file.
type Store struct {
	db *sql.DB
}

var _ watchlist.Store = (*Store)(nil)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and initialises the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer discipline.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS symbols (
			exchange TEXT NOT NULL,
			token    TEXT NOT NULL,
			symbol   TEXT NOT NULL,
			name     TEXT,
			lot_size REAL NOT NULL DEFAULT 1,
			PRIMARY KEY (exchange, token)
		);

		CREATE TABLE IF NOT EXISTS watchlist_items (
			ref_id   TEXT    NOT NULL,
			exchange TEXT    NOT NULL,
			token    TEXT    NOT NULL,
			added_at INTEGER NOT NULL,
			PRIMARY KEY (ref_id, exchange, token)
		);

		CREATE TABLE IF NOT EXISTS quotes (
			exchange   TEXT NOT NULL,
			token      TEXT NOT NULL,
			buy        REAL, sell REAL, ltp REAL, ltp_usd REAL,
			chg        REAL, chg_usd REAL,
			high       REAL, low REAL, opn REAL, cls REAL, close_usd REAL,
			oi         REAL, vol REAL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (exchange, token)
		);
	`)
	return err
}

// List returns the user's watchlist rows for one exchange segment,
// joined with the symbol catalog and last-known quotes. Insertion order
// is preserved via added_at.
func (s *Store) List(ctx context.Context, refID, exchange string) ([]model.WatchlistRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.token, sym.symbol, sym.lot_size,
		       COALESCE(q.buy, 0), COALESCE(q.sell, 0), COALESCE(q.ltp, 0),
		       COALESCE(q.ltp_usd, 0), COALESCE(q.chg, 0), COALESCE(q.chg_usd, 0),
		       COALESCE(q.high, 0), COALESCE(q.low, 0), COALESCE(q.opn, 0),
		       COALESCE(q.cls, 0), COALESCE(q.close_usd, 0),
		       COALESCE(q.oi, 0), COALESCE(q.vol, 0)
		FROM watchlist_items w
		JOIN symbols sym ON sym.exchange = w.exchange AND sym.token = w.token
		LEFT JOIN quotes q ON q.exchange = w.exchange AND q.token = w.token
		WHERE w.ref_id = ? AND w.exchange = ?
		ORDER BY w.added_at
	`, refID, exchange)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	var recs []model.WatchlistRecord
	for rows.Next() {
		var token, symbol string
		var lot, buy, sell, ltp, ltpUSD, chg, chgUSD, high, low, opn, cls, clsUSD, oi, vol float64
		if err := rows.Scan(&token, &symbol, &lot,
			&buy, &sell, &ltp, &ltpUSD, &chg, &chgUSD,
			&high, &low, &opn, &cls, &clsUSD, &oi, &vol); err != nil {
			return nil, fmt.Errorf("sqlite list scan: %w", err)
		}
		recs = append(recs, model.WatchlistRecord{
			SymbolToken: json.Number(token),
			SymbolName:  symbol,
			LotSize:     model.Flex(lot),
			Buy:         model.Flex(buy),
			Sell:        model.Flex(sell),
			LTP:         model.Flex(ltp),
			LTPUSD:      model.Flex(ltpUSD),
			Change:      model.Flex(chg),
			ChangeUSD:   model.Flex(chgUSD),
			High:        model.Flex(high),
			Low:         model.Flex(low),
			Open:        model.Flex(opn),
			Close:       model.Flex(cls),
			CloseUSD:    model.Flex(clsUSD),
			OI:          model.Flex(oi),
			Volume:      model.Flex(vol),
		})
	}
	return recs, rows.Err()
}

// Search matches symbols by name substring within one segment. The
// "null" query lists the segment's catalog, capped, for the picker's
// initial suggestions. The catalog is shared, so refID does not scope
// the results here.
func (s *Store) Search(ctx context.Context, refID, exchange, query string) ([]model.SearchResult, error) {
	var rows *sql.Rows
	var err error
	if query == watchlist.InitialQuery {
		rows, err = s.db.QueryContext(ctx, `
			SELECT token, symbol, COALESCE(name, ''), lot_size
			FROM symbols WHERE exchange = ? ORDER BY symbol LIMIT ?
		`, exchange, searchLimit)
	} else {
		pattern := "%" + strings.ToUpper(query) + "%"
		rows, err = s.db.QueryContext(ctx, `
			SELECT token, symbol, COALESCE(name, ''), lot_size
			FROM symbols WHERE exchange = ? AND UPPER(symbol) LIKE ?
			ORDER BY symbol LIMIT ?
		`, exchange, pattern, searchLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite search: %w", err)
	}
	defer rows.Close()

	var out []model.SearchResult
	for rows.Next() {
		var token, symbol, name string
		var lot float64
		if err := rows.Scan(&token, &symbol, &name, &lot); err != nil {
			return nil, fmt.Errorf("sqlite search scan: %w", err)
		}
		out = append(out, model.SearchResult{
			Token:   json.Number(token),
			Symbol:  symbol,
			Name:    name,
			LotSize: model.Flex(lot),
		})
	}
	return out, rows.Err()
}

// Save upserts the symbol into the catalog and appends it to the user's
// watchlist in one transaction.
func (s *Store) Save(ctx context.Context, refID string, item watchlist.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite save: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO symbols (exchange, token, symbol, lot_size)
		VALUES (?, ?, ?, ?)
	`, item.Exchange, item.Token, item.Symbol, item.LotSize); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite save symbol: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO watchlist_items (ref_id, exchange, token, added_at)
		VALUES (?, ?, ?, ?)
	`, refID, item.Exchange, item.Token, time.Now().UnixNano()); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite save item: %w", err)
	}

	return tx.Commit()
}

// Delete removes one token from the user's watchlist. The catalog row
// and quotes stay.
func (s *Store) Delete(ctx context.Context, refID, exchange, token string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlist_items WHERE ref_id = ? AND exchange = ? AND token = ?
	`, refID, exchange, token)
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// SaveQuotes persists last-known quotes for a batch of instruments in a
// single transaction, so the next List seeds prices immediately.
func (s *Store) SaveQuotes(ctx context.Context, ins []model.Instrument) error {
	if len(ins) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite quotes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO quotes
			(exchange, token, buy, sell, ltp, ltp_usd, chg, chg_usd,
			 high, low, opn, cls, close_usd, oi, vol, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite quotes prepare: %w", err)
	}
	defer stmt.Close()

	for _, i := range ins {
		_, err := stmt.ExecContext(ctx, i.Category.ExchangeKey(), i.Token,
			i.Buy, i.Sell, i.LTP, i.LTPUSD, i.Change, i.ChangeUSD,
			i.High, i.Low, i.Open, i.Close, i.CloseUSD,
			i.OpenInterest, i.Volume, i.UpdatedAt.Unix())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite quotes insert: %w", err)
		}
	}

	return tx.Commit()
}

// ImportSymbols seeds the catalog for one segment, e.g. from an exchange
// master dump.
func (s *Store) ImportSymbols(ctx context.Context, exchange string, results []model.SearchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite import: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO symbols (exchange, token, symbol, name, lot_size)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite import prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		lot := float64(r.LotSize)
		if lot == 0 {
			lot = 1
		}
		if _, err := stmt.ExecContext(ctx, exchange, r.Token.String(), r.Symbol, r.Name, lot); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite import insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[sqlite] imported %d symbols for %s", len(results), exchange)
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
