package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_trade_bot/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			probability REAL NOT NULL,
			features TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ticker ON signals(ticker);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_id INTEGER NOT NULL DEFAULT 0,
			ticker TEXT NOT NULL,
			action TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			total_value REAL NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trades(ticker);`,
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			ticker TEXT NOT NULL UNIQUE,
			signal_id INTEGER NOT NULL DEFAULT 0,
			probability REAL NOT NULL,
			entry_price REAL NOT NULL,
			current_price REAL NOT NULL,
			total_quantity REAL NOT NULL,
			remaining_quantity REAL NOT NULL,
			stop_loss REAL NOT NULL,
			take_profits TEXT NOT NULL,
			trailing_enabled BOOLEAN NOT NULL DEFAULT 1,
			trailing_active BOOLEAN NOT NULL DEFAULT 0,
			atr_pct REAL NOT NULL DEFAULT 0,
			entry_features TEXT NOT NULL DEFAULT '{}',
			entry_time DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS bot_status (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			status TEXT NOT NULL,
			total_signals INTEGER NOT NULL DEFAULT 0,
			buy_signals INTEGER NOT NULL DEFAULT 0,
			cycle_number INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// SignalRepository Implementation

func (s *SQLiteStore) SaveSignal(ctx context.Context, signal *domain.Signal) (int64, error) {
	featuresJSON, err := json.Marshal(signal.Features)
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO signals (ticker, signal_type, probability, features, created_at)
			  VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		signal.Ticker, signal.SignalType, signal.Probability, string(featuresJSON), signal.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ListSignals(ctx context.Context, limit int) ([]*domain.Signal, error) {
	query := `SELECT id, ticker, signal_type, probability, features, created_at FROM signals ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var featuresJSON string
		if err := rows.Scan(&sig.ID, &sig.Ticker, &sig.SignalType, &sig.Probability, &featuresJSON, &sig.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(featuresJSON), &sig.Features); err != nil {
			return nil, err
		}
		signals = append(signals, &sig)
	}
	return signals, rows.Err()
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	query := `INSERT INTO trades (signal_id, ticker, action, quantity, price, total_value, status, reason, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		trade.SignalID, trade.Ticker, trade.Action, trade.Quantity, trade.Price,
		trade.TotalValue, trade.Status, trade.Reason, trade.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	query := `SELECT id, signal_id, ticker, action, quantity, price, total_value, status, reason, created_at
			  FROM trades ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.ID, &t.SignalID, &t.Ticker, &t.Action, &t.Quantity, &t.Price,
			&t.TotalValue, &t.Status, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// PositionRepository Implementation

func (s *SQLiteStore) UpsertPosition(ctx context.Context, pos *domain.Position) error {
	takeProfitsJSON, err := json.Marshal(pos.TakeProfits)
	if err != nil {
		return err
	}
	featuresJSON, err := json.Marshal(pos.EntryFeatures)
	if err != nil {
		return err
	}

	query := `INSERT INTO positions (id, ticker, signal_id, probability, entry_price, current_price,
			  total_quantity, remaining_quantity, stop_loss, take_profits, trailing_enabled,
			  trailing_active, atr_pct, entry_features, entry_time)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  current_price=excluded.current_price,
			  remaining_quantity=excluded.remaining_quantity,
			  total_quantity=excluded.total_quantity,
			  stop_loss=excluded.stop_loss,
			  take_profits=excluded.take_profits,
			  trailing_active=excluded.trailing_active`
	_, err = s.db.ExecContext(ctx, query,
		pos.ID, pos.Ticker, pos.SignalID, pos.Probability, pos.EntryPrice, pos.CurrentPrice,
		pos.TotalQuantity, pos.RemainingQuantity, pos.StopLoss, string(takeProfitsJSON),
		pos.TrailingEnabled, pos.TrailingActive, pos.ATRPct, string(featuresJSON), pos.EntryTime)
	return err
}

func (s *SQLiteStore) DeletePosition(ctx context.Context, ticker string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM positions WHERE ticker = ?", ticker)
	return err
}

func (s *SQLiteStore) ListPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT id, ticker, signal_id, probability, entry_price, current_price,
			  total_quantity, remaining_quantity, stop_loss, take_profits, trailing_enabled,
			  trailing_active, atr_pct, entry_features, entry_time FROM positions`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var p domain.Position
		var takeProfitsJSON, featuresJSON string
		if err := rows.Scan(&p.ID, &p.Ticker, &p.SignalID, &p.Probability, &p.EntryPrice,
			&p.CurrentPrice, &p.TotalQuantity, &p.RemainingQuantity, &p.StopLoss,
			&takeProfitsJSON, &p.TrailingEnabled, &p.TrailingActive, &p.ATRPct,
			&featuresJSON, &p.EntryTime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(takeProfitsJSON), &p.TakeProfits); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(featuresJSON), &p.EntryFeatures); err != nil {
			return nil, err
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

// StatusRepository Implementation

func (s *SQLiteStore) UpdateBotStatus(ctx context.Context, status *domain.BotStatus) error {
	query := `INSERT INTO bot_status (id, status, total_signals, buy_signals, cycle_number, last_error, updated_at)
			  VALUES (1, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  status=excluded.status,
			  total_signals=excluded.total_signals,
			  buy_signals=excluded.buy_signals,
			  cycle_number=excluded.cycle_number,
			  last_error=excluded.last_error,
			  updated_at=excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query,
		status.Status, status.TotalSignals, status.BuySignals, status.CycleNumber,
		status.LastError, status.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetBotStatus(ctx context.Context) (*domain.BotStatus, error) {
	query := `SELECT status, total_signals, buy_signals, cycle_number, last_error, updated_at FROM bot_status WHERE id = 1`
	row := s.db.QueryRowContext(ctx, query)

	var st domain.BotStatus
	err := row.Scan(&st.Status, &st.TotalSignals, &st.BuySignals, &st.CycleNumber, &st.LastError, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return &domain.BotStatus{Status: "stopped"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}
