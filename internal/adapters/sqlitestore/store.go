package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pyramidbot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Record categories. One row per (namespace, asset, category).
const (
	categoryOrderSize      = "order_size"
	categoryStatus         = "status"
	categoryPurchasePrices = "purchase_prices"
	categoryAlarmCount     = "alarm_count"
)

// Store implements ports.StateStore on SQLite. Values are stored as text;
// the purchase-price history is a JSON array so the append stays a single
// per-key read-modify-write inside a transaction.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite state store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// New creates a new SQLite state store instance.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite state store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/pyramidbot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite state store initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite state store initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite state store initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db, logger: cfg.Logger}
	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite state store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite state store ready", map[string]interface{}{"path": dbPath})

	return store, nil
}

func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS asset_state (
		namespace  TEXT NOT NULL,
		asset      TEXT NOT NULL,
		category   TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, asset, category)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite state store")
		return s.db.Close()
	}
	return nil
}

// --- generic row helpers ---

func (s *Store) get(ctx context.Context, namespace, asset, category string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM asset_state WHERE namespace = ? AND asset = ? AND category = ?`,
		namespace, asset, category).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ports.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrStoreReadFailed, err)
	}
	return value, nil
}

func (s *Store) set(ctx context.Context, namespace, asset, category, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO asset_state (namespace, asset, category, value, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (namespace, asset, category)
		 DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		namespace, asset, category, value)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStoreWriteFailed, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, namespace, asset, category string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM asset_state WHERE namespace = ? AND asset = ? AND category = ?`,
		namespace, asset, category)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStoreDeleteFailed, err)
	}
	return nil
}

// --- ports.StateStore implementation ---

// OrderSize returns the persisted notional for the next entry.
func (s *Store) OrderSize(ctx context.Context, namespace, asset string) (float64, error) {
	value, err := s.get(ctx, namespace, asset, categoryOrderSize)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid order size '%s': %v", ports.ErrStoreReadFailed, value, err)
	}
	return size, nil
}

func (s *Store) SaveOrderSize(ctx context.Context, namespace, asset string, size float64) error {
	return s.set(ctx, namespace, asset, categoryOrderSize, strconv.FormatFloat(size, 'f', -1, 64))
}

func (s *Store) DeleteOrderSize(ctx context.Context, namespace, asset string) error {
	return s.delete(ctx, namespace, asset, categoryOrderSize)
}

// Status returns the persisted status marker.
func (s *Store) Status(ctx context.Context, namespace, asset string) (string, error) {
	return s.get(ctx, namespace, asset, categoryStatus)
}

func (s *Store) SaveStatus(ctx context.Context, namespace, asset, status string) error {
	return s.set(ctx, namespace, asset, categoryStatus, status)
}

func (s *Store) DeleteStatus(ctx context.Context, namespace, asset string) error {
	return s.delete(ctx, namespace, asset, categoryStatus)
}

// PurchasePrices returns the ordered entry prices of the current cycle.
// Non-numeric entries in the stored list are discarded.
func (s *Store) PurchasePrices(ctx context.Context, namespace, asset string) ([]float64, error) {
	value, err := s.get(ctx, namespace, asset, categoryPurchasePrices)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePrices(value), nil
}

// AppendPurchasePrice appends one price to the history inside a transaction
// so concurrent appends for different assets never clobber each other.
func (s *Store) AppendPurchasePrice(ctx context.Context, namespace, asset string, price float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStoreWriteFailed, err)
	}
	defer tx.Rollback()

	var value string
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM asset_state WHERE namespace = ? AND asset = ? AND category = ?`,
		namespace, asset, categoryPurchasePrices).Scan(&value)
	var prices []float64
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("%w: %v", ports.ErrStoreReadFailed, err)
	default:
		prices = decodePrices(value)
	}

	prices = append(prices, price)
	encoded, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStoreWriteFailed, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO asset_state (namespace, asset, category, value, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (namespace, asset, category)
		 DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		namespace, asset, categoryPurchasePrices, string(encoded))
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStoreWriteFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStoreWriteFailed, err)
	}
	return nil
}

func (s *Store) DeletePurchasePrices(ctx context.Context, namespace, asset string) error {
	return s.delete(ctx, namespace, asset, categoryPurchasePrices)
}

// SaveAlarmCount records the purchase count at which the last alarm fired.
func (s *Store) SaveAlarmCount(ctx context.Context, namespace, asset string, count int) error {
	return s.set(ctx, namespace, asset, categoryAlarmCount, strconv.Itoa(count))
}

// decodePrices tolerates malformed history entries: anything that does not
// decode as a number is dropped rather than failing the whole read.
func decodePrices(value string) []float64 {
	var raw []interface{}
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil
	}
	prices := make([]float64, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			prices = append(prices, f)
		}
	}
	return prices
}
