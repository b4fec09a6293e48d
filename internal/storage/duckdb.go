// DuckDB-backed storage for second bars and raw ticks. Bars are written
// through upserting inserts keyed on (timestamp, symbol, contract,
// exchange) so reconnect-triggered re-sends never duplicate rows.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-tick-collector/internal/market"
	"github.com/johnayoung/go-tick-collector/internal/models"
)

// DuckDBStorage implements FullStorage using DuckDB as the backend.
type DuckDBStorage struct {
	db       *sql.DB
	dbPath   string
	barTable string
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewDuckDBStorage creates a DuckDB storage instance. The dbPath can be
// ":memory:" for an ephemeral database or a file path for persistence.
// barTable names the second-bar table; an empty value uses "second_bars".
func NewDuckDBStorage(dbPath, barTable string, logger *slog.Logger) (*DuckDBStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if barTable == "" {
		barTable = "second_bars"
	}

	if dbPath != ":memory:" && dbPath != "" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, NewStorageError("open", "", fmt.Errorf("failed to create database directory: %w", err))
			}
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, NewStorageError("open", "", fmt.Errorf("failed to open DuckDB database: %w", err))
	}

	// Single writer pattern as recommended for DuckDB.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &DuckDBStorage{
		db:       db,
		dbPath:   dbPath,
		barTable: barTable,
		logger:   logger,
	}, nil
}

// Initialize implements Manager.Initialize, creating the second-bar and
// raw-tick tables with their indexes.
func (d *DuckDBStorage) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info("initializing DuckDB storage", "db_path", d.dbPath, "bar_table", d.barTable)

	if err := d.createBarTable(ctx); err != nil {
		return NewStorageError("initialize", d.barTable, fmt.Errorf("failed to create bar table: %w", err))
	}
	if err := d.createTickTable(ctx); err != nil {
		return NewStorageError("initialize", "raw_ticks", fmt.Errorf("failed to create tick table: %w", err))
	}
	if err := d.createIndexes(ctx); err != nil {
		return NewStorageError("initialize", "", fmt.Errorf("failed to create indexes: %w", err))
	}

	d.logger.Info("DuckDB storage initialized successfully")
	return nil
}

// createBarTable creates the second-bar table. The primary key doubles as
// the upsert conflict target.
func (d *DuckDBStorage) createBarTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		timestamp TIMESTAMPTZ NOT NULL,
		symbol VARCHAR NOT NULL,
		contract VARCHAR NOT NULL,
		exchange VARCHAR NOT NULL,
		exchange_code VARCHAR,
		open DOUBLE NOT NULL,
		high DOUBLE NOT NULL,
		low DOUBLE NOT NULL,
		close DOUBLE NOT NULL,
		volume BIGINT NOT NULL,
		tick_count INTEGER NOT NULL,
		vwap DOUBLE,
		bid DOUBLE,
		ask DOUBLE,
		spread DOUBLE,
		data_quality_score DOUBLE NOT NULL DEFAULT 1.0,
		is_regular_hours BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT %s_pk PRIMARY KEY (timestamp, symbol, contract, exchange),
		CONSTRAINT %s_volume_non_negative CHECK (volume >= 0)
	)`, d.barTable, d.barTable, d.barTable)

	_, err := d.db.ExecContext(ctx, query)
	return err
}

// createTickTable creates the raw tick audit table.
func (d *DuckDBStorage) createTickTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS raw_ticks (
		timestamp TIMESTAMPTZ NOT NULL,
		symbol VARCHAR NOT NULL,
		contract VARCHAR NOT NULL,
		exchange VARCHAR NOT NULL,
		price DOUBLE NOT NULL,
		size BIGINT NOT NULL,
		tick_type VARCHAR NOT NULL CHECK (tick_type IN ('trade', 'bid', 'ask')),
		exchange_timestamp TIMESTAMPTZ,
		sequence_number BIGINT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := d.db.ExecContext(ctx, query)
	return err
}

// createIndexes creates indexes for time-series range queries.
func (d *DuckDBStorage) createIndexes(ctx context.Context) error {
	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_contract_ts ON %s (contract, timestamp)", d.barTable, d.barTable),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_symbol_ts ON %s (symbol, timestamp)", d.barTable, d.barTable),
		"CREATE INDEX IF NOT EXISTS idx_raw_ticks_contract_ts ON raw_ticks (contract, timestamp)",
	}

	for _, indexQuery := range indexes {
		if _, err := d.db.ExecContext(ctx, indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// StoreBars implements BarStorer.StoreBars. The whole batch is written in
// one transaction with per-row upserts on the four-column conflict key.
func (d *DuckDBStorage) StoreBars(ctx context.Context, bars []models.SecondBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	start := time.Now()

	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return 0, NewInsertError(d.barTable, fmt.Errorf("invalid bar at index %d: %w", i, err))
		}
	}

	d.mu.RLock()
	db := d.db
	d.mu.RUnlock()
	if db == nil {
		return 0, NewInsertError(d.barTable, fmt.Errorf("database connection is closed"))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewInsertError(d.barTable, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (
			timestamp, symbol, contract, exchange, exchange_code,
			open, high, low, close, volume, tick_count,
			vwap, bid, ask, spread, data_quality_score, is_regular_hours
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (timestamp, symbol, contract, exchange) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			tick_count = excluded.tick_count,
			vwap = excluded.vwap,
			bid = excluded.bid,
			ask = excluded.ask,
			spread = excluded.spread,
			data_quality_score = excluded.data_quality_score,
			is_regular_hours = excluded.is_regular_hours`, d.barTable)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, NewInsertError(d.barTable, fmt.Errorf("failed to prepare upsert: %w", err))
	}
	defer stmt.Close()

	written := 0
	for i := range bars {
		bar := &bars[i]
		if _, err := stmt.ExecContext(ctx,
			bar.Timestamp.UTC(),
			bar.Symbol,
			bar.Contract,
			bar.Exchange,
			market.ExchangeCode(bar.Exchange),
			toFloat(bar.Open),
			toFloat(bar.High),
			toFloat(bar.Low),
			toFloat(bar.Close),
			bar.Volume,
			bar.TickCount,
			toFloat(bar.VWAP),
			toNullFloat(bar.Bid),
			toNullFloat(bar.Ask),
			toNullFloat(bar.Spread),
			bar.QualityScore,
			bar.IsRegularHours,
		); err != nil {
			return written, NewInsertError(d.barTable, fmt.Errorf("failed to upsert bar %s: %w", bar.String(), err))
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, NewInsertError(d.barTable, fmt.Errorf("failed to commit batch: %w", err))
	}

	d.logger.Debug("stored second bar batch",
		"count", written,
		"duration", time.Since(start))

	return written, nil
}

// StoreTick implements TickStorer.StoreTick.
func (d *DuckDBStorage) StoreTick(ctx context.Context, tick models.TickEvent) error {
	if err := tick.Validate(); err != nil {
		return NewInsertError("raw_ticks", fmt.Errorf("invalid tick: %w", err))
	}

	d.mu.RLock()
	db := d.db
	d.mu.RUnlock()
	if db == nil {
		return NewInsertError("raw_ticks", fmt.Errorf("database connection is closed"))
	}

	query := `
		INSERT INTO raw_ticks (
			timestamp, symbol, contract, exchange, price, size,
			tick_type, exchange_timestamp, sequence_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	var exchangeTS any
	if tick.ExchangeTimestamp != nil {
		exchangeTS = tick.ExchangeTimestamp.UTC()
	}
	var sequence any
	if tick.Sequence != nil {
		sequence = *tick.Sequence
	}

	if _, err := db.ExecContext(ctx, query,
		tick.Timestamp.UTC(),
		tick.Symbol,
		tick.Contract,
		tick.Exchange,
		toFloat(tick.Price),
		tick.Size,
		string(tick.Kind),
		exchangeTS,
		sequence,
	); err != nil {
		return NewInsertError("raw_ticks", err)
	}
	return nil
}

// BarCount returns the number of stored bars, optionally filtered by
// contract. An empty contract counts every row.
func (d *DuckDBStorage) BarCount(ctx context.Context, contract string) (int64, error) {
	d.mu.RLock()
	db := d.db
	d.mu.RUnlock()
	if db == nil {
		return 0, NewStorageError("query", d.barTable, fmt.Errorf("database connection is closed"))
	}

	var count int64
	var err error
	if contract == "" {
		err = db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", d.barTable)).Scan(&count)
	} else {
		err = db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE contract = $1", d.barTable), contract).Scan(&count)
	}
	if err != nil {
		return 0, NewStorageError("query", d.barTable, err)
	}
	return count, nil
}

// HealthCheck implements Manager.HealthCheck with a trivial query.
func (d *DuckDBStorage) HealthCheck(ctx context.Context) error {
	d.mu.RLock()
	db := d.db
	d.mu.RUnlock()
	if db == nil {
		return NewStorageError("health_check", "", fmt.Errorf("database connection is closed"))
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return NewStorageError("health_check", "", err)
	}
	return nil
}

// Close implements Manager.Close.
func (d *DuckDBStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func toNullFloat(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return f
}
