// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/elys-network/credmarket/internal/logger"
)

// ErrNotInitialized is returned by every Store method called on a nil connection.
var ErrNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.

	ConnectAttempts uint          // Ping attempts before giving up at startup
	ConnectDelay    time.Duration // Initial backoff between attempts
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Store owns the PostgreSQL connection pool and every query of the service.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore wraps an already opened pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, logger: logger.GetForComponent("state_store")}
}

// Open connects to PostgreSQL and retries the first ping with backoff so the
// service can start before the database is ready.
func Open(ctx context.Context, cfg DBConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := NewStore(db)
	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 5
	}
	delay := cfg.ConnectDelay
	if delay <= 0 {
		delay = time.Second
	}

	err = retry.Do(
		func() error { return store.Ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			store.logger.Warn().Err(err).Uint("attempt", n+1).Msg("Database not reachable yet, retrying")
		}),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store.logger.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return store, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.logger.Info().Msg("Closing database connection...")
	if err := s.db.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing database connection")
	}
}

// Ping checks that the database answers within five seconds.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Quantities are NUMERIC(78,0) so any 256-bit amount fits; prices and cumulative
// prices use unbounded NUMERIC.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS market_parameters (
		params_id SERIAL PRIMARY KEY,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		version INTEGER NOT NULL DEFAULT 1,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		params JSONB NOT NULL,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT uq_market_parameters_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_market_parameters_active ON market_parameters(config_name, is_active, activated_at DESC);

	CREATE TABLE IF NOT EXISTS pools (
		asset VARCHAR(128) PRIMARY KEY,
		creator VARCHAR(255) NOT NULL,
		creation_index INTEGER NOT NULL,
		created_at BIGINT NOT NULL,
		reserve_credit NUMERIC(78, 0) NOT NULL,
		reserve_stable NUMERIC(78, 0) NOT NULL,
		total_shares NUMERIC(78, 0) NOT NULL,
		is_active BOOLEAN NOT NULL,
		state JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_pools_creation_index ON pools(creation_index);

	CREATE TABLE IF NOT EXISTS positions (
		asset VARCHAR(128) NOT NULL REFERENCES pools(asset) ON DELETE CASCADE,
		owner VARCHAR(255) NOT NULL,
		shares NUMERIC(78, 0) NOT NULL,
		state JSONB NOT NULL,
		PRIMARY KEY (asset, owner)
	);

	CREATE TABLE IF NOT EXISTS price_samples (
		asset VARCHAR(128) NOT NULL,
		sample_seq INTEGER NOT NULL,
		ts BIGINT NOT NULL,
		price NUMERIC NOT NULL,
		cumulative_price NUMERIC NOT NULL,
		volume NUMERIC(78, 0) NOT NULL,
		liquidity NUMERIC(78, 0) NOT NULL,
		PRIMARY KEY (asset, sample_seq)
	);
	CREATE INDEX IF NOT EXISTS idx_price_samples_asset_ts ON price_samples(asset, ts DESC);

	CREATE TABLE IF NOT EXISTS hour_buckets (
		asset VARCHAR(128) NOT NULL,
		hour_start BIGINT NOT NULL,
		volume NUMERIC(78, 0) NOT NULL,
		trades BIGINT NOT NULL,
		PRIMARY KEY (asset, hour_start)
	);

	CREATE TABLE IF NOT EXISTS reputation_records (
		credential_id VARCHAR(255) PRIMARY KEY,
		asset VARCHAR(128) NOT NULL,
		score INTEGER NOT NULL,
		rank INTEGER NOT NULL,
		last_updated BIGINT NOT NULL,
		twap_30d NUMERIC NOT NULL,
		components JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reputation_records_rank ON reputation_records(rank);

	CREATE TABLE IF NOT EXISTS credential_links (
		credential_id VARCHAR(255) PRIMARY KEY,
		asset VARCHAR(128) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS change_records (
		record_id UUID PRIMARY KEY,
		kind VARCHAR(64) NOT NULL,
		asset VARCHAR(128),
		credential_id VARCHAR(255),
		participant VARCHAR(255) NOT NULL,
		before_values JSONB,
		after_values JSONB,
		amounts JSONB,
		ts BIGINT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_change_records_ts ON change_records(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_change_records_kind ON change_records(kind);
	CREATE INDEX IF NOT EXISTS idx_change_records_asset ON change_records(asset);

	CREATE TABLE IF NOT EXISTS cycle_reports (
		report_id SERIAL PRIMARY KEY,
		cycle_id UUID NOT NULL,
		cycle_number INTEGER NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL,
		pools INTEGER NOT NULL,
		samples INTEGER NOT NULL,
		scored INTEGER NOT NULL,
		failures TEXT[]
	);
	CREATE INDEX IF NOT EXISTS idx_cycle_reports_started ON cycle_reports(started_at DESC);

	-- Cycle counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	-- Insert initial row if it doesn't exist
	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// Tables lists every table of the schema in drop order.
var Tables = []string{
	"cycle_counter",
	"cycle_reports",
	"change_records",
	"credential_links",
	"reputation_records",
	"hour_buckets",
	"price_samples",
	"positions",
	"pools",
	"market_parameters",
}

// EnsureSchema applies the DDL to create tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	s.logger.Info().Int("tables", len(Tables)).Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table. Used by the reset script.
func (s *Store) DropSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	for _, table := range Tables {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		s.logger.Info().Str("table", table).Msg("Dropped table")
	}
	return nil
}
