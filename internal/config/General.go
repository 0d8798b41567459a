package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/credmarket/internal/state"
	"github.com/elys-network/credmarket/internal/types"
)

// AppConfig holds all application configuration loaded from environment variables.
type AppConfig struct {
	LogLevel  string
	LogFormat string // "json" or "console"

	// PersistenceEnabled turns on the PostgreSQL store. DB is only read when set.
	PersistenceEnabled bool
	DB                 state.DBConfig

	// WebPort serves the JSON API; MetricsPort serves /metrics. 0 disables metrics.
	WebPort     string
	MetricsPort int

	// UpdaterInterval is the pause between price updater cycles. 0 disables the updater.
	UpdaterInterval time.Duration
	// UpdaterID is the identity the embedded updater signs its batches with.
	UpdaterID string

	// AdminID holds the admin role; TreasuryID receives protocol fees.
	AdminID    string
	TreasuryID string
	// AuthorizedUpdaters are granted the updater role at startup, besides UpdaterID.
	AuthorizedUpdaters []string

	Market types.MarketParameters
}

// LoadConfig builds an AppConfig from environment variables. ADMIN_ID is
// required; every other variable has a default.
func LoadConfig() (*AppConfig, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	cfg := &AppConfig{
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:  getEnvOrDefault("LOG_FORMAT", "console"),
		WebPort:    getEnvOrDefault("WEB_PORT", "8080"),
		UpdaterID:  getEnvOrDefault("UPDATER_ID", "price-updater"),
		TreasuryID: getEnvOrDefault("TREASURY_ID", "treasury"),
		Market:     DefaultMarketParameters(),
	}

	var err error
	var errs []error

	if cfg.AdminID, err = getEnv("ADMIN_ID"); err != nil {
		errs = append(errs, err)
	}
	if cfg.PersistenceEnabled, err = getEnvAsBool("PERSISTENCE_ENABLED", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.MetricsPort, err = getEnvAsInt("METRICS_PORT", 2112); err != nil {
		errs = append(errs, err)
	}
	if cfg.UpdaterInterval, err = getEnvAsDuration("UPDATER_INTERVAL", 10*time.Minute); err != nil {
		errs = append(errs, err)
	}
	cfg.AuthorizedUpdaters = getEnvAsList("AUTHORIZED_UPDATERS")

	if cfg.PersistenceEnabled {
		if cfg.DB, err = LoadDBConfig(); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Market.SwapFeeBp, err = getEnvAsBasisPoints("SWAP_FEE_BP", cfg.Market.SwapFeeBp); err != nil {
		errs = append(errs, err)
	}
	if cfg.Market.ProtocolFeeShareBp, err = getEnvAsBasisPoints("PROTOCOL_FEE_SHARE_BP", cfg.Market.ProtocolFeeShareBp); err != nil {
		errs = append(errs, err)
	}
	cfg.Market.StableDenom = getEnvOrDefault("STABLE_DENOM", cfg.Market.StableDenom)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Bool("persistence", cfg.PersistenceEnabled).
		Str("webPort", cfg.WebPort).
		Int("metricsPort", cfg.MetricsPort).
		Str("updaterID", cfg.UpdaterID).
		Dur("updaterInterval", cfg.UpdaterInterval).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

// Validate checks cross-field rules.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.AdminID == "" {
		errs = append(errs, errors.New("ADMIN_ID cannot be empty"))
	}
	if c.UpdaterInterval < 0 {
		errs = append(errs, fmt.Errorf("UPDATER_INTERVAL must not be negative, got %s", c.UpdaterInterval))
	}
	if c.UpdaterInterval > 0 && c.UpdaterID == "" {
		errs = append(errs, errors.New("UPDATER_ID cannot be empty while the updater is enabled"))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("METRICS_PORT out of range: %d", c.MetricsPort))
	}
	if err := c.Market.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("market parameters: %w", err))
	}
	return errors.Join(errs...)
}

// Updaters returns every identity that should hold the updater role, deduplicated.
func (c *AppConfig) Updaters() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range append([]string{c.UpdaterID}, c.AuthorizedUpdaters...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// LoadDBConfig reads the DB_* variables. DB_USER and DB_NAME are required.
func LoadDBConfig() (state.DBConfig, error) {
	db := state.DBConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Password: os.Getenv("DB_PASSWORD"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	var err error
	var errs []error
	if db.Port, err = getEnvAsInt("DB_PORT", 5432); err != nil {
		errs = append(errs, err)
	}
	if db.User, err = getEnv("DB_USER"); err != nil {
		errs = append(errs, err)
	}
	if db.DBName, err = getEnv("DB_NAME"); err != nil {
		errs = append(errs, err)
	}
	return db, errors.Join(errs...)
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, err := getEnv(key); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an optional int environment variable.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBasisPoints retrieves an optional value in [0, 10000].
func getEnvAsBasisPoints(key string, defaultValue uint32) (uint32, error) {
	if _, err := getEnv(key); err != nil {
		return defaultValue, nil
	}
	value, err := getEnvAsUint64(key)
	if err != nil {
		return 0, err
	}
	if value > 10_000 {
		return 0, fmt.Errorf("environment variable %s must be at most 10000 basis points, got: %d", key, value)
	}
	return uint32(value), nil
}

// getEnvAsBool accepts anything strconv.ParseBool does.
func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration accepts Go durations ("90s", "10m") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsList splits a comma-separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	valueStr, err := getEnv(key)
	if err != nil {
		return nil
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
