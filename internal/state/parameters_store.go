// ./internal/state/parameters_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/credmarket/internal/types"
)

// ErrNoActiveParameters is returned when no parameter set is active for a config name.
var ErrNoActiveParameters = errors.New("no active market parameters")

// SaveMarketParameters stores params as the next version of configName and
// optionally makes it the active set.
func (s *Store) SaveMarketParameters(ctx context.Context, configName string, params types.MarketParameters, makeActive bool) (id int64, version int, err error) {
	if s == nil || s.db == nil {
		return 0, 0, ErrNotInitialized
	}
	if err := params.Validate(); err != nil {
		return 0, 0, fmt.Errorf("refusing to save invalid parameters: %w", err)
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal market parameters: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		_, err = tx.ExecContext(ctx, `UPDATE market_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`, configName)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM market_parameters WHERE config_name = $1;`, configName).Scan(&version)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to determine next version for %s: %w", configName, err)
	}

	now := time.Now()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO market_parameters (config_name, version, is_active, params, activated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING params_id;`,
		configName, version, makeActive, payload, now, now,
	).Scan(&id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to insert market parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", id).
		Bool("active", makeActive).
		Msg("Saved market parameters")
	return id, version, nil
}

// LoadActiveMarketParameters returns the active parameter set of configName.
func (s *Store) LoadActiveMarketParameters(ctx context.Context, configName string) (types.MarketParameters, error) {
	if s == nil || s.db == nil {
		return types.MarketParameters{}, ErrNotInitialized
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT params FROM market_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`, configName).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.MarketParameters{}, fmt.Errorf("%w for config '%s'", ErrNoActiveParameters, configName)
		}
		return types.MarketParameters{}, fmt.Errorf("failed to load active market parameters for config '%s': %w", configName, err)
	}

	params, err := decodeMarketParameters(payload)
	if err != nil {
		return types.MarketParameters{}, fmt.Errorf("config '%s': %w", configName, err)
	}
	s.logger.Info().Str("config", configName).Msg("Loaded active market parameters")
	return params, nil
}

func decodeMarketParameters(payload []byte) (types.MarketParameters, error) {
	var params types.MarketParameters
	if err := json.Unmarshal(payload, &params); err != nil {
		return types.MarketParameters{}, fmt.Errorf("failed to decode market parameters: %w", err)
	}
	if err := params.Validate(); err != nil {
		return types.MarketParameters{}, fmt.Errorf("stored market parameters are invalid: %w", err)
	}
	return params, nil
}
