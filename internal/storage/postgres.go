package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Connected to PostgreSQL")

	return &Postgres{db: db}, nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

// GlobalKillSwitch reads the persisted operator-wide toggle. The static
// config flag is OR-ed in by the risk engine, not here.
func (s *Postgres) GlobalKillSwitch(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM system_settings WHERE key = 'global_kill_switch'`,
	).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return strings.EqualFold(value, "true"), nil
}

func (s *Postgres) SetGlobalKillSwitch(ctx context.Context, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ('global_kill_switch', $1, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, value)
	return err
}

func (s *Postgres) SetAgentKillSwitch(ctx context.Context, agentID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agents SET kill_switch = $1, updated_at = NOW() WHERE id = $2
	`, enabled, agentID)
	return err
}
