package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// AuditEntry is one append-only row of the audit trail.
type AuditEntry struct {
	ID         int64                  `json:"id"`
	EventType  string                 `json:"event_type"`
	AgentID    string                 `json:"agent_id,omitempty"`
	EntityType string                 `json:"entity_type,omitempty"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Message    string                 `json:"message"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Severity   string                 `json:"severity"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Audit appends one entry to the audit trail. agentID may be empty for
// system-wide events such as the global kill switch.
func (s *Postgres) Audit(ctx context.Context, eventType, agentID, entityType, entityID, message string, metadata map[string]interface{}, severity string) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		meta = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs
			(event_type, agent_id, entity_type, entity_id, message, metadata, severity, created_at)
		VALUES
			($1, NULLIF($2, '')::uuid, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, NOW())
	`, eventType, agentID, entityType, entityID, message, meta, severity)
	return err
}

func (s *Postgres) ListAuditLogs(ctx context.Context, agentID, eventType string, limit, offset int) ([]AuditEntry, error) {
	query := `
		SELECT id, event_type, COALESCE(agent_id::text, ''), COALESCE(entity_type, ''),
		       COALESCE(entity_id, ''), message, metadata, severity, created_at
		FROM audit_logs
		WHERE TRUE`
	var args []interface{}
	query, args = filterEqual(query, args, "agent_id", agentID)
	query, args = filterEqual(query, args, "event_type", eventType)
	query, args = withPage(query+` ORDER BY created_at DESC`, args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry AuditEntry
			meta  sql.NullString
		)
		err := rows.Scan(
			&entry.ID,
			&entry.EventType,
			&entry.AgentID,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Message,
			&meta,
			&entry.Severity,
			&entry.CreatedAt,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan audit entry")
			continue
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &entry.Metadata); err != nil {
				log.Debug().Err(err).Int64("id", entry.ID).Msg("Failed to parse audit metadata")
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
