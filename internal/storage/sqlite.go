package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goshops-com/opsagent/internal/agent"
	"github.com/goshops-com/opsagent/internal/alerts"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id            TEXT PRIMARY KEY,
	metric        TEXT NOT NULL,
	severity      TEXT NOT NULL,
	message       TEXT NOT NULL,
	current_value REAL NOT NULL,
	threshold     REAL NOT NULL,
	fired_at      INTEGER NOT NULL,
	resolved_at   INTEGER,
	acknowledged  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_alerts_metric ON alerts(metric);
CREATE INDEX IF NOT EXISTS idx_alerts_fired_at ON alerts(fired_at);

CREATE TABLE IF NOT EXISTS agent_responses (
	id                        TEXT PRIMARY KEY,
	alert_id                  TEXT NOT NULL,
	created_at                INTEGER NOT NULL,
	raw_response              TEXT NOT NULL,
	analysis                  TEXT,
	can_auto_remediate        INTEGER,
	requires_human_attention  INTEGER,
	human_notification_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_agent_responses_alert ON agent_responses(alert_id);

CREATE TABLE IF NOT EXISTS action_executions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	response_id TEXT NOT NULL,
	position    INTEGER NOT NULL,
	action      TEXT NOT NULL,
	description TEXT,
	command     TEXT,
	risk        TEXT,
	status      TEXT NOT NULL,
	skip_reason TEXT,
	output      TEXT,
	error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_action_executions_response ON action_executions(response_id);
`

// SQLiteStore persists alerts and remediation records in a local
// SQLite database for durability across restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database under dataDir.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "opsagent.db")

	// WAL mode for better concurrent access; SQLite works best with a
	// single writer.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("opened local alert store")
	return &SQLiteStore{db: db}, nil
}

// SaveAlert upserts the alert row so lifecycle updates (resolution,
// acknowledgement, value changes) land on the original record.
func (s *SQLiteStore) SaveAlert(ctx context.Context, alert *alerts.Alert) error {
	var resolvedAt *int64
	if alert.ResolvedAt != nil {
		ts := alert.ResolvedAt.Unix()
		resolvedAt = &ts
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, metric, severity, message, current_value, threshold, fired_at, resolved_at, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_value = excluded.current_value,
			resolved_at   = excluded.resolved_at,
			acknowledged  = excluded.acknowledged`,
		alert.ID, alert.Metric, string(alert.Severity), alert.Message,
		alert.CurrentValue, alert.Threshold, alert.Timestamp.Unix(),
		resolvedAt, boolToInt(alert.Acknowledged),
	)
	if err != nil {
		return fmt.Errorf("save alert %s: %w", alert.ID, err)
	}
	return nil
}

// SaveAgentResult stores the response and its per-action execution
// records in one transaction. Action status is derived here, at the
// persistence boundary.
func (s *SQLiteStore) SaveAgentResult(ctx context.Context, result *agent.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	responseID := uuid.NewString()

	var analysis, humanReason *string
	var canAuto, needsHuman *bool
	if result.Response != nil {
		analysis = &result.Response.Analysis
		canAuto = &result.Response.CanAutoRemediate
		needsHuman = &result.Response.RequiresHumanAttention
		if result.Response.HumanNotificationReason != "" {
			humanReason = &result.Response.HumanNotificationReason
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agent_responses (id, alert_id, created_at, raw_response, analysis, can_auto_remediate, requires_human_attention, human_notification_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		responseID, result.AlertID, result.Timestamp.Unix(), result.RawResponse,
		analysis, boolPtrToInt(canAuto), boolPtrToInt(needsHuman), humanReason,
	)
	if err != nil {
		return fmt.Errorf("save agent response for alert %s: %w", result.AlertID, err)
	}

	for i, exec := range result.ExecutionResults {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO action_executions (response_id, position, action, description, command, risk, status, skip_reason, output, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			responseID, i, exec.Action.Action, exec.Action.Description,
			exec.Action.Command, string(exec.Action.Risk), string(exec.Status()),
			exec.SkipReason, exec.Output, exec.Error,
		)
		if err != nil {
			return fmt.Errorf("save action execution %d for alert %s: %w", i, result.AlertID, err)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boolPtrToInt(b *bool) *int {
	if b == nil {
		return nil
	}
	v := boolToInt(*b)
	return &v
}
