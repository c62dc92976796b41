package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"deskbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.ConversationStore on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id                  TEXT PRIMARY KEY,
		tenant_id           TEXT NOT NULL,
		customer_id         TEXT,
		channel             TEXT,
		created_at          DATETIME NOT NULL,
		last_activity       DATETIME NOT NULL,
		message_count       INTEGER DEFAULT 0,
		current_agent       TEXT,
		intent_history      TEXT,
		escalation_level    INTEGER DEFAULT 0,
		previous_agent      TEXT,
		last_handoff_reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_tenant ON conversations(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_activity ON conversations(last_activity);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	var (
		state   domain.ConversationState
		channel string
		history sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, customer_id, channel, created_at, last_activity,
		        message_count, current_agent, intent_history, escalation_level,
		        previous_agent, last_handoff_reason
		 FROM conversations WHERE id = ?`, id,
	).Scan(&state.ID, &state.TenantID, &state.CustomerID, &channel,
		&state.CreatedAt, &state.LastActivity, &state.MessageCount,
		&state.CurrentAgent, &history, &state.EscalationLevel,
		&state.PreviousAgent, &state.LastHandoffReason)
	if err == sql.ErrNoRows {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	state.Channel = domain.ChannelType(channel)
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &state.IntentHistory); err != nil {
			s.logger.Warn("corrupt intent history, resetting", "conversation", id, "err", err)
			state.IntentHistory = nil
		}
	}
	return &state, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, state *domain.ConversationState) error {
	history, err := json.Marshal(state.IntentHistory)
	if err != nil {
		return fmt.Errorf("cannot encode intent history: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, tenant_id, customer_id, channel, created_at,
		        last_activity, message_count, current_agent, intent_history,
		        escalation_level, previous_agent, last_handoff_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		        tenant_id=excluded.tenant_id,
		        customer_id=excluded.customer_id,
		        channel=excluded.channel,
		        last_activity=excluded.last_activity,
		        message_count=excluded.message_count,
		        current_agent=excluded.current_agent,
		        intent_history=excluded.intent_history,
		        escalation_level=excluded.escalation_level,
		        previous_agent=excluded.previous_agent,
		        last_handoff_reason=excluded.last_handoff_reason`,
		state.ID, state.TenantID, state.CustomerID, string(state.Channel),
		state.CreatedAt, state.LastActivity, state.MessageCount,
		state.CurrentAgent, string(history), state.EscalationLevel,
		state.PreviousAgent, state.LastHandoffReason,
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ResetTenant(ctx context.Context, tenantID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE last_activity < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
