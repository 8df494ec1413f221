package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atendai/zapagent/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS agent_configs (
		user_id TEXT PRIMARY KEY,
		prompt TEXT NOT NULL,
		context1 TEXT NOT NULL DEFAULT '',
		context2 TEXT NOT NULL DEFAULT '',
		context3 TEXT NOT NULL DEFAULT '',
		context4 TEXT NOT NULL DEFAULT '',
		temperature REAL NOT NULL DEFAULT 0.7,
		voice TEXT NOT NULL DEFAULT '',
		work_start TEXT NOT NULL DEFAULT '',
		work_end TEXT NOT NULL DEFAULT '',
		auto_reply INTEGER NOT NULL DEFAULT 1,
		reply_delay INTEGER NOT NULL DEFAULT 0,
		max_conversations INTEGER NOT NULL DEFAULT 0,
		language TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// GetAgentConfig retrieves the agent configuration for a user.
func (s *SQLiteStore) GetAgentConfig(ctx context.Context, userID string) (*domain.AgentConfig, error) {
	query := `
	SELECT user_id, prompt, context1, context2, context3, context4,
	       temperature, voice, work_start, work_end, auto_reply,
	       reply_delay, max_conversations, language, created_at, updated_at
	FROM agent_configs WHERE user_id = ?`

	var cfg domain.AgentConfig
	var autoReply int
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&cfg.UserID, &cfg.Prompt, &cfg.Context1, &cfg.Context2, &cfg.Context3, &cfg.Context4,
		&cfg.Temperature, &cfg.Voice, &cfg.WorkStart, &cfg.WorkEnd, &autoReply,
		&cfg.ReplyDelay, &cfg.MaxConversations, &cfg.Language, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent config: %w", err)
	}

	cfg.AutoReply = autoReply != 0
	cfg.CreatedAt = time.Unix(createdAt, 0)
	cfg.UpdatedAt = time.Unix(updatedAt, 0)
	return &cfg, nil
}

// UpsertAgentConfig creates or updates an agent configuration.
func (s *SQLiteStore) UpsertAgentConfig(ctx context.Context, cfg *domain.AgentConfig) error {
	now := time.Now()
	autoReply := 0
	if cfg.AutoReply {
		autoReply = 1
	}

	query := `
	INSERT INTO agent_configs (
		user_id, prompt, context1, context2, context3, context4,
		temperature, voice, work_start, work_end, auto_reply,
		reply_delay, max_conversations, language, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		prompt = excluded.prompt,
		context1 = excluded.context1,
		context2 = excluded.context2,
		context3 = excluded.context3,
		context4 = excluded.context4,
		temperature = excluded.temperature,
		voice = excluded.voice,
		work_start = excluded.work_start,
		work_end = excluded.work_end,
		auto_reply = excluded.auto_reply,
		reply_delay = excluded.reply_delay,
		max_conversations = excluded.max_conversations,
		language = excluded.language,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		cfg.UserID, cfg.Prompt, cfg.Context1, cfg.Context2, cfg.Context3, cfg.Context4,
		cfg.Temperature, cfg.Voice, cfg.WorkStart, cfg.WorkEnd, autoReply,
		cfg.ReplyDelay, cfg.MaxConversations, cfg.Language, now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert agent config: %w", err)
	}
	return nil
}

// DeleteAgentConfig removes an agent configuration.
func (s *SQLiteStore) DeleteAgentConfig(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agent_configs WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete agent config: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
