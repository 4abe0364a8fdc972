// SQLite-backed store. The DSN is the database file path; the directory is
// created when missing.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ecsf-gov/sage/internal/models"
)

// DefaultDirPermissions defines the permissions for created database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store based on provided options.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, ErrDSNNotSet
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: migrations applied")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetContext(conversationID string) (*models.Conversation, error) {
	var document string
	err := s.db.QueryRow(`SELECT document FROM conversation_contexts WHERE id = ?`, conversationID).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetContext query failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query context %s: %w", conversationID, err)
	}
	var conv models.Conversation
	if err := json.Unmarshal([]byte(document), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context %s: %w", conversationID, err)
	}
	return &conv, nil
}

func (s *SQLiteStore) UpdateContext(conversationID string, partial map[string]any) error {
	var existing map[string]any
	var document string
	err := s.db.QueryRow(`SELECT document FROM conversation_contexts WHERE id = ?`, conversationID).Scan(&document)
	if err != nil && err != sql.ErrNoRows {
		slog.Error("SQLiteStore.UpdateContext query failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to query context %s: %w", conversationID, err)
	}
	if err == nil {
		if err := json.Unmarshal([]byte(document), &existing); err != nil {
			return fmt.Errorf("failed to unmarshal context %s: %w", conversationID, err)
		}
	}

	now := time.Now().UTC()
	doc := mergeDocument(existing, partial, now)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal context %s: %w", conversationID, err)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO conversation_contexts (id, document, last_updated) VALUES (?, ?, ?)`,
		conversationID, string(data), now)
	if err != nil {
		slog.Error("SQLiteStore.UpdateContext insert failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to save context %s: %w", conversationID, err)
	}
	slog.Debug("SQLiteStore.UpdateContext: context saved", "conversationID", conversationID, "keys", len(partial))
	return nil
}

func (s *SQLiteStore) DeleteContext(conversationID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_contexts WHERE id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete context %s: %w", conversationID, err)
	}
	return nil
}

func (s *SQLiteStore) SweepExpired(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.Exec(`DELETE FROM conversation_contexts WHERE last_updated < ?`, cutoff)
	if err != nil {
		slog.Error("SQLiteStore.SweepExpired delete failed", "error", err)
		return 0, fmt.Errorf("failed to sweep expired contexts: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept contexts: %w", err)
	}
	slog.Debug("SQLiteStore.SweepExpired: sweep complete", "removed", removed, "maxAge", maxAge)
	return int(removed), nil
}

func (s *SQLiteStore) ListKnownIssues() ([]models.KnownIssue, error) {
	rows, err := s.db.Query(`SELECT id, category, title, keywords, resolution, confidence, hit_count, active FROM known_issues WHERE active = 1`)
	if err != nil {
		slog.Error("SQLiteStore.ListKnownIssues query failed", "error", err)
		return nil, fmt.Errorf("failed to query known issues: %w", err)
	}
	defer rows.Close()
	return scanKnownIssues(rows)
}

func (s *SQLiteStore) UpsertKnownIssue(issue models.KnownIssue) error {
	keywords, err := json.Marshal(issue.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords for %s: %w", issue.ID, err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO known_issues (id, category, title, keywords, resolution, confidence, hit_count, active) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Category, issue.Title, string(keywords), issue.Resolution, issue.Confidence, issue.HitCount, issue.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert known issue %s: %w", issue.ID, err)
	}
	return nil
}

func (s *SQLiteStore) IncrementKnownIssueHits(issueID string) error {
	res, err := s.db.Exec(`UPDATE known_issues SET hit_count = hit_count + 1 WHERE id = ?`, issueID)
	if err != nil {
		return fmt.Errorf("failed to increment hits for %s: %w", issueID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check hit update for %s: %w", issueID, err)
	}
	if n == 0 {
		return fmt.Errorf("known issue %s not found", issueID)
	}
	return nil
}

func (s *SQLiteStore) LogMessage(conversationID string, turn int, role, content string) error {
	_, err := s.db.Exec(`INSERT INTO message_log (conversation_id, turn, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		conversationID, turn, role, content, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore.LogMessage insert failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to log message for %s: %w", conversationID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
