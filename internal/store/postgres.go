// PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/ecsf-gov/sage/internal/models"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, ErrDSNNotSet
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.NewPostgresStore: migrations applied")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetContext(conversationID string) (*models.Conversation, error) {
	var document string
	err := s.db.QueryRow(`SELECT document FROM conversation_contexts WHERE id = $1`, conversationID).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetContext query failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query context %s: %w", conversationID, err)
	}
	var conv models.Conversation
	if err := json.Unmarshal([]byte(document), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context %s: %w", conversationID, err)
	}
	return &conv, nil
}

func (s *PostgresStore) UpdateContext(conversationID string, partial map[string]any) error {
	var existing map[string]any
	var document string
	err := s.db.QueryRow(`SELECT document FROM conversation_contexts WHERE id = $1`, conversationID).Scan(&document)
	if err != nil && err != sql.ErrNoRows {
		slog.Error("PostgresStore.UpdateContext query failed", "error", err, "conversationID", conversationID)
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

	_, err = s.db.Exec(`INSERT INTO conversation_contexts (id, document, last_updated) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, last_updated = EXCLUDED.last_updated`,
		conversationID, string(data), now)
	if err != nil {
		slog.Error("PostgresStore.UpdateContext upsert failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to save context %s: %w", conversationID, err)
	}
	slog.Debug("PostgresStore.UpdateContext: context saved", "conversationID", conversationID, "keys", len(partial))
	return nil
}

func (s *PostgresStore) DeleteContext(conversationID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_contexts WHERE id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete context %s: %w", conversationID, err)
	}
	return nil
}

func (s *PostgresStore) SweepExpired(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.Exec(`DELETE FROM conversation_contexts WHERE last_updated < $1`, cutoff)
	if err != nil {
		slog.Error("PostgresStore.SweepExpired delete failed", "error", err)
		return 0, fmt.Errorf("failed to sweep expired contexts: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept contexts: %w", err)
	}
	slog.Debug("PostgresStore.SweepExpired: sweep complete", "removed", removed, "maxAge", maxAge)
	return int(removed), nil
}

func (s *PostgresStore) ListKnownIssues() ([]models.KnownIssue, error) {
	rows, err := s.db.Query(`SELECT id, category, title, keywords, resolution, confidence, hit_count, active FROM known_issues WHERE active = TRUE`)
	if err != nil {
		slog.Error("PostgresStore.ListKnownIssues query failed", "error", err)
		return nil, fmt.Errorf("failed to query known issues: %w", err)
	}
	defer rows.Close()
	return scanKnownIssues(rows)
}

func (s *PostgresStore) UpsertKnownIssue(issue models.KnownIssue) error {
	keywords, err := json.Marshal(issue.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords for %s: %w", issue.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO known_issues (id, category, title, keywords, resolution, confidence, hit_count, active) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET category = EXCLUDED.category, title = EXCLUDED.title, keywords = EXCLUDED.keywords,
		resolution = EXCLUDED.resolution, confidence = EXCLUDED.confidence, hit_count = EXCLUDED.hit_count, active = EXCLUDED.active`,
		issue.ID, issue.Category, issue.Title, string(keywords), issue.Resolution, issue.Confidence, issue.HitCount, issue.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert known issue %s: %w", issue.ID, err)
	}
	return nil
}

func (s *PostgresStore) IncrementKnownIssueHits(issueID string) error {
	res, err := s.db.Exec(`UPDATE known_issues SET hit_count = hit_count + 1 WHERE id = $1`, issueID)
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

func (s *PostgresStore) LogMessage(conversationID string, turn int, role, content string) error {
	_, err := s.db.Exec(`INSERT INTO message_log (conversation_id, turn, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		conversationID, turn, role, content, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore.LogMessage insert failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to log message for %s: %w", conversationID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
