// Package store provides storage backends for SAGE conversation contexts,
// the known-issue database, and the message audit log.
//
// Contexts are stored as JSON documents and updated with shallow-merge
// semantics: top-level keys of the partial update replace the stored keys,
// nested values are never merged, and every update stamps lastUpdated.
package store

import (
	"errors"
	"strings"
	"time"

	"github.com/ecsf-gov/sage/internal/models"
)

// Errors returned by store implementations.
var (
	ErrDSNNotSet = errors.New("database DSN not set")
)

// DefaultContextTTL is how long an idle conversation context survives
// before the expiry sweep removes it.
const DefaultContextTTL = 30 * time.Minute

// Store is the persistence interface the engine and sweeper depend on.
type Store interface {
	// GetContext returns the conversation document, or (nil, nil) when absent.
	GetContext(conversationID string) (*models.Conversation, error)
	// UpdateContext shallow-merges partial into the stored document,
	// creating it if absent, and stamps lastUpdated.
	UpdateContext(conversationID string, partial map[string]any) error
	// DeleteContext removes the conversation document.
	DeleteContext(conversationID string) error
	// SweepExpired deletes contexts idle longer than maxAge and returns
	// how many were removed.
	SweepExpired(maxAge time.Duration) (int, error)

	// ListKnownIssues returns all active known issues.
	ListKnownIssues() ([]models.KnownIssue, error)
	// UpsertKnownIssue inserts or replaces a known-issue entry.
	UpsertKnownIssue(issue models.KnownIssue) error
	// IncrementKnownIssueHits bumps the hit counter of a known issue.
	IncrementKnownIssueHits(issueID string) error

	// LogMessage appends one turn to the message audit log.
	LogMessage(conversationID string, turn int, role, content string) error

	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN        string
	ContextTTL time.Duration
}

// Option configures a store.
type Option func(*Opts)

// WithDSN sets the database connection string or file path.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithContextTTL sets the idle lifetime of in-memory contexts.
func WithContextTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.ContextTTL = ttl
	}
}

// DetectDSNType reports which backend a DSN addresses: "postgres" for
// connection URLs or key=value strings, "sqlite3" for file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// mergeDocument applies shallow-merge semantics to a context document.
// Existing may be nil; the merged map is returned with lastUpdated stamped.
func mergeDocument(existing map[string]any, partial map[string]any, now time.Time) map[string]any {
	doc := existing
	if doc == nil {
		doc = make(map[string]any, len(partial)+1)
	}
	for k, v := range partial {
		doc[k] = v
	}
	doc["lastUpdated"] = now.UTC().Format(time.RFC3339Nano)
	return doc
}
