package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ecsf-gov/sage/internal/models"
)

// loggedMessage is one entry of the in-memory audit log.
type loggedMessage struct {
	ConversationID string
	Turn           int
	Role           string
	Content        string
	CreatedAt      time.Time
}

// InMemoryStore keeps contexts in an expiring cache. It is the default
// backend for tests and for running without a database.
type InMemoryStore struct {
	contexts *gocache.Cache
	mu       sync.Mutex
	issues   map[string]models.KnownIssue
	messages []loggedMessage
}

// NewInMemoryStore creates an in-memory store based on provided options.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	ttl := cfg.ContextTTL
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	slog.Debug("InMemoryStore.NewInMemoryStore: creating in-memory store", "contextTTL", ttl)
	return &InMemoryStore{
		contexts: gocache.New(ttl, 2*ttl),
		issues:   make(map[string]models.KnownIssue),
	}
}

func (s *InMemoryStore) GetContext(conversationID string) (*models.Conversation, error) {
	raw, found := s.contexts.Get(conversationID)
	if !found {
		return nil, nil
	}
	data, ok := raw.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected context payload type for %s", conversationID)
	}
	var conv models.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context %s: %w", conversationID, err)
	}
	return &conv, nil
}

func (s *InMemoryStore) UpdateContext(conversationID string, partial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing map[string]any
	if raw, found := s.contexts.Get(conversationID); found {
		if data, ok := raw.([]byte); ok {
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("failed to unmarshal context %s: %w", conversationID, err)
			}
		}
	}
	doc := mergeDocument(existing, partial, time.Now())
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal context %s: %w", conversationID, err)
	}
	s.contexts.Set(conversationID, data, gocache.DefaultExpiration)
	slog.Debug("InMemoryStore.UpdateContext: context saved", "conversationID", conversationID, "keys", len(partial))
	return nil
}

func (s *InMemoryStore) DeleteContext(conversationID string) error {
	s.contexts.Delete(conversationID)
	return nil
}

// SweepExpired removes contexts whose lastUpdated is older than maxAge.
// The cache also expires entries on its own TTL; both paths count.
func (s *InMemoryStore) SweepExpired(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, item := range s.contexts.Items() {
		data, ok := item.Object.([]byte)
		if !ok {
			continue
		}
		var doc struct {
			LastUpdated time.Time `json:"lastUpdated"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		if doc.LastUpdated.Before(cutoff) {
			s.contexts.Delete(id)
			removed++
		}
	}
	slog.Debug("InMemoryStore.SweepExpired: sweep complete", "removed", removed, "maxAge", maxAge)
	return removed, nil
}

func (s *InMemoryStore) ListKnownIssues() ([]models.KnownIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issues := make([]models.KnownIssue, 0, len(s.issues))
	for _, issue := range s.issues {
		if issue.Active {
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

func (s *InMemoryStore) UpsertKnownIssue(issue models.KnownIssue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[issue.ID] = issue
	return nil
}

func (s *InMemoryStore) IncrementKnownIssueHits(issueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[issueID]
	if !ok {
		return fmt.Errorf("known issue %s not found", issueID)
	}
	issue.HitCount++
	s.issues[issueID] = issue
	return nil
}

func (s *InMemoryStore) LogMessage(conversationID string, turn int, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, loggedMessage{
		ConversationID: conversationID,
		Turn:           turn,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	})
	return nil
}

func (s *InMemoryStore) Close() error {
	s.contexts.Flush()
	return nil
}
