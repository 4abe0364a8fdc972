package flow

import (
	"context"

	"github.com/ecsf-gov/sage/internal/actions"
	"github.com/ecsf-gov/sage/internal/genai"
	"github.com/ecsf-gov/sage/internal/models"
	"github.com/ecsf-gov/sage/internal/store"
)

// MockGateway is a scripted genai.ClientInterface for testing. The Last*
// fields record the most recent Generate call.
type MockGateway struct {
	GenerateReply  string
	GenerateErr    error
	Classification genai.Classification
	ClassifyErr    error
	Entities       map[string]string
	ExtractErr     error
	PingErr        error

	LastSystemPrompt string
	LastUserMessage  string
	LastHistory      []models.ChatMessage
}

func (m *MockGateway) Generate(ctx context.Context, systemPrompt, userMessage string, history []models.ChatMessage) (string, error) {
	m.LastSystemPrompt = systemPrompt
	m.LastUserMessage = userMessage
	m.LastHistory = history
	return m.GenerateReply, m.GenerateErr
}

func (m *MockGateway) Classify(ctx context.Context, message string, categories []string) (genai.Classification, error) {
	return m.Classification, m.ClassifyErr
}

func (m *MockGateway) ExtractEntities(ctx context.Context, message string, fields []models.FieldSpec) (map[string]string, error) {
	if m.ExtractErr != nil {
		return nil, m.ExtractErr
	}
	if m.Entities == nil {
		return map[string]string{}, nil
	}
	return m.Entities, nil
}

func (m *MockGateway) Ping(ctx context.Context) error {
	return m.PingErr
}

// NewScriptedEngine builds an engine on an in-memory store with the gateway
// disabled, the configuration used when no model is reachable.
func NewScriptedEngine() (*Engine, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	engine := NewEngine(st, nil, actions.NewExecutor(nil), Config{UseAI: false})
	return engine, st
}
