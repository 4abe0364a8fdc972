// Package models defines the core data structures shared across the SAGE engine.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Validation errors for API inputs and flow definitions.
var (
	ErrEmptyConversationID = errors.New("conversation ID cannot be empty")
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrEmptyChoice         = errors.New("choice value cannot be empty")
	ErrEmptyActionID       = errors.New("action ID cannot be empty")
	ErrFlowMissingIntent   = errors.New("flow definition missing intent")
	ErrFlowNoSteps         = errors.New("flow definition has no steps")
	ErrFlowBadRouting      = errors.New("flow routing target out of range")
	ErrStepMissingFields   = errors.New("data collection step defines no fields")
	ErrStepMissingChoices  = errors.New("choice step defines no choices")
	ErrStepMissingActions  = errors.New("action execution step defines no actions")
	ErrStepMissingRouting  = errors.New("conditional routing step defines no routing table")
	ErrStepUnknownType     = errors.New("unknown step type")
)

// ChatMessage is one turn of the conversation transcript.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Choice is a button the client renders; Value is sent back verbatim.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Reserved choice values handled before any flow logic runs.
const (
	ChoiceStartOver       = "start_over"
	ChoiceEndConversation = "end_conversation"
)

// RecordRef points at a record a completed action created.
type RecordRef struct {
	Table     RecordTable `json:"table"`
	Number    string      `json:"number"`
	SysID     string      `json:"sysId"`
	Simulated bool        `json:"simulated"`
}

// ActionCardItem is one line of an action card checklist.
type ActionCardItem struct {
	Label   string `json:"label"`
	Value   string `json:"value,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ActionCard asks the user to confirm an action or reports its outcome.
type ActionCard struct {
	ActionID    string           `json:"actionId"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Items       []ActionCardItem `json:"items,omitempty"`
	ConfirmText string           `json:"confirmText,omitempty"`
	CancelText  string           `json:"cancelText,omitempty"`
}

// Conversation is the full per-conversation document kept in the context
// store. The engine reads it, mutates it in memory, and writes it back as
// a shallow merge of top-level keys.
type Conversation struct {
	ID             string            `json:"id"`
	Intent         Intent            `json:"intent,omitempty"`
	Confidence     float64           `json:"confidence,omitempty"`
	CurrentStep    int               `json:"currentStep"`
	CompletedSteps []int             `json:"completedSteps"`
	CollectedData  map[string]string `json:"collectedData"`
	MissingFields  []string          `json:"missingFields"`
	History        []ChatMessage     `json:"history"`
	State          ConversationState `json:"state"`
	Outcome        Outcome           `json:"outcome,omitempty"`
	TurnCount      int               `json:"turnCount"`
	ActiveRecords  []RecordRef       `json:"activeRecords"`
	LastChoice     string            `json:"lastChoice,omitempty"`
	MatchedIssueID string            `json:"matchedIssueId,omitempty"`
	FlowStarted    bool              `json:"flowStarted"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastUpdated    time.Time         `json:"lastUpdated"`
}

// NewConversation initializes an empty active conversation document.
func NewConversation(id string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:             id,
		CurrentStep:    0,
		CompletedSteps: []int{},
		CollectedData:  map[string]string{},
		MissingFields:  []string{},
		History:        []ChatMessage{},
		State:          StateActive,
		ActiveRecords:  []RecordRef{},
		CreatedAt:      now,
		LastUpdated:    now,
	}
}

// Updates converts the document into a top-level key map suitable for a
// shallow-merge context update.
func (c *Conversation) Updates() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation %s: %w", c.ID, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", c.ID, err)
	}
	return m, nil
}

// AddMessage appends one transcript turn, stamping it with the current time.
func (c *Conversation) AddMessage(role, content string) {
	c.History = append(c.History, ChatMessage{Role: role, Content: content, Timestamp: time.Now().UTC()})
}

// FlowInfo is the progress block attached to every engine response.
type FlowInfo struct {
	Intent         Intent `json:"intent"`
	CurrentStep    int    `json:"currentStep"`
	TotalSteps     int    `json:"totalSteps"`
	CompletedSteps []int  `json:"completedSteps"`
}

// EngineResponse is what every engine operation returns to the client.
type EngineResponse struct {
	ConversationID string            `json:"conversationId"`
	Message        string            `json:"message"`
	Choices        []Choice          `json:"choices,omitempty"`
	ActionCard     *ActionCard       `json:"actionCard,omitempty"`
	Flow           FlowInfo          `json:"flow"`
	CollectedData  map[string]string `json:"collectedData"`
	ActiveRecords  []RecordRef       `json:"activeRecords"`
	Error          bool              `json:"error,omitempty"`
}

// APIStatus enumerates the status values of the HTTP envelope.
type APIStatus string

const (
	StatusOK    APIStatus = "ok"
	StatusError APIStatus = "error"
)

// APIResponse is the uniform HTTP response envelope.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// APIResponseBuilder builds APIResponse values fluently.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponse creates a new builder.
func NewAPIResponse() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the response status.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = status
	return b
}

// WithMessage sets the human-readable message.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result payload.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build returns the assembled response.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success returns an ok envelope with a result payload.
func Success(result interface{}) APIResponse {
	return NewAPIResponse().WithStatus(StatusOK).WithResult(result).Build()
}

// SuccessWithMessage returns an ok envelope with a message and payload.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponse().WithStatus(StatusOK).WithMessage(message).WithResult(result).Build()
}

// Error returns an error envelope with a message.
func Error(message string) APIResponse {
	return NewAPIResponse().WithStatus(StatusError).WithMessage(message).Build()
}
