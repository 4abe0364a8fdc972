package models

import "strings"

// Intent identifies which service-desk flow a conversation is running.
type Intent string

const (
	// IntentOnboarding walks a manager through bringing a new employee on board.
	IntentOnboarding Intent = "onboarding"
	// IntentOffboarding walks a manager through an employee exit.
	IntentOffboarding Intent = "offboarding"
	// IntentITSupport troubleshoots IT issues and raises incidents.
	IntentITSupport Intent = "it_support"
	// IntentGeneral is the default when no specific intent is detected.
	IntentGeneral Intent = "general"
)

// CanonicalIntents lists every intent the classifier may return.
var CanonicalIntents = []Intent{IntentOnboarding, IntentOffboarding, IntentITSupport, IntentGeneral}

// IntentAliases maps legacy and shorthand intent identifiers onto the
// canonical set. Choice values and classifier output both pass through it.
var IntentAliases = map[string]Intent{
	"onboarding":    IntentOnboarding,
	"new_hire":      IntentOnboarding,
	"offboarding":   IntentOffboarding,
	"employee_exit": IntentOffboarding,
	"it_support":    IntentITSupport,
	"it_resolution": IntentITSupport,
	"it_help":       IntentITSupport,
	"it_issue":      IntentITSupport,
	"general":       IntentGeneral,
}

// LookupIntent resolves an intent identifier through the alias map and
// reports whether it named a known intent.
func LookupIntent(s string) (Intent, bool) {
	intent, ok := IntentAliases[strings.ToLower(strings.TrimSpace(s))]
	return intent, ok
}

// ResolveIntent normalizes an intent identifier through the alias map.
// Unknown identifiers resolve to IntentGeneral.
func ResolveIntent(s string) Intent {
	if intent, ok := LookupIntent(s); ok {
		return intent
	}
	return IntentGeneral
}

// ConversationState represents where a conversation is in its lifecycle.
type ConversationState string

const (
	// StateActive means the engine is collecting data or routing steps.
	StateActive ConversationState = "active"
	// StateAwaitingInput means the engine asked for an explicit confirmation.
	StateAwaitingInput ConversationState = "awaiting_input"
	// StateCompleted means the flow finished (records created, resolved, or abandoned).
	StateCompleted ConversationState = "completed"
)

// Outcome records how a completed conversation ended.
type Outcome string

const (
	OutcomeResolved  Outcome = "resolved"
	OutcomeSubmitted Outcome = "submitted"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeAbandoned Outcome = "abandoned"
)

// StepType discriminates the step union in a flow definition.
type StepType string

const (
	// StepWelcome greets the user and introduces the flow.
	StepWelcome StepType = "welcome"
	// StepChoice presents buttons and stores the selection in a field.
	StepChoice StepType = "choice"
	// StepDataCollection gathers one or more required fields from free text.
	StepDataCollection StepType = "data_collection"
	// StepKnownIssueCheck matches collected data against the known-issue database.
	StepKnownIssueCheck StepType = "known_issue_check"
	// StepConfirmation summarizes collected data and asks the user to confirm.
	StepConfirmation StepType = "confirmation"
	// StepActionExecution creates records through the action executor.
	StepActionExecution StepType = "action_execution"
	// StepSummary closes the flow with a recap message.
	StepSummary StepType = "summary"
	// StepConditionalRouting jumps to another step based on the last choice.
	StepConditionalRouting StepType = "conditional_routing"
)

// ActionType keys the action executor's dispatch table.
type ActionType string

const (
	ActionHR       ActionType = "hr"
	ActionIT       ActionType = "it"
	ActionManager  ActionType = "manager"
	ActionSecurity ActionType = "security"
	ActionGeneric  ActionType = "generic"
)

// RecordTable names the backend tables records are created in.
type RecordTable string

const (
	TableHRCase   RecordTable = "sn_hr_core_case"
	TableRequest  RecordTable = "sc_request"
	TableReqItem  RecordTable = "sc_req_item"
	TableIncident RecordTable = "incident"
	TableTask     RecordTable = "task"
	TableSecurity RecordTable = "security_request"
	TableGeneric  RecordTable = "sage_request"
)

// FieldSpec describes one piece of data a step collects.
type FieldSpec struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Prompt   string   `json:"prompt"`
	Required bool     `json:"required"`
	Choices  []Choice `json:"choices,omitempty"`
}

// ActionSpec describes one record-creating action attached to a step.
type ActionSpec struct {
	ID    string      `json:"id"`
	Type  ActionType  `json:"type"`
	Table RecordTable `json:"table"`
	Title string      `json:"title"`
}

// Step is one entry in a flow definition. Which fields are meaningful
// depends on Type: Fields for data_collection, Choices and Field for
// choice, Actions for action_execution, Routing for conditional_routing.
type Step struct {
	Type    StepType       `json:"type"`
	Name    string         `json:"name"`
	Content string         `json:"content"`
	Field   string         `json:"field,omitempty"`
	Fields  []FieldSpec    `json:"fields,omitempty"`
	Choices []Choice       `json:"choices,omitempty"`
	Actions []ActionSpec   `json:"actions,omitempty"`
	Routing map[string]int `json:"routing,omitempty"`
}

// FlowDefinition is a complete scripted flow for one intent.
type FlowDefinition struct {
	Intent      Intent `json:"intent"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Steps       []Step `json:"steps"`
}

// Validate checks structural consistency of a flow definition.
func (f *FlowDefinition) Validate() error {
	if f.Intent == "" {
		return ErrFlowMissingIntent
	}
	if len(f.Steps) == 0 {
		return ErrFlowNoSteps
	}
	for i := range f.Steps {
		if err := f.Steps[i].Validate(); err != nil {
			return err
		}
		for _, target := range f.Steps[i].Routing {
			if target < 0 || target >= len(f.Steps) {
				return ErrFlowBadRouting
			}
		}
	}
	return nil
}

// Validate checks that a step carries the fields its type requires.
func (s *Step) Validate() error {
	switch s.Type {
	case StepDataCollection:
		if len(s.Fields) == 0 && s.Field == "" {
			return ErrStepMissingFields
		}
	case StepChoice:
		if len(s.Choices) == 0 {
			return ErrStepMissingChoices
		}
	case StepActionExecution:
		if len(s.Actions) == 0 {
			return ErrStepMissingActions
		}
	case StepConditionalRouting:
		if len(s.Routing) == 0 {
			return ErrStepMissingRouting
		}
	case StepWelcome, StepKnownIssueCheck, StepConfirmation, StepSummary:
		// content-only step types
	default:
		return ErrStepUnknownType
	}
	return nil
}

// KnownIssue is a database entry the IT flow matches issue descriptions against.
type KnownIssue struct {
	ID         string   `json:"id"`
	Category   string   `json:"category"`
	Title      string   `json:"title"`
	Keywords   []string `json:"keywords"`
	Resolution string   `json:"resolution"`
	Confidence float64  `json:"confidence"`
	HitCount   int      `json:"hitCount"`
	Active     bool     `json:"active"`
}
