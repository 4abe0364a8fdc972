package models

import (
	"testing"
	"time"
)

func TestResolveIntentAliases(t *testing.T) {
	cases := map[string]Intent{
		"onboarding":    IntentOnboarding,
		"new_hire":      IntentOnboarding,
		"offboarding":   IntentOffboarding,
		"employee_exit": IntentOffboarding,
		"it_support":    IntentITSupport,
		"it_resolution": IntentITSupport,
		"it_help":       IntentITSupport,
		"it_issue":      IntentITSupport,
		"general":       IntentGeneral,
		"bogus":         IntentGeneral,
		"":              IntentGeneral,
	}
	for alias, want := range cases {
		if got := ResolveIntent(alias); got != want {
			t.Errorf("ResolveIntent(%q) = %q, want %q", alias, got, want)
		}
	}
}

func TestFlowDefinitionValidate(t *testing.T) {
	valid := FlowDefinition{
		Intent: IntentOnboarding,
		Steps: []Step{
			{Type: StepWelcome, Name: "welcome", Content: "hi"},
			{Type: StepDataCollection, Name: "name", Fields: []FieldSpec{{Name: "employee_name", Required: true}}},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid flow, got %v", err)
	}

	empty := FlowDefinition{Intent: IntentOnboarding}
	if err := empty.Validate(); err != ErrFlowNoSteps {
		t.Errorf("expected ErrFlowNoSteps, got %v", err)
	}

	noIntent := FlowDefinition{Steps: []Step{{Type: StepWelcome}}}
	if err := noIntent.Validate(); err != ErrFlowMissingIntent {
		t.Errorf("expected ErrFlowMissingIntent, got %v", err)
	}

	badRouting := FlowDefinition{
		Intent: IntentITSupport,
		Steps: []Step{
			{Type: StepConditionalRouting, Name: "route", Routing: map[string]int{"vpn": 9}},
		},
	}
	if err := badRouting.Validate(); err != ErrFlowBadRouting {
		t.Errorf("expected ErrFlowBadRouting, got %v", err)
	}
}

func TestStepValidate(t *testing.T) {
	cases := []struct {
		name string
		step Step
		want error
	}{
		{"data collection without fields", Step{Type: StepDataCollection}, ErrStepMissingFields},
		{"data collection with single field", Step{Type: StepDataCollection, Field: "notes"}, nil},
		{"choice without choices", Step{Type: StepChoice}, ErrStepMissingChoices},
		{"action execution without actions", Step{Type: StepActionExecution}, ErrStepMissingActions},
		{"routing without table", Step{Type: StepConditionalRouting}, ErrStepMissingRouting},
		{"unknown type", Step{Type: StepType("mystery")}, ErrStepUnknownType},
		{"welcome", Step{Type: StepWelcome}, nil},
	}
	for _, tc := range cases {
		if err := tc.step.Validate(); err != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestNewConversationDefaults(t *testing.T) {
	conv := NewConversation("c1")
	if conv.ID != "c1" {
		t.Errorf("expected ID c1, got %s", conv.ID)
	}
	if conv.State != StateActive {
		t.Errorf("expected active state, got %s", conv.State)
	}
	if conv.CollectedData == nil || conv.CompletedSteps == nil || conv.History == nil {
		t.Error("expected non-nil collections")
	}
	if conv.TurnCount != 0 {
		t.Errorf("expected zero turn count, got %d", conv.TurnCount)
	}
}

func TestConversationAddMessage(t *testing.T) {
	conv := NewConversation("c1")
	before := time.Now().UTC().Add(-time.Second)
	conv.AddMessage("user", "hello")
	if len(conv.History) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conv.History))
	}
	msg := conv.History[0]
	if msg.Role != "user" || msg.Content != "hello" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Timestamp.Before(before) {
		t.Error("expected timestamp to be set")
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	resp := Success(map[string]string{"k": "v"})
	if resp.Status != StatusOK || resp.Result == nil {
		t.Errorf("unexpected success response %+v", resp)
	}

	resp = Error("boom")
	if resp.Status != StatusError || resp.Message != "boom" {
		t.Errorf("unexpected error response %+v", resp)
	}

	resp = SuccessWithMessage("done", 42)
	if resp.Status != StatusOK || resp.Message != "done" || resp.Result != 42 {
		t.Errorf("unexpected response %+v", resp)
	}
}
