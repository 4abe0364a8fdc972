package flow

import (
	"testing"

	"github.com/ecsf-gov/sage/internal/models"
)

func TestCatalogBuiltinFlowsValid(t *testing.T) {
	c := NewCatalog()
	for _, intent := range models.CanonicalIntents {
		def := c.Flow(intent)
		if def == nil {
			t.Fatalf("missing flow for %s", intent)
		}
		if def.Intent != intent {
			t.Errorf("flow for %s carries intent %s", intent, def.Intent)
		}
		if err := def.Validate(); err != nil {
			t.Errorf("built-in flow %s invalid: %v", intent, err)
		}
	}
}

func TestCatalogUnknownIntentFallsBackToGeneral(t *testing.T) {
	c := NewCatalog()
	def := c.Flow(models.Intent("space_travel"))
	if def == nil || def.Intent != models.IntentGeneral {
		t.Errorf("expected general fallback, got %+v", def)
	}
}

func TestCatalogRegisterRejectsInvalid(t *testing.T) {
	c := NewCatalog()
	err := c.Register(&models.FlowDefinition{Intent: models.IntentOnboarding})
	if err == nil {
		t.Error("expected validation error for empty flow")
	}
}

func TestCatalogRegisterReplaces(t *testing.T) {
	c := NewCatalog()
	custom := &models.FlowDefinition{
		Intent: models.IntentOnboarding,
		Title:  "Short onboarding",
		Steps:  []models.Step{{Type: models.StepWelcome, Name: "welcome", Content: "hi"}},
	}
	if err := c.Register(custom); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if got := c.Flow(models.IntentOnboarding); got.Title != "Short onboarding" {
		t.Errorf("expected replacement flow, got %s", got.Title)
	}
}

func TestBuiltinFlowsEndWithActionAndSummary(t *testing.T) {
	c := NewCatalog()
	for _, intent := range []models.Intent{models.IntentOnboarding, models.IntentOffboarding, models.IntentITSupport} {
		def := c.Flow(intent)
		hasAction := false
		for _, step := range def.Steps {
			if step.Type == models.StepActionExecution {
				hasAction = true
			}
		}
		if !hasAction {
			t.Errorf("flow %s has no action step", intent)
		}
		if last := def.Steps[len(def.Steps)-1]; last.Type != models.StepSummary {
			t.Errorf("flow %s should end with a summary, ends with %s", intent, last.Type)
		}
	}
}

func TestITSupportFlowHasKnownIssueCheck(t *testing.T) {
	def := NewCatalog().Flow(models.IntentITSupport)
	found := false
	for _, step := range def.Steps {
		if step.Type == models.StepKnownIssueCheck {
			found = true
		}
	}
	if !found {
		t.Error("IT support flow must include a known-issue check")
	}
}
