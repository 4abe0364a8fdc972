package flow

import (
	"strings"
	"testing"

	"github.com/ecsf-gov/sage/internal/models"
)

func TestBuildSystemPromptSections(t *testing.T) {
	def := NewCatalog().Flow(models.IntentOnboarding)
	step := def.Steps[3] // start_date
	collected := map[string]string{"employee_name": "Dana Soto", "department": "finance"}
	missing := []string{"start_date"}

	prompt := BuildSystemPrompt(def, step, collected, missing)
	for _, want := range []string{
		"CURRENT TASK: Employee onboarding",
		"DATA COLLECTED:",
		"employee_name: Dana Soto",
		"STILL NEEDED:",
		"start_date",
		"Ask for the NEXT missing field only",
		"RESPONSE FORMAT:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSystemPromptChoices(t *testing.T) {
	def := NewCatalog().Flow(models.IntentITSupport)
	step := def.Steps[1] // category choice
	prompt := BuildSystemPrompt(def, step, map[string]string{}, nil)
	if !strings.Contains(prompt, "OFFER THESE CHOICES:") || !strings.Contains(prompt, "VPN (vpn)") {
		t.Errorf("prompt should list choices:\n%s", prompt)
	}
	if strings.Contains(prompt, "STILL NEEDED:") {
		t.Error("no missing fields section expected")
	}
}

func TestWindowHistory(t *testing.T) {
	history := make([]models.ChatMessage, 25)
	for i := range history {
		history[i] = models.ChatMessage{Role: "user", Content: strings.Repeat("x", i+1)}
	}

	windowed := WindowHistory(history, 10)
	if len(windowed) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(windowed))
	}
	if windowed[9].Content != history[24].Content {
		t.Error("window must keep the most recent turns")
	}

	short := WindowHistory(history[:3], 10)
	if len(short) != 3 {
		t.Errorf("short history should pass through, got %d", len(short))
	}

	defaulted := WindowHistory(history, 0)
	if len(defaulted) != DefaultHistoryWindow {
		t.Errorf("zero window should default to %d, got %d", DefaultHistoryWindow, len(defaulted))
	}
}
