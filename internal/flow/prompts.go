package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ecsf-gov/sage/internal/models"
)

// DefaultHistoryWindow is how many transcript turns the gateway sees.
const DefaultHistoryWindow = 10

const basePrompt = "You are SAGE, a friendly government service-desk assistant. " +
	"You help with employee onboarding, offboarding, and IT support. " +
	"Keep replies short, warm, and concrete. Never invent record numbers or policies."

// responseContract is appended so replies stay machine-checkable.
const responseContract = "RESPONSE FORMAT:\n" +
	"Respond with a JSON object: {\"message\": \"<your reply>\", \"flowSignal\": \"continue\"}.\n" +
	"Use flowSignal \"complete\" only when every required field has been provided."

// BuildSystemPrompt assembles the gateway system prompt from the flow
// position and collected data.
func BuildSystemPrompt(def *models.FlowDefinition, step models.Step, collected map[string]string, missing []string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\nCURRENT TASK: ")
	b.WriteString(def.Title)
	if def.Description != "" {
		b.WriteString(" - ")
		b.WriteString(def.Description)
	}
	b.WriteString("\nCURRENT STEP: ")
	b.WriteString(step.Name)

	if len(collected) > 0 {
		b.WriteString("\n\nDATA COLLECTED:\n")
		keys := make([]string, 0, len(collected))
		for k := range collected {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, collected[k])
		}
	}

	if len(missing) > 0 {
		b.WriteString("\nSTILL NEEDED:\n")
		for _, name := range missing {
			if spec, ok := fieldSpec(step, name); ok && spec.Prompt != "" {
				fmt.Fprintf(&b, "- %s: %s\n", name, spec.Prompt)
			} else {
				fmt.Fprintf(&b, "- %s\n", name)
			}
		}
		b.WriteString("Ask for the NEXT missing field only. Do not ask for everything at once.\n")
	}

	if len(step.Choices) > 0 {
		b.WriteString("\nOFFER THESE CHOICES:\n")
		for _, choice := range step.Choices {
			fmt.Fprintf(&b, "- %s (%s)\n", choice.Label, choice.Value)
		}
	}

	b.WriteString("\n")
	b.WriteString(responseContract)
	return b.String()
}

// WindowHistory returns the most recent n transcript turns.
func WindowHistory(history []models.ChatMessage, n int) []models.ChatMessage {
	if n <= 0 {
		n = DefaultHistoryWindow
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// aiReply is the parsed form of a gateway generation.
type aiReply struct {
	Message    string `json:"message"`
	FlowSignal string `json:"flowSignal"`
}

// Flow signals the gateway may emit.
const (
	signalContinue = "continue"
	signalComplete = "complete"
)
