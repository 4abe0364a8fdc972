package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ecsf-gov/sage/internal/genai"
	"github.com/ecsf-gov/sage/internal/models"
)

// Extractor pulls step fields out of free-text messages. Extraction only
// runs on data-collection steps; other step types never touch collected data.
type Extractor struct {
	gateway genai.ClientInterface
	useAI   bool
}

// NewExtractor creates an extractor. gateway may be nil when useAI is false.
func NewExtractor(gateway genai.ClientInterface, useAI bool) *Extractor {
	return &Extractor{gateway: gateway, useAI: useAI && gateway != nil}
}

// Extract merges extracted values into collected. Only non-empty values are
// merged, and a value already collected is only replaced by a new non-empty
// one. When the gateway yields nothing and the step collects a single field,
// the raw message is stored under that field.
func (e *Extractor) Extract(ctx context.Context, step models.Step, message string, collected map[string]string) {
	if step.Type != models.StepDataCollection {
		return
	}

	extracted := map[string]string{}
	if e.useAI && len(step.Fields) > 0 {
		got, err := e.gateway.ExtractEntities(ctx, message, step.Fields)
		if err != nil {
			slog.Debug("Extractor.Extract: gateway failed, using raw fallback", "error", err)
		} else {
			extracted = got
		}
	}

	merged := 0
	for name, value := range extracted {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if !stepHasField(step, name) {
			continue
		}
		collected[name] = value
		merged++
	}

	if merged == 0 && step.Field != "" {
		if trimmed := strings.TrimSpace(message); trimmed != "" {
			collected[step.Field] = trimmed
			merged++
		}
	}
	slog.Debug("Extractor.Extract: merge complete", "step", step.Name, "merged", merged)
}

// MissingFields returns the required fields of a step not yet collected,
// in definition order.
func MissingFields(step models.Step, collected map[string]string) []string {
	missing := []string{}
	for _, f := range step.Fields {
		if !f.Required {
			continue
		}
		if strings.TrimSpace(collected[f.Name]) == "" {
			missing = append(missing, f.Name)
		}
	}
	if len(step.Fields) == 0 && step.Field != "" && strings.TrimSpace(collected[step.Field]) == "" {
		missing = append(missing, step.Field)
	}
	return missing
}

func stepHasField(step models.Step, name string) bool {
	for _, f := range step.Fields {
		if f.Name == name {
			return true
		}
	}
	return step.Field == name
}

// fieldSpec returns the FieldSpec for a field name on a step, if present.
func fieldSpec(step models.Step, name string) (models.FieldSpec, bool) {
	for _, f := range step.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return models.FieldSpec{}, false
}
