package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ecsf-gov/sage/internal/genai"
	"github.com/ecsf-gov/sage/internal/models"
)

// Confidence levels of the non-rule classification tiers.
const (
	// fallbackConfidence is assigned when only the hardcoded keyword map matched.
	fallbackConfidence = 0.7
	// generalConfidence is assigned when nothing matched at all.
	generalConfidence = 0.3
	// ruleBonusBase feeds the priority bonus 0.1/(priority+1).
	ruleBonusBase = 0.1
)

// IntentRule is one rule of the keyword classifier. Lower priority numbers
// win the tie-break through a larger bonus.
type IntentRule struct {
	Intent   models.Intent
	Keywords []string
	Priority int
}

// defaultRules mirror the service-desk intent configuration.
func defaultRules() []IntentRule {
	return []IntentRule{
		{Intent: models.IntentOnboarding, Priority: 0, Keywords: []string{"onboard", "onboarding", "new hire", "new employee", "starting", "joining", "first day"}},
		{Intent: models.IntentOffboarding, Priority: 0, Keywords: []string{"offboard", "offboarding", "leaving", "last day", "resign", "exit", "departing", "termination"}},
		{Intent: models.IntentITSupport, Priority: 1, Keywords: []string{"vpn", "password", "email", "laptop", "software", "broken", "error", "not working", "locked", "access", "login", "incident"}},
	}
}

// keywordFallbacks is the hardcoded map consulted when no rule scores.
var keywordFallbacks = map[string]models.Intent{
	"hire":     models.IntentOnboarding,
	"recruit":  models.IntentOnboarding,
	"quit":     models.IntentOffboarding,
	"leaver":   models.IntentOffboarding,
	"computer": models.IntentITSupport,
	"printer":  models.IntentITSupport,
	"wifi":     models.IntentITSupport,
	"outlook":  models.IntentITSupport,
}

// ClassificationResult is the intent decision with its confidence and source.
type ClassificationResult struct {
	Intent     models.Intent
	Confidence float64
	Source     string
}

// Classifier detects the intent of a free-text message. When a gateway is
// configured it asks the model first and falls back to the rule tiers.
type Classifier struct {
	gateway genai.ClientInterface
	rules   []IntentRule
	useAI   bool
}

// NewClassifier creates a classifier. gateway may be nil when useAI is false.
func NewClassifier(gateway genai.ClientInterface, useAI bool) *Classifier {
	return &Classifier{gateway: gateway, rules: defaultRules(), useAI: useAI && gateway != nil}
}

// Classify always returns a result; the general intent at low confidence is
// the final tier.
func (c *Classifier) Classify(ctx context.Context, message string) ClassificationResult {
	if c.useAI {
		if result, ok := c.classifyAI(ctx, message); ok {
			return result
		}
	}
	return c.classifyRules(message)
}

func (c *Classifier) classifyAI(ctx context.Context, message string) (ClassificationResult, bool) {
	categories := make([]string, 0, len(models.CanonicalIntents))
	for _, intent := range models.CanonicalIntents {
		categories = append(categories, string(intent))
	}
	result, err := c.gateway.Classify(ctx, message, categories)
	if err != nil {
		slog.Debug("Classifier.classifyAI: gateway failed, falling back to rules", "error", err)
		return ClassificationResult{}, false
	}
	intent, known := models.LookupIntent(result.Intent)
	if !known {
		slog.Debug("Classifier.classifyAI: unrecognized label, falling back to rules", "label", result.Intent)
		return ClassificationResult{}, false
	}
	confidence := clampConfidence(result.Confidence)
	slog.Debug("Classifier.classifyAI: classified", "intent", intent, "confidence", confidence)
	return ClassificationResult{Intent: intent, Confidence: confidence, Source: "ai"}, true
}

// classifyRules scores each rule as matched/total plus a priority bonus of
// 0.1/(priority+1) and keeps the best score.
func (c *Classifier) classifyRules(message string) ClassificationResult {
	lowered := strings.ToLower(message)

	best := ClassificationResult{}
	for _, rule := range c.rules {
		matched := 0
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := clampConfidence(float64(matched)/float64(len(rule.Keywords)) + ruleBonusBase/float64(rule.Priority+1))
		if score > best.Confidence {
			best = ClassificationResult{Intent: rule.Intent, Confidence: score, Source: "rules"}
		}
	}
	if best.Intent != "" {
		slog.Debug("Classifier.classifyRules: rule matched", "intent", best.Intent, "confidence", best.Confidence)
		return best
	}

	for kw, intent := range keywordFallbacks {
		if strings.Contains(lowered, kw) {
			slog.Debug("Classifier.classifyRules: fallback keyword matched", "intent", intent, "keyword", kw)
			return ClassificationResult{Intent: intent, Confidence: fallbackConfidence, Source: "fallback"}
		}
	}

	return ClassificationResult{Intent: models.IntentGeneral, Confidence: generalConfidence, Source: "default"}
}

// clampConfidence clips a confidence value into [0, 1].
func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
