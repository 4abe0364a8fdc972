package flow

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/ecsf-gov/sage/internal/models"
)

// MatchKnownIssue finds the best known issue for a category and issue
// description. An issue matches when its category equals the reported one
// and at least one of its keywords appears in the description. Candidates
// are ranked by confidence, highest first, with ID as a stable tie-break.
func MatchKnownIssue(issues []models.KnownIssue, category, description string) *models.KnownIssue {
	lowered := strings.ToLower(description)
	category = strings.ToLower(strings.TrimSpace(category))

	candidates := make([]models.KnownIssue, 0, len(issues))
	for _, issue := range issues {
		if !issue.Active {
			continue
		}
		if strings.ToLower(issue.Category) != category {
			continue
		}
		for _, kw := range issue.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				candidates = append(candidates, issue)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].ID < candidates[j].ID
	})
	best := candidates[0]
	slog.Debug("MatchKnownIssue: matched", "issueID", best.ID, "confidence", best.Confidence)
	return &best
}
