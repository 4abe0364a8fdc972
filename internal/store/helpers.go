package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ecsf-gov/sage/internal/models"
)

// scanKnownIssues scans known-issue rows shared by the SQL backends.
func scanKnownIssues(rows *sql.Rows) ([]models.KnownIssue, error) {
	var issues []models.KnownIssue
	for rows.Next() {
		var issue models.KnownIssue
		var keywords string
		if err := rows.Scan(&issue.ID, &issue.Category, &issue.Title, &keywords, &issue.Resolution, &issue.Confidence, &issue.HitCount, &issue.Active); err != nil {
			return nil, fmt.Errorf("failed to scan known issue row: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &issue.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords for %s: %w", issue.ID, err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("known issue rows iteration failed: %w", err)
	}
	return issues, nil
}
