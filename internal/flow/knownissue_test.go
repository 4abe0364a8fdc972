package flow

import (
	"testing"

	"github.com/ecsf-gov/sage/internal/models"
)

func testIssues() []models.KnownIssue {
	return []models.KnownIssue{
		{ID: "ki_vpn_cert", Category: "vpn", Title: "VPN certificate expired", Keywords: []string{"certificate", "expired"}, Confidence: 0.9, Active: true},
		{ID: "ki_vpn_mfa", Category: "vpn", Title: "VPN MFA loop", Keywords: []string{"mfa", "loop"}, Confidence: 0.8, Active: true},
		{ID: "ki_email_sync", Category: "email", Title: "Mailbox not syncing", Keywords: []string{"sync", "outlook"}, Confidence: 0.85, Active: true},
		{ID: "ki_retired", Category: "vpn", Title: "Old issue", Keywords: []string{"certificate"}, Confidence: 0.99, Active: false},
	}
}

func TestMatchKnownIssueByCategoryAndKeyword(t *testing.T) {
	match := MatchKnownIssue(testIssues(), "vpn", "It says my certificate has expired")
	if match == nil || match.ID != "ki_vpn_cert" {
		t.Fatalf("expected ki_vpn_cert, got %+v", match)
	}
}

func TestMatchKnownIssueCategoryMustMatch(t *testing.T) {
	if match := MatchKnownIssue(testIssues(), "email", "certificate expired"); match != nil {
		t.Errorf("keyword hit in the wrong category must not match, got %+v", match)
	}
}

func TestMatchKnownIssueIgnoresInactive(t *testing.T) {
	issues := []models.KnownIssue{
		{ID: "ki_retired", Category: "vpn", Title: "Old issue", Keywords: []string{"certificate"}, Confidence: 0.99, Active: false},
	}
	if match := MatchKnownIssue(issues, "vpn", "certificate trouble"); match != nil {
		t.Errorf("inactive issues must not match, got %+v", match)
	}
}

func TestMatchKnownIssuePrefersHighestConfidence(t *testing.T) {
	match := MatchKnownIssue(testIssues(), "vpn", "certificate expired and stuck in an mfa loop")
	if match == nil || match.ID != "ki_vpn_cert" {
		t.Errorf("expected the higher-confidence match, got %+v", match)
	}
}

func TestMatchKnownIssueStableTieBreak(t *testing.T) {
	issues := []models.KnownIssue{
		{ID: "ki_b", Category: "vpn", Keywords: []string{"slow"}, Confidence: 0.8, Active: true},
		{ID: "ki_a", Category: "vpn", Keywords: []string{"slow"}, Confidence: 0.8, Active: true},
	}
	for i := 0; i < 5; i++ {
		match := MatchKnownIssue(issues, "vpn", "vpn is slow")
		if match == nil || match.ID != "ki_a" {
			t.Fatalf("tie-break must be stable on ID, got %+v", match)
		}
	}
}

func TestMatchKnownIssueNoKeywords(t *testing.T) {
	if match := MatchKnownIssue(testIssues(), "vpn", "it just feels wrong"); match != nil {
		t.Errorf("no keyword hit must not match, got %+v", match)
	}
}

func TestMatchKnownIssueCaseInsensitive(t *testing.T) {
	match := MatchKnownIssue(testIssues(), "VPN", "My CERTIFICATE seems EXPIRED")
	if match == nil || match.ID != "ki_vpn_cert" {
		t.Errorf("matching must be case-insensitive, got %+v", match)
	}
}
