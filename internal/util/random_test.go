package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	id := GenerateRandomID("test_", 16)
	if !strings.HasPrefix(id, "test_") {
		t.Errorf("expected test_ prefix, got %s", id)
	}
	if len(id) != 21 {
		t.Errorf("expected length 21, got %d", len(id))
	}
}

func TestGenerateRandomHex(t *testing.T) {
	hex := GenerateRandomHex(32)
	if len(hex) != 32 {
		t.Errorf("expected length 32, got %d", len(hex))
	}
	for _, c := range hex {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("unexpected character %c in hex string", c)
		}
	}
	if GenerateRandomHex(0) != "" {
		t.Error("expected empty string for zero length")
	}
	if GenerateRandomHex(-5) != "" {
		t.Error("expected empty string for negative length")
	}
}

func TestGenerateConversationID(t *testing.T) {
	id := GenerateConversationID()
	if !strings.HasPrefix(id, "conv_") {
		t.Errorf("expected conv_ prefix, got %s", id)
	}
	if len(id) != 37 {
		t.Errorf("expected length 37, got %d", len(id))
	}
	if id == GenerateConversationID() {
		t.Error("expected distinct IDs across calls")
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("SAGE_TEST_INT", "42")
	if got := ParseIntEnv("SAGE_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("SAGE_TEST_INT", "nope")
	if got := ParseIntEnv("SAGE_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
	if got := ParseIntEnv("SAGE_TEST_INT_UNSET", 9); got != 9 {
		t.Errorf("expected default 9, got %d", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("SAGE_TEST_BOOL", "yes")
	if !ParseBoolEnv("SAGE_TEST_BOOL", false) {
		t.Error("expected true for yes")
	}
	t.Setenv("SAGE_TEST_BOOL", "off")
	if ParseBoolEnv("SAGE_TEST_BOOL", true) {
		t.Error("expected false for off")
	}
	t.Setenv("SAGE_TEST_BOOL", "maybe")
	if !ParseBoolEnv("SAGE_TEST_BOOL", true) {
		t.Error("expected default for invalid value")
	}
}
