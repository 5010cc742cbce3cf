package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVsRedactsAndHashes(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"api_key", "sk-live",
		"learner_id", "3f1c",
		"month", 2,
	})
	if len(out) != 6 {
		t.Fatalf("kv length: want=6 got=%d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("api_key: want=[REDACTED] got=%v", out[1])
	}
	hashed, _ := out[3].(string)
	if !strings.HasPrefix(hashed, "hash:") || strings.Contains(hashed, "3f1c") {
		t.Fatalf("learner_id: expected hashed value, got=%v", out[3])
	}
	if out[5] != 2 {
		t.Fatalf("month: expected passthrough, got=%v", out[5])
	}
}

func TestSanitizeKVsKeepsDanglingKey(t *testing.T) {
	out := sanitizeKVs([]interface{}{"plan_id", "p1", "orphan"})
	if len(out) != 3 || out[2] != "orphan" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("development", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
