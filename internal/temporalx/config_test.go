package temporalx

import (
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Address: " localhost:7233 ", RetentionDays: 900}.WithDefaults()
	if !cfg.Enabled() || cfg.Address != "localhost:7233" {
		t.Fatalf("address = %q", cfg.Address)
	}
	if cfg.Namespace != "progression" || cfg.TaskQueue != "progression-remediation" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.RetentionDays != 365 {
		t.Fatalf("retention = %d, want clamp to 365", cfg.RetentionDays)
	}
	if (Config{}).Enabled() {
		t.Fatalf("empty config should be disabled")
	}
}

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{4, 2 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := ClampBackoff(250*time.Millisecond, 5*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %v want %v", tc.attempt, got, tc.want)
		}
	}
}
