package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigLayersFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
db:
  driver: sqlite
  sqlite_path: /tmp/progression.db
auth:
  jwt_secret: from-file
content:
  timeout: 5s
  quiz_questions: 12
jobs:
  outbox_relay_every: 10s
`)
	t.Setenv("JWT_SECRET_KEY", "from-env")
	t.Setenv("PORT", "9090")
	t.Setenv("TEMPORAL_ADDRESS", "temporal:7233")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB.Driver != DriverSQLite || cfg.DB.SQLitePath != "/tmp/progression.db" {
		t.Fatalf("db = %+v", cfg.DB)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("env did not override file: %q", cfg.Auth.JWTSecret)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Content.Timeout != 5*time.Second || cfg.Content.QuizQuestions != 12 {
		t.Fatalf("content = %+v", cfg.Content)
	}
	if cfg.Content.RetakeQuestions != 15 {
		t.Fatalf("unset field lost its default: %d", cfg.Content.RetakeQuestions)
	}
	if cfg.Jobs.OutboxRelayEvery != 10*time.Second || cfg.Jobs.GaugeRefreshEvery != time.Minute {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
	if !cfg.Temporal.Enabled() || cfg.Temporal.TaskQueue != "progression-remediation" {
		t.Fatalf("temporal = %+v", cfg.Temporal)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DB.Driver = "mysql"
	cfg.Content.QuizQuestions = 1
	cfg.Progression.MaxDaysPerMonth = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("invalid config accepted")
	}
	for _, want := range []string{"db.driver", "jwt_secret", "at least 3 questions", "plan size limits"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}

	cfg = DefaultConfig()
	cfg.Auth.AllowLearnerHeader = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dev config rejected: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("missing config file accepted")
	}
}
