package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
llm:
  provider: openai
  model: Qwen/Qwen2.5-7B-Instruct
  api_key: sk-test
  temperature: 0.2
  timeout: "45s"
search:
  enabled: true
  provider: tavily
  api_key: tvly-test
  max_results: 5
output:
  formats:
    - markdown
    - json
    - yaml
  backup_existing: false
monitoring:
  directories:
    - /data/incoming
  patterns:
    - "**/team-*"
  max_concurrent_tasks: 2
  cooldown_seconds: 10
  retry_attempts: 2
  retry_base_delay: "30s"
quality_control:
  min_confidence_score: 0.6
  required_fields:
    - name
    - description
database:
  driver: sqlite
  dsn: /tmp/dsmeta.db
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LLM.Model != "Qwen/Qwen2.5-7B-Instruct" {
		t.Errorf("LLM.Model = %q, want %q", cfg.LLM.Model, "Qwen/Qwen2.5-7B-Instruct")
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM.Temperature = %v, want 0.2", cfg.LLM.Temperature)
	}
	if cfg.Search.MaxResults != 5 {
		t.Errorf("Search.MaxResults = %d, want 5", cfg.Search.MaxResults)
	}
	if len(cfg.Output.Formats) != 3 {
		t.Errorf("len(Output.Formats) = %d, want 3", len(cfg.Output.Formats))
	}
	if cfg.Output.BackupExisting {
		t.Error("Output.BackupExisting = true, want false (explicit)")
	}
	if cfg.Monitoring.MaxConcurrentTasks != 2 {
		t.Errorf("Monitoring.MaxConcurrentTasks = %d, want 2", cfg.Monitoring.MaxConcurrentTasks)
	}
	if got := Duration(cfg.Monitoring.RetryBaseDelay, time.Minute); got != 30*time.Second {
		t.Errorf("RetryBaseDelay = %v, want 30s", got)
	}
}

func TestDefaultsMerge(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// base_url not set: should inherit the default endpoint
	if cfg.LLM.BaseURL != "https://api.siliconflow.cn/v1" {
		t.Errorf("LLM.BaseURL = %q, want default", cfg.LLM.BaseURL)
	}
	if cfg.LLM.MaxTokens != 4000 {
		t.Errorf("LLM.MaxTokens = %d, want 4000", cfg.LLM.MaxTokens)
	}
	if cfg.Monitoring.QueueSize != 1000 {
		t.Errorf("Monitoring.QueueSize = %d, want 1000", cfg.Monitoring.QueueSize)
	}
	if cfg.Node.MaxRetries != 3 {
		t.Errorf("Node.MaxRetries = %d, want 3", cfg.Node.MaxRetries)
	}
	// file_processing section omitted entirely
	if cfg.FileProcessing.SampleHeadLines != 1000 {
		t.Errorf("SampleHeadLines = %d, want 1000", cfg.FileProcessing.SampleHeadLines)
	}
	if !cfg.QualityControl.EnumValidation {
		t.Error("EnumValidation = false, want true (default)")
	}
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("DSMETA_TEST_KEY", "sk-from-env")
	yaml := `
llm:
  api_key: ${DSMETA_TEST_KEY}
  model: ${DSMETA_TEST_MODEL_UNSET:fallback-model}
search:
  api_key: ${DSMETA_TEST_SEARCH_UNSET}
monitoring:
  max_concurrent_tasks: ${DSMETA_TEST_WORKERS:6}
`
	path := writeTestConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("LLM.APIKey = %q, want sk-from-env", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "fallback-model" {
		t.Errorf("LLM.Model = %q, want fallback-model", cfg.LLM.Model)
	}
	if cfg.Search.APIKey != "" {
		t.Errorf("Search.APIKey = %q, want empty", cfg.Search.APIKey)
	}
	if cfg.Monitoring.MaxConcurrentTasks != 6 {
		t.Errorf("MaxConcurrentTasks = %d, want 6", cfg.Monitoring.MaxConcurrentTasks)
	}
}

func TestMockKeySelectsMockProvider(t *testing.T) {
	cfg, err := Parse([]byte("llm:\n  api_key: mock-api-key\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.LLM.Provider != "mock" {
		t.Errorf("LLM.Provider = %q, want mock", cfg.LLM.Provider)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error: %v", err)
	}
	if cfg.Monitoring.CooldownSeconds != 5 {
		t.Errorf("CooldownSeconds = %d, want 5", cfg.Monitoring.CooldownSeconds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %q, want it to mention reading config file", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTestConfig(t, "llm: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidateValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	if len(errs) != 0 {
		t.Errorf("Validate() returned %d errors for valid config:", len(errs))
		for _, e := range errs {
			t.Errorf("  - %s", e)
		}
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"missing api key", "llm:\n  provider: openai\n", "llm.api_key"},
		{"bad provider", "llm:\n  provider: llama\n  api_key: x\n", "llm.provider"},
		{"bad format", "llm:\n  provider: mock\noutput:\n  formats: [pdf]\n", "output.formats[0]"},
		{"bad duration", "llm:\n  provider: mock\n  timeout: soon\n", "llm.timeout"},
		{"postgres without dsn", "llm:\n  provider: mock\ndatabase:\n  driver: postgres\n", "database.dsn"},
		{"bad confidence", "llm:\n  provider: mock\nquality_control:\n  min_confidence_score: 1.5\n", "quality_control.min_confidence_score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			errs := Validate(cfg)
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected validation error on %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", 3*time.Second); got != 3*time.Second {
		t.Errorf("Duration(\"\") = %v, want 3s", got)
	}
	if got := Duration("bogus", 3*time.Second); got != 3*time.Second {
		t.Errorf("Duration(bogus) = %v, want fallback", got)
	}
	if got := Duration("2m", 0); got != 2*time.Minute {
		t.Errorf("Duration(2m) = %v, want 2m", got)
	}
}
