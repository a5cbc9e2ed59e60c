package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// ${VAR} and ${VAR:default} string values are substituted from the environment,
// then defaults are applied to anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, substituting environment references and applying defaults.
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	substituteEnv(&root)

	cfg := Default()
	if len(root.Content) > 0 {
		if err := root.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decoding config YAML: %w", err)
		}
	}
	applyDefaults(cfg)
	return cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the first one found.
// Search order: ./config.yaml, ./config/config.yaml, ~/.dsmeta/config.yaml.
// When nothing is found the built-in defaults are returned with API keys taken
// from SILICONFLOW_API_KEY and TAVILY_API_KEY.
func LoadDefault() (*Config, error) {
	for _, path := range Candidates() {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := Default()
	cfg.LLM.APIKey = os.Getenv("SILICONFLOW_API_KEY")
	cfg.Search.APIKey = os.Getenv("TAVILY_API_KEY")
	applyDefaults(cfg)
	return cfg, nil
}

// Candidates returns the config paths LoadDefault checks, in order.
func Candidates() []string {
	candidates := []string{"config.yaml", filepath.Join("config", "config.yaml")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".dsmeta", "config.yaml"))
	}
	return candidates
}

// DefaultOpenAIBaseURL is the OpenAI-compatible endpoint used when none is configured.
const DefaultOpenAIBaseURL = "https://api.siliconflow.cn/v1"

var defaultModels = map[string]string{
	"openai": "THUDM/GLM-4-9B-0414",
	"gemini": "gemini-2.5-flash",
	"mock":   "mock",
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		App: App{Name: "dsmeta"},
		LLM: LLM{
			Provider:    "openai",
			Temperature: 0.1,
			MaxTokens:   4000,
			Timeout:     "60s",
		},
		FileProcessing: FileProcessing{
			MaxFileSize:      "50MB",
			SampleHeadLines:  1000,
			SampleTailLines:  100,
			SampleRandomSize: 500,
			EncodingFallback: []string{"utf-8", "gbk", "latin-1"},
		},
		Search: Search{
			Enabled:    true,
			Provider:   "tavily",
			BaseURL:    "https://api.tavily.com",
			MaxResults: 10,
			Timeout:    "30s",
		},
		Output: Output{
			DefaultTemplate: "default.md.tmpl",
			Formats:         []string{"markdown", "json"},
			BackupExisting:  true,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Monitoring: Monitoring{
			Patterns:           []string{"**/qiaoyu-*"},
			Recursive:          true,
			MaxConcurrentTasks: 4,
			CooldownSeconds:    5,
			RetryAttempts:      3,
			RetryBaseDelay:     "1m",
			QueueSize:          1000,
		},
		QualityControl: QualityControl{
			MinConfidenceScore: 0.7,
			ReviewThreshold:    0.5,
			RequiredFields:     []string{"name", "description", "modality"},
			EnumValidation:     true,
		},
		Node:     Node{MaxRetries: 3, Timeout: "60s"},
		Database: Database{Driver: "sqlite"},
	}
}

// applyDefaults fills zero values that YAML left unset or explicitly zeroed.
func applyDefaults(cfg *Config) {
	d := Default()

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = d.LLM.Provider
	}
	if cfg.LLM.Provider == "openai" && isMockKey(cfg.LLM.APIKey) {
		cfg.LLM.Provider = "mock"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModels[cfg.LLM.Provider]
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if cfg.LLM.Timeout == "" {
		cfg.LLM.Timeout = d.LLM.Timeout
	}

	if len(cfg.FileProcessing.EncodingFallback) == 0 {
		cfg.FileProcessing.EncodingFallback = d.FileProcessing.EncodingFallback
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = d.Search.MaxResults
	}
	if cfg.Search.Timeout == "" {
		cfg.Search.Timeout = d.Search.Timeout
	}
	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = d.Search.BaseURL
	}
	if cfg.Output.DefaultTemplate == "" {
		cfg.Output.DefaultTemplate = d.Output.DefaultTemplate
	}
	if len(cfg.Output.Formats) == 0 {
		cfg.Output.Formats = d.Output.Formats
	}

	m := &cfg.Monitoring
	if len(m.Patterns) == 0 {
		m.Patterns = d.Monitoring.Patterns
	}
	if m.MaxConcurrentTasks <= 0 {
		m.MaxConcurrentTasks = d.Monitoring.MaxConcurrentTasks
	}
	if m.CooldownSeconds <= 0 {
		m.CooldownSeconds = d.Monitoring.CooldownSeconds
	}
	if m.RetryAttempts < 0 {
		m.RetryAttempts = d.Monitoring.RetryAttempts
	}
	if m.RetryBaseDelay == "" {
		m.RetryBaseDelay = d.Monitoring.RetryBaseDelay
	}
	if m.QueueSize <= 0 {
		m.QueueSize = d.Monitoring.QueueSize
	}

	if len(cfg.QualityControl.RequiredFields) == 0 {
		cfg.QualityControl.RequiredFields = d.QualityControl.RequiredFields
	}
	if cfg.Node.MaxRetries <= 0 {
		cfg.Node.MaxRetries = d.Node.MaxRetries
	}
	if cfg.Node.Timeout == "" {
		cfg.Node.Timeout = d.Node.Timeout
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = d.Database.Driver
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
}

// isMockKey reports whether an API key is one of the placeholder keys that select offline mode.
func isMockKey(key string) bool {
	return key == "test-key-for-testing" || key == "mock-api-key"
}

// substituteEnv rewrites scalar nodes of the form ${VAR} or ${VAR:default}.
func substituteEnv(n *yaml.Node) {
	if n == nil {
		return
	}
	if n.Kind == yaml.ScalarNode && strings.HasPrefix(n.Value, "${") && strings.HasSuffix(n.Value, "}") {
		ref := n.Value[2 : len(n.Value)-1]
		name, def, _ := strings.Cut(ref, ":")
		val, ok := os.LookupEnv(name)
		if !ok {
			val = def
		}
		n.Value = val
		n.Tag = "" // let the target field type drive decoding
		n.Style = 0
		return
	}
	for _, c := range n.Content {
		substituteEnv(c)
	}
}

// Duration parses a config duration string, returning fallback when empty or invalid.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
