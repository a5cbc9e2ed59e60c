package config

// Config is the top-level configuration structure parsed from config YAML.
type Config struct {
	App            App            `yaml:"app"`
	LLM            LLM            `yaml:"llm"`
	FileProcessing FileProcessing `yaml:"file_processing"`
	Search         Search         `yaml:"search"`
	Output         Output         `yaml:"output"`
	Logging        Logging        `yaml:"logging"`
	Monitoring     Monitoring     `yaml:"monitoring"`
	QualityControl QualityControl `yaml:"quality_control"`
	Node           Node           `yaml:"node"`
	Database       Database       `yaml:"database"`
}

// App holds application identity settings.
type App struct {
	Name  string `yaml:"name"`
	Debug bool   `yaml:"debug"`
}

// LLM configures the analysis/synthesis service.
type LLM struct {
	Provider    string  `yaml:"provider"` // "openai", "gemini", "mock"
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// FileProcessing controls the content sampler.
type FileProcessing struct {
	MaxFileSize      string   `yaml:"max_file_size"`
	SampleHeadLines  int      `yaml:"sample_head_lines"`
	SampleTailLines  int      `yaml:"sample_tail_lines"`
	SampleRandomSize int      `yaml:"sample_random_size"`
	EncodingFallback []string `yaml:"encoding_fallback"`
}

// Search configures the web search service.
type Search struct {
	Enabled    bool   `yaml:"enabled"`
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	MaxResults int    `yaml:"max_results"`
	Timeout    string `yaml:"timeout"`
}

// Output controls rendering and persistence of artifacts.
type Output struct {
	TemplateDir     string   `yaml:"template_dir"`
	DefaultTemplate string   `yaml:"default_template"`
	Formats         []string `yaml:"formats"`
	BackupExisting  bool     `yaml:"backup_existing"`
}

// Logging configures the zap logger.
type Logging struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // "json" or "console"
	FilePath string `yaml:"file_path"`
}

// Monitoring configures the directory watcher and task executor.
type Monitoring struct {
	Directories        []string `yaml:"directories"`
	Patterns           []string `yaml:"patterns"`
	Recursive          bool     `yaml:"recursive"`
	MaxConcurrentTasks int      `yaml:"max_concurrent_tasks"`
	CooldownSeconds    int      `yaml:"cooldown_seconds"`
	RetryAttempts      int      `yaml:"retry_attempts"`
	RetryBaseDelay     string   `yaml:"retry_base_delay"`
	QueueSize          int      `yaml:"queue_size"`
	StatusAddr         string   `yaml:"status_addr"`
}

// QualityControl holds thresholds for the validation stage.
type QualityControl struct {
	MinConfidenceScore float64  `yaml:"min_confidence_score"`
	ReviewThreshold    float64  `yaml:"require_human_review_threshold"`
	RequiredFields     []string `yaml:"required_fields"`
	EnumValidation     bool     `yaml:"enum_validation"`
}

// Node holds per-stage retry and timeout settings for external calls.
type Node struct {
	MaxRetries int    `yaml:"max_retries"`
	Timeout    string `yaml:"timeout"`
}

// Database configures the run history store.
type Database struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}
