package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var recognizedProviders = map[string]bool{
	"openai": true,
	"gemini": true,
	"mock":   true,
}

var recognizedFormats = map[string]bool{
	"markdown": true,
	"json":     true,
	"yaml":     true,
}

var recognizedDrivers = map[string]bool{
	"sqlite":   true,
	"postgres": true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if !recognizedProviders[cfg.LLM.Provider] {
		errs = append(errs, ValidationError{Field: "llm.provider", Message: fmt.Sprintf("unrecognized provider %q", cfg.LLM.Provider)})
	}
	if cfg.LLM.Provider != "mock" && cfg.LLM.APIKey == "" {
		errs = append(errs, ValidationError{Field: "llm.api_key", Message: "is required unless llm.provider is mock"})
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{Field: "llm.temperature", Message: "must be between 0 and 2"})
	}

	for field, value := range map[string]string{
		"llm.timeout":                 cfg.LLM.Timeout,
		"search.timeout":              cfg.Search.Timeout,
		"node.timeout":                cfg.Node.Timeout,
		"monitoring.retry_base_delay": cfg.Monitoring.RetryBaseDelay,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
		}
	}

	if cfg.Search.Enabled && cfg.Search.Provider != "tavily" {
		errs = append(errs, ValidationError{Field: "search.provider", Message: fmt.Sprintf("unrecognized provider %q", cfg.Search.Provider)})
	}

	for i, f := range cfg.Output.Formats {
		if !recognizedFormats[f] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("output.formats[%d]", i),
				Message: fmt.Sprintf("unrecognized format %q", f),
			})
		}
	}

	if cfg.Monitoring.MaxConcurrentTasks < 1 {
		errs = append(errs, ValidationError{Field: "monitoring.max_concurrent_tasks", Message: "must be at least 1"})
	}
	if cfg.Monitoring.RetryAttempts < 0 {
		errs = append(errs, ValidationError{Field: "monitoring.retry_attempts", Message: "must not be negative"})
	}

	q := cfg.QualityControl
	if q.MinConfidenceScore < 0 || q.MinConfidenceScore > 1 {
		errs = append(errs, ValidationError{Field: "quality_control.min_confidence_score", Message: "must be between 0 and 1"})
	}

	if !recognizedDrivers[cfg.Database.Driver] {
		errs = append(errs, ValidationError{Field: "database.driver", Message: fmt.Sprintf("unrecognized driver %q", cfg.Database.Driver)})
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.DSN == "" {
		errs = append(errs, ValidationError{Field: "database.dsn", Message: "is required for the postgres driver"})
	}

	return errs
}
