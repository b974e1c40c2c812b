package cfg

import (
	"errors"
	"flag"
	"fmt"

	"github.com/linnemanlabs/rapid/internal/triage"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	SpeechTimeoutSeconds  int
	HTTPTimeoutMS         int
	LLMTimeoutMS          int
	MinConfidence         float64
	SeverityCritical      float64
	SeverityHigh          float64
	SeverityModerate      float64
	Backend               string
	OllamaHost            string
	OllamaModel           string
	DatabaseURL           string
	BroadcastEnabled      bool
	SessionTTLSeconds     int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.IntVar(&c.SpeechTimeoutSeconds, "speech-timeout-s", 5, "seconds the telephony gather waits for speech (1..30)")
	fs.IntVar(&c.HTTPTimeoutMS, "http-timeout-ms", 4000, "webhook response deadline in milliseconds (100..30000)")
	fs.IntVar(&c.LLMTimeoutMS, "llm-timeout-ms", 3000, "model call deadline in milliseconds (100..30000)")
	fs.Float64Var(&c.MinConfidence, "min-confidence", 0.7, "confidence floor for model routing overrides (0..1)")
	fs.Float64Var(&c.SeverityCritical, "severity-critical", 80, "severity score threshold for LEVEL_1")
	fs.Float64Var(&c.SeverityHigh, "severity-high", 60, "severity score threshold for LEVEL_2")
	fs.Float64Var(&c.SeverityModerate, "severity-moderate", 40, "severity score threshold for LEVEL_3")
	fs.StringVar(&c.Backend, "backend", "hybrid", "classification backend: rule, llm, or hybrid")
	fs.StringVar(&c.OllamaHost, "ollama-host", "http://127.0.0.1:11434", "Ollama server base URL")
	fs.StringVar(&c.OllamaModel, "ollama-model", "llama3.2", "Ollama model for classification")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.BoolVar(&c.BroadcastEnabled, "broadcast-enabled", true, "enable the dashboard event stream")
	fs.IntVar(&c.SessionTTLSeconds, "session-ttl-s", 600, "idle seconds before a conversation is evicted (10..7200)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.SpeechTimeoutSeconds <= 0 || c.SpeechTimeoutSeconds > 30 {
		errs = append(errs, fmt.Errorf("invalid SPEECH_TIMEOUT_S %d (must be 1..30)", c.SpeechTimeoutSeconds))
	}
	if c.HTTPTimeoutMS < 100 || c.HTTPTimeoutMS > 30000 {
		errs = append(errs, fmt.Errorf("invalid HTTP_TIMEOUT_MS %d (must be 100..30000)", c.HTTPTimeoutMS))
	}
	if c.LLMTimeoutMS < 100 || c.LLMTimeoutMS > 30000 {
		errs = append(errs, fmt.Errorf("invalid LLM_TIMEOUT_MS %d (must be 100..30000)", c.LLMTimeoutMS))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("invalid MIN_CONFIDENCE %g (must be 0..1)", c.MinConfidence))
	}

	// Thresholds must descend and stay inside the score range.
	if c.SeverityCritical <= c.SeverityHigh || c.SeverityHigh <= c.SeverityModerate {
		errs = append(errs, fmt.Errorf("severity thresholds must descend: critical %g > high %g > moderate %g",
			c.SeverityCritical, c.SeverityHigh, c.SeverityModerate))
	}
	if c.SeverityCritical > 100 || c.SeverityModerate < 0 {
		errs = append(errs, errors.New("severity thresholds must stay within 0..100"))
	}

	switch c.Backend {
	case triage.BackendRule, triage.BackendLLM, triage.BackendHybrid:
	default:
		errs = append(errs, fmt.Errorf("invalid BACKEND %q (must be rule, llm, or hybrid)", c.Backend))
	}

	if c.Backend != triage.BackendRule {
		if c.OllamaHost == "" {
			errs = append(errs, errors.New("OLLAMA_HOST is required for llm and hybrid backends"))
		}
		if c.OllamaModel == "" {
			errs = append(errs, errors.New("OLLAMA_MODEL is required for llm and hybrid backends"))
		}
	}

	if c.SessionTTLSeconds < 10 || c.SessionTTLSeconds > 7200 {
		errs = append(errs, fmt.Errorf("invalid SESSION_TTL_S %d (must be 10..7200)", c.SessionTTLSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Thresholds converts the configured severity cutoffs into the triage table.
func (c *Config) Thresholds() triage.Thresholds {
	return triage.Thresholds{
		Critical: c.SeverityCritical,
		High:     c.SeverityHigh,
		Moderate: c.SeverityModerate,
	}
}
