package triage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Backend selects which classifier chain the engine runs.
const (
	BackendRule   = "rule"
	BackendLLM    = "llm"
	BackendHybrid = "hybrid"
)

const maxSummaryLen = 200

// Engine orchestrates one triage pass: classify, route, synthesize guidance,
// extract location, summarize. It never returns an error; when every backend
// fails it emits the degraded sentinel so the caller always has something
// safe to speak.
type Engine struct {
	backend       string
	rule          RuleClassifier
	llm           Classifier
	minConfidence float64
	thresholds    Thresholds
	logger        log.Logger
	metrics       *Metrics
}

// NewEngine builds an engine. llm may be nil for the rule backend; metrics
// may be nil in tests. A negative minConfidence means unset and uses the
// default of 0.7; zero is a valid gate that always trusts the model.
func NewEngine(backend string, llm Classifier, th Thresholds, minConfidence float64, logger log.Logger, m *Metrics) *Engine {
	if th == (Thresholds{}) {
		th = DefaultThresholds
	}
	if minConfidence < 0 {
		minConfidence = 0.7
	}
	return &Engine{
		backend:       backend,
		rule:          RuleClassifier{Thresholds: th},
		llm:           llm,
		minConfidence: minConfidence,
		thresholds:    th,
		logger:        logger,
		metrics:       m,
	}
}

// Process triages one transcript. Calls for the same session must be
// serialized by the caller; the engine itself is stateless and safe for
// concurrent use across sessions.
func (e *Engine) Process(ctx context.Context, transcript string) *Outcome {
	start := time.Now()

	cls, backend := e.classify(ctx, transcript)

	// Routing is table-driven unless a confident model says otherwise.
	if backend != BackendRule && !cls.Degraded && cls.Confidence < e.minConfidence {
		cls.Service, cls.Priority = Route(cls.Kind, cls.Severity)
	}

	guidance := Respond(cls.Kind, cls.Severity)

	location := cls.Location
	if location == "" {
		location = extractLocation(transcript)
	}

	out := &Outcome{
		Transcript:       transcript,
		Kind:             cls.Kind,
		Severity:         cls.Severity,
		SeverityScore:    cls.SeverityScore,
		Service:          cls.Service,
		Priority:         cls.Priority,
		Confidence:       cls.Confidence,
		RiskTags:         cls.RiskTags,
		Location:         location,
		Spoken:           guidance.Spoken,
		ImmediateActions: guidance.Actions,
		Precautions:      guidance.Precautions,
		DangerQuestion:   guidance.DangerQuestion,
		EscalatedSpoken:  guidance.EscalatedSpoken,
		CreatedAt:        time.Now().UTC(),
	}
	if cls.Degraded && cls.Summary != "" {
		out.Summary = cls.Summary
	} else {
		out.Summary = buildSummary(cls, location, transcript)
	}
	out.ProcessingMs = float64(time.Since(start).Microseconds()) / 1000

	if e.metrics != nil {
		e.metrics.TriagesTotal.WithLabelValues(backend, string(cls.Kind)).Inc()
		e.metrics.TriageDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
		e.metrics.SeverityScore.Observe(cls.SeverityScore)
	}

	e.logger.Info(ctx, "triage complete",
		"backend", backend,
		"kind", cls.Kind,
		"severity", cls.Severity,
		"score", cls.SeverityScore,
		"service", cls.Service,
		"priority", cls.Priority,
		"confidence", cls.Confidence,
		"degraded", cls.Degraded,
		"duration_ms", out.ProcessingMs,
	)

	return out
}

// classify runs the configured backend chain and reports which backend
// actually produced the result.
func (e *Engine) classify(ctx context.Context, transcript string) (Classification, string) {
	switch e.backend {
	case BackendLLM:
		cls, err := e.classifyLLM(ctx, transcript)
		if err != nil {
			e.logger.Error(ctx, err, "llm backend failed, emitting degraded result")
			if e.metrics != nil {
				e.metrics.FallbacksTotal.WithLabelValues("degraded").Inc()
			}
			return Degraded(), BackendLLM
		}
		return cls, BackendLLM

	case BackendHybrid:
		cls, err := e.classifyLLM(ctx, transcript)
		if err == nil {
			return cls, BackendLLM
		}
		e.logger.Warn(ctx, "llm backend failed, falling back to rules", "error", err)
		if e.metrics != nil {
			e.metrics.FallbacksTotal.WithLabelValues("llm_error").Inc()
		}
		fallthrough

	default:
		cls, _ := e.rule.Classify(ctx, transcript)
		return cls, BackendRule
	}
}

func (e *Engine) classifyLLM(ctx context.Context, transcript string) (Classification, error) {
	if e.llm == nil {
		return Classification{}, fmt.Errorf("no llm classifier configured")
	}
	start := time.Now()
	cls, err := e.llm.Classify(ctx, transcript)
	if e.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		e.metrics.LLMCallsTotal.WithLabelValues(result).Inc()
		e.metrics.LLMDuration.Observe(time.Since(start).Seconds())
	}
	return cls, err
}

var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,5}\s+[a-z][a-z .']*\s+(?:street|st|road|rd|avenue|ave|boulevard|blvd|lane|ln|drive|dr|highway|hwy|court|ct|place|pl)\b`),
	regexp.MustCompile(`(?i)\b(?:at|on|near)\s+(?:the\s+)?([a-z0-9][a-z0-9 .']*?\s+(?:street|st|road|rd|avenue|ave|boulevard|blvd|lane|ln|drive|dr|highway|hwy|intersection|bridge|mall|park|station))\b`),
	regexp.MustCompile(`(?i)\bcorner\s+of\s+([a-z0-9 .']+\s+and\s+[a-z0-9 .']+)\b`),
}

// extractLocation pulls a street-level location hint out of the transcript.
// Returns "" when nothing plausible matches; callers treat that as unknown,
// never as an error.
func extractLocation(transcript string) string {
	for _, re := range locationPatterns {
		m := re.FindStringSubmatch(transcript)
		if m == nil {
			continue
		}
		loc := m[0]
		if len(m) > 1 && m[1] != "" {
			loc = m[1]
		}
		return strings.TrimSpace(loc)
	}
	return ""
}

var victimPattern = regexp.MustCompile(`(?i)\b(?:my\s+(?:husband|wife|son|daughter|mother|father|brother|sister|friend|neighbor|child|baby)|(?:\d+|two|three|four|five|several|multiple)\s+(?:people|persons|victims|passengers))\b`)

// buildSummary renders the dispatcher one-liner, capped at 200 characters.
func buildSummary(cls Classification, location, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s emergency", cls.Severity.Display(), strings.ToLower(cls.Kind.Display()))

	if len(cls.RiskTags) > 0 {
		tags := cls.RiskTags
		if len(tags) > 3 {
			tags = tags[:3]
		}
		b.WriteString(" - ")
		b.WriteString(strings.Join(tags, ", "))
	}
	if v := victimPattern.FindString(transcript); v != "" {
		b.WriteString("; ")
		b.WriteString(strings.ToLower(v))
	}
	if location != "" {
		b.WriteString("; at ")
		b.WriteString(location)
	}
	fmt.Fprintf(&b, "; dispatch %s priority %d", cls.Service.Display(), cls.Priority)

	s := b.String()
	if len(s) > maxSummaryLen {
		s = s[:maxSummaryLen-3] + "..."
	}
	return s
}
