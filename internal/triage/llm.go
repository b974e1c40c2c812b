package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ChatClient is the slice of an LLM client the classifier needs. The ollama
// package satisfies it.
type ChatClient interface {
	ChatJSON(ctx context.Context, system, user string) ([]byte, error)
}

const llmSystemPrompt = `You are an emergency call triage system. Analyze the caller transcript and respond with a single JSON object, nothing else:
{"emergency_type": "MEDICAL|FIRE|POLICE|ACCIDENT|MENTAL_HEALTH|OTHER",
 "severity_level": "LEVEL_1|LEVEL_2|LEVEL_3|LEVEL_4",
 "severity_score": 0-100,
 "confidence": 0.0-1.0,
 "assigned_service": "AMBULANCE|FIRE_DEPARTMENT|POLICE|CRISIS_RESPONSE|MULTIPLE_SERVICES",
 "priority": 1-10,
 "summary": "one sentence",
 "risk_indicators": ["..."],
 "location": "street address if stated, else empty"}
LEVEL_1 is life-threatening, LEVEL_4 is routine. Priority 1 is most urgent.`

// llmWire is the JSON object the model is asked to emit. Every field is
// treated as untrusted and coerced before use.
type llmWire struct {
	EmergencyType   string   `json:"emergency_type"`
	SeverityLevel   string   `json:"severity_level"`
	SeverityScore   float64  `json:"severity_score"`
	Confidence      float64  `json:"confidence"`
	AssignedService string   `json:"assigned_service"`
	Priority        int      `json:"priority"`
	Summary         string   `json:"summary"`
	RiskIndicators  []string `json:"risk_indicators"`
	Location        string   `json:"location"`
}

// LLMClassifier classifies transcripts with a local model in JSON mode.
type LLMClassifier struct {
	client     ChatClient
	thresholds Thresholds
	timeout    time.Duration
}

// NewLLMClassifier wires a chat client into the classifier. timeout bounds
// each model call; one retry is attempted inside that same budget's worth of
// time per attempt.
func NewLLMClassifier(client ChatClient, th Thresholds, timeout time.Duration) *LLMClassifier {
	if th == (Thresholds{}) {
		th = DefaultThresholds
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &LLMClassifier{client: client, thresholds: th, timeout: timeout}
}

func (c *LLMClassifier) Name() string { return "llm" }

func (c *LLMClassifier) Classify(ctx context.Context, transcript string) (Classification, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		out, err := c.classifyOnce(ctx, transcript)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return Classification{}, fmt.Errorf("llm classify: %w", lastErr)
}

func (c *LLMClassifier) classifyOnce(ctx context.Context, transcript string) (Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.ChatJSON(ctx, llmSystemPrompt, transcript)
	if err != nil {
		return Classification{}, err
	}

	var wire llmWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Classification{}, fmt.Errorf("parse model output: %w", err)
	}

	return c.coerce(wire), nil
}

// coerce maps untrusted model output onto the closed model. The severity
// score is the source of truth; the level is recomputed from it so the two
// can never disagree downstream.
func (c *LLMClassifier) coerce(w llmWire) Classification {
	kind := NormalizeKindOr(w.EmergencyType, KindOther)

	score := w.SeverityScore
	if score <= 0 {
		// Model gave a level without a score; use a representative value.
		switch NormalizeSeverityOr(w.SeverityLevel, SeverityModerate) {
		case SeverityCritical:
			score = 85
		case SeverityHigh:
			score = 70
		case SeverityModerate:
			score = 50
		default:
			score = 20
		}
	}
	if score > 100 {
		score = 100
	}
	sev := c.thresholds.Level(score)

	defSvc, defPri := Route(kind, sev)
	svc := NormalizeServiceOr(w.AssignedService, defSvc)
	pri := w.Priority
	if pri < 1 || pri > 10 {
		pri = defPri
	}

	conf := w.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return Classification{
		Kind:          kind,
		Severity:      sev,
		SeverityScore: score,
		Service:       svc,
		Priority:      pri,
		Confidence:    conf,
		RiskTags:      w.RiskIndicators,
		Location:      w.Location,
		Summary:       w.Summary,
	}
}
