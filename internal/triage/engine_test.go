package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/linnemanlabs/go-core/log"
)

// mockClassifier returns preconfigured results in sequence.
type mockClassifier struct {
	mu      sync.Mutex
	results []Classification
	errs    []error
	callIdx int
}

func (m *mockClassifier) Name() string { return "mock" }

func (m *mockClassifier) Classify(_ context.Context, _ string) (Classification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.callIdx
	m.callIdx++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return Classification{}, m.errs[idx]
	}
	if idx < len(m.results) {
		return m.results[idx], nil
	}
	return Classification{}, errors.New("mock exhausted")
}

func TestProcess_RuleBackend(t *testing.T) {
	t.Parallel()

	e := NewEngine(BackendRule, nil, DefaultThresholds, 0.7, log.Nop(), nil)
	out := e.Process(context.Background(), "there is a massive fire and people are trapped")

	if out.Kind != KindFire {
		t.Errorf("kind = %q, want %q", out.Kind, KindFire)
	}
	if out.Severity != SeverityCritical {
		t.Errorf("severity = %q, want %q", out.Severity, SeverityCritical)
	}
	if out.Service != ServiceFireDepartment {
		t.Errorf("service = %q, want %q", out.Service, ServiceFireDepartment)
	}
	if out.Priority != 1 {
		t.Errorf("priority = %d, want 1", out.Priority)
	}
	if out.Spoken == "" || out.DangerQuestion == "" {
		t.Error("expected spoken guidance and danger question")
	}
	if out.Summary == "" {
		t.Error("expected non-empty summary")
	}
	if out.ProcessingMs < 0 {
		t.Errorf("processing ms = %g, want >= 0", out.ProcessingMs)
	}
	if out.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestProcess_LLMBackend(t *testing.T) {
	t.Parallel()

	llm := &mockClassifier{results: []Classification{{
		Kind:          KindMedical,
		Severity:      SeverityCritical,
		SeverityScore: 90,
		Service:       ServiceAmbulance,
		Priority:      1,
		Confidence:    0.95,
		RiskTags:      []string{"cardiac arrest"},
		Location:      "42 Oak Street",
	}}}
	e := NewEngine(BackendLLM, llm, DefaultThresholds, 0.7, log.Nop(), nil)
	out := e.Process(context.Background(), "my father collapsed")

	if out.Kind != KindMedical {
		t.Errorf("kind = %q, want %q", out.Kind, KindMedical)
	}
	if out.Service != ServiceAmbulance || out.Priority != 1 {
		t.Errorf("routing = (%q, %d), want (AMBULANCE, 1)", out.Service, out.Priority)
	}
	if out.Location != "42 Oak Street" {
		t.Errorf("location = %q, want model-provided location", out.Location)
	}
}

func TestProcess_LowConfidenceRoutingOverride(t *testing.T) {
	t.Parallel()

	// Confident-looking but low-confidence model routing must be replaced by
	// the table route for the classified kind and severity.
	llm := &mockClassifier{results: []Classification{{
		Kind:          KindFire,
		Severity:      SeverityCritical,
		SeverityScore: 90,
		Service:       ServiceCrisisResponse,
		Priority:      9,
		Confidence:    0.4,
	}}}
	e := NewEngine(BackendLLM, llm, DefaultThresholds, 0.7, log.Nop(), nil)
	out := e.Process(context.Background(), "fire")

	wantSvc, wantPrio := Route(KindFire, SeverityCritical)
	if out.Service != wantSvc {
		t.Errorf("service = %q, want table route %q", out.Service, wantSvc)
	}
	if out.Priority != wantPrio {
		t.Errorf("priority = %d, want table route %d", out.Priority, wantPrio)
	}
}

func TestProcess_ZeroMinConfidenceTrustsModel(t *testing.T) {
	t.Parallel()

	// A zero gate means the model's routing always stands, however unsure it
	// is. Only negative values fall back to the default gate.
	llm := &mockClassifier{results: []Classification{{
		Kind:          KindFire,
		Severity:      SeverityCritical,
		SeverityScore: 90,
		Service:       ServiceCrisisResponse,
		Priority:      9,
		Confidence:    0.1,
	}}}
	e := NewEngine(BackendLLM, llm, DefaultThresholds, 0, log.Nop(), nil)
	out := e.Process(context.Background(), "fire")

	if out.Service != ServiceCrisisResponse {
		t.Errorf("service = %q, want the model's %q", out.Service, ServiceCrisisResponse)
	}
	if out.Priority != 9 {
		t.Errorf("priority = %d, want the model's 9", out.Priority)
	}
}

func TestProcess_HybridFallsBackToRules(t *testing.T) {
	t.Parallel()

	llm := &mockClassifier{errs: []error{errors.New("model down"), errors.New("model down")}}
	e := NewEngine(BackendHybrid, llm, DefaultThresholds, 0.7, log.Nop(), nil)
	out := e.Process(context.Background(), "my husband is having chest pain and collapsed")

	if out.Kind != KindMedical {
		t.Errorf("kind = %q, want rule fallback %q", out.Kind, KindMedical)
	}
	if out.Service != ServiceAmbulance {
		t.Errorf("service = %q, want %q", out.Service, ServiceAmbulance)
	}
}

func TestProcess_LLMBackendDegradedSentinel(t *testing.T) {
	t.Parallel()

	llm := &mockClassifier{errs: []error{errors.New("model down")}}
	e := NewEngine(BackendLLM, llm, DefaultThresholds, 0.7, log.Nop(), nil)
	out := e.Process(context.Background(), "anything at all")

	if out.Kind != KindMedical {
		t.Errorf("kind = %q, want degraded default %q", out.Kind, KindMedical)
	}
	if out.Severity != SeverityHigh {
		t.Errorf("severity = %q, want %q", out.Severity, SeverityHigh)
	}
	if out.Service != ServiceAmbulance {
		t.Errorf("service = %q, want %q", out.Service, ServiceAmbulance)
	}
	if !strings.Contains(out.Summary, "manual review") {
		t.Errorf("summary = %q, want the degraded sentinel", out.Summary)
	}
	if out.Spoken == "" {
		t.Error("degraded outcome must still carry spoken guidance")
	}
}

func TestProcess_NilLLMWithHybridUsesRules(t *testing.T) {
	t.Parallel()

	e := NewEngine(BackendHybrid, nil, DefaultThresholds, 0.7, log.Nop(), nil)
	out := e.Process(context.Background(), "someone stole my bike outside")

	if out.Kind != KindPolice && out.Kind != KindOther {
		t.Errorf("kind = %q, want a rule classification", out.Kind)
	}
}

func TestExtractLocation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		transcript string
		want       string
	}{
		{"there is a fire at 123 Main Street", "123 Main Street"},
		{"crash on the Lincoln Highway near the exit", "Lincoln Highway"},
		{"she collapsed at the corner of 5th and Elm", "5th and Elm"},
		{"my husband is having chest pain", ""},
	}
	for _, tc := range cases {
		got := extractLocation(tc.transcript)
		if !strings.EqualFold(got, tc.want) {
			t.Errorf("extractLocation(%q) = %q, want %q", tc.transcript, got, tc.want)
		}
	}
}

func TestBuildSummary(t *testing.T) {
	t.Parallel()

	cls := Classification{
		Kind:     KindFire,
		Severity: SeverityCritical,
		Service:  ServiceFireDepartment,
		Priority: 1,
		RiskTags: []string{"fire", "trapped", "smoke", "explosion"},
	}
	s := buildSummary(cls, "123 Main Street", "my wife is trapped")

	if !strings.HasPrefix(s, "Critical fire emergency") {
		t.Errorf("summary = %q, want severity+kind prefix", s)
	}
	if !strings.Contains(s, "123 Main Street") {
		t.Errorf("summary missing location: %q", s)
	}
	if !strings.Contains(s, "my wife") {
		t.Errorf("summary missing victim mention: %q", s)
	}
	if !strings.Contains(s, "priority 1") {
		t.Errorf("summary missing priority: %q", s)
	}
	if strings.Contains(s, "explosion") {
		t.Errorf("summary should cap risk tags at three: %q", s)
	}
}

func TestBuildSummaryCapped(t *testing.T) {
	t.Parallel()

	cls := Classification{
		Kind:     KindAccident,
		Severity: SeverityCritical,
		Service:  ServiceMultiple,
		Priority: 1,
		RiskTags: []string{
			strings.Repeat("a", 80),
			strings.Repeat("b", 80),
			strings.Repeat("c", 80),
		},
	}
	s := buildSummary(cls, strings.Repeat("x", 120), "")
	if len(s) > maxSummaryLen {
		t.Errorf("summary length = %d, want <= %d", len(s), maxSummaryLen)
	}
	if !strings.HasSuffix(s, "...") {
		t.Errorf("truncated summary should end with ellipsis: %q", s)
	}
}
