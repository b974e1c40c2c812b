package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockChat returns canned raw model output in sequence.
type mockChat struct {
	mu      sync.Mutex
	outputs [][]byte
	errs    []error
	calls   int
}

func (m *mockChat) ChatJSON(_ context.Context, _, _ string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	m.calls++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.outputs) {
		return m.outputs[idx], nil
	}
	return nil, errors.New("mock exhausted")
}

func TestLLMClassify(t *testing.T) {
	t.Parallel()

	chat := &mockChat{outputs: [][]byte{[]byte(`{
		"emergency_type": "FIRE",
		"severity_level": "LEVEL_1",
		"severity_score": 92,
		"confidence": 0.9,
		"assigned_service": "FIRE_DEPARTMENT",
		"priority": 1,
		"summary": "structure fire with entrapment",
		"risk_indicators": ["fire", "trapped"],
		"location": "123 Main Street"
	}`)}}

	c := NewLLMClassifier(chat, DefaultThresholds, time.Second)
	got, err := c.Classify(context.Background(), "there is a fire")
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}

	if got.Kind != KindFire {
		t.Errorf("kind = %q, want %q", got.Kind, KindFire)
	}
	if got.Severity != SeverityCritical {
		t.Errorf("severity = %q, want %q", got.Severity, SeverityCritical)
	}
	if got.SeverityScore != 92 {
		t.Errorf("score = %g, want 92", got.SeverityScore)
	}
	if got.Service != ServiceFireDepartment || got.Priority != 1 {
		t.Errorf("routing = (%q, %d), want (FIRE_DEPARTMENT, 1)", got.Service, got.Priority)
	}
	if got.Location != "123 Main Street" {
		t.Errorf("location = %q, want 123 Main Street", got.Location)
	}
}

func TestLLMClassifyRetriesOnce(t *testing.T) {
	t.Parallel()

	chat := &mockChat{
		errs: []error{errors.New("connection refused"), nil},
		outputs: [][]byte{nil, []byte(`{
			"emergency_type": "MEDICAL",
			"severity_score": 70,
			"confidence": 0.8
		}`)},
	}
	c := NewLLMClassifier(chat, DefaultThresholds, time.Second)
	got, err := c.Classify(context.Background(), "chest pain")
	if err != nil {
		t.Fatalf("Classify error after retry: %v", err)
	}
	if got.Kind != KindMedical {
		t.Errorf("kind = %q, want %q", got.Kind, KindMedical)
	}
	if chat.calls != 2 {
		t.Errorf("chat calls = %d, want 2", chat.calls)
	}
}

func TestLLMClassifyExhaustsRetries(t *testing.T) {
	t.Parallel()

	chat := &mockChat{errs: []error{errors.New("down"), errors.New("down")}}
	c := NewLLMClassifier(chat, DefaultThresholds, time.Second)
	if _, err := c.Classify(context.Background(), "fire"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if chat.calls != 2 {
		t.Errorf("chat calls = %d, want 2", chat.calls)
	}
}

func TestLLMClassifyBadJSON(t *testing.T) {
	t.Parallel()

	chat := &mockChat{outputs: [][]byte{
		[]byte("not json"),
		[]byte("still not json"),
	}}
	c := NewLLMClassifier(chat, DefaultThresholds, time.Second)
	if _, err := c.Classify(context.Background(), "fire"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLLMCoerce(t *testing.T) {
	t.Parallel()

	c := NewLLMClassifier(&mockChat{}, DefaultThresholds, time.Second)

	t.Run("level without score gets representative score", func(t *testing.T) {
		t.Parallel()
		got := c.coerce(llmWire{EmergencyType: "FIRE", SeverityLevel: "LEVEL_1"})
		if got.SeverityScore < DefaultThresholds.Critical {
			t.Errorf("score = %g, want >= critical threshold", got.SeverityScore)
		}
		if got.Severity != SeverityCritical {
			t.Errorf("severity = %q, want %q", got.Severity, SeverityCritical)
		}
	})

	t.Run("score overrides disagreeing level", func(t *testing.T) {
		t.Parallel()
		got := c.coerce(llmWire{EmergencyType: "MEDICAL", SeverityLevel: "LEVEL_4", SeverityScore: 85})
		if got.Severity != SeverityCritical {
			t.Errorf("severity = %q, want score-derived %q", got.Severity, SeverityCritical)
		}
	})

	t.Run("unknown enums coerce to defaults", func(t *testing.T) {
		t.Parallel()
		got := c.coerce(llmWire{EmergencyType: "ALIEN_INVASION", AssignedService: "SPACE_FORCE", SeverityScore: 50, Priority: 42})
		if got.Kind != KindOther {
			t.Errorf("kind = %q, want %q", got.Kind, KindOther)
		}
		wantSvc, wantPrio := Route(KindOther, SeverityModerate)
		if got.Service != wantSvc {
			t.Errorf("service = %q, want table default %q", got.Service, wantSvc)
		}
		if got.Priority != wantPrio {
			t.Errorf("priority = %d, want table default %d", got.Priority, wantPrio)
		}
	})

	t.Run("score and confidence clamped", func(t *testing.T) {
		t.Parallel()
		got := c.coerce(llmWire{EmergencyType: "FIRE", SeverityScore: 500, Confidence: 7})
		if got.SeverityScore != 100 {
			t.Errorf("score = %g, want 100", got.SeverityScore)
		}
		if got.Confidence != 1 {
			t.Errorf("confidence = %g, want 1", got.Confidence)
		}
	})
}
