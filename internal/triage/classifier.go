package triage

import "context"

// Classification is what a backend produces for one transcript. The engine
// treats it as advisory: routing fields are only honored above the
// configured confidence floor.
type Classification struct {
	Kind          Kind
	Severity      Severity
	SeverityScore float64
	Service       Service
	Priority      int
	Confidence    float64
	RiskTags      []string
	Location      string
	Summary       string
	Degraded      bool
}

// Classifier turns a transcript into a classification. Implementations must
// honor the context deadline; the engine maps errors onto its fallback
// chain, so a failed backend should return the error rather than guess.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, transcript string) (Classification, error)
}

// RuleClassifier is the deterministic keyword backend. It never fails and
// never blocks.
type RuleClassifier struct {
	Thresholds Thresholds
}

func (c RuleClassifier) Name() string { return "rule" }

func (c RuleClassifier) Classify(_ context.Context, transcript string) (Classification, error) {
	th := c.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds
	}
	r := classifyRule(transcript, th)
	svc, pri := Route(r.Kind, r.Severity)
	return Classification{
		Kind:          r.Kind,
		Severity:      r.Severity,
		SeverityScore: r.SeverityScore,
		Service:       svc,
		Priority:      pri,
		Confidence:    r.Confidence,
		RiskTags:      r.RiskTags,
	}, nil
}

// Degraded is the sentinel classification used when every backend failed.
// It deliberately over-triages: an ambulance review beats a dropped call.
func Degraded() Classification {
	return Classification{
		Kind:          KindMedical,
		Severity:      SeverityHigh,
		SeverityScore: 60,
		Service:       ServiceAmbulance,
		Priority:      8,
		Confidence:    0.3,
		RiskTags:      []string{"system_error"},
		Summary:       "System error - escalating to manual review",
		Degraded:      true,
	}
}
