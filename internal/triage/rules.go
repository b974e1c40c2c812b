package triage

// ruleResult is the partial classification the keyword rules produce. Routing
// and response synthesis fill in the rest.
type ruleResult struct {
	Kind          Kind
	Severity      Severity
	SeverityScore float64
	Confidence    float64
	RiskTags      []string
}

// kindModifier scales the raw severity sum by the winning kind. Fire and
// medical calls trend more time-critical than the raw keyword sum captures.
var kindModifier = map[Kind]float64{
	KindFire:         1.3,
	KindMedical:      1.2,
	KindAccident:     1.15,
	KindPolice:       1.1,
	KindMentalHealth: 1.0,
	KindOther:        0.8,
}

// classifyRule scores a transcript against the lexicon. Pure function: no
// I/O, no clock, deterministic for a given transcript and threshold table.
func classifyRule(transcript string, th Thresholds) ruleResult {
	tokens := tokenize(transcript)
	matches := matchLexicon(tokens)

	kindScores := make(map[Kind]int, len(Kinds))
	total := 0
	rawSeverity := 0.0
	highSeverity := false
	var tags []string
	seen := make(map[string]bool)

	for _, m := range matches {
		e := m.Entry
		if e.CategoryWeight > 0 {
			w := e.CategoryWeight * m.Count
			kindScores[e.Kind] += w
			total += w
		}
		rawSeverity += float64(e.SeverityWeight * m.Count)
		if e.HighSeverity {
			highSeverity = true
		}
		tag := e.RiskTag
		if tag == "" {
			tag = e.Phrase
		}
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	// Earlier kinds win ties, so iterate the fixed order with strict >.
	kind := KindOther
	best := 0
	for _, k := range Kinds {
		if kindScores[k] > best {
			best = kindScores[k]
			kind = k
		}
	}

	conf := 0.3
	if total > 0 && best > 0 {
		conf = float64(best) / float64(total)
		if conf < 0.3 {
			conf = 0.3
		}
	}

	score := rawSeverity * kindModifier[kind]
	if highSeverity && score < th.Critical {
		score = th.Critical
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return ruleResult{
		Kind:          kind,
		Severity:      th.Level(score),
		SeverityScore: score,
		Confidence:    conf,
		RiskTags:      tags,
	}
}
