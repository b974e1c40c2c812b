package triage

import "strings"

// LexiconVersion identifies the keyword table revision. Bump it whenever
// entries or weights change so stored outcomes can be traced to the rules
// that produced them.
const LexiconVersion = 3

// Entry is one row of the keyword lexicon. CategoryWeight scores the phrase
// toward its Kind during classification (0 means severity-only); SeverityWeight
// contributes to the severity score on every match regardless of the winning
// kind. HighSeverity forces the final severity score to at least the critical
// threshold. Phrases are pre-normalized: lowercase, single-spaced.
type Entry struct {
	Phrase         string
	Kind           Kind
	CategoryWeight int
	SeverityWeight int
	RiskTag        string
	HighSeverity   bool
}

// Lexicon is the static keyword table. It is read-only after init; matching
// never touches I/O.
var Lexicon = []Entry{
	// Fire
	{Phrase: "fire", Kind: KindFire, CategoryWeight: 3, SeverityWeight: 30},
	{Phrase: "massive fire", Kind: KindFire, CategoryWeight: 4, SeverityWeight: 45, HighSeverity: true},
	{Phrase: "building on fire", Kind: KindFire, CategoryWeight: 4, SeverityWeight: 75, HighSeverity: true},
	{Phrase: "house fire", Kind: KindFire, CategoryWeight: 4, SeverityWeight: 60},
	{Phrase: "fire spreading", Kind: KindFire, CategoryWeight: 3, SeverityWeight: 80, HighSeverity: true},
	{Phrase: "burning", Kind: KindFire, CategoryWeight: 2, SeverityWeight: 25},
	{Phrase: "smoke", Kind: KindFire, CategoryWeight: 2, SeverityWeight: 20},
	{Phrase: "flames", Kind: KindFire, CategoryWeight: 3, SeverityWeight: 30},
	{Phrase: "explosion", Kind: KindFire, CategoryWeight: 3, SeverityWeight: 70, HighSeverity: true},
	{Phrase: "gas leak", Kind: KindFire, CategoryWeight: 3, SeverityWeight: 50, RiskTag: "gas leak"},
	{Phrase: "caught fire", Kind: KindFire, CategoryWeight: 3, SeverityWeight: 35},

	// Medical
	{Phrase: "heart attack", Kind: KindMedical, CategoryWeight: 4, SeverityWeight: 65},
	{Phrase: "cardiac arrest", Kind: KindMedical, CategoryWeight: 4, SeverityWeight: 80, HighSeverity: true},
	{Phrase: "stroke", Kind: KindMedical, CategoryWeight: 4, SeverityWeight: 60},
	{Phrase: "chest pain", Kind: KindMedical, CategoryWeight: 4, SeverityWeight: 40},
	{Phrase: "not breathing", Kind: KindMedical, CategoryWeight: 4, SeverityWeight: 80, HighSeverity: true},
	{Phrase: "stopped breathing", Kind: KindMedical, CategoryWeight: 4, SeverityWeight: 80, HighSeverity: true},
	{Phrase: "can't breathe", Kind: KindMedical, CategoryWeight: 3, SeverityWeight: 75, HighSeverity: true},
	{Phrase: "difficulty breathing", Kind: KindMedical, CategoryWeight: 3, SeverityWeight: 60},
	{Phrase: "unconscious", Kind: KindMedical, CategoryWeight: 3, SeverityWeight: 60},
	{Phrase: "passed out", Kind: KindMedical, CategoryWeight: 2, SeverityWeight: 55},
	{Phrase: "collapsed", Kind: KindMedical, CategoryWeight: 2, SeverityWeight: 50},
	{Phrase: "seizure", Kind: KindMedical, CategoryWeight: 3, SeverityWeight: 45},
	{Phrase: "bleeding", Kind: KindMedical, CategoryWeight: 2, SeverityWeight: 25},
	{Phrase: "bleeding heavily", Kind: KindMedical, CategoryWeight: 3, SeverityWeight: 50},
	{Phrase: "severe bleeding", Kind: KindMedical, CategoryWeight: 3, SeverityWeight: 50},
	{Phrase: "overdose", Kind: KindMedical, CategoryWeight: 3, SeverityWeight: 55},
	{Phrase: "allergic reaction", Kind: KindMedical, CategoryWeight: 3, SeverityWeight: 40},
	{Phrase: "broken bone", Kind: KindMedical, CategoryWeight: 2, SeverityWeight: 35},
	{Phrase: "ambulance", Kind: KindMedical, CategoryWeight: 2, SeverityWeight: 15},
	{Phrase: "burn", Kind: KindMedical, CategoryWeight: 1, SeverityWeight: 30},
	{Phrase: "wound", Kind: KindMedical, CategoryWeight: 1, SeverityWeight: 25},
	{Phrase: "injury", Kind: KindMedical, CategoryWeight: 1, SeverityWeight: 25},
	{Phrase: "pain", Kind: KindMedical, CategoryWeight: 1, SeverityWeight: 20},
	{Phrase: "hurt", Kind: KindMedical, CategoryWeight: 1, SeverityWeight: 20},

	// Police
	{Phrase: "shooting", Kind: KindPolice, CategoryWeight: 4, SeverityWeight: 70, HighSeverity: true},
	{Phrase: "gunshot", Kind: KindPolice, CategoryWeight: 4, SeverityWeight: 70, HighSeverity: true},
	{Phrase: "gun", Kind: KindPolice, CategoryWeight: 3, SeverityWeight: 60, HighSeverity: true},
	{Phrase: "knife", Kind: KindPolice, CategoryWeight: 3, SeverityWeight: 45},
	{Phrase: "weapon", Kind: KindPolice, CategoryWeight: 3, SeverityWeight: 50},
	{Phrase: "robbery", Kind: KindPolice, CategoryWeight: 3, SeverityWeight: 40},
	{Phrase: "break in", Kind: KindPolice, CategoryWeight: 3, SeverityWeight: 40},
	{Phrase: "intruder", Kind: KindPolice, CategoryWeight: 3, SeverityWeight: 45},
	{Phrase: "assault", Kind: KindPolice, CategoryWeight: 3, SeverityWeight: 40},
	{Phrase: "attack", Kind: KindPolice, CategoryWeight: 2, SeverityWeight: 35},
	{Phrase: "violence", Kind: KindPolice, CategoryWeight: 2, SeverityWeight: 35},
	{Phrase: "domestic violence", Kind: KindPolice, CategoryWeight: 3, SeverityWeight: 45},
	{Phrase: "kidnapping", Kind: KindPolice, CategoryWeight: 4, SeverityWeight: 65, HighSeverity: true},
	{Phrase: "stolen", Kind: KindPolice, CategoryWeight: 2, SeverityWeight: 20},
	{Phrase: "theft", Kind: KindPolice, CategoryWeight: 2, SeverityWeight: 20},
	{Phrase: "police", Kind: KindPolice, CategoryWeight: 2, SeverityWeight: 15},

	// Accident
	{Phrase: "accident", Kind: KindAccident, CategoryWeight: 3, SeverityWeight: 40},
	{Phrase: "crash", Kind: KindAccident, CategoryWeight: 3, SeverityWeight: 40},
	{Phrase: "car crash", Kind: KindAccident, CategoryWeight: 4, SeverityWeight: 50},
	{Phrase: "collision", Kind: KindAccident, CategoryWeight: 3, SeverityWeight: 45},
	{Phrase: "hit and run", Kind: KindAccident, CategoryWeight: 4, SeverityWeight: 50},
	{Phrase: "pileup", Kind: KindAccident, CategoryWeight: 3, SeverityWeight: 55},
	{Phrase: "overturned", Kind: KindAccident, CategoryWeight: 2, SeverityWeight: 45},
	{Phrase: "highway", Kind: KindAccident, CategoryWeight: 2, SeverityWeight: 20},
	{Phrase: "trapped", Kind: KindAccident, CategoryWeight: 1, SeverityWeight: 55, HighSeverity: true},
	{Phrase: "building collapse", Kind: KindAccident, CategoryWeight: 3, SeverityWeight: 70, HighSeverity: true},
	{Phrase: "fell", Kind: KindAccident, CategoryWeight: 1, SeverityWeight: 25},
	{Phrase: "fall from height", Kind: KindAccident, CategoryWeight: 2, SeverityWeight: 50},

	// Mental health
	{Phrase: "suicide", Kind: KindMentalHealth, CategoryWeight: 4, SeverityWeight: 60, HighSeverity: true},
	{Phrase: "kill myself", Kind: KindMentalHealth, CategoryWeight: 4, SeverityWeight: 65, HighSeverity: true},
	{Phrase: "harm myself", Kind: KindMentalHealth, CategoryWeight: 4, SeverityWeight: 60, HighSeverity: true},
	{Phrase: "self harm", Kind: KindMentalHealth, CategoryWeight: 3, SeverityWeight: 50},
	{Phrase: "panic attack", Kind: KindMentalHealth, CategoryWeight: 3, SeverityWeight: 35},
	{Phrase: "depressed", Kind: KindMentalHealth, CategoryWeight: 2, SeverityWeight: 30},
	{Phrase: "mental health", Kind: KindMentalHealth, CategoryWeight: 3, SeverityWeight: 25},
	{Phrase: "breakdown", Kind: KindMentalHealth, CategoryWeight: 2, SeverityWeight: 30},
	{Phrase: "overwhelmed", Kind: KindMentalHealth, CategoryWeight: 1, SeverityWeight: 25},
	{Phrase: "crisis", Kind: KindMentalHealth, CategoryWeight: 2, SeverityWeight: 35},

	// Panic cues: severity only, no category evidence.
	{Phrase: "help", Kind: KindOther, CategoryWeight: 0, SeverityWeight: 20},
	{Phrase: "emergency", Kind: KindOther, CategoryWeight: 0, SeverityWeight: 25},
	{Phrase: "urgent", Kind: KindOther, CategoryWeight: 0, SeverityWeight: 20},
	{Phrase: "immediately", Kind: KindOther, CategoryWeight: 0, SeverityWeight: 20},
	{Phrase: "please help", Kind: KindOther, CategoryWeight: 0, SeverityWeight: 25},
	{Phrase: "dying", Kind: KindOther, CategoryWeight: 0, SeverityWeight: 50},
}

// phraseTokens caches the tokenized form of every lexicon phrase.
var phraseTokens = func() [][]string {
	out := make([][]string, len(Lexicon))
	for i, e := range Lexicon {
		out[i] = tokenize(e.Phrase)
	}
	return out
}()

// LexiconMatch is one matched lexicon entry with its occurrence count.
type LexiconMatch struct {
	Entry *Entry
	Count int
}

// tokenize lowercases s and splits it into word tokens. Apostrophes inside a
// word are kept so "can't" stays one token; all other punctuation separates.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '\'' && b.Len() > 0:
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// matchLexicon returns every lexicon entry that occurs in the token stream,
// in lexicon order, with whole-word multi-occurrence counting.
func matchLexicon(tokens []string) []LexiconMatch {
	var matches []LexiconMatch
	for i := range Lexicon {
		pt := phraseTokens[i]
		n := countOccurrences(tokens, pt)
		if n > 0 {
			matches = append(matches, LexiconMatch{Entry: &Lexicon[i], Count: n})
		}
	}
	return matches
}

// countOccurrences counts how many times the phrase token sequence appears
// in tokens. Occurrences may overlap a longer phrase but not each other.
func countOccurrences(tokens, phrase []string) int {
	if len(phrase) == 0 || len(tokens) < len(phrase) {
		return 0
	}
	count := 0
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		hit := true
		for j, p := range phrase {
			if tokens[i+j] != p {
				hit = false
				break
			}
		}
		if hit {
			count++
			i += len(phrase) - 1
		}
	}
	return count
}
