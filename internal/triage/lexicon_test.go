package triage

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"There's a FIRE!", []string{"there's", "a", "fire"}},
		{"my son can't breathe", []string{"my", "son", "can't", "breathe"}},
		{"multi-car crash, I-95", []string{"multi", "car", "crash", "i", "95"}},
		{"", nil},
		{"   ", nil},
	}
	for _, tc := range cases {
		if got := tokenize(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCountOccurrences(t *testing.T) {
	t.Parallel()

	tokens := tokenize("fire fire everywhere, the fire is spreading")
	if got := countOccurrences(tokens, []string{"fire"}); got != 3 {
		t.Errorf("fire count = %d, want 3", got)
	}
	if got := countOccurrences(tokens, []string{"fire", "is"}); got != 1 {
		t.Errorf("phrase count = %d, want 1", got)
	}
	if got := countOccurrences(tokens, []string{"flood"}); got != 0 {
		t.Errorf("flood count = %d, want 0", got)
	}
}

func TestCountOccurrencesWholeWord(t *testing.T) {
	t.Parallel()

	// "gunshot" must not count as "gun".
	tokens := tokenize("I heard something about firefighters")
	if got := countOccurrences(tokens, []string{"fire"}); got != 0 {
		t.Errorf("substring matched as whole word: count = %d, want 0", got)
	}
}

func TestMatchLexicon(t *testing.T) {
	t.Parallel()

	matches := matchLexicon(tokenize("there is a massive fire and people are trapped"))

	found := make(map[string]int)
	for _, m := range matches {
		found[m.Entry.Phrase] = m.Count
	}
	for _, phrase := range []string{"fire", "massive fire", "trapped"} {
		if found[phrase] != 1 {
			t.Errorf("phrase %q count = %d, want 1", phrase, found[phrase])
		}
	}
	if _, ok := found["smoke"]; ok {
		t.Error("unexpected match for smoke")
	}
}

func TestLexiconPhrasesNormalized(t *testing.T) {
	t.Parallel()

	for _, e := range Lexicon {
		toks := tokenize(e.Phrase)
		if len(toks) == 0 {
			t.Errorf("phrase %q tokenizes to nothing", e.Phrase)
		}
		if e.CategoryWeight < 0 || e.SeverityWeight <= 0 {
			t.Errorf("phrase %q has weights (%d, %d), want non-negative category and positive severity",
				e.Phrase, e.CategoryWeight, e.SeverityWeight)
		}
		if e.CategoryWeight > 0 && e.Kind == "" {
			t.Errorf("phrase %q has category weight but no kind", e.Phrase)
		}
	}
}
