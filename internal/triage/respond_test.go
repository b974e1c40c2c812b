package triage

import (
	"strings"
	"testing"
)

func TestRespondUrgentVsRoutine(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds {
		urgent := Respond(k, SeverityCritical)
		if !strings.HasPrefix(urgent.Spoken, "Help is coming!") {
			t.Errorf("%s critical response should open with dispatch confirmation, got %q", k, urgent.Spoken)
		}
		high := Respond(k, SeverityHigh)
		if high.Spoken != urgent.Spoken {
			t.Errorf("%s high response should match the critical script", k)
		}
		routine := Respond(k, SeverityModerate)
		if routine.Spoken == urgent.Spoken {
			t.Errorf("%s moderate response should use the calmer variant", k)
		}
	}
}

func TestRespondNamesService(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind Kind
		want string
	}{
		{KindFire, "Fire department"},
		{KindMedical, "Ambulance"},
		{KindPolice, "Police"},
		{KindMentalHealth, "Crisis response team"},
	}
	for _, tc := range cases {
		g := Respond(tc.kind, SeverityCritical)
		if !strings.Contains(g.Spoken, tc.want) {
			t.Errorf("%s urgent response missing %q: %q", tc.kind, tc.want, g.Spoken)
		}
	}
}

func TestRespondAlwaysComplete(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds {
		for _, s := range []Severity{SeverityCritical, SeverityHigh, SeverityModerate, SeverityLow} {
			g := Respond(k, s)
			if g.Spoken == "" {
				t.Errorf("Respond(%s, %s) has empty spoken text", k, s)
			}
			if g.DangerQuestion == "" {
				t.Errorf("Respond(%s, %s) has empty danger question", k, s)
			}
			if g.EscalatedSpoken == "" {
				t.Errorf("Respond(%s, %s) has empty escalated response", k, s)
			}
			if len(g.Actions) == 0 || len(g.Precautions) == 0 {
				t.Errorf("Respond(%s, %s) missing actions or precautions", k, s)
			}
		}
	}
}

func TestRespondUnknownKindFallsBack(t *testing.T) {
	t.Parallel()

	got := Respond(Kind("BOGUS"), SeverityLow)
	want := Respond(KindOther, SeverityLow)
	if got.Spoken != want.Spoken {
		t.Errorf("unknown kind response = %q, want the OTHER response", got.Spoken)
	}
}
