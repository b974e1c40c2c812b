package triage

import "testing"

func TestRoute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind     Kind
		sev      Severity
		wantSvc  Service
		wantPrio int
	}{
		{KindMedical, SeverityCritical, ServiceAmbulance, 1},
		{KindMedical, SeverityHigh, ServiceAmbulance, 1},
		{KindMedical, SeverityModerate, ServiceAmbulance, 2},
		{KindMedical, SeverityLow, ServiceAmbulance, 3},
		{KindFire, SeverityCritical, ServiceFireDepartment, 1},
		{KindFire, SeverityLow, ServiceFireDepartment, 3},
		{KindPolice, SeverityCritical, ServicePolice, 1},
		{KindPolice, SeverityModerate, ServicePolice, 3},
		{KindAccident, SeverityCritical, ServiceMultiple, 1},
		{KindAccident, SeverityHigh, ServiceMultiple, 1},
		{KindAccident, SeverityModerate, ServiceMultiple, 3},
		{KindMentalHealth, SeverityCritical, ServiceCrisisResponse, 2},
		{KindMentalHealth, SeverityLow, ServiceCrisisResponse, 5},
		{KindOther, SeverityCritical, ServicePolice, 3},
		{KindOther, SeverityLow, ServicePolice, 6},
	}

	for _, tc := range cases {
		svc, prio := Route(tc.kind, tc.sev)
		if svc != tc.wantSvc {
			t.Errorf("Route(%s, %s) service = %q, want %q", tc.kind, tc.sev, svc, tc.wantSvc)
		}
		if prio != tc.wantPrio {
			t.Errorf("Route(%s, %s) priority = %d, want %d", tc.kind, tc.sev, prio, tc.wantPrio)
		}
	}
}

func TestRouteUnknownKindFallsBack(t *testing.T) {
	t.Parallel()

	svc, prio := Route(Kind("BOGUS"), SeverityModerate)
	wantSvc, wantPrio := Route(KindOther, SeverityModerate)
	if svc != wantSvc || prio != wantPrio {
		t.Errorf("Route(BOGUS) = (%q, %d), want (%q, %d)", svc, prio, wantSvc, wantPrio)
	}
}

func TestRoutePriorityBounds(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds {
		for _, s := range []Severity{SeverityCritical, SeverityHigh, SeverityModerate, SeverityLow} {
			_, p := Route(k, s)
			if p < 1 || p > 10 {
				t.Errorf("Route(%s, %s) priority %d outside [1,10]", k, s, p)
			}
		}
	}
}
