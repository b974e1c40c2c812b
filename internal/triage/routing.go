package triage

// routeEntry pairs the responder service for a kind with its base dispatch
// priority (1 = most urgent, 10 = least).
type routeEntry struct {
	Service      Service
	BasePriority int
}

var routeTable = map[Kind]routeEntry{
	KindMedical:      {ServiceAmbulance, 2},
	KindFire:         {ServiceFireDepartment, 2},
	KindPolice:       {ServicePolice, 3},
	KindAccident:     {ServiceMultiple, 3},
	KindMentalHealth: {ServiceCrisisResponse, 4},
	KindOther:        {ServicePolice, 5},
}

// severityBoost lowers (tightens) the priority number for urgent calls and
// raises it for low ones.
var severityBoost = map[Severity]int{
	SeverityCritical: 2,
	SeverityHigh:     1,
	SeverityModerate: 0,
	SeverityLow:      -1,
}

// Route maps a classified kind and severity onto the responder service and
// dispatch priority. Critical and high accidents get one extra priority step
// because they usually need more than one service on scene.
func Route(kind Kind, sev Severity) (Service, int) {
	entry, ok := routeTable[kind]
	if !ok {
		entry = routeTable[KindOther]
	}
	p := entry.BasePriority - severityBoost[sev]
	if kind == KindAccident && (sev == SeverityCritical || sev == SeverityHigh) {
		p--
	}
	if p < 1 {
		p = 1
	}
	if p > 10 {
		p = 10
	}
	return entry.Service, p
}
