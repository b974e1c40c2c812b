package triage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownEnum is returned by the strict Normalize* functions when a value
// cannot be mapped onto the closed set. Write paths must treat it as fatal;
// read paths use the *Or variants instead.
var ErrUnknownEnum = errors.New("unknown enum value")

// Kind classifies what sort of emergency a call reports.
type Kind string

const (
	KindMedical      Kind = "MEDICAL"
	KindFire         Kind = "FIRE"
	KindPolice       Kind = "POLICE"
	KindAccident     Kind = "ACCIDENT"
	KindMentalHealth Kind = "MENTAL_HEALTH"
	KindOther        Kind = "OTHER"
)

// Kinds lists every kind in fixed tie-break priority order:
// when rule scores tie, the earlier kind wins.
var Kinds = []Kind{KindFire, KindMedical, KindPolice, KindAccident, KindMentalHealth, KindOther}

// Display returns the single human-facing form of the kind.
func (k Kind) Display() string {
	switch k {
	case KindMedical:
		return "Medical"
	case KindFire:
		return "Fire"
	case KindPolice:
		return "Police"
	case KindAccident:
		return "Accident"
	case KindMentalHealth:
		return "Mental Health"
	default:
		return "Other"
	}
}

// Severity is the urgency of a call, ordered ascending: LEVEL_4 (low)
// through LEVEL_1 (critical).
type Severity string

const (
	SeverityCritical Severity = "LEVEL_1"
	SeverityHigh     Severity = "LEVEL_2"
	SeverityModerate Severity = "LEVEL_3"
	SeverityLow      Severity = "LEVEL_4"
)

// Display returns the single human-facing form of the severity.
func (s Severity) Display() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityHigh:
		return "High"
	case SeverityModerate:
		return "Moderate"
	default:
		return "Low"
	}
}

// Rank returns the numeric level (1 = critical .. 4 = low). Used for
// monotonic-escalation comparisons: lower rank means more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityModerate:
		return 3
	default:
		return 4
	}
}

// Thresholds maps a severity score in [0,100] onto a level. Scores at or
// above Critical map to LEVEL_1, at or above High to LEVEL_2, at or above
// Moderate to LEVEL_3, everything else to LEVEL_4.
type Thresholds struct {
	Critical float64
	High     float64
	Moderate float64
}

// DefaultThresholds is the production threshold table (80/60/40).
var DefaultThresholds = Thresholds{Critical: 80, High: 60, Moderate: 40}

// Level buckets a severity score.
func (t Thresholds) Level(score float64) Severity {
	switch {
	case score >= t.Critical:
		return SeverityCritical
	case score >= t.High:
		return SeverityHigh
	case score >= t.Moderate:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

// SeverityForScore buckets a score under the default thresholds.
func SeverityForScore(score float64) Severity {
	return DefaultThresholds.Level(score)
}

// Service identifies which responder service handles a call.
type Service string

const (
	ServiceAmbulance      Service = "AMBULANCE"
	ServiceFireDepartment Service = "FIRE_DEPARTMENT"
	ServicePolice         Service = "POLICE"
	ServiceCrisisResponse Service = "CRISIS_RESPONSE"
	// ServiceMultiple means "dispatch ambulance plus the kind-primary
	// service" as a single routing tag.
	ServiceMultiple Service = "MULTIPLE_SERVICES"
)

// Display returns the single human-facing form of the service.
func (s Service) Display() string {
	switch s {
	case ServiceAmbulance:
		return "Ambulance"
	case ServiceFireDepartment:
		return "Fire Department"
	case ServicePolice:
		return "Police"
	case ServiceCrisisResponse:
		return "Crisis Response Team"
	case ServiceMultiple:
		return "Emergency Services"
	default:
		return string(s)
	}
}

// CallState tracks where a call is in its lifecycle.
type CallState string

const (
	StatePending          CallState = "PENDING"
	StateInProgress       CallState = "IN_PROGRESS"
	StateAwaitingFollowup CallState = "AWAITING_FOLLOWUP"
	StateEscalated        CallState = "ESCALATED"
	StateCompleted        CallState = "COMPLETED"
	StateDispatched       CallState = "DISPATCHED"
	StateResolved         CallState = "RESOLVED"
	StateCancelled        CallState = "CANCELLED"
	StateError            CallState = "ERROR"
)

// Terminal reports whether the state ends a call's lifecycle.
func (s CallState) Terminal() bool {
	switch s {
	case StateCompleted, StateResolved, StateCancelled, StateError:
		return true
	default:
		return false
	}
}

// canon uppercases, trims, and rewrites spaces and hyphens to underscores
// so that "Level 1", "level_1" and "LEVEL_1" all compare equal.
func canon(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

// compact additionally strips underscores, catching legacy spellings like
// "Level1" and "FireDepartment".
func compact(s string) string {
	return strings.ReplaceAll(canon(s), "_", "")
}

func normalize[T ~string](s string, canonical []T, aliases map[string]T) (T, error) {
	c := canon(s)
	for _, v := range canonical {
		if c == string(v) {
			return v, nil
		}
	}
	if v, ok := aliases[c]; ok {
		return v, nil
	}
	// Last resort: underscore-free comparison for legacy rows.
	cc := compact(s)
	for _, v := range canonical {
		if cc == strings.ReplaceAll(string(v), "_", "") {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: %q", ErrUnknownEnum, s)
}

var kindAliases = map[string]Kind{
	"CRIME":   KindPolice,
	"UNKNOWN": KindOther,
	"GENERAL": KindOther,
}

var severityAliases = map[string]Severity{
	"CRITICAL": SeverityCritical,
	"HIGH":     SeverityHigh,
	"MODERATE": SeverityModerate,
	"MEDIUM":   SeverityModerate,
	"LOW":      SeverityLow,
}

var serviceAliases = map[string]Service{
	"MULTIPLE":             ServiceMultiple,
	"EMERGENCY_SERVICES":   ServiceMultiple,
	"CRISIS_RESPONSE_TEAM": ServiceCrisisResponse,
	"FIRE":                 ServiceFireDepartment,
}

var stateAliases = map[string]CallState{
	"COMPLETE":  StateCompleted,
	"FAILED":    StateError,
	"NO_ANSWER": StateCancelled,
	"BUSY":      StateCancelled,
}

var allServices = []Service{ServiceAmbulance, ServiceFireDepartment, ServicePolice, ServiceCrisisResponse, ServiceMultiple}

var allStates = []CallState{
	StatePending, StateInProgress, StateAwaitingFollowup, StateEscalated,
	StateCompleted, StateDispatched, StateResolved, StateCancelled, StateError,
}

var allSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityModerate, SeverityLow}

// NormalizeKind maps an untrusted string onto the closed Kind set.
func NormalizeKind(s string) (Kind, error) {
	return normalize(s, Kinds, kindAliases)
}

// NormalizeKindOr is the read-tolerant form: unknown values coerce to def.
func NormalizeKindOr(s string, def Kind) Kind {
	k, err := NormalizeKind(s)
	if err != nil {
		return def
	}
	return k
}

// NormalizeSeverity maps an untrusted string onto the closed Severity set.
func NormalizeSeverity(s string) (Severity, error) {
	return normalize(s, allSeverities, severityAliases)
}

// NormalizeSeverityOr is the read-tolerant form: unknown values coerce to def.
func NormalizeSeverityOr(s string, def Severity) Severity {
	v, err := NormalizeSeverity(s)
	if err != nil {
		return def
	}
	return v
}

// NormalizeService maps an untrusted string onto the closed Service set.
func NormalizeService(s string) (Service, error) {
	return normalize(s, allServices, serviceAliases)
}

// NormalizeServiceOr is the read-tolerant form: unknown values coerce to def.
func NormalizeServiceOr(s string, def Service) Service {
	v, err := NormalizeService(s)
	if err != nil {
		return def
	}
	return v
}

// NormalizeState maps an untrusted string onto the closed CallState set.
func NormalizeState(s string) (CallState, error) {
	return normalize(s, allStates, stateAliases)
}

// NormalizeStateOr is the read-tolerant form: unknown values coerce to def.
func NormalizeStateOr(s string, def CallState) CallState {
	v, err := NormalizeState(s)
	if err != nil {
		return def
	}
	return v
}

// Outcome is the unit produced by one pass through the triage pipeline.
type Outcome struct {
	Transcript       string    `json:"transcript"`
	Kind             Kind      `json:"emergency_type"`
	Severity         Severity  `json:"severity_level"`
	SeverityScore    float64   `json:"severity_score"`
	Service          Service   `json:"assigned_service"`
	Priority         int       `json:"priority"`
	Confidence       float64   `json:"confidence"`
	RiskTags         []string  `json:"risk_indicators,omitempty"`
	Location         string    `json:"location,omitempty"`
	Summary          string    `json:"summary"`
	Spoken           string    `json:"what_to_say"`
	ImmediateActions []string  `json:"immediate_actions,omitempty"`
	Precautions      []string  `json:"safety_precautions,omitempty"`
	DangerQuestion   string    `json:"danger_question,omitempty"`
	EscalatedSpoken  string    `json:"escalated_response,omitempty"`
	ProcessingMs     float64   `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// CallRecord is the persisted entity, one per distinct provider call.
type CallRecord struct {
	ID      string `json:"id"`
	CallSid string `json:"call_sid"`
	From    string `json:"from_number,omitempty"`
	To      string `json:"to_number,omitempty"`

	Outcome

	Status       CallState         `json:"status"`
	AssignedUnit string            `json:"assigned_unit,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at,omitempty"`
}

// Note is a free-form operator annotation attached to a call record.
type Note struct {
	ID        int       `json:"id"`
	CallSid   string    `json:"call_sid"`
	Text      string    `json:"note"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks CallRecord invariants before a write. Severity must be the
// bucket of SeverityScore under the active threshold table, the service must
// be set, and priority must stay inside [1,10]. A zero th means the default
// table.
func (r *CallRecord) Validate(th Thresholds) error {
	if th == (Thresholds{}) {
		th = DefaultThresholds
	}
	var errs []error
	if r.CallSid == "" {
		errs = append(errs, errors.New("call_sid is required"))
	}
	if got := th.Level(r.SeverityScore); got != r.Severity {
		errs = append(errs, fmt.Errorf("severity %s inconsistent with score %.1f (bucket %s)", r.Severity, r.SeverityScore, got))
	}
	if r.Service == "" {
		errs = append(errs, errors.New("assigned_service is required"))
	}
	if r.Priority < 1 || r.Priority > 10 {
		errs = append(errs, fmt.Errorf("priority %d outside [1,10]", r.Priority))
	}
	return errors.Join(errs...)
}

// Repair clamps a record back inside its invariants in place, bucketing the
// severity under the same threshold table Validate checked. Write paths use
// it when Validate fails in production: clamp and log rather than drop the
// call.
func (r *CallRecord) Repair(th Thresholds) {
	if th == (Thresholds{}) {
		th = DefaultThresholds
	}
	if r.SeverityScore < 0 {
		r.SeverityScore = 0
	}
	if r.SeverityScore > 100 {
		r.SeverityScore = 100
	}
	r.Severity = th.Level(r.SeverityScore)
	if r.Service == "" {
		r.Service = ServicePolice
	}
	if r.Priority < 1 {
		r.Priority = 1
	}
	if r.Priority > 10 {
		r.Priority = 10
	}
}
