package triage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no call record exists for the given key.
var ErrNotFound = errors.New("call record not found")

// ListOptions filters and pages ListRecent. Zero values mean "no filter";
// a zero Limit falls back to the store default.
type ListOptions struct {
	Limit    int
	Offset   int
	Status   CallState
	Kind     Kind
	Severity Severity
	From     time.Time
	To       time.Time
}

// AnalyticsReport aggregates call records over a window.
type AnalyticsReport struct {
	TotalCalls           int               `json:"total_calls"`
	ByStatus             map[CallState]int `json:"calls_by_status"`
	ByKind               map[Kind]int      `json:"calls_by_type"`
	BySeverity           map[Severity]int  `json:"calls_by_severity"`
	AvgProcessingSeconds float64           `json:"average_processing_seconds"`
	ByHour               [24]int           `json:"calls_by_hour"`
	ByDayOfWeek          [7]int            `json:"calls_by_day_of_week"`
}

// Store persists call records and notes. Implementations must be safe for
// concurrent use; UpsertCall is keyed on call_sid so replays converge on one
// row per call.
type Store interface {
	UpsertCall(ctx context.Context, rec *CallRecord) error
	GetByCallSid(ctx context.Context, callSid string) (*CallRecord, []Note, error)
	ListRecent(ctx context.Context, opts ListOptions) ([]CallRecord, int, error)
	AppendNote(ctx context.Context, callSid, text, author string) (*Note, error)
	UpdateStatus(ctx context.Context, callSid string, status CallState, assignedUnit string) (*CallRecord, error)
	Analytics(ctx context.Context, window time.Duration) (*AnalyticsReport, error)
}
