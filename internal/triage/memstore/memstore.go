// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/rapid/internal/triage"
)

const defaultLimit = 50

// Store holds call records in memory. Suitable for dev/testing; semantics
// mirror the PostgreSQL store.
type Store struct {
	mu      sync.RWMutex
	calls   map[string]*triage.CallRecord // call_sid -> record
	notes   map[string][]triage.Note      // call_sid -> notes, append order
	noteSeq int
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		calls: make(map[string]*triage.CallRecord),
		notes: make(map[string][]triage.Note),
	}
}

// UpsertCall inserts or replaces the record keyed by call_sid. The original
// ID and creation time survive replays.
func (s *Store) UpsertCall(_ context.Context, rec *triage.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	if prev, ok := s.calls[rec.CallSid]; ok {
		cp.ID = prev.ID
		cp.CreatedAt = prev.CreatedAt
	} else if cp.ID == "" {
		cp.ID = ulid.Make().String()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.calls[rec.CallSid] = &cp
	rec.ID = cp.ID
	return nil
}

// GetByCallSid returns a copy of the record and its notes.
func (s *Store) GetByCallSid(_ context.Context, callSid string) (*triage.CallRecord, []triage.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.calls[callSid]
	if !ok {
		return nil, nil, triage.ErrNotFound
	}
	cp := *rec
	notes := make([]triage.Note, len(s.notes[callSid]))
	copy(notes, s.notes[callSid])
	return &cp, notes, nil
}

// ListRecent returns matching records newest-first plus the total match
// count for pagination.
func (s *Store) ListRecent(_ context.Context, opts triage.ListOptions) ([]triage.CallRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []triage.CallRecord
	for _, rec := range s.calls {
		if !matches(rec, opts) {
			continue
		}
		all = append(all, *rec)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if opts.Offset >= total {
		return nil, total, nil
	}
	all = all[opts.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func matches(rec *triage.CallRecord, opts triage.ListOptions) bool {
	if opts.Status != "" && rec.Status != opts.Status {
		return false
	}
	if opts.Kind != "" && rec.Kind != opts.Kind {
		return false
	}
	if opts.Severity != "" && rec.Severity != opts.Severity {
		return false
	}
	if !opts.From.IsZero() && rec.CreatedAt.Before(opts.From) {
		return false
	}
	if !opts.To.IsZero() && rec.CreatedAt.After(opts.To) {
		return false
	}
	return true
}

// AppendNote attaches an operator note to an existing call.
func (s *Store) AppendNote(_ context.Context, callSid, text, author string) (*triage.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[callSid]; !ok {
		return nil, triage.ErrNotFound
	}
	s.noteSeq++
	note := triage.Note{
		ID:        s.noteSeq,
		CallSid:   callSid,
		Text:      text,
		CreatedBy: author,
		CreatedAt: time.Now().UTC(),
	}
	s.notes[callSid] = append(s.notes[callSid], note)
	return &note, nil
}

// UpdateStatus transitions a call's lifecycle state and optionally assigns a
// responding unit. Returns a copy of the updated record.
func (s *Store) UpdateStatus(_ context.Context, callSid string, status triage.CallState, assignedUnit string) (*triage.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.calls[callSid]
	if !ok {
		return nil, triage.ErrNotFound
	}
	rec.Status = status
	if assignedUnit != "" {
		rec.AssignedUnit = assignedUnit
	}
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	return &cp, nil
}

// Analytics aggregates calls created inside the window ending now.
func (s *Store) Analytics(_ context.Context, window time.Duration) (*triage.AnalyticsReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-window)
	report := &triage.AnalyticsReport{
		ByStatus:   make(map[triage.CallState]int),
		ByKind:     make(map[triage.Kind]int),
		BySeverity: make(map[triage.Severity]int),
	}
	var totalMs float64
	for _, rec := range s.calls {
		if window > 0 && rec.CreatedAt.Before(cutoff) {
			continue
		}
		report.TotalCalls++
		report.ByStatus[rec.Status]++
		report.ByKind[rec.Kind]++
		report.BySeverity[rec.Severity]++
		totalMs += rec.ProcessingMs
		hour := rec.CreatedAt.UTC().Hour()
		report.ByHour[hour]++
		report.ByDayOfWeek[int(rec.CreatedAt.UTC().Weekday())]++
	}
	if report.TotalCalls > 0 {
		report.AvgProcessingSeconds = totalMs / float64(report.TotalCalls) / 1000
	}
	return report, nil
}
