// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/rapid/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/rapid/internal/triage/pgstore")

//go:embed schema.sql
var schema string

const defaultLimit = 50

// Store persists call records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store. The
// pool stays owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const callColumns = `id, call_sid, from_number, to_number, transcript, emergency_type,
	severity_level, severity_score, assigned_service, priority, confidence,
	risk_indicators, location, summary, what_to_say, immediate_actions,
	safety_precautions, danger_question, escalated_response, status,
	assigned_unit, metadata, processing_time_ms, created_at, updated_at`

// UpsertCall inserts or replaces the record keyed by call_sid. The row's ID
// and created_at survive replays of the same call.
func (s *Store) UpsertCall(ctx context.Context, rec *triage.CallRecord) error {
	ctx, span := tracer.Start(ctx, "pgstore.UpsertCall", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	riskJSON, err := json.Marshal(orEmpty(rec.RiskTags))
	if err != nil {
		return fmt.Errorf("marshal risk_indicators: %w", err)
	}
	actionsJSON, err := json.Marshal(orEmpty(rec.ImmediateActions))
	if err != nil {
		return fmt.Errorf("marshal immediate_actions: %w", err)
	}
	precautionsJSON, err := json.Marshal(orEmpty(rec.Precautions))
	if err != nil {
		return fmt.Errorf("marshal safety_precautions: %w", err)
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if rec.Metadata == nil {
		metaJSON = []byte("{}")
	}

	query := `INSERT INTO call_records (` + callColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
	ON CONFLICT (call_sid) DO UPDATE SET
		transcript         = EXCLUDED.transcript,
		emergency_type     = EXCLUDED.emergency_type,
		severity_level     = EXCLUDED.severity_level,
		severity_score     = EXCLUDED.severity_score,
		assigned_service   = EXCLUDED.assigned_service,
		priority           = EXCLUDED.priority,
		confidence         = EXCLUDED.confidence,
		risk_indicators    = EXCLUDED.risk_indicators,
		location           = EXCLUDED.location,
		summary            = EXCLUDED.summary,
		what_to_say        = EXCLUDED.what_to_say,
		immediate_actions  = EXCLUDED.immediate_actions,
		safety_precautions = EXCLUDED.safety_precautions,
		danger_question    = EXCLUDED.danger_question,
		escalated_response = EXCLUDED.escalated_response,
		status             = EXCLUDED.status,
		assigned_unit      = EXCLUDED.assigned_unit,
		metadata           = EXCLUDED.metadata,
		processing_time_ms = EXCLUDED.processing_time_ms,
		updated_at         = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.CallSid, rec.From, rec.To, rec.Transcript, string(rec.Kind),
		string(rec.Severity), rec.SeverityScore, string(rec.Service), rec.Priority, rec.Confidence,
		riskJSON, rec.Location, rec.Summary, rec.Spoken, actionsJSON,
		precautionsJSON, rec.DangerQuestion, rec.EscalatedSpoken, string(rec.Status),
		rec.AssignedUnit, metaJSON, rec.ProcessingMs, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert call: %w", err)
	}
	return nil
}

// GetByCallSid retrieves a call record with its notes.
func (s *Store) GetByCallSid(ctx context.Context, callSid string) (*triage.CallRecord, []triage.Note, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetByCallSid", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + callColumns + ` FROM call_records WHERE call_sid = $1`
	rec, err := scanCallRow(s.pool.QueryRow(ctx, query, callSid))
	if err != nil {
		if errors.Is(err, triage.ErrNotFound) {
			return nil, nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	notes, err := s.loadNotes(ctx, callSid)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	return rec, notes, nil
}

// ListRecent returns matching records newest-first plus the total match count.
func (s *Store) ListRecent(ctx context.Context, opts triage.ListOptions) ([]triage.CallRecord, int, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListRecent", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if opts.Status != "" {
		add("status = $%d", string(opts.Status))
	}
	if opts.Kind != "" {
		add("emergency_type = $%d", string(opts.Kind))
	}
	if opts.Severity != "" {
		add("severity_level = $%d", string(opts.Severity))
	}
	if !opts.From.IsZero() {
		add("created_at >= $%d", opts.From)
	}
	if !opts.To.IsZero() {
		add("created_at <= $%d", opts.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM call_records`+where, args...).Scan(&total); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	args = append(args, limit, opts.Offset)
	query := fmt.Sprintf(`SELECT `+callColumns+` FROM call_records%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var out []triage.CallRecord
	for rows.Next() {
		rec, err := scanCallRows(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, 0, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("iterate calls: %w", err)
	}
	return out, total, nil
}

// AppendNote attaches an operator note to an existing call.
func (s *Store) AppendNote(ctx context.Context, callSid, text, author string) (*triage.Note, error) {
	ctx, span := tracer.Start(ctx, "pgstore.AppendNote", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	note := triage.Note{CallSid: callSid, Text: text, CreatedBy: author}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO call_notes (call_sid, note, created_by) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		callSid, text, author,
	).Scan(&note.ID, &note.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, triage.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("insert note: %w", err)
	}
	return &note, nil
}

// UpdateStatus transitions a call's lifecycle state and optionally assigns a
// responding unit.
func (s *Store) UpdateStatus(ctx context.Context, callSid string, status triage.CallState, assignedUnit string) (*triage.CallRecord, error) {
	ctx, span := tracer.Start(ctx, "pgstore.UpdateStatus", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	query := `UPDATE call_records SET
		status        = $2,
		assigned_unit = CASE WHEN $3 = '' THEN assigned_unit ELSE $3 END,
		updated_at    = now()
	WHERE call_sid = $1
	RETURNING ` + callColumns

	rec, err := scanCallRow(s.pool.QueryRow(ctx, query, callSid, string(status), assignedUnit))
	if err != nil {
		if errors.Is(err, triage.ErrNotFound) {
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return rec, nil
}

// Analytics aggregates calls created inside the window ending now.
func (s *Store) Analytics(ctx context.Context, window time.Duration) (*triage.AnalyticsReport, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Analytics", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().UTC().Add(-window)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT status, emergency_type, severity_level, processing_time_ms, created_at
		 FROM call_records WHERE created_at >= $1`, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	defer rows.Close()

	report := &triage.AnalyticsReport{
		ByStatus:   make(map[triage.CallState]int),
		ByKind:     make(map[triage.Kind]int),
		BySeverity: make(map[triage.Severity]int),
	}
	var totalMs float64
	for rows.Next() {
		var status, kind, sev string
		var procMs float64
		var createdAt time.Time
		if err := rows.Scan(&status, &kind, &sev, &procMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan analytics row: %w", err)
		}
		report.TotalCalls++
		report.ByStatus[triage.NormalizeStateOr(status, triage.StatePending)]++
		report.ByKind[triage.NormalizeKindOr(kind, triage.KindOther)]++
		report.BySeverity[triage.NormalizeSeverityOr(sev, triage.SeverityModerate)]++
		totalMs += procMs
		report.ByHour[createdAt.UTC().Hour()]++
		report.ByDayOfWeek[int(createdAt.UTC().Weekday())]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics: %w", err)
	}
	if report.TotalCalls > 0 {
		report.AvgProcessingSeconds = totalMs / float64(report.TotalCalls) / 1000
	}
	return report, nil
}

func (s *Store) loadNotes(ctx context.Context, callSid string) ([]triage.Note, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, call_sid, note, created_by, created_at
		 FROM call_notes WHERE call_sid = $1 ORDER BY id`, callSid)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []triage.Note
	for rows.Next() {
		var n triage.Note
		if err := rows.Scan(&n.ID, &n.CallSid, &n.Text, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// scanCallRow scans a single row into a CallRecord. Enum columns go through
// the tolerant normalizers so legacy spellings in old rows still load.
func scanCallRow(row pgx.Row) (*triage.CallRecord, error) {
	var (
		rec             triage.CallRecord
		kind, sev       string
		svc, status     string
		riskJSON        []byte
		actionsJSON     []byte
		precautionsJSON []byte
		metaJSON        []byte
	)
	err := row.Scan(
		&rec.ID, &rec.CallSid, &rec.From, &rec.To, &rec.Transcript, &kind,
		&sev, &rec.SeverityScore, &svc, &rec.Priority, &rec.Confidence,
		&riskJSON, &rec.Location, &rec.Summary, &rec.Spoken, &actionsJSON,
		&precautionsJSON, &rec.DangerQuestion, &rec.EscalatedSpoken, &status,
		&rec.AssignedUnit, &metaJSON, &rec.ProcessingMs, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, triage.ErrNotFound
		}
		return nil, fmt.Errorf("scan call: %w", err)
	}

	rec.Kind = triage.NormalizeKindOr(kind, triage.KindOther)
	rec.Severity = triage.NormalizeSeverityOr(sev, triage.SeverityModerate)
	rec.Service = triage.NormalizeServiceOr(svc, triage.ServicePolice)
	rec.Status = triage.NormalizeStateOr(status, triage.StatePending)

	if err := json.Unmarshal(riskJSON, &rec.RiskTags); err != nil {
		return nil, fmt.Errorf("unmarshal risk_indicators: %w", err)
	}
	if err := json.Unmarshal(actionsJSON, &rec.ImmediateActions); err != nil {
		return nil, fmt.Errorf("unmarshal immediate_actions: %w", err)
	}
	if err := json.Unmarshal(precautionsJSON, &rec.Precautions); err != nil {
		return nil, fmt.Errorf("unmarshal safety_precautions: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &rec, nil
}

func scanCallRows(rows pgx.Rows) (*triage.CallRecord, error) {
	return scanCallRow(rows)
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	// 23503 is foreign_key_violation.
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
