package session

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/rapid/internal/bus"
	"github.com/linnemanlabs/rapid/internal/triage"
	"github.com/linnemanlabs/rapid/internal/triage/memstore"
)

// fakeEngine counts Process calls and returns a fresh copy of a fixed
// outcome. severity/score override the defaults when set.
type fakeEngine struct {
	calls    atomic.Int64
	severity triage.Severity
	score    float64
}

func (f *fakeEngine) Process(_ context.Context, transcript string) *triage.Outcome {
	f.calls.Add(1)
	severity, score := triage.SeverityHigh, 70.0
	if f.severity != "" {
		severity, score = f.severity, f.score
	}
	g := triage.Respond(triage.KindMedical, severity)
	return &triage.Outcome{
		Transcript:      transcript,
		Kind:            triage.KindMedical,
		Severity:        severity,
		SeverityScore:   score,
		Service:         triage.ServiceAmbulance,
		Priority:        1,
		Confidence:      0.9,
		Spoken:          g.Spoken,
		DangerQuestion:  g.DangerQuestion,
		EscalatedSpoken: g.EscalatedSpoken,
		CreatedAt:       time.Now().UTC(),
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeEngine, *memstore.Store) {
	t.Helper()
	engine := &fakeEngine{}
	store := memstore.New()
	m := New(engine, store, nil, log.Nop(), nil, triage.Thresholds{}, time.Minute)
	return m, engine, store
}

// waitForRecord polls the store until the call shows up; persistence is async.
func waitForRecord(t *testing.T, store *memstore.Store, callSid string) *triage.CallRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, _, err := store.GetByCallSid(context.Background(), callSid)
		if err == nil {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("record %s never persisted", callSid)
	return nil
}

func TestHandleUtterance(t *testing.T) {
	t.Parallel()

	m, engine, store := newTestManager(t)
	reply := m.HandleUtterance(context.Background(), "CA1", "+15550100", "+15550911",
		"my husband is having chest pain")

	if !reply.ExpectFollowup {
		t.Error("expected follow-up after triage")
	}
	if reply.Done {
		t.Error("first turn should not end the call")
	}
	if reply.Text == "" {
		t.Error("reply should announce the triage guidance")
	}
	if !strings.Contains(reply.Question, "unconscious or not breathing") {
		t.Errorf("reply should ask the danger question: %q", reply.Question)
	}
	if got := engine.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}

	rec := waitForRecord(t, store, "CA1")
	if rec.Status != triage.StateAwaitingFollowup {
		t.Errorf("persisted status = %q, want %q", rec.Status, triage.StateAwaitingFollowup)
	}
	if rec.From != "+15550100" {
		t.Errorf("from = %q", rec.From)
	}
}

func TestHandleUtteranceDuplicateUsesCache(t *testing.T) {
	t.Parallel()

	m, engine, _ := newTestManager(t)
	ctx := context.Background()
	first := m.HandleUtterance(ctx, "CA1", "", "", "there is a fire here")
	second := m.HandleUtterance(ctx, "CA1", "", "", "there is a fire here")

	if first != second {
		t.Errorf("replayed webhook got a different reply: %+v vs %+v", first, second)
	}
	if got := engine.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1 (replay must not re-triage)", got)
	}
}

func TestHandleUtteranceShortTranscriptReprompts(t *testing.T) {
	t.Parallel()

	m, engine, _ := newTestManager(t)
	ctx := context.Background()

	r1 := m.HandleUtterance(ctx, "CA1", "", "", "uh")
	if r1.Text != repromptText || r1.Done || r1.ExpectFollowup {
		t.Errorf("first short turn = %+v, want reprompt", r1)
	}
	// A provider retry of the same gated utterance returns the cached
	// reprompt without consuming another retry.
	replay := m.HandleUtterance(ctx, "CA1", "", "", "uh")
	if replay != r1 {
		t.Errorf("replayed short turn = %+v, want cached reprompt", replay)
	}

	r2 := m.HandleUtterance(ctx, "CA1", "", "", "um")
	if r2.Text != repromptText {
		t.Errorf("second short turn = %+v, want reprompt", r2)
	}
	if got := engine.calls.Load(); got != 0 {
		t.Errorf("engine calls = %d, want 0 before retries exhausted", got)
	}

	// Retries exhausted: the short transcript goes to the engine anyway.
	r3 := m.HandleUtterance(ctx, "CA1", "", "", "ah")
	if !r3.ExpectFollowup {
		t.Errorf("post-retry turn = %+v, want triage result", r3)
	}
	if got := engine.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}
}

func TestHandleFollowupYesEscalates(t *testing.T) {
	t.Parallel()

	m, _, store := newTestManager(t)
	ctx := context.Background()

	m.HandleUtterance(ctx, "CA1", "", "", "my husband is having chest pain")
	reply := m.HandleFollowup(ctx, "CA1", "yes he is not responding")

	if !reply.Done {
		t.Error("escalated follow-up should end the exchange")
	}
	if !strings.Contains(reply.Text, "Priority increased to critical") {
		t.Errorf("reply = %q, want the escalated script", reply.Text)
	}

	rec := waitForRecord(t, store, "CA1")
	deadline := time.Now().Add(2 * time.Second)
	for rec.Status != triage.StateEscalated && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		rec = waitForRecord(t, store, "CA1")
	}
	if rec.Status != triage.StateEscalated {
		t.Fatalf("status = %q, want %q", rec.Status, triage.StateEscalated)
	}
	if rec.Severity != triage.SeverityCritical {
		t.Errorf("severity = %q, want %q", rec.Severity, triage.SeverityCritical)
	}
	if rec.SeverityScore < triage.DefaultThresholds.Critical {
		t.Errorf("score = %g, want >= %g", rec.SeverityScore, triage.DefaultThresholds.Critical)
	}
	if rec.Priority != 1 {
		t.Errorf("priority = %d, want 1", rec.Priority)
	}
}

func TestCustomThresholdsRespectedOnPersistAndEscalate(t *testing.T) {
	t.Parallel()

	// Under a raised table {95, 85, 40}, a score of 72 is LEVEL_3.
	th := triage.Thresholds{Critical: 95, High: 85, Moderate: 40}
	engine := &fakeEngine{severity: triage.SeverityModerate, score: 72}
	store := memstore.New()
	m := New(engine, store, nil, log.Nop(), nil, th, time.Minute)
	ctx := context.Background()

	m.HandleUtterance(ctx, "CA1", "", "", "my father just had a stroke")

	rec := waitForRecord(t, store, "CA1")
	if rec.Severity != triage.SeverityModerate {
		t.Errorf("severity = %q, want %q (default-table repair must not fire)",
			rec.Severity, triage.SeverityModerate)
	}
	if rec.SeverityScore != 72 {
		t.Errorf("score = %g, want 72", rec.SeverityScore)
	}

	m.HandleFollowup(ctx, "CA1", "yes")

	deadline := time.Now().Add(2 * time.Second)
	for rec.SeverityScore < th.Critical && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		rec = waitForRecord(t, store, "CA1")
	}
	if rec.Severity != triage.SeverityCritical {
		t.Errorf("escalated severity = %q, want %q", rec.Severity, triage.SeverityCritical)
	}
	if rec.SeverityScore < th.Critical {
		t.Errorf("escalated score = %g, want >= %g", rec.SeverityScore, th.Critical)
	}
}

func TestHandleFollowupNoCompletes(t *testing.T) {
	t.Parallel()

	m, _, store := newTestManager(t)
	ctx := context.Background()

	m.HandleUtterance(ctx, "CA1", "", "", "my husband is having chest pain")
	reply := m.HandleFollowup(ctx, "CA1", "no everything is fine now")

	if !reply.Done {
		t.Error("resolved follow-up should end the exchange")
	}
	if reply.Text != completedAck {
		t.Errorf("reply = %q, want completion acknowledgment", reply.Text)
	}

	rec := waitForRecord(t, store, "CA1")
	deadline := time.Now().Add(2 * time.Second)
	for rec.Status != triage.StateCompleted && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		rec = waitForRecord(t, store, "CA1")
	}
	if rec.Status != triage.StateCompleted {
		t.Errorf("status = %q, want %q", rec.Status, triage.StateCompleted)
	}
}

func TestHandleFollowupUnclearReasksThenCompletes(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	ctx := context.Background()

	m.HandleUtterance(ctx, "CA1", "", "", "my husband is having chest pain")

	r1 := m.HandleFollowup(ctx, "CA1", "what do you mean")
	if r1.Done || !r1.ExpectFollowup || !strings.HasPrefix(r1.Question, reaskPrefix) {
		t.Errorf("first unclear = %+v, want re-ask", r1)
	}
	r2 := m.HandleFollowup(ctx, "CA1", "I am not sure")
	if !r2.ExpectFollowup {
		t.Errorf("second unclear = %+v, want re-ask", r2)
	}
	r3 := m.HandleFollowup(ctx, "CA1", "hmm maybe")
	if !r3.Done || r3.Text != completedAck {
		t.Errorf("third unclear = %+v, want completion", r3)
	}
}

func TestHandleFollowupWithoutFirstTurn(t *testing.T) {
	t.Parallel()

	m, engine, _ := newTestManager(t)
	reply := m.HandleFollowup(context.Background(), "CA1", "there is a fire in my kitchen")

	// A follow-up with no prior triage is treated as a first turn.
	if !reply.ExpectFollowup {
		t.Errorf("reply = %+v, want triage with follow-up", reply)
	}
	if got := engine.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}
}

func TestEndCallEvicts(t *testing.T) {
	t.Parallel()

	m, _, store := newTestManager(t)
	ctx := context.Background()

	m.HandleUtterance(ctx, "CA1", "", "", "my husband is having chest pain")
	if m.Active() != 1 {
		t.Fatalf("active = %d, want 1", m.Active())
	}

	m.EndCall(ctx, "CA1", triage.StateCompleted)
	if m.Active() != 0 {
		t.Errorf("active = %d, want 0 after EndCall", m.Active())
	}

	rec := waitForRecord(t, store, "CA1")
	deadline := time.Now().Add(2 * time.Second)
	for rec.Status != triage.StateCompleted && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		rec = waitForRecord(t, store, "CA1")
	}
	if rec.Status != triage.StateCompleted {
		t.Errorf("status = %q, want %q", rec.Status, triage.StateCompleted)
	}
}

func TestEndCallKeepsEscalatedState(t *testing.T) {
	t.Parallel()

	m, _, store := newTestManager(t)
	ctx := context.Background()

	m.HandleUtterance(ctx, "CA1", "", "", "my husband is having chest pain")
	m.HandleFollowup(ctx, "CA1", "yes")
	m.EndCall(ctx, "CA1", triage.StateCancelled)

	rec := waitForRecord(t, store, "CA1")
	deadline := time.Now().Add(2 * time.Second)
	for rec.Status != triage.StateEscalated && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		rec = waitForRecord(t, store, "CA1")
	}
	if rec.Status != triage.StateEscalated {
		t.Errorf("status = %q, escalation must survive the hangup", rec.Status)
	}
}

func TestEndCallUnknownSidIsNoop(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	m.EndCall(context.Background(), "CA404", triage.StateCompleted)
}

func TestSweepEvictsIdleAndTerminal(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	store := memstore.New()
	m := New(engine, store, nil, log.Nop(), nil, triage.Thresholds{}, 50*time.Millisecond)
	ctx := context.Background()

	m.HandleUtterance(ctx, "CA-idle", "", "", "my husband is having chest pain")
	m.HandleUtterance(ctx, "CA-done", "", "", "my husband is having chest pain")
	m.HandleFollowup(ctx, "CA-done", "no")

	time.Sleep(80 * time.Millisecond)
	m.sweep(ctx)

	if m.Active() != 0 {
		t.Errorf("active = %d, want 0 after sweep", m.Active())
	}
}

func TestBroadcastTopics(t *testing.T) {
	t.Parallel()

	hub := bus.New()
	defer hub.Close()
	ch, unsub := hub.Subscribe()
	defer unsub()

	engine := &fakeEngine{}
	store := memstore.New()
	m := New(engine, store, hub, log.Nop(), nil, triage.Thresholds{}, time.Minute)

	m.HandleUtterance(context.Background(), "CA1", "", "", "my husband is having chest pain")

	topics := make(map[string]bool)
	deadline := time.After(2 * time.Second)
	for !(topics[bus.TopicNewCall] && topics[bus.TopicStatsUpdate]) {
		select {
		case ev := <-ch:
			topics[ev.Topic] = true
		case <-deadline:
			t.Fatalf("topics seen: %v, want new_call and stats_update", topics)
		}
	}
}

func TestTooShort(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"hi", true},
		{"help", true},
		{"fire here", false},
		{"   padded   words   ", false},
		{"singleword", true},
	}
	for _, tc := range cases {
		if got := tooShort(tc.in); got != tc.want {
			t.Errorf("tooShort(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseYesNo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want answer
	}{
		{"yes", answerYes},
		{"Yeah, he is!", answerYes},
		{"affirmative", answerYes},
		{"no", answerNo},
		{"Nope.", answerNo},
		{"everything is fine", answerNo},
		{"no... actually yes", answerYes},
		{"I don't know", answerUnclear},
		{"", answerUnclear},
	}
	for _, tc := range cases {
		if got := parseYesNo(tc.in); got != tc.want {
			t.Errorf("parseYesNo(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
