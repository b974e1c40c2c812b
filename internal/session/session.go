// Package session tracks per-call conversation state between webhook turns.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/rapid/internal/bus"
	"github.com/linnemanlabs/rapid/internal/triage"
)

const (
	defaultTTL  = 10 * time.Minute
	maxRetries  = 2
	maxReasks   = 2
	statsWindow = 24 * time.Hour

	repromptText = "I'm sorry, I didn't catch that. Please describe your emergency."
	reaskPrefix  = "I need a yes or no answer. "
	completedAck = "Understood. Help is on the way. We will end the call now. Stay safe."
)

// Processor is the slice of the triage engine the manager needs.
type Processor interface {
	Process(ctx context.Context, transcript string) *triage.Outcome
}

// Reply is what the telephony layer speaks back for one turn. Text is the
// announcement spoken first; Question is the prompt the caller answers, spoken
// inside the speech gather.
type Reply struct {
	Text           string
	Question       string
	ExpectFollowup bool
	Done           bool
}

// conversation is the mutable state for one call. Its mutex serializes all
// turns for that call; the manager map mutex is never held across a turn.
type conversation struct {
	mu sync.Mutex

	callSid  string
	from     string
	to       string
	recordID string

	state   triage.CallState
	outcome *triage.Outcome
	retries int
	reasks  int

	lastTranscript string
	lastReply      Reply
	lastActive     time.Time
}

// Manager owns conversation lifecycles: utterance gating, triage dispatch,
// follow-up escalation, async persistence and broadcast, TTL eviction.
type Manager struct {
	engine     Processor
	store      triage.Store
	hub        *bus.Hub
	logger     log.Logger
	metrics    *triage.Metrics
	thresholds triage.Thresholds
	ttl        time.Duration

	mu    sync.Mutex
	convs map[string]*conversation
}

// New creates a Manager. hub and metrics may be nil; a zero thresholds table
// uses the defaults; ttl <= 0 uses the default of ten minutes.
func New(engine Processor, store triage.Store, hub *bus.Hub, logger log.Logger, metrics *triage.Metrics, thresholds triage.Thresholds, ttl time.Duration) *Manager {
	if thresholds == (triage.Thresholds{}) {
		thresholds = triage.DefaultThresholds
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Manager{
		engine:     engine,
		store:      store,
		hub:        hub,
		logger:     logger,
		metrics:    metrics,
		thresholds: thresholds,
		ttl:        ttl,
		convs:      make(map[string]*conversation),
	}
}

// get returns the conversation for callSid, creating it if needed.
func (m *Manager) get(callSid, from, to string) *conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.convs[callSid]
	if !ok {
		c = &conversation{
			callSid:    callSid,
			from:       from,
			to:         to,
			recordID:   ulid.Make().String(),
			state:      triage.StatePending,
			lastActive: time.Now(),
		}
		m.convs[callSid] = c
		if m.metrics != nil {
			m.metrics.SessionsActive.Set(float64(len(m.convs)))
		}
	}
	if from != "" {
		c.from = from
	}
	if to != "" {
		c.to = to
	}
	return c
}

// HandleUtterance processes a first-turn transcript: gate, triage, respond.
// Replaying the same transcript for the same call returns the cached reply
// without re-triaging.
func (m *Manager) HandleUtterance(ctx context.Context, callSid, from, to, transcript string) Reply {
	c := m.get(callSid, from, to)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActive = time.Now()

	L := m.logger.With("call_sid", callSid)

	// Provider retries deliver the same speech result again. Gated replays
	// return the cached re-prompt too, without burning another retry.
	if transcript != "" && transcript == c.lastTranscript && c.lastReply != (Reply{}) {
		L.Info(ctx, "duplicate utterance, returning cached reply")
		return c.lastReply
	}

	if tooShort(transcript) && c.retries < maxRetries {
		c.retries++
		L.Info(ctx, "utterance below minimum, re-prompting", "attempt", c.retries)
		reply := Reply{Text: repromptText, ExpectFollowup: false}
		c.lastTranscript = transcript
		c.lastReply = reply
		return reply
	}

	out := m.engine.Process(ctx, transcript)
	c.outcome = out
	m.setState(c, triage.StateAwaitingFollowup)

	reply := Reply{
		Text:           out.Spoken,
		Question:       out.DangerQuestion,
		ExpectFollowup: true,
	}
	c.lastTranscript = transcript
	c.lastReply = reply

	rec := c.toRecord()
	go m.persistAndBroadcast(context.WithoutCancel(ctx), rec, bus.TopicNewCall)

	return reply
}

// HandleFollowup processes the caller's answer to the danger question.
func (m *Manager) HandleFollowup(ctx context.Context, callSid, transcript string) Reply {
	c := m.get(callSid, "", "")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActive = time.Now()

	L := m.logger.With("call_sid", callSid)

	if c.outcome == nil {
		// Follow-up webhook without a processed first turn; treat it as one.
		c.mu.Unlock()
		reply := m.HandleUtterance(ctx, callSid, "", "", transcript)
		c.mu.Lock()
		return reply
	}

	if transcript != "" && transcript == c.lastTranscript {
		L.Info(ctx, "duplicate follow-up, returning cached reply")
		return c.lastReply
	}

	var reply Reply
	switch parseYesNo(transcript) {
	case answerYes:
		m.escalate(ctx, c, L)
		reply = Reply{Text: c.outcome.EscalatedSpoken, Done: true}

	case answerNo:
		if c.state != triage.StateEscalated {
			m.setState(c, triage.StateCompleted)
		}
		L.Info(ctx, "conversation completed", "state", c.state)
		reply = Reply{Text: completedAck, Done: true}

	default:
		if c.reasks < maxReasks {
			c.reasks++
			L.Info(ctx, "unclear follow-up, re-asking", "attempt", c.reasks)
			reply = Reply{Question: reaskPrefix + c.outcome.DangerQuestion, ExpectFollowup: true}
		} else {
			if c.state != triage.StateEscalated {
				m.setState(c, triage.StateCompleted)
			}
			L.Info(ctx, "follow-up never resolved, completing call")
			reply = Reply{Text: completedAck, Done: true}
		}
	}

	c.lastTranscript = transcript
	c.lastReply = reply

	rec := c.toRecord()
	go m.persistAndBroadcast(context.WithoutCancel(ctx), rec, bus.TopicCallUpdate)

	return reply
}

// EndCall handles a terminal provider status callback. The session is
// persisted one last time and evicted.
func (m *Manager) EndCall(ctx context.Context, callSid string, status triage.CallState) {
	m.mu.Lock()
	c, ok := m.convs[callSid]
	m.mu.Unlock()
	if !ok {
		return
	}

	c.mu.Lock()
	// Escalated and completed calls keep their outcome state; everything
	// else inherits the provider's terminal status.
	if !c.state.Terminal() && c.state != triage.StateEscalated {
		m.setState(c, status)
	}
	rec := c.toRecord()
	hasOutcome := c.outcome != nil
	c.mu.Unlock()

	if hasOutcome {
		go m.persistAndBroadcast(context.WithoutCancel(ctx), rec, bus.TopicCallUpdate)
	}
	m.evict(callSid)
	m.logger.Info(ctx, "call ended", "call_sid", callSid, "status", status)
}

// escalate raises the conversation to critical. Escalation is monotonic:
// a later "no" never lowers it again.
func (m *Manager) escalate(ctx context.Context, c *conversation, L log.Logger) {
	out := c.outcome
	if out.Severity.Rank() > triage.SeverityCritical.Rank() {
		out.Severity = triage.SeverityCritical
		if out.SeverityScore < m.thresholds.Critical {
			out.SeverityScore = m.thresholds.Critical
		}
	}
	out.Priority = 1
	out.Spoken = out.EscalatedSpoken
	m.setState(c, triage.StateEscalated)
	if m.metrics != nil {
		m.metrics.EscalationsTotal.Inc()
	}
	L.Info(ctx, "severity escalated to critical",
		"severity", out.Severity, "score", out.SeverityScore)
}

// setState transitions the conversation and counts it. Caller holds c.mu.
func (m *Manager) setState(c *conversation, s triage.CallState) {
	if c.state == s {
		return
	}
	c.state = s
	if m.metrics != nil {
		m.metrics.TransitionsTotal.WithLabelValues(string(s)).Inc()
	}
}

// toRecord snapshots the conversation as a persistable record. Caller holds
// c.mu.
func (c *conversation) toRecord() *triage.CallRecord {
	rec := &triage.CallRecord{
		ID:        c.recordID,
		CallSid:   c.callSid,
		From:      c.from,
		To:        c.to,
		Status:    c.state,
		UpdatedAt: time.Now().UTC(),
	}
	if c.outcome != nil {
		rec.Outcome = *c.outcome
	}
	return rec
}

// persistAndBroadcast writes the record and publishes it. Runs detached from
// the request: the caller already has its reply, so failures here are logged
// and retried, never surfaced to the caller.
func (m *Manager) persistAndBroadcast(ctx context.Context, rec *triage.CallRecord, topic string) {
	L := m.logger.With("call_sid", rec.CallSid)

	if err := rec.Validate(m.thresholds); err != nil {
		L.Warn(ctx, "record failed validation, repairing", "error", err)
		rec.Repair(m.thresholds)
	}

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(200 * time.Millisecond << (attempt - 1))
		}
		if err = m.store.UpsertCall(ctx, rec); err == nil {
			break
		}
	}
	if m.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.metrics.StoreWritesTotal.WithLabelValues("upsert_call", result).Inc()
	}
	if err != nil {
		L.Error(ctx, err, "failed to persist call record")
	}

	if m.hub == nil {
		return
	}
	switch topic {
	case bus.TopicNewCall:
		m.hub.Publish(bus.TopicNewCall, rec)
	case bus.TopicCallUpdate:
		m.hub.Publish(bus.TopicCallUpdate, map[string]any{
			"call_sid":      rec.CallSid,
			"status":        rec.Status,
			"assigned_unit": rec.AssignedUnit,
			"updated_at":    rec.UpdatedAt,
		})
	}

	if stats, err := m.store.Analytics(ctx, statsWindow); err == nil {
		m.hub.Publish(bus.TopicStatsUpdate, stats)
	} else {
		L.Warn(ctx, "stats broadcast skipped", "error", err)
	}
}

func (m *Manager) evict(callSid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, callSid)
	if m.metrics != nil {
		m.metrics.SessionsActive.Set(float64(len(m.convs)))
	}
}

// Active reports the number of tracked conversations.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.convs)
}

// RunSweeper evicts idle and terminal conversations until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var stale []string
	for sid, c := range m.convs {
		c.mu.Lock()
		idle := now.Sub(c.lastActive)
		terminal := c.state.Terminal()
		c.mu.Unlock()
		if terminal || idle > m.ttl {
			stale = append(stale, sid)
		}
	}
	for _, sid := range stale {
		delete(m.convs, sid)
	}
	if m.metrics != nil {
		m.metrics.SessionsActive.Set(float64(len(m.convs)))
	}
	m.mu.Unlock()

	if len(stale) > 0 {
		m.logger.Info(ctx, "swept conversations", "count", len(stale))
	}
}

// tooShort gates transcripts with no usable content.
func tooShort(transcript string) bool {
	t := strings.TrimSpace(transcript)
	return len(t) < 5 || len(strings.Fields(t)) < 2
}

type answer int

const (
	answerUnclear answer = iota
	answerYes
	answerNo
)

var yesWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "true": true,
	"correct": true, "affirmative": true,
}

var noWords = map[string]bool{
	"no": true, "nope": true, "fine": true, "false": true, "negative": true,
}

// parseYesNo scans the answer word by word. Yes wins when both appear, since
// over-escalating beats under-escalating.
func parseYesNo(transcript string) answer {
	sawNo := false
	for _, w := range strings.Fields(strings.ToLower(transcript)) {
		w = strings.Trim(w, ".,!?")
		if yesWords[w] {
			return answerYes
		}
		if noWords[w] {
			sawNo = true
		}
	}
	if sawNo {
		return answerNo
	}
	return answerUnclear
}
