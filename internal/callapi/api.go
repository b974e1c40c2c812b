// Package callapi exposes the telephony webhook surface and the dispatcher
// JSON API.
package callapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/rapid/internal/bus"
	"github.com/linnemanlabs/rapid/internal/session"
	"github.com/linnemanlabs/rapid/internal/triage"
)

// SessionManager defines the conversation operations the webhook surface needs.
type SessionManager interface {
	HandleUtterance(ctx context.Context, callSid, from, to, transcript string) session.Reply
	HandleFollowup(ctx context.Context, callSid, transcript string) session.Reply
	EndCall(ctx context.Context, callSid string, status triage.CallState)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger        log.Logger
	sessions      SessionManager
	store         triage.Store
	hub           *bus.Hub
	speechTimeout int
	httpTimeout   time.Duration
}

// New creates the API handler. hub may be nil when broadcasting is disabled.
func New(logger log.Logger, sessions SessionManager, store triage.Store, hub *bus.Hub, speechTimeoutS int, httpTimeout time.Duration) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if sessions == nil {
		panic(xerrors.New("session manager is required"))
	}
	if store == nil {
		panic(xerrors.New("store is required"))
	}
	if speechTimeoutS <= 0 {
		speechTimeoutS = 5
	}
	if httpTimeout <= 0 {
		httpTimeout = 4 * time.Second
	}
	return &API{
		logger:        logger,
		sessions:      sessions,
		store:         store,
		hub:           hub,
		speechTimeout: speechTimeoutS,
		httpTimeout:   httpTimeout,
	}
}

// RegisterRoutes attaches all endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/voice", func(r chi.Router) {
		r.Post("/", a.handleVoiceGreeting)
		r.Post("/process", a.handleVoiceProcess)
		r.Post("/followup", a.handleVoiceFollowup)
		r.Post("/status", a.handleVoiceStatus)
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/calls", a.handleListCalls)
		r.Get("/calls/{callSid}", a.handleGetCall)
		r.Put("/calls/{callSid}", a.handleUpdateCall)
		r.Get("/analytics", a.handleAnalytics)
		r.Get("/events", a.handleEvents)
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
