package callapi

import (
	"context"
	"net/http"

	"github.com/linnemanlabs/rapid/internal/session"
	"github.com/linnemanlabs/rapid/internal/triage"
)

const greetingText = "Emergency services. What is your emergency?"

// handleVoiceGreeting answers a new call with the greeting gather.
func (a *API) handleVoiceGreeting(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("CallSid") == "" {
		a.logger.Warn(r.Context(), "voice webhook missing CallSid")
		a.writeTwiML(w, failsafeResponse())
		return
	}
	a.writeTwiML(w, gatherSpeech(greetingText, "/voice/process", a.speechTimeout))
}

// handleVoiceProcess receives the first speech result and runs triage. The
// reply is always valid TwiML inside the webhook deadline; pipeline trouble
// degrades rather than erroring.
func (a *API) handleVoiceProcess(w http.ResponseWriter, r *http.Request) {
	callSid := r.FormValue("CallSid")
	if callSid == "" {
		a.logger.Warn(r.Context(), "voice webhook missing CallSid")
		a.writeTwiML(w, failsafeResponse())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.httpTimeout)
	defer cancel()

	reply := a.sessions.HandleUtterance(ctx, callSid,
		r.FormValue("From"), r.FormValue("To"), speechResult(r))

	a.writeTwiML(w, a.replyTwiML(reply, "/voice/process"))
}

// handleVoiceFollowup receives the caller's answer to the danger question.
func (a *API) handleVoiceFollowup(w http.ResponseWriter, r *http.Request) {
	callSid := r.FormValue("CallSid")
	if callSid == "" {
		a.logger.Warn(r.Context(), "voice webhook missing CallSid")
		a.writeTwiML(w, failsafeResponse())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.httpTimeout)
	defer cancel()

	reply := a.sessions.HandleFollowup(ctx, callSid, speechResult(r))

	a.writeTwiML(w, a.replyTwiML(reply, "/voice/followup"))
}

// handleVoiceStatus receives call lifecycle callbacks. Terminal statuses
// close out the session.
func (a *API) handleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	callSid := r.FormValue("CallSid")
	if callSid == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	status := triage.NormalizeStateOr(r.FormValue("CallStatus"), triage.StateInProgress)
	if status.Terminal() {
		a.sessions.EndCall(r.Context(), callSid, status)
	}
	w.WriteHeader(http.StatusNoContent)
}

// speechResult reads the transcript from the webhook form. Providers post
// interim results under UnstableSpeechResult when no final one exists yet.
func speechResult(r *http.Request) string {
	if v := r.FormValue("SpeechResult"); v != "" {
		return v
	}
	return r.FormValue("UnstableSpeechResult")
}

// replyTwiML maps a session reply onto TwiML. A follow-up expectation speaks
// the announcement, pauses, then gathers the question to /voice/followup; a
// reprompt gathers back to nextAction; a done reply speaks and hangs up.
func (a *API) replyTwiML(reply session.Reply, nextAction string) twimlResponse {
	switch {
	case reply.Done:
		return sayAndHangup(reply.Text)
	case reply.ExpectFollowup:
		return sayThenGather(reply.Text, reply.Question, "/voice/followup", a.speechTimeout)
	default:
		return gatherSpeech(reply.Text, nextAction, a.speechTimeout)
	}
}
