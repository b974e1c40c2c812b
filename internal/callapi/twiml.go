package callapi

import (
	"encoding/xml"
	"net/http"
	"strconv"
)

// TwiML verb structs. Each verb carries its XMLName so a mixed verb slice
// marshals with the right element names in document order.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Say           *twimlSay
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// gatherSpeech prompts the caller and collects a speech result posted to
// action.
func gatherSpeech(text, action string, speechTimeoutS int) twimlResponse {
	return twimlResponse{Verbs: []any{
		twimlGather{
			Input:         "speech",
			Action:        action,
			Method:        http.MethodPost,
			SpeechTimeout: strconv.Itoa(speechTimeoutS),
			Say:           &twimlSay{Text: text},
		},
	}}
}

// sayThenGather announces text, pauses, then asks question inside the gather.
// An empty text drops the leading announcement and pause.
func sayThenGather(text, question, action string, speechTimeoutS int) twimlResponse {
	gather := twimlGather{
		Input:         "speech",
		Action:        action,
		Method:        http.MethodPost,
		SpeechTimeout: strconv.Itoa(speechTimeoutS),
		Say:           &twimlSay{Text: question},
	}
	if text == "" {
		return twimlResponse{Verbs: []any{gather}}
	}
	return twimlResponse{Verbs: []any{
		twimlSay{Text: text},
		twimlPause{Length: 1},
		gather,
	}}
}

// sayAndHangup speaks a final message and ends the call.
func sayAndHangup(text string) twimlResponse {
	return twimlResponse{Verbs: []any{
		twimlSay{Text: text},
		twimlPause{Length: 1},
		twimlHangup{},
	}}
}

// failsafeResponse is spoken when the request is malformed or the pipeline
// is unavailable.
func failsafeResponse() twimlResponse {
	return sayAndHangup("We are experiencing technical difficulties. Please hang up and dial emergency services directly.")
}

func (a *API) writeTwiML(w http.ResponseWriter, resp twimlResponse) {
	w.Header().Set("Content-Type", "application/xml")
	out, err := xml.Marshal(resp)
	if err != nil {
		// Marshal of static structs cannot realistically fail; keep the
		// caller from dead air regardless.
		http.Error(w, "<Response><Hangup/></Response>", http.StatusOK)
		return
	}
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}
