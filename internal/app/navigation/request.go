// Package navigation carries screen navigation requests to presentation layers.
package navigation

import (
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
)

// Screen identifies a presentation screen.
type Screen string

const (
	ScreenStaging      Screen = "staging"
	ScreenIncomingCall Screen = "incoming_call"
	ScreenInCall       Screen = "in_call"
)

// UnknownCaller is displayed when a request carries no caller.
const UnknownCaller = "Unknown"

// Valid reports whether s is a known screen.
func (s Screen) Valid() bool {
	switch s {
	case ScreenStaging, ScreenIncomingCall, ScreenInCall:
		return true
	}
	return false
}

// Params are the screen parameters. Screens receive identifiers, never status.
type Params struct {
	SessionID   string `json:"sessionId,omitempty"`
	Caller      string `json:"caller,omitempty"`
	RingtoneURL string `json:"ringtoneUrl,omitempty"`
}

// Query renders the params as URL query parameters.
func (p Params) Query() string {
	v := url.Values{}
	if p.SessionID != "" {
		v.Set("sessionId", p.SessionID)
	}
	if p.Caller != "" {
		v.Set("caller", p.Caller)
	}
	if p.RingtoneURL != "" {
		v.Set("ringtoneUrl", p.RingtoneURL)
	}
	return v.Encode()
}

// ParseParams reads params rendered by Query. A missing caller becomes UnknownCaller.
func ParseParams(query string) (Params, error) {
	v, err := url.ParseQuery(query)
	if err != nil {
		return Params{}, errors.Wrap(err, "invalid navigation params")
	}
	p := Params{
		SessionID:   v.Get("sessionId"),
		Caller:      v.Get("caller"),
		RingtoneURL: v.Get("ringtoneUrl"),
	}
	if p.Caller == "" {
		p.Caller = UnknownCaller
	}
	return p, nil
}

// Request asks presentation layers to show a screen.
type Request struct {
	Screen     Screen    `json:"screen"`
	Params     Params    `json:"params"`
	Notice     string    `json:"notice,omitempty"`
	SequenceNo uint64    `json:"sequenceNo"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// IncomingCall builds the incoming-call request. ringtoneURL is only set for custom ringtones.
func IncomingCall(sessionID, caller, ringtoneURL string) *Request {
	return &Request{
		Screen: ScreenIncomingCall,
		Params: Params{SessionID: sessionID, Caller: caller, RingtoneURL: ringtoneURL},
	}
}

// InCall builds the in-call request.
func InCall(sessionID, caller string) *Request {
	return &Request{
		Screen: ScreenInCall,
		Params: Params{SessionID: sessionID, Caller: caller},
	}
}

// Staging builds the staging request with an optional user-visible notice.
func Staging(notice string) *Request {
	return &Request{Screen: ScreenStaging, Notice: notice}
}
