package connect

import (
	"time"

	"github.com/osa030/exitcall/internal/app/callsession"
	"github.com/osa030/exitcall/internal/domain/call"
)

// GetSettingsRequest is empty.
type GetSettingsRequest struct{}

// Settings is the wire form of the settings record.
type Settings struct {
	SelectedCaller    string    `json:"selectedCaller"`
	DelaySeconds      int       `json:"delaySeconds"`
	Ringtone          string    `json:"ringtone"`
	CustomRingtoneURL string    `json:"customRingtoneUrl,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt,omitzero"`
	// Defaulted is set when the store could not be read.
	Defaulted bool `json:"defaulted,omitempty"`
}

// SaveSettingsRequest carries a partial update. Nil fields are unchanged.
type SaveSettingsRequest struct {
	SelectedCaller    *string `json:"selectedCaller,omitempty"`
	DelaySeconds      *int    `json:"delaySeconds,omitempty"`
	Ringtone          *string `json:"ringtone,omitempty"`
	CustomRingtoneURL *string `json:"customRingtoneUrl,omitempty"`
}

// StartCallRequest overrides the saved settings for one call.
// An empty request uses the saved settings as they are.
type StartCallRequest struct {
	Caller            *string `json:"caller,omitempty"`
	DelaySeconds      *int    `json:"delaySeconds,omitempty"`
	Ringtone          *string `json:"ringtone,omitempty"`
	CustomRingtoneURL *string `json:"customRingtoneUrl,omitempty"`
}

// StartCallResponse describes the scheduled call.
type StartCallResponse struct {
	Session Session   `json:"session"`
	FiresAt time.Time `json:"firesAt"`
}

// SessionRequest names a session.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// Session is the wire form of a call session.
type Session struct {
	ID            string     `json:"id"`
	Caller        string     `json:"caller"`
	Status        string     `json:"status"`
	StartTime     time.Time  `json:"startTime"`
	ActivatedTime *time.Time `json:"activatedTime,omitempty"`
	EndedTime     *time.Time `json:"endedTime,omitempty"`
}

// ListSessionsRequest limits the result; zero means no limit.
type ListSessionsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ListSessionsResponse holds sessions, newest first.
type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

// ExpireStaleRequest sets the age threshold; zero uses the server default.
type ExpireStaleRequest struct {
	OlderThanSeconds int `json:"olderThanSeconds,omitempty"`
}

// ExpireStaleResponse lists the sessions that were ended.
type ExpireStaleResponse struct {
	Expired []Session `json:"expired"`
}

// SubscribeNavigationRequest is empty.
type SubscribeNavigationRequest struct{}

func toSettingsMessage(s call.Settings) *Settings {
	return &Settings{
		SelectedCaller:    s.SelectedCaller,
		DelaySeconds:      s.DelaySeconds,
		Ringtone:          s.Ringtone,
		CustomRingtoneURL: s.CustomRingtoneURL,
		UpdatedAt:         s.UpdatedAt,
	}
}

func (s *Settings) toModel() call.Settings {
	return call.Settings{
		SelectedCaller:    s.SelectedCaller,
		DelaySeconds:      s.DelaySeconds,
		Ringtone:          s.Ringtone,
		CustomRingtoneURL: s.CustomRingtoneURL,
		UpdatedAt:         s.UpdatedAt,
	}
}

func toSaveSettingsRequest(p call.SettingsPatch) *SaveSettingsRequest {
	return &SaveSettingsRequest{
		SelectedCaller:    p.SelectedCaller,
		DelaySeconds:      p.DelaySeconds,
		Ringtone:          p.Ringtone,
		CustomRingtoneURL: p.CustomRingtoneURL,
	}
}

func (r *SaveSettingsRequest) toPatch() call.SettingsPatch {
	return call.SettingsPatch{
		SelectedCaller:    r.SelectedCaller,
		DelaySeconds:      r.DelaySeconds,
		Ringtone:          r.Ringtone,
		CustomRingtoneURL: r.CustomRingtoneURL,
	}
}

func (r *StartCallRequest) isEmpty() bool {
	return r.Caller == nil && r.DelaySeconds == nil && r.Ringtone == nil && r.CustomRingtoneURL == nil
}

// apply overrides the settings snapshot with the request fields.
func (r *StartCallRequest) apply(s call.Settings) callsession.StartRequest {
	req := callsession.StartRequest{
		Caller:       s.SelectedCaller,
		DelaySeconds: s.DelaySeconds,
		Ringtone:     s.RingtoneRef(),
	}
	if r.Caller != nil {
		req.Caller = *r.Caller
	}
	if r.DelaySeconds != nil {
		req.DelaySeconds = *r.DelaySeconds
	}
	if r.Ringtone != nil {
		req.Ringtone.Builtin = *r.Ringtone
	}
	if r.CustomRingtoneURL != nil {
		req.Ringtone.CustomURL = *r.CustomRingtoneURL
	}
	return req
}

func toSessionMessage(s *call.Session) Session {
	return Session{
		ID:            s.ID,
		Caller:        s.Caller,
		Status:        s.Status.String(),
		StartTime:     s.StartTime,
		ActivatedTime: s.ActivatedTime,
		EndedTime:     s.EndedTime,
	}
}

func toSessionMessages(sessions []*call.Session) []Session {
	result := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, toSessionMessage(s))
	}
	return result
}

func (s *Session) toModel() *call.Session {
	return &call.Session{
		ID:            s.ID,
		Caller:        s.Caller,
		Status:        call.Status(s.Status),
		StartTime:     s.StartTime,
		ActivatedTime: s.ActivatedTime,
		EndedTime:     s.EndedTime,
	}
}

func toSessionModels(sessions []Session) []*call.Session {
	result := make([]*call.Session, 0, len(sessions))
	for i := range sessions {
		result = append(result, sessions[i].toModel())
	}
	return result
}
