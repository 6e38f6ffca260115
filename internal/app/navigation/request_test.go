package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_QueryRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		query  string
		want   Params
	}{
		{
			name:   "incoming with custom ringtone",
			params: Params{SessionID: "abc", Caller: "Yamini", RingtoneURL: "/ringtones/x y.mp3"},
			query:  "caller=Yamini&ringtoneUrl=%2Fringtones%2Fx+y.mp3&sessionId=abc",
			want:   Params{SessionID: "abc", Caller: "Yamini", RingtoneURL: "/ringtones/x y.mp3"},
		},
		{
			name:   "missing caller",
			params: Params{SessionID: "abc"},
			query:  "sessionId=abc",
			want:   Params{SessionID: "abc", Caller: UnknownCaller},
		},
		{
			name:   "empty",
			params: Params{},
			query:  "",
			want:   Params{Caller: UnknownCaller},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.params.Query()
			assert.Equal(t, tt.query, q)

			got, err := ParseParams(q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParams_Invalid(t *testing.T) {
	_, err := ParseParams("sessionId=%zz")
	require.Error(t, err)
}

func TestRequestBuilders(t *testing.T) {
	in := IncomingCall("s1", "Mom", "")
	assert.Equal(t, ScreenIncomingCall, in.Screen)
	assert.Empty(t, in.Params.RingtoneURL)

	call := InCall("s1", "Dad")
	assert.Equal(t, Params{SessionID: "s1", Caller: "Dad"}, call.Params)

	staging := Staging("Could not load call")
	assert.Equal(t, ScreenStaging, staging.Screen)
	assert.Equal(t, "Could not load call", staging.Notice)

	assert.True(t, ScreenInCall.Valid())
	assert.False(t, Screen("settings").Valid())
}
