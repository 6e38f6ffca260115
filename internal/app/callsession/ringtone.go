package callsession

import (
	"github.com/osa030/exitcall/internal/app/ringtone"
	"github.com/osa030/exitcall/internal/domain/call"
)

// Ringtone is a playback handle owned by an incoming session.
type Ringtone interface {
	Start() error
	Stop()
}

// RingtoneOpener acquires an idle handle for a ringtone reference.
type RingtoneOpener func(ref call.RingtoneRef) Ringtone

// PlayerOpener opens handles from a ringtone player.
func PlayerOpener(p *ringtone.Player) RingtoneOpener {
	return func(ref call.RingtoneRef) Ringtone {
		return p.Open(ref)
	}
}
