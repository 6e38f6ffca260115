package ringtone

// Backend starts looping playback of a source.
type Backend interface {
	Start(src Source, volume float64) (Stream, error)
}

// Stream is a running playback. Stop must be safe to call more than once.
type Stream interface {
	Stop()
}

// Discard is a backend that plays nothing.
type Discard struct{}

func (Discard) Start(Source, float64) (Stream, error) {
	return discardStream{}, nil
}

type discardStream struct{}

func (discardStream) Stop() {}
