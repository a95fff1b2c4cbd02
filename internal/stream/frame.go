package stream

import "finance-tutor/internal/models"

// Frame is one decoded unit from the answer stream.
// Exactly one of Token, Metadata, End, TransportError.
type Frame interface {
	frame()
}

// Token is an incremental chunk of answer text. Empty text is valid.
type Token struct {
	Text string
}

// Metadata carries the out-of-band sources and video recommendations
// for the answer. Each Metadata frame fully replaces any previous one.
type Metadata struct {
	Sources []models.Source
	Videos  []models.Video
}

// End marks logical stream completion. Emitted exactly once per stream.
type End struct{}

// TransportError reports a transport-level failure. Terminal.
type TransportError struct {
	Err error
}

func (Token) frame()          {}
func (Metadata) frame()       {}
func (End) frame()            {}
func (TransportError) frame() {}

func (e TransportError) Error() string {
	if e.Err == nil {
		return "transport error"
	}
	return e.Err.Error()
}
