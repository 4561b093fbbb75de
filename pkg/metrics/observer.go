package metrics

import "time"

// Event is one observation from a recognition session, e.g. the time to
// first result or the bytes streamed over a completed session.
type Event struct {
	Name    string
	Time    time.Time
	VoiceID string
	Value   float64
	Fields  map[string]any
}

// Observer receives session events. Implementations must tolerate concurrent
// calls; sessions emit from both the read loop and writer goroutines.
type Observer interface {
	RecordEvent(ev Event)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(Event) {}
