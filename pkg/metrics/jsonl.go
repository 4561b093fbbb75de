package metrics

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// JSONLObserver writes one JSON object per line, a shape log shippers and
// jq-style tooling consume directly.
type JSONLObserver struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLObserver writes events to w. A nil writer discards everything.
func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	return &JSONLObserver{enc: json.NewEncoder(w)}
}

type jsonlRecord struct {
	Name    string         `json:"name"`
	Time    time.Time      `json:"time"`
	VoiceID string         `json:"voice_id,omitempty"`
	Value   float64        `json:"value"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// RecordEvent writes the event. Encoding errors are silently dropped;
// telemetry must never disturb the session.
func (o *JSONLObserver) RecordEvent(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.enc.Encode(jsonlRecord{
		Name:    ev.Name,
		Time:    ev.Time,
		VoiceID: ev.VoiceID,
		Value:   ev.Value,
		Fields:  ev.Fields,
	})
}
