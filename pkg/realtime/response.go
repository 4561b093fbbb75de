package realtime

// Slice types carried by result frames.
const (
	sliceTypeSentenceBegin = 0
	sliceTypeResultChange  = 1
	sliceTypeSentenceEnd   = 2
)

// WordInfo is per-word timing inside a recognition result. Times are
// milliseconds relative to the start of the audio stream.
type WordInfo struct {
	Word       string `json:"word"`
	StartTime  int    `json:"start_time"`
	EndTime    int    `json:"end_time"`
	StableFlag int    `json:"stable_flag"`
}

// Result is the transcript payload of a sentence event. SliceType
// distinguishes sentence begin (0), interim change (1) and sentence end (2);
// Index numbers sentences from zero within the session.
type Result struct {
	SliceType    int        `json:"slice_type"`
	Index        int        `json:"index"`
	StartTime    int        `json:"start_time"`
	EndTime      int        `json:"end_time"`
	VoiceTextStr string     `json:"voice_text_str"`
	WordSize     int        `json:"word_size"`
	WordList     []WordInfo `json:"word_list"`
}

// Response is one decoded event frame from the service. Result is nil on the
// session acknowledgment, and Final is 1 exactly once, on the
// recognition-complete frame. The dispatcher hands each Response to a single
// callback and never reuses it, so listeners may retain them.
type Response struct {
	Code      int     `json:"code"`
	Message   string  `json:"message"`
	VoiceID   string  `json:"voice_id"`
	MessageID string  `json:"message_id"`
	Final     int     `json:"final"`
	Result    *Result `json:"result,omitempty"`
}
