package realtime

import (
	"strings"
	"sync"
)

// TranscriptCollector is a Listener that assembles recognized text as frames
// arrive. Callbacks run on the session's read goroutine; the accessors may be
// called from any goroutine and return snapshots.
//
// A zero TranscriptCollector is ready to use. Passing the same collector to a
// new session resets it when the session acknowledges.
type TranscriptCollector struct {
	mu        sync.Mutex
	interim   string
	sentences []string
	completed bool
	err       error
}

var _ Listener = (*TranscriptCollector)(nil)

// OnRecognitionStart clears any state left over from a previous session.
func (c *TranscriptCollector) OnRecognitionStart(*Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interim = ""
	c.sentences = nil
	c.completed = false
	c.err = nil
}

// OnSentenceBegin discards the interim text of the previous sentence.
func (c *TranscriptCollector) OnSentenceBegin(*Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interim = ""
}

// OnRecognitionResultChange keeps the latest interim hypothesis.
func (c *TranscriptCollector) OnRecognitionResultChange(resp *Response) {
	if resp == nil || resp.Result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interim = resp.Result.VoiceTextStr
}

// OnSentenceEnd commits the stabilized sentence and clears the interim text.
func (c *TranscriptCollector) OnSentenceEnd(resp *Response) {
	if resp == nil || resp.Result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentences = append(c.sentences, resp.Result.VoiceTextStr)
	c.interim = ""
}

// OnRecognitionComplete marks the transcript as final.
func (c *TranscriptCollector) OnRecognitionComplete(*Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = true
}

// OnFail records the first error reported by the session.
func (c *TranscriptCollector) OnFail(_ *Response, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Sentences returns a copy of the stabilized sentences in arrival order.
func (c *TranscriptCollector) Sentences() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sentences))
	copy(out, c.sentences)
	return out
}

// Interim returns the in-flight hypothesis for the current sentence, if any.
func (c *TranscriptCollector) Interim() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interim
}

// Transcript returns the stabilized sentences concatenated in arrival order.
func (c *TranscriptCollector) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.sentences, "")
}

// Completed reports whether the session delivered its final frame.
func (c *TranscriptCollector) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// Err returns the first error the session reported, or nil.
func (c *TranscriptCollector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
