package realtime

import (
	"errors"
	"testing"
)

func resultFrame(sliceType int, text string) *Response {
	return &Response{
		VoiceID: "voice-test-1",
		Result:  &Result{SliceType: sliceType, VoiceTextStr: text},
	}
}

func TestTranscriptCollectorAssemblesSentences(t *testing.T) {
	var c TranscriptCollector

	c.OnRecognitionStart(&Response{VoiceID: "voice-test-1"})
	c.OnSentenceBegin(resultFrame(sliceTypeSentenceBegin, ""))
	c.OnRecognitionResultChange(resultFrame(sliceTypeResultChange, "it was"))
	c.OnRecognitionResultChange(resultFrame(sliceTypeResultChange, "it was the best"))

	if got := c.Interim(); got != "it was the best" {
		t.Fatalf("Interim() = %q, want %q", got, "it was the best")
	}

	c.OnSentenceEnd(resultFrame(sliceTypeSentenceEnd, "it was the best of times."))
	c.OnSentenceBegin(resultFrame(sliceTypeSentenceBegin, ""))
	c.OnRecognitionResultChange(resultFrame(sliceTypeResultChange, "it was the worst"))
	c.OnSentenceEnd(resultFrame(sliceTypeSentenceEnd, "it was the worst of times."))

	want := []string{"it was the best of times.", "it was the worst of times."}
	got := c.Sentences()
	if len(got) != len(want) {
		t.Fatalf("Sentences() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sentences()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := c.Transcript(); got != want[0]+want[1] {
		t.Fatalf("Transcript() = %q", got)
	}
	if c.Interim() != "" {
		t.Fatalf("Interim() = %q after sentence end, want empty", c.Interim())
	}
	if c.Completed() {
		t.Fatal("Completed() = true before final frame")
	}

	c.OnRecognitionComplete(&Response{VoiceID: "voice-test-1", Final: 1})
	if !c.Completed() {
		t.Fatal("Completed() = false after final frame")
	}
	if c.Err() != nil {
		t.Fatalf("Err() = %v, want nil", c.Err())
	}
}

func TestTranscriptCollectorKeepsFirstError(t *testing.T) {
	var c TranscriptCollector

	first := errors.New("connection reset")
	c.OnFail(nil, first)
	c.OnFail(nil, errors.New("later failure"))

	if got := c.Err(); got != first {
		t.Fatalf("Err() = %v, want first error %v", got, first)
	}
}

func TestTranscriptCollectorResetsOnNewSession(t *testing.T) {
	var c TranscriptCollector

	c.OnRecognitionStart(&Response{})
	c.OnSentenceEnd(resultFrame(sliceTypeSentenceEnd, "first run."))
	c.OnRecognitionComplete(&Response{Final: 1})
	c.OnFail(nil, errors.New("stale"))

	c.OnRecognitionStart(&Response{})
	if got := c.Sentences(); len(got) != 0 {
		t.Fatalf("Sentences() = %v after restart, want empty", got)
	}
	if c.Completed() {
		t.Fatal("Completed() = true after restart")
	}
	if c.Err() != nil {
		t.Fatalf("Err() = %v after restart, want nil", c.Err())
	}
}

func TestTranscriptCollectorSentencesSnapshot(t *testing.T) {
	var c TranscriptCollector

	c.OnSentenceEnd(resultFrame(sliceTypeSentenceEnd, "untouched."))
	got := c.Sentences()
	got[0] = "mutated."

	if fresh := c.Sentences(); fresh[0] != "untouched." {
		t.Fatalf("Sentences()[0] = %q after caller mutation, want %q", fresh[0], "untouched.")
	}
}

func TestTranscriptCollectorIgnoresEmptyFrames(t *testing.T) {
	var c TranscriptCollector

	c.OnRecognitionResultChange(nil)
	c.OnRecognitionResultChange(&Response{})
	c.OnSentenceEnd(nil)
	c.OnSentenceEnd(&Response{})

	if got := c.Sentences(); len(got) != 0 {
		t.Fatalf("Sentences() = %v, want empty", got)
	}
	if c.Interim() != "" {
		t.Fatalf("Interim() = %q, want empty", c.Interim())
	}
}
