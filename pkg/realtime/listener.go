package realtime

// Listener receives session events. All callbacks run on the session's read
// goroutine in frame arrival order: a slow callback delays later events but
// never reorders or drops them. Implementations must not call Close from a
// callback.
type Listener interface {
	// OnRecognitionStart fires when the service acknowledges the session.
	OnRecognitionStart(resp *Response)

	// OnSentenceBegin fires when voice activity opens a new sentence.
	OnSentenceBegin(resp *Response)

	// OnRecognitionResultChange fires on every interim transcript update
	// within the current sentence.
	OnRecognitionResultChange(resp *Response)

	// OnSentenceEnd fires when the current sentence is finalized.
	OnSentenceEnd(resp *Response)

	// OnRecognitionComplete fires at most once, when the service reports
	// the session finished.
	OnRecognitionComplete(resp *Response)

	// OnFail reports failures. Terminal failures arrive exactly once;
	// malformed frames are reported here without ending the session.
	// resp is nil when no frame is associated with the error.
	OnFail(resp *Response, err error)
}

// BaseListener is a no-op Listener. Embed it to implement only the callbacks
// you care about and stay compatible when the interface grows.
type BaseListener struct{}

func (BaseListener) OnRecognitionStart(*Response)        {}
func (BaseListener) OnSentenceBegin(*Response)           {}
func (BaseListener) OnRecognitionResultChange(*Response) {}
func (BaseListener) OnSentenceEnd(*Response)             {}
func (BaseListener) OnRecognitionComplete(*Response)     {}
func (BaseListener) OnFail(*Response, error)             {}
