package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewCarriesKindAndCode(t *testing.T) {
	err := New(KindLifecycle, CodeNotStarted, "recognizer not running")
	if KindOf(err) != KindLifecycle {
		t.Fatalf("expected kind %s, got %s", KindLifecycle, KindOf(err))
	}
	if CodeOf(err) != CodeNotStarted {
		t.Fatalf("expected code %d, got %d", CodeNotStarted, CodeOf(err))
	}
	want := "trtc-asr error [1009]: recognizer not running"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestWrapClassifiesForeignError(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, KindTransport, CodeReadFailed, "read message failed")
	if !IsKind(err, KindTransport) {
		t.Fatalf("expected transport kind, got %s", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped error to unwrap to cause")
	}
}

func TestWrapPreservesExistingClassification(t *testing.T) {
	first := New(KindAuthentication, CodeAuthFailed, "signature rejected")
	second := Wrap(fmt.Errorf("during start: %w", first), KindTransport, CodeConnectFailed, "connect")
	if KindOf(second) != KindAuthentication {
		t.Fatalf("expected first classification preserved, got %s", KindOf(second))
	}
	if CodeOf(second) != CodeAuthFailed {
		t.Fatalf("expected code %d, got %d", CodeAuthFailed, CodeOf(second))
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Fatalf("expected unknown kind for plain error")
	}
	if CodeOf(nil) != 0 {
		t.Fatalf("expected zero code for nil error")
	}
}
