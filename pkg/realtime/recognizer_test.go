package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloud-rtc/trtc-asr-go/pkg/credential"
	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
	"github.com/cloud-rtc/trtc-asr-go/pkg/metrics"
	"github.com/cloud-rtc/trtc-asr-go/pkg/transports"
	"github.com/cloud-rtc/trtc-asr-go/pkg/transports/mock"
	"github.com/cloud-rtc/trtc-asr-go/pkg/usersig"
)

const (
	ackFrame      = `{"code":0,"message":"success","voice_id":"voice-test-1","message_id":"m0","final":0}`
	completeFrame = `{"code":0,"message":"success","voice_id":"voice-test-1","message_id":"m9","final":1}`
)

func sentenceFrame(sliceType, index int, text string) string {
	return fmt.Sprintf(`{"code":0,"voice_id":"voice-test-1","message_id":"m%d","result":{"slice_type":%d,"index":%d,"start_time":0,"end_time":1200,"voice_text_str":%q,"word_size":0,"word_list":[]}}`,
		index+1, sliceType, index, text)
}

func timeAt(sec int64) time.Time { return time.Unix(sec, 0) }

type recordedEvent struct {
	name string
	resp *Response
	err  error
}

// recordingListener captures every callback in arrival order.
type recordingListener struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *recordingListener) record(name string, resp *Response, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{name: name, resp: resp, err: err})
}

func (l *recordingListener) OnRecognitionStart(resp *Response) { l.record("start", resp, nil) }
func (l *recordingListener) OnSentenceBegin(resp *Response)    { l.record("sentence_begin", resp, nil) }
func (l *recordingListener) OnRecognitionResultChange(resp *Response) {
	l.record("result_change", resp, nil)
}
func (l *recordingListener) OnSentenceEnd(resp *Response) { l.record("sentence_end", resp, nil) }
func (l *recordingListener) OnRecognitionComplete(resp *Response) {
	l.record("complete", resp, nil)
}
func (l *recordingListener) OnFail(resp *Response, err error) { l.record("fail", resp, err) }

func (l *recordingListener) snapshot() []recordedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]recordedEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *recordingListener) names() []string {
	events := l.snapshot()
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.name
	}
	return out
}

func (l *recordingListener) failures() []recordedEvent {
	var out []recordedEvent
	for _, ev := range l.snapshot() {
		if ev.name == "fail" {
			out = append(out, ev)
		}
	}
	return out
}

func (l *recordingListener) waitEvents(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(l.snapshot()) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %v", n, l.names())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCred() *credential.Credential {
	return credential.New(1400000001, 1400000002, "unit-test-secret")
}

func newTestRecognizer(t *testing.T, conn *mock.Conn, opts ...Option) (*Recognizer, *recordingListener, *mock.Dialer) {
	t.Helper()
	listener := &recordingListener{}
	dialer := mock.NewDialer(conn)
	base := []Option{WithDialer(dialer), WithLogger(quietLogger())}
	rec, err := NewRecognizer(testCred(), Model16kZH, listener, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	rec.newNonce = func() int64 { return 7788 }
	rec.newVoiceID = func() string { return "voice-test-1" }
	return rec, listener, dialer
}

func activeSession(t *testing.T, opts ...Option) (*Recognizer, *recordingListener, *mock.Conn) {
	t.Helper()
	conn := mock.NewConn()
	conn.PushText(ackFrame)
	rec, listener, _ := newTestRecognizer(t, conn, opts...)
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return rec, listener, conn
}

func waitPhase(t *testing.T, rec *Recognizer, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec.Phase() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("phase = %v, want %v", rec.Phase(), want)
}

// completeOnEnd answers the end signal with the recognition-complete frame,
// the way the service does.
func completeOnEnd(conn *mock.Conn) {
	conn.OnSend = func(msg transports.Message) {
		if msg.Type == transports.MessageText {
			conn.PushText(completeFrame)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	rec, listener, conn := activeSession(t)
	if got := rec.Phase(); got != PhaseActive {
		t.Fatalf("phase after start = %v, want %v", got, PhaseActive)
	}
	if got := rec.VoiceID(); got != "voice-test-1" {
		t.Fatalf("VoiceID() = %q, want %q", got, "voice-test-1")
	}

	chunk := bytes.Repeat([]byte{0x01}, 6400)
	for i := 0; i < 3; i++ {
		if err := rec.Write(chunk); err != nil {
			t.Fatalf("Write #%d: %v", i, err)
		}
	}
	if got := rec.BytesWritten(); got != 19200 {
		t.Fatalf("BytesWritten() = %d, want 19200", got)
	}

	conn.PushText(sentenceFrame(0, 0, ""))
	conn.PushText(sentenceFrame(1, 0, "hel"))
	conn.PushText(sentenceFrame(2, 0, "hello"))
	completeOnEnd(conn)

	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := rec.Phase(); got != PhaseClosed {
		t.Fatalf("phase after stop = %v, want %v", got, PhaseClosed)
	}

	// Stop returning nil guarantees the complete callback already ran, so
	// no extra synchronization is needed here.
	want := []string{"start", "sentence_begin", "result_change", "sentence_end", "complete"}
	got := listener.names()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	sent := conn.Sent()
	if len(sent) != 4 {
		t.Fatalf("sent %d frames, want 3 audio + 1 end signal", len(sent))
	}
	for i := 0; i < 3; i++ {
		if sent[i].Type != transports.MessageBinary || len(sent[i].Data) != 6400 {
			t.Fatalf("sent[%d] = type %d len %d, want binary 6400", i, sent[i].Type, len(sent[i].Data))
		}
	}
	if sent[3].Type != transports.MessageText || string(sent[3].Data) != `{"type":"end"}` {
		t.Fatalf("sent[3] = %q, want end signal", sent[3].Data)
	}
}

func TestCallbacksArriveInFrameOrder(t *testing.T) {
	rec, listener, conn := activeSession(t)

	// Two sentences with interleaved interim updates.
	conn.PushText(sentenceFrame(0, 0, ""))
	conn.PushText(sentenceFrame(1, 0, "one"))
	conn.PushText(sentenceFrame(1, 0, "one two"))
	conn.PushText(sentenceFrame(2, 0, "one two."))
	conn.PushText(sentenceFrame(0, 1, ""))
	conn.PushText(sentenceFrame(1, 1, "three"))
	conn.PushText(sentenceFrame(2, 1, "three four."))
	completeOnEnd(conn)

	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{
		"start",
		"sentence_begin", "result_change", "result_change", "sentence_end",
		"sentence_begin", "result_change", "sentence_end",
		"complete",
	}
	got := listener.names()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}

	// Each callback gets its own decoded frame, never a reused one.
	events := listener.snapshot()
	seen := map[*Response]bool{}
	for _, ev := range events {
		if ev.resp == nil {
			continue
		}
		if seen[ev.resp] {
			t.Fatal("a Response pointer was delivered to two callbacks")
		}
		seen[ev.resp] = true
	}
	if events[4].resp.Result == nil || events[4].resp.Result.VoiceTextStr != "one two." {
		t.Errorf("first sentence end text = %+v, want %q", events[4].resp.Result, "one two.")
	}
	if events[7].resp.Result == nil || events[7].resp.Result.Index != 1 {
		t.Errorf("second sentence end index = %+v, want 1", events[7].resp.Result)
	}
}

func TestStartSignsTarget(t *testing.T) {
	conn := mock.NewConn()
	conn.PushText(ackFrame)
	rec, _, dialer := newTestRecognizer(t, conn)
	rec.now = func() time.Time { return timeAt(1756100000) }
	if err := rec.SetHotwordID("hw-1"); err != nil {
		t.Fatalf("SetHotwordID: %v", err)
	}
	if err := rec.SetVADSilenceTime(500); err != nil {
		t.Fatalf("SetVADSilenceTime: %v", err)
	}

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rec.Close()

	target := dialer.Target()
	if !strings.HasPrefix(target.URL, "wss://asr.cloud-rtc.com/asr/v2/1400000001?") {
		t.Fatalf("dialed URL = %q, want production prefix", target.URL)
	}
	if strings.Contains(target.URL, "unit-test-secret") {
		t.Fatal("secret key leaked into the dialed URL")
	}

	u := target.URL[strings.IndexByte(target.URL, '?')+1:]
	q := map[string]string{}
	for _, pair := range strings.Split(u, "&") {
		kv := strings.SplitN(pair, "=", 2)
		q[kv[0]] = kv[1]
	}
	wantExpired := fmt.Sprintf("%d", 1756100000+int64(usersig.DefaultTTL/time.Second))
	for key, want := range map[string]string{
		"secretid":          "1400000001",
		"timestamp":         "1756100000",
		"expired":           wantExpired,
		"nonce":             "7788",
		"engine_model_type": "16k_zh",
		"voice_id":          "voice-test-1",
		"hotword_id":        "hw-1",
		"vad_silence_time":  "500",
	} {
		if q[key] != want {
			t.Errorf("query[%s] = %q, want %q", key, q[key], want)
		}
	}

	wantSig, err := usersig.Sign("unit-test-secret", 1400000001, 1400000002, 1756100000+int64(usersig.DefaultTTL/time.Second), 7788)
	if err != nil {
		t.Fatalf("usersig.Sign: %v", err)
	}
	if got := target.Header.Get("X-TRTC-UserSig"); got != wantSig {
		t.Errorf("X-TRTC-UserSig = %q, want %q", got, wantSig)
	}
	if got := target.Header.Get("X-TRTC-SdkAppId"); got != "1400000002" {
		t.Errorf("X-TRTC-SdkAppId = %q, want %q", got, "1400000002")
	}
	if dialer.DialCalls() != 1 {
		t.Errorf("DialCalls() = %d, want 1", dialer.DialCalls())
	}
}

func TestStartUsesPresetUserSig(t *testing.T) {
	conn := mock.NewConn()
	conn.PushText(ackFrame)
	listener := &recordingListener{}
	dialer := mock.NewDialer(conn)
	cred := credential.New(1400000001, 1400000002, "")
	cred.SetUserSig("preset-signature")
	rec, err := NewRecognizer(cred, Model16kZH, listener, WithDialer(dialer), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rec.Close()

	if got := dialer.Target().Header.Get("X-TRTC-UserSig"); got != "preset-signature" {
		t.Errorf("X-TRTC-UserSig = %q, want preset signature", got)
	}
}

func TestNewRecognizerRejectsBadInputs(t *testing.T) {
	listener := &recordingListener{}
	if _, err := NewRecognizer(nil, Model16kZH, listener); !errorsx.IsKind(err, errorsx.KindValidation) {
		t.Errorf("nil credential: kind = %v, want validation", errorsx.KindOf(err))
	}
	if _, err := NewRecognizer(testCred(), "", listener); !errorsx.IsKind(err, errorsx.KindValidation) {
		t.Errorf("empty model: kind = %v, want validation", errorsx.KindOf(err))
	}
	if _, err := NewRecognizer(testCred(), Model16kZH, nil); !errorsx.IsKind(err, errorsx.KindValidation) {
		t.Errorf("nil listener: kind = %v, want validation", errorsx.KindOf(err))
	}
	bad := DefaultParams()
	bad.VADSilenceMs = 50
	if _, err := NewRecognizer(testCred(), Model16kZH, listener, WithParams(bad)); !errorsx.IsKind(err, errorsx.KindValidation) {
		t.Errorf("bad params: kind = %v, want validation", errorsx.KindOf(err))
	}
}

func TestStartValidationFailureLeavesCreated(t *testing.T) {
	conn := mock.NewConn()
	listener := &recordingListener{}
	dialer := mock.NewDialer(conn)
	cred := credential.New(1400000001, 1400000002, "")
	rec, err := NewRecognizer(cred, Model16kZH, listener, WithDialer(dialer), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}

	err = rec.Start(context.Background())
	if !errorsx.IsKind(err, errorsx.KindValidation) {
		t.Fatalf("Start kind = %v, want validation", errorsx.KindOf(err))
	}
	if got := rec.Phase(); got != PhaseCreated {
		t.Fatalf("phase = %v, want %v", got, PhaseCreated)
	}
	if dialer.DialCalls() != 0 {
		t.Fatalf("DialCalls() = %d, want 0: nothing may be opened on validation failure", dialer.DialCalls())
	}
	if len(listener.failures()) != 0 {
		t.Fatal("validation failure must not reach OnFail")
	}

	// The session is still startable once the credential is corrected.
	cred.SecretKey = "now-valid"
	conn.PushText(ackFrame)
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start after fix: %v", err)
	}
	defer rec.Close()
	if got := rec.Phase(); got != PhaseActive {
		t.Fatalf("phase = %v, want %v", got, PhaseActive)
	}
}

func TestStartRejectedHandshake(t *testing.T) {
	conn := mock.NewConn()
	rec, listener, dialer := newTestRecognizer(t, conn)
	dialer.Err = &transports.HandshakeError{Status: 401, Body: "signature expired"}

	err := rec.Start(context.Background())
	if !errorsx.IsKind(err, errorsx.KindAuthentication) {
		t.Fatalf("Start kind = %v, want authentication", errorsx.KindOf(err))
	}
	if errorsx.CodeOf(err) != errorsx.CodeAuthFailed {
		t.Errorf("code = %d, want %d", errorsx.CodeOf(err), errorsx.CodeAuthFailed)
	}
	if got := rec.Phase(); got != PhaseErrored {
		t.Fatalf("phase = %v, want %v", got, PhaseErrored)
	}

	fails := listener.failures()
	if len(fails) != 1 {
		t.Fatalf("OnFail fired %d times, want exactly once", len(fails))
	}
	if fails[0].resp != nil {
		t.Error("handshake failure should carry no frame")
	}

	// A failed session cannot be restarted.
	if err := rec.Start(context.Background()); !errorsx.IsKind(err, errorsx.KindLifecycle) {
		t.Errorf("restart kind = %v, want lifecycle", errorsx.KindOf(err))
	}
}

func TestStartServiceRefusal(t *testing.T) {
	conn := mock.NewConn()
	conn.PushText(`{"code":4002,"message":"invalid signature","voice_id":"voice-test-1"}`)
	rec, listener, _ := newTestRecognizer(t, conn)

	err := rec.Start(context.Background())
	if !errorsx.IsKind(err, errorsx.KindAuthentication) {
		t.Fatalf("Start kind = %v, want authentication before ack", errorsx.KindOf(err))
	}
	if errorsx.CodeOf(err) != errorsx.Code(4002) {
		t.Errorf("code = %d, want service code 4002", errorsx.CodeOf(err))
	}
	waitPhase(t, rec, PhaseErrored)

	fails := listener.failures()
	if len(fails) != 1 {
		t.Fatalf("OnFail fired %d times, want exactly once", len(fails))
	}
	if fails[0].resp == nil || fails[0].resp.Code != 4002 {
		t.Errorf("failure frame = %+v, want the refusal frame", fails[0].resp)
	}
}

func TestStartAckTimeout(t *testing.T) {
	conn := mock.NewConn()
	rec, listener, _ := newTestRecognizer(t, conn, WithStartTimeout(30*time.Millisecond))

	err := rec.Start(context.Background())
	if !errorsx.IsKind(err, errorsx.KindTimeout) {
		t.Fatalf("Start kind = %v, want timeout", errorsx.KindOf(err))
	}
	if got := rec.Phase(); got != PhaseErrored {
		t.Fatalf("phase = %v, want %v", got, PhaseErrored)
	}

	// Join the read loop so the late teardown error, if any, had its
	// chance to double-report.
	_ = rec.Close()
	if fails := listener.failures(); len(fails) != 1 {
		t.Fatalf("OnFail fired %d times, want exactly once", len(fails))
	}
}

func TestStartContextCancel(t *testing.T) {
	conn := mock.NewConn()
	rec, _, _ := newTestRecognizer(t, conn)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := rec.Start(ctx)
	if err == nil {
		t.Fatal("Start = nil, want error on canceled context")
	}
	if got := rec.Phase(); got != PhaseErrored {
		t.Fatalf("phase = %v, want %v", got, PhaseErrored)
	}
}

func TestLifecycleGates(t *testing.T) {
	rec, _, conn := activeSession(t)
	defer rec.Close()

	// Double start.
	err := rec.Start(context.Background())
	if !errorsx.IsKind(err, errorsx.KindLifecycle) || errorsx.CodeOf(err) != errorsx.CodeAlreadyStarted {
		t.Errorf("double start = %v, want lifecycle/already-started", err)
	}

	// Fresh recognizer: write and stop before start.
	rec2, _, _ := newTestRecognizer(t, mock.NewConn())
	if err := rec2.Write([]byte{1}); !errorsx.IsKind(err, errorsx.KindLifecycle) || errorsx.CodeOf(err) != errorsx.CodeNotStarted {
		t.Errorf("write before start = %v, want lifecycle/not-started", err)
	}
	if err := rec2.Stop(context.Background()); !errorsx.IsKind(err, errorsx.KindLifecycle) || errorsx.CodeOf(err) != errorsx.CodeNotStarted {
		t.Errorf("stop before start = %v, want lifecycle/not-started", err)
	}

	// Finished session: write, stop and start all rejected.
	completeOnEnd(conn)
	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := rec.Write([]byte{1}); !errorsx.IsKind(err, errorsx.KindLifecycle) || errorsx.CodeOf(err) != errorsx.CodeAlreadyStopped {
		t.Errorf("write after complete = %v, want lifecycle/already-stopped", err)
	}
	if err := rec.Stop(context.Background()); !errorsx.IsKind(err, errorsx.KindLifecycle) || errorsx.CodeOf(err) != errorsx.CodeAlreadyStopped {
		t.Errorf("stop after complete = %v, want lifecycle/already-stopped", err)
	}
	if err := rec.Start(context.Background()); !errorsx.IsKind(err, errorsx.KindLifecycle) {
		t.Errorf("start after complete = %v, want lifecycle error", err)
	}
	if got := rec.BytesWritten(); got != 0 {
		t.Errorf("BytesWritten() = %d, want 0: rejected writes must not count", got)
	}
}

func TestSettersFrozenAfterStart(t *testing.T) {
	rec, _, conn := activeSession(t)
	defer rec.Close()
	_ = conn

	if err := rec.SetHotwordID("late"); !errorsx.IsKind(err, errorsx.KindLifecycle) {
		t.Errorf("SetHotwordID after start = %v, want lifecycle error", err)
	}
	if err := rec.SetVoiceFormat(FormatOpus); !errorsx.IsKind(err, errorsx.KindLifecycle) {
		t.Errorf("SetVoiceFormat after start = %v, want lifecycle error", err)
	}
}

func TestSetterValidation(t *testing.T) {
	rec, _, _ := newTestRecognizer(t, mock.NewConn())
	if err := rec.SetVADSilenceTime(100); !errorsx.IsKind(err, errorsx.KindValidation) {
		t.Errorf("SetVADSilenceTime(100) = %v, want validation error", err)
	}
	// Rejected values must not stick.
	if err := rec.SetVADSilenceTime(500); err != nil {
		t.Fatalf("SetVADSilenceTime(500): %v", err)
	}
}

func TestWriteFailureIsTerminal(t *testing.T) {
	rec, listener, conn := activeSession(t)
	conn.SetSendError(io.ErrClosedPipe)

	err := rec.Write(bytes.Repeat([]byte{2}, 640))
	if !errorsx.IsKind(err, errorsx.KindTransport) || errorsx.CodeOf(err) != errorsx.CodeWriteFailed {
		t.Fatalf("Write = %v, want transport/write-failed", err)
	}
	if got := rec.Phase(); got != PhaseErrored {
		t.Fatalf("phase = %v, want %v", got, PhaseErrored)
	}

	// The barrier: later writes fail fast with a lifecycle error.
	if err := rec.Write([]byte{3}); !errorsx.IsKind(err, errorsx.KindLifecycle) {
		t.Errorf("write after failure = %v, want lifecycle error", err)
	}
	if err := rec.Stop(context.Background()); !errorsx.IsKind(err, errorsx.KindLifecycle) {
		t.Errorf("stop after failure = %v, want lifecycle error", err)
	}

	_ = rec.Close()
	if fails := listener.failures(); len(fails) != 1 {
		t.Fatalf("OnFail fired %d times, want exactly once", len(fails))
	}
	if got := rec.BytesWritten(); got != 0 {
		t.Errorf("BytesWritten() = %d, want 0 after failed write", got)
	}
}

func TestUnexpectedDisconnect(t *testing.T) {
	rec, listener, conn := activeSession(t)
	conn.Fail(io.ErrUnexpectedEOF)

	waitPhase(t, rec, PhaseErrored)
	_ = rec.Close()

	fails := listener.failures()
	if len(fails) != 1 {
		t.Fatalf("OnFail fired %d times, want exactly once", len(fails))
	}
	if !errorsx.IsKind(fails[0].err, errorsx.KindTransport) || errorsx.CodeOf(fails[0].err) != errorsx.CodeReadFailed {
		t.Errorf("failure = %v, want transport/read-failed", fails[0].err)
	}
}

func TestStopGatedOnCompleteFrame(t *testing.T) {
	rec, listener, conn := activeSession(t)
	conn.PushText(sentenceFrame(2, 0, "done"))
	completeOnEnd(conn)

	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	names := listener.names()
	if names[len(names)-1] != "complete" {
		t.Fatalf("events = %v, want complete delivered before Stop returns", names)
	}
	if got := rec.Phase(); got != PhaseClosed {
		t.Fatalf("phase = %v, want %v", got, PhaseClosed)
	}
}

func TestStopTimeout(t *testing.T) {
	rec, listener, _ := activeSession(t, WithStopTimeout(30*time.Millisecond))

	err := rec.Stop(context.Background())
	if !errorsx.IsKind(err, errorsx.KindTimeout) {
		t.Fatalf("Stop kind = %v, want timeout", errorsx.KindOf(err))
	}
	if got := rec.Phase(); got != PhaseErrored {
		t.Fatalf("phase = %v, want %v", got, PhaseErrored)
	}
	_ = rec.Close()
	if fails := listener.failures(); len(fails) != 1 {
		t.Fatalf("OnFail fired %d times, want exactly once", len(fails))
	}
}

func TestStopFailsWhenConnectionDropsFirst(t *testing.T) {
	rec, listener, conn := activeSession(t)
	conn.OnSend = func(msg transports.Message) {
		if msg.Type == transports.MessageText {
			conn.Fail(io.ErrUnexpectedEOF)
		}
	}

	err := rec.Stop(context.Background())
	if !errorsx.IsKind(err, errorsx.KindTransport) {
		t.Fatalf("Stop kind = %v, want transport", errorsx.KindOf(err))
	}
	_ = rec.Close()
	if fails := listener.failures(); len(fails) != 1 {
		t.Fatalf("OnFail fired %d times, want exactly once", len(fails))
	}
}

func TestMalformedFrameDoesNotEndSession(t *testing.T) {
	rec, listener, conn := activeSession(t)
	conn.PushText(`{"code":0,"result":`)
	listener.waitEvents(t, 2) // start + protocol failure

	fails := listener.failures()
	if len(fails) != 1 {
		t.Fatalf("failures = %d, want 1", len(fails))
	}
	if !errorsx.IsKind(fails[0].err, errorsx.KindProtocol) {
		t.Errorf("failure kind = %v, want protocol", errorsx.KindOf(fails[0].err))
	}
	if got := rec.Phase(); got != PhaseActive {
		t.Fatalf("phase after malformed frame = %v, want still %v", got, PhaseActive)
	}

	// The session keeps dispatching after the bad frame.
	conn.PushText(sentenceFrame(2, 0, "still here"))
	completeOnEnd(conn)
	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	names := listener.names()
	if names[len(names)-1] != "complete" || names[len(names)-2] != "sentence_end" {
		t.Fatalf("events = %v, want sentence_end then complete after the bad frame", names)
	}
}

func TestUnknownSliceTypeReportedNonTerminal(t *testing.T) {
	rec, listener, conn := activeSession(t)
	conn.PushText(`{"code":0,"voice_id":"voice-test-1","result":{"slice_type":7,"index":0}}`)
	listener.waitEvents(t, 2)

	fails := listener.failures()
	if len(fails) != 1 || !errorsx.IsKind(fails[0].err, errorsx.KindProtocol) {
		t.Fatalf("failures = %+v, want one protocol failure", fails)
	}
	if fails[0].resp == nil {
		t.Error("unknown slice type should carry the offending frame")
	}
	if got := rec.Phase(); got != PhaseActive {
		t.Fatalf("phase = %v, want still %v", got, PhaseActive)
	}
	_ = rec.Close()
}

func TestServerErrorAfterAck(t *testing.T) {
	rec, listener, conn := activeSession(t)
	conn.PushText(`{"code":5001,"message":"backend overloaded","voice_id":"voice-test-1"}`)

	waitPhase(t, rec, PhaseErrored)
	_ = rec.Close()

	fails := listener.failures()
	if len(fails) != 1 {
		t.Fatalf("OnFail fired %d times, want exactly once", len(fails))
	}
	if !errorsx.IsKind(fails[0].err, errorsx.KindServer) {
		t.Errorf("kind = %v, want server after ack", errorsx.KindOf(fails[0].err))
	}
	if errorsx.CodeOf(fails[0].err) != errorsx.Code(5001) {
		t.Errorf("code = %d, want 5001", errorsx.CodeOf(fails[0].err))
	}
}

func TestCloseAbortsWithoutCallbacks(t *testing.T) {
	rec, listener, _ := activeSession(t)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := rec.Phase(); got != PhaseClosed {
		t.Fatalf("phase = %v, want %v", got, PhaseClosed)
	}
	if fails := listener.failures(); len(fails) != 0 {
		t.Fatalf("Close fired OnFail %d times, want none", len(fails))
	}
	// Idempotent.
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := rec.Write([]byte{1}); !errorsx.IsKind(err, errorsx.KindLifecycle) {
		t.Errorf("write after close = %v, want lifecycle error", err)
	}
}

func TestCloseBeforeStart(t *testing.T) {
	rec, _, _ := newTestRecognizer(t, mock.NewConn())
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := rec.Phase(); got != PhaseClosed {
		t.Fatalf("phase = %v, want %v", got, PhaseClosed)
	}
	if err := rec.Start(context.Background()); !errorsx.IsKind(err, errorsx.KindLifecycle) {
		t.Errorf("start after close = %v, want lifecycle error", err)
	}
}

func TestMetricsEmittedOnHappyPath(t *testing.T) {
	obs := metrics.NewMemoryObserver()
	rec, _, conn := activeSession(t, WithObserver(obs))

	if err := rec.Write(bytes.Repeat([]byte{1}, 640)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	conn.PushText(sentenceFrame(1, 0, "hi"))
	conn.PushText(sentenceFrame(2, 0, "hi there"))
	completeOnEnd(conn)
	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	var names []string
	for _, ev := range obs.Events() {
		names = append(names, ev.Name)
		if ev.VoiceID != "voice-test-1" {
			t.Errorf("%s voice_id = %q, want %q", ev.Name, ev.VoiceID, "voice-test-1")
		}
	}
	want := []string{"session_active", "first_result", "session_complete"}
	if len(names) != len(want) {
		t.Fatalf("metric events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("metric events = %v, want %v", names, want)
		}
	}

	complete := obs.Events()[2]
	if complete.Value != 640 {
		t.Errorf("session_complete value = %v, want audio byte count 640", complete.Value)
	}
	if got := complete.Fields["sentences"]; got != 1 {
		t.Errorf("session_complete sentences = %v, want 1", got)
	}
}

func TestMetricsEmittedOnFailure(t *testing.T) {
	obs := metrics.NewMemoryObserver()
	rec, _, conn := activeSession(t, WithObserver(obs))
	conn.Fail(io.ErrUnexpectedEOF)
	waitPhase(t, rec, PhaseErrored)
	_ = rec.Close()

	events := obs.Events()
	last := events[len(events)-1]
	if last.Name != "session_failed" {
		t.Fatalf("last metric = %q, want session_failed", last.Name)
	}
	if got := last.Fields["code"]; got != int(errorsx.CodeReadFailed) {
		t.Errorf("session_failed code = %v, want %d", got, errorsx.CodeReadFailed)
	}
}

// TestSessionOverWebSocket runs the whole cycle against a live WebSocket
// server instead of the scripted transport.
func TestSessionOverWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		query := req.URL.Query()
		if query.Get("signature") == "" || req.Header.Get("X-TRTC-UserSig") == "" {
			http.Error(w, "unsigned request", http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer c.Close()

		voiceID := query.Get("voice_id")
		ack := fmt.Sprintf(`{"code":0,"message":"success","voice_id":%q,"final":0}`, voiceID)
		if err := c.WriteMessage(websocket.TextMessage, []byte(ack)); err != nil {
			return
		}
		var audioBytes int
		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				audioBytes += len(data)
				continue
			}
			end := fmt.Sprintf(`{"code":0,"voice_id":%q,"final":0,"result":{"slice_type":2,"index":0,"voice_text_str":"%d bytes heard","word_size":0}}`, voiceID, audioBytes)
			_ = c.WriteMessage(websocket.TextMessage, []byte(end))
			complete := fmt.Sprintf(`{"code":0,"message":"success","voice_id":%q,"final":1}`, voiceID)
			_ = c.WriteMessage(websocket.TextMessage, []byte(complete))
			return
		}
	}))
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	listener := &recordingListener{}
	rec, err := NewRecognizer(testCred(), Model16kZH, listener,
		WithEndpoint(endpoint),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := rec.Write(bytes.Repeat([]byte{0x5a}, 3200)); err != nil {
			t.Fatalf("Write #%d: %v", i, err)
		}
	}
	if err := rec.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"start", "sentence_end", "complete"}
	got := listener.names()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	events := listener.snapshot()
	if text := events[1].resp.Result.VoiceTextStr; text != "6400 bytes heard" {
		t.Errorf("sentence text = %q, want %q", text, "6400 bytes heard")
	}
}
