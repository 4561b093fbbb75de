package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cloud-rtc/trtc-asr-go/pkg/credential"
	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
	"github.com/cloud-rtc/trtc-asr-go/pkg/logging"
	"github.com/cloud-rtc/trtc-asr-go/pkg/metrics"
	"github.com/cloud-rtc/trtc-asr-go/pkg/transports"
	"github.com/cloud-rtc/trtc-asr-go/pkg/transports/ws"
	"github.com/cloud-rtc/trtc-asr-go/pkg/usersig"
)

// Default bounds for the two blocking lifecycle waits.
const (
	DefaultStartTimeout = 10 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// endSignal tells the service no more audio follows.
const endSignal = `{"type":"end"}`

// Option configures SDK infrastructure on a Recognizer at construction time.
// Session parameters are set through WithParams or the Set methods.
type Option func(*Recognizer)

// WithDialer replaces the default WebSocket dialer.
func WithDialer(d transports.Dialer) Option {
	return func(r *Recognizer) { r.dialer = d }
}

// WithEndpoint points the session at a non-production endpoint.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) { r.endpoint = endpoint }
}

// WithLogger routes session logs through the given base logger.
func WithLogger(base *slog.Logger) Option {
	return func(r *Recognizer) { r.logger = logging.NewComponentLogger(base, "realtime") }
}

// WithObserver records session metrics on the given observer.
func WithObserver(obs metrics.Observer) Option {
	return func(r *Recognizer) {
		if obs != nil {
			r.obs = obs
		}
	}
}

// WithParams replaces the whole session parameter set.
func WithParams(p Params) Option {
	return func(r *Recognizer) { r.params = p }
}

// WithStartTimeout bounds how long Start waits for the service
// acknowledgment.
func WithStartTimeout(d time.Duration) Option {
	return func(r *Recognizer) {
		if d > 0 {
			r.startTimeout = d
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the recognition-complete
// frame.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Recognizer) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// WithWriteTimeout bounds individual frame writes on the default dialer. It
// has no effect when WithDialer is used.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recognizer) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// Recognizer drives one streaming recognition session over one connection.
// Start, Write and Stop are safe for concurrent use, though audio ordering is
// only meaningful when a single goroutine writes.
type Recognizer struct {
	cred            *credential.Credential
	engineModelType string
	listener        Listener

	endpoint     string
	dialer       transports.Dialer
	logger       *slog.Logger
	obs          metrics.Observer
	startTimeout time.Duration
	stopTimeout  time.Duration
	writeTimeout time.Duration

	// Injection points for deterministic tests.
	now        func() time.Time
	newNonce   func() int64
	newVoiceID func() string

	mu            sync.Mutex
	phase         Phase
	started       bool
	params        Params
	conn          transports.Conn
	voiceID       string
	ackSeen       bool
	completed     bool
	terminalError error
	activeAt      time.Time
	firstResult   bool
	sentences     int

	bytesWritten atomic.Int64

	ackCh  chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

// NewRecognizer builds a session in PhaseCreated. The credential and listener
// are required; engineModelType names the recognition model, for example
// Model16kZH.
func NewRecognizer(cred *credential.Credential, engineModelType string, listener Listener, opts ...Option) (*Recognizer, error) {
	if cred == nil {
		return nil, errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "credential is nil")
	}
	if engineModelType == "" {
		return nil, errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "engine model type is empty")
	}
	if listener == nil {
		return nil, errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "listener is nil")
	}

	r := &Recognizer{
		cred:            cred,
		engineModelType: engineModelType,
		listener:        listener,
		endpoint:        Endpoint,
		logger:          logging.NewComponentLogger(nil, "realtime"),
		obs:             metrics.NoopObserver{},
		startTimeout:    DefaultStartTimeout,
		stopTimeout:     DefaultStopTimeout,
		writeTimeout:    ws.DefaultWriteTimeout,
		now:             time.Now,
		newNonce:        usersig.Nonce,
		newVoiceID:      uuid.NewString,
		phase:           PhaseCreated,
		params:          DefaultParams(),
		ackCh:           make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.params.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Phase returns the current lifecycle phase.
func (r *Recognizer) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// VoiceID returns the session id. Before Start it returns the configured id,
// which is empty when one will be minted at start.
func (r *Recognizer) VoiceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.voiceID != "" {
		return r.voiceID
	}
	return r.params.VoiceID
}

// BytesWritten returns the total audio bytes accepted by Write.
func (r *Recognizer) BytesWritten() int64 {
	return r.bytesWritten.Load()
}

// Start opens the signed connection and blocks until the service acknowledges
// the session, the configured start timeout passes, or ctx is done. On
// validation failure nothing is opened and the session stays in PhaseCreated;
// any failure after the transport opens is terminal.
func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.phase != PhaseCreated || r.started {
		err := r.startStateErrLocked()
		r.mu.Unlock()
		return err
	}
	r.started = true
	params := r.params
	voiceID := params.VoiceID
	if voiceID == "" {
		voiceID = r.newVoiceID()
	}
	r.voiceID = voiceID
	r.mu.Unlock()

	// Everything up to the dial is pure; failures here roll back to a
	// startable session.
	tok, err := usersig.New(r.cred, r.now(), usersig.DefaultTTL, r.newNonce())
	if err != nil {
		r.rollbackStart()
		return err
	}
	target, err := buildTarget(r.endpoint, r.cred, r.engineModelType, params, voiceID, tok)
	if err != nil {
		r.rollbackStart()
		return err
	}

	r.mu.Lock()
	if !r.transitionLocked(PhaseConnecting) {
		r.mu.Unlock()
		return errorsx.New(errorsx.KindLifecycle, errorsx.CodeAlreadyStopped, "session closed during start")
	}
	r.mu.Unlock()
	r.logger.Info("session_connecting",
		"voice_id", voiceID,
		"engine_model_type", r.engineModelType,
	)

	dialer := r.dialer
	if dialer == nil {
		dialer = ws.NewDialer(ws.Config{WriteTimeout: r.writeTimeout})
	}
	conn, err := dialer.DialContext(ctx, target)
	if err != nil {
		cerr := classifyDialError(err)
		r.fail(nil, cerr)
		return cerr
	}

	r.mu.Lock()
	if r.phase.Terminal() {
		// Close won the race against the dial; drop the fresh connection.
		r.mu.Unlock()
		_ = conn.Close()
		return errorsx.New(errorsx.KindLifecycle, errorsx.CodeAlreadyStopped, "session closed during start")
	}
	r.conn = conn
	r.mu.Unlock()

	r.wg.Add(1)
	go r.readLoop(conn)

	timer := time.NewTimer(r.startTimeout)
	defer timer.Stop()
	select {
	case <-r.ackCh:
		return nil
	case <-r.doneCh:
		// The read loop ended before the acknowledgment, unless the ack
		// and the teardown raced; prefer the ack.
		select {
		case <-r.ackCh:
			return nil
		default:
		}
		return r.terminalErr()
	case <-timer.C:
		// Same race with the timer: an ack that landed as the timer
		// fired still wins.
		select {
		case <-r.ackCh:
			return nil
		default:
		}
		terr := errorsx.New(errorsx.KindTimeout, errorsx.CodeTimeout, "session acknowledgment timed out")
		r.fail(nil, terr)
		return terr
	case <-ctx.Done():
		cerr := waitErr(ctx.Err(), "start", errorsx.CodeConnectFailed)
		r.fail(nil, cerr)
		return cerr
	}
}

// Write streams one chunk of audio. It is legal only in PhaseActive; empty
// chunks are accepted and ignored.
func (r *Recognizer) Write(data []byte) error {
	r.mu.Lock()
	if r.phase != PhaseActive {
		err := r.writeStateErrLocked()
		r.mu.Unlock()
		return err
	}
	conn := r.conn
	r.mu.Unlock()

	if len(data) == 0 {
		return nil
	}
	if err := conn.Send(transports.Message{Type: transports.MessageBinary, Data: data}); err != nil {
		werr := errorsx.Wrap(err, errorsx.KindTransport, errorsx.CodeWriteFailed, "write audio failed")
		r.fail(nil, werr)
		return werr
	}
	r.bytesWritten.Add(int64(len(data)))
	return nil
}

// Stop signals the end of audio and blocks until the service delivers the
// recognition-complete frame, the configured stop timeout passes, or ctx is
// done. Audio written after Stop is rejected.
func (r *Recognizer) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.phase != PhaseActive {
		err := r.stopStateErrLocked()
		r.mu.Unlock()
		return err
	}
	r.transitionLocked(PhaseStopping)
	conn := r.conn
	voiceID := r.voiceID
	r.mu.Unlock()

	r.logger.Info("session_stopping", "voice_id", voiceID)

	if err := conn.Send(transports.Message{Type: transports.MessageText, Data: []byte(endSignal)}); err != nil {
		werr := errorsx.Wrap(err, errorsx.KindTransport, errorsx.CodeWriteFailed, "send end signal failed")
		r.fail(nil, werr)
		return werr
	}

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()
	select {
	case <-r.doneCh:
		r.mu.Lock()
		completed := r.completed
		terr := r.terminalError
		r.mu.Unlock()
		if completed {
			return nil
		}
		if terr != nil {
			return terr
		}
		return errorsx.New(errorsx.KindTransport, errorsx.CodeReadFailed, "connection closed before recognition completed")
	case <-timer.C:
		terr := errorsx.New(errorsx.KindTimeout, errorsx.CodeTimeout, "recognition-complete frame timed out")
		r.fail(nil, terr)
		return terr
	case <-ctx.Done():
		cerr := waitErr(ctx.Err(), "stop", errorsx.CodeReadFailed)
		r.fail(nil, cerr)
		return cerr
	}
}

// Close tears the session down without waiting for the service. It fires no
// callbacks, is idempotent, and is safe from any phase and any goroutine
// except listener callbacks.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	r.transitionLocked(PhaseClosed)
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	r.wg.Wait()
	return nil
}

// rollbackStart undoes the reservation taken at the top of Start. Only legal
// before any transport work happened.
func (r *Recognizer) rollbackStart() {
	r.mu.Lock()
	r.started = false
	r.voiceID = ""
	r.mu.Unlock()
}

// transitionLocked moves the lifecycle to the requested phase when the
// transition table allows it. Callers must hold mu.
func (r *Recognizer) transitionLocked(to Phase) bool {
	if !r.phase.canTransition(to) {
		return false
	}
	r.phase = to
	return true
}

func (r *Recognizer) startStateErrLocked() error {
	if r.phase == PhaseCreated {
		return errorsx.New(errorsx.KindLifecycle, errorsx.CodeAlreadyStarted, "recognizer start already in progress")
	}
	if r.phase.Terminal() {
		return errorsx.Newf(errorsx.KindLifecycle, errorsx.CodeAlreadyStopped, "recognizer is %s and cannot be restarted", r.phase)
	}
	return errorsx.New(errorsx.KindLifecycle, errorsx.CodeAlreadyStarted, "recognizer already started")
}

func (r *Recognizer) writeStateErrLocked() error {
	switch r.phase {
	case PhaseCreated, PhaseConnecting:
		return errorsx.New(errorsx.KindLifecycle, errorsx.CodeNotStarted, "recognizer not running")
	case PhaseErrored:
		return errorsx.New(errorsx.KindLifecycle, errorsx.CodeAlreadyStopped, "session has failed")
	default:
		return errorsx.New(errorsx.KindLifecycle, errorsx.CodeAlreadyStopped, "recognizer already stopped")
	}
}

func (r *Recognizer) stopStateErrLocked() error {
	switch r.phase {
	case PhaseCreated, PhaseConnecting:
		return errorsx.New(errorsx.KindLifecycle, errorsx.CodeNotStarted, "recognizer not running")
	case PhaseErrored:
		return errorsx.New(errorsx.KindLifecycle, errorsx.CodeAlreadyStopped, "session has failed")
	default:
		return errorsx.New(errorsx.KindLifecycle, errorsx.CodeAlreadyStopped, "recognizer already stopped")
	}
}

func (r *Recognizer) terminalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminalError != nil {
		return r.terminalError
	}
	return errorsx.New(errorsx.KindTransport, errorsx.CodeReadFailed, "connection closed before session became active")
}

// readLoop is the single consumer of the connection and the single closer of
// doneCh. It returns on the recognition-complete frame, on a terminal
// failure, or when the connection goes away.
func (r *Recognizer) readLoop(conn transports.Conn) {
	defer r.wg.Done()
	defer close(r.doneCh)

	for {
		msg, err := conn.Receive()
		if err != nil {
			r.fail(nil, errorsx.Wrap(err, errorsx.KindTransport, errorsx.CodeReadFailed, "connection closed unexpectedly"))
			return
		}

		var resp Response
		if uerr := json.Unmarshal(msg.Data, &resp); uerr != nil {
			// A frame the SDK cannot decode is reported without
			// ending the session; the next frame may be fine.
			perr := errorsx.Wrap(uerr, errorsx.KindProtocol, errorsx.CodeReadFailed, "unmarshal response failed")
			r.logger.Warn("frame_decode_failed", "voice_id", r.sessionVoiceID(), "error", uerr)
			r.listener.OnFail(nil, perr)
			continue
		}
		if resp.VoiceID == "" {
			resp.VoiceID = r.sessionVoiceID()
		}

		switch {
		case resp.Code != 0:
			r.serviceError(&resp)
			return
		case resp.Final == 1:
			r.complete(&resp)
			return
		case resp.Result == nil:
			r.ack(&resp)
		default:
			r.dispatchResult(&resp)
		}
	}
}

// ack handles the acknowledgment frame: the session becomes Active and Start
// unblocks. Later result-less frames still reach the listener but cannot
// re-trigger the activation.
func (r *Recognizer) ack(resp *Response) {
	r.mu.Lock()
	first := !r.ackSeen
	r.ackSeen = true
	if first {
		r.transitionLocked(PhaseActive)
		r.activeAt = r.now()
	}
	r.mu.Unlock()

	if first {
		close(r.ackCh)
		r.logger.Info("session_active", "voice_id", resp.VoiceID)
		r.obs.RecordEvent(metrics.Event{
			Name:    "session_active",
			Time:    r.now(),
			VoiceID: resp.VoiceID,
		})
	}
	r.listener.OnRecognitionStart(resp)
}

func (r *Recognizer) dispatchResult(resp *Response) {
	switch resp.Result.SliceType {
	case sliceTypeSentenceBegin:
		r.markFirstResult()
		r.listener.OnSentenceBegin(resp)
	case sliceTypeResultChange:
		r.markFirstResult()
		r.listener.OnRecognitionResultChange(resp)
	case sliceTypeSentenceEnd:
		r.markFirstResult()
		r.mu.Lock()
		r.sentences++
		r.mu.Unlock()
		r.listener.OnSentenceEnd(resp)
	default:
		perr := errorsx.Newf(errorsx.KindProtocol, errorsx.CodeReadFailed, "unknown slice type %d", resp.Result.SliceType)
		r.listener.OnFail(resp, perr)
	}
}

func (r *Recognizer) markFirstResult() {
	r.mu.Lock()
	if r.firstResult || r.activeAt.IsZero() {
		r.mu.Unlock()
		return
	}
	r.firstResult = true
	elapsed := r.now().Sub(r.activeAt)
	r.mu.Unlock()

	r.obs.RecordEvent(metrics.Event{
		Name:    "first_result",
		Time:    r.now(),
		VoiceID: r.sessionVoiceID(),
		Value:   float64(elapsed.Milliseconds()),
	})
}

// complete handles the final frame: the listener hears about it before the
// session is torn down, and a pending Stop unblocks once this returns.
func (r *Recognizer) complete(resp *Response) {
	r.mu.Lock()
	if !r.transitionLocked(PhaseClosed) {
		r.mu.Unlock()
		return
	}
	r.completed = true
	conn := r.conn
	sentences := r.sentences
	var elapsed time.Duration
	if !r.activeAt.IsZero() {
		elapsed = r.now().Sub(r.activeAt)
	}
	r.mu.Unlock()

	r.listener.OnRecognitionComplete(resp)
	if conn != nil {
		_ = conn.Close()
	}

	bytes := r.bytesWritten.Load()
	r.logger.Info("session_complete",
		"voice_id", resp.VoiceID,
		"bytes_written", bytes,
		"sentences", sentences,
	)
	r.obs.RecordEvent(metrics.Event{
		Name:    "session_complete",
		Time:    r.now(),
		VoiceID: resp.VoiceID,
		Value:   float64(bytes),
		Fields: map[string]any{
			"duration_ms": elapsed.Milliseconds(),
			"sentences":   sentences,
		},
	})
}

// serviceError handles a frame with a non-zero code. Before the
// acknowledgment such a frame means the service refused the session, which is
// an authentication failure; afterwards it is a server-side error.
func (r *Recognizer) serviceError(resp *Response) {
	r.mu.Lock()
	acked := r.ackSeen
	r.mu.Unlock()

	kind := errorsx.KindServer
	if !acked {
		kind = errorsx.KindAuthentication
	}
	r.fail(resp, errorsx.Newf(kind, errorsx.Code(resp.Code), "service error: %s", resp.Message))
}

// fail records the terminal error and fires OnFail exactly once. Calls after
// the session reached a terminal phase are teardown noise and are swallowed.
func (r *Recognizer) fail(resp *Response, err error) {
	r.mu.Lock()
	if !r.transitionLocked(PhaseErrored) {
		r.mu.Unlock()
		return
	}
	r.terminalError = err
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	r.logger.Error("session_failed",
		"voice_id", r.sessionVoiceID(),
		"error", err,
	)
	r.obs.RecordEvent(metrics.Event{
		Name:    "session_failed",
		Time:    r.now(),
		VoiceID: r.sessionVoiceID(),
		Fields:  map[string]any{"code": int(errorsx.CodeOf(err))},
	})
	r.listener.OnFail(resp, err)
}

func (r *Recognizer) sessionVoiceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voiceID
}

func classifyDialError(err error) error {
	var he *transports.HandshakeError
	if errors.As(err, &he) && (he.Status == 401 || he.Status == 403) {
		return errorsx.Wrap(err, errorsx.KindAuthentication, errorsx.CodeAuthFailed, "signature rejected")
	}
	return errorsx.Wrap(err, errorsx.KindTransport, errorsx.CodeConnectFailed, "websocket connect failed")
}

func waitErr(err error, op string, cancelCode errorsx.Code) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errorsx.Wrap(err, errorsx.KindTimeout, errorsx.CodeTimeout, op+" deadline exceeded")
	}
	return errorsx.Wrap(err, errorsx.KindTransport, cancelCode, op+" canceled")
}
