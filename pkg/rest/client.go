// Package rest is the signed HTTP client shared by the one-shot recognition
// APIs. It builds the authenticated request URL, posts JSON bodies and
// unwraps the service's response envelope.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cloud-rtc/trtc-asr-go/pkg/credential"
	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
	"github.com/cloud-rtc/trtc-asr-go/pkg/logging"
	"github.com/cloud-rtc/trtc-asr-go/pkg/metrics"
	"github.com/cloud-rtc/trtc-asr-go/pkg/usersig"
)

// Endpoint is the production API endpoint.
const Endpoint = "https://asr.cloud-rtc.com"

// DefaultTimeout bounds one API round trip.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a non-200 body makes it into the error.
const maxErrorBody = 2048

// APIError is the error object the service returns inside a response
// envelope. Code is the service's string code, not an SDK code.
type APIError struct {
	Code      string `json:"Code"`
	Message   string `json:"Message"`
	RequestID string `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error [%s]: %s (RequestId: %s)", e.Code, e.Message, e.RequestID)
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint points the client at a non-production endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithTimeout bounds one API round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger routes request logs through the given base logger.
func WithLogger(base *slog.Logger) Option {
	return func(c *Client) { c.logger = logging.NewComponentLogger(base, "rest") }
}

// WithObserver records per-request metrics on the given observer.
func WithObserver(obs metrics.Observer) Option {
	return func(c *Client) {
		if obs != nil {
			c.obs = obs
		}
	}
}

// WithRetry replays requests that failed in transit per the given policy.
func WithRetry(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// Client posts signed JSON requests to the recognition API.
type Client struct {
	cred     *credential.Credential
	endpoint string
	http     *http.Client
	logger   *slog.Logger
	obs      metrics.Observer
	retry    RetryPolicy

	now          func() time.Time
	newNonce     func() int64
	newRequestID func() string
}

// NewClient builds a client for the production endpoint.
func NewClient(cred *credential.Credential, opts ...Option) (*Client, error) {
	if cred == nil {
		return nil, errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "credential is nil")
	}
	c := &Client{
		cred:         cred,
		endpoint:     Endpoint,
		http:         &http.Client{Timeout: DefaultTimeout},
		logger:       logging.NewComponentLogger(nil, "rest"),
		obs:          metrics.NoopObserver{},
		now:          time.Now,
		newNonce:     usersig.Nonce,
		newRequestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Post sends one signed API call and decodes the envelope's Response object
// into out. The action names the API operation, for example
// "SentenceRecognition"; out may be nil when the caller only cares about the
// error outcome.
func (c *Client) Post(ctx context.Context, action string, body any, out any) error {
	if action == "" {
		return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "action is empty")
	}
	if err := c.cred.Validate(); err != nil {
		return err
	}

	requestID := c.newRequestID()
	tok, err := usersig.New(c.cred, c.now(), usersig.DefaultTTL, c.newNonce())
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errorsx.Wrap(err, errorsx.KindValidation, errorsx.CodeInvalidParam, "marshal request failed")
	}

	q := url.Values{}
	q.Set("AppId", strconv.FormatInt(c.cred.AppID, 10))
	q.Set("Secretid", strconv.FormatInt(c.cred.AppID, 10))
	q.Set("RequestId", requestID)
	q.Set("Timestamp", strconv.FormatInt(c.now().Unix(), 10))
	reqURL := fmt.Sprintf("%s/v1/%s?%s", c.endpoint, action, q.Encode())

	var raw []byte
	err = c.retry.Do(ctx, func() error {
		var rerr error
		raw, rerr = c.roundTrip(ctx, action, requestID, reqURL, tok.Signature, payload)
		return rerr
	})
	if err != nil {
		return err
	}

	var env struct {
		Response json.RawMessage `json:"Response"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return errorsx.Wrap(err, errorsx.KindProtocol, errorsx.CodeReadFailed, "unmarshal response failed")
	}
	if len(env.Response) == 0 || string(env.Response) == "null" {
		return errorsx.New(errorsx.KindServer, errorsx.CodeServerError, "empty response from server")
	}

	var header struct {
		RequestID string    `json:"RequestId"`
		Error     *APIError `json:"Error"`
	}
	if err := json.Unmarshal(env.Response, &header); err != nil {
		return errorsx.Wrap(err, errorsx.KindProtocol, errorsx.CodeReadFailed, "unmarshal response failed")
	}
	if header.Error != nil {
		header.Error.RequestID = header.RequestID
		c.logger.Warn("api_refused",
			"action", action,
			"request_id", header.RequestID,
			"error_code", header.Error.Code,
		)
		return errorsx.Wrap(header.Error, errorsx.KindServer, errorsx.CodeServerError, "api request refused")
	}

	if out != nil {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return errorsx.Wrap(err, errorsx.KindProtocol, errorsx.CodeReadFailed, "unmarshal response failed")
		}
	}
	return nil
}

// roundTrip performs one HTTP attempt. Each call builds a fresh request so
// the body can be replayed on retry.
func (c *Client) roundTrip(ctx context.Context, action, requestID, reqURL, userSig string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.KindValidation, errorsx.CodeInvalidParam, "build request failed")
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("X-TRTC-SdkAppId", strconv.FormatInt(c.cred.SDKAppID, 10))
	req.Header.Set("X-TRTC-UserSig", userSig)

	began := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(action, requestID, 0, began)
		return nil, errorsx.Wrap(err, errorsx.KindTransport, errorsx.CodeConnectFailed, "http request failed")
	}
	defer resp.Body.Close()
	c.observe(action, requestID, resp.StatusCode, began)

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errorsx.Newf(errorsx.KindServer, errorsx.CodeServerError, "http status %d: %s", resp.StatusCode, snippet)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.KindTransport, errorsx.CodeReadFailed, "read response failed")
	}
	return raw, nil
}

func (c *Client) observe(action, requestID string, status int, began time.Time) {
	elapsed := c.now().Sub(began)
	c.logger.Debug("api_request",
		"action", action,
		"request_id", requestID,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
	)
	c.obs.RecordEvent(metrics.Event{
		Name:  "api_request",
		Time:  c.now(),
		Value: float64(elapsed.Milliseconds()),
		Fields: map[string]any{
			"action": action,
			"status": status,
		},
	})
}
