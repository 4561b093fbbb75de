// Package fileasr transcribes audio files through the asynchronous task API:
// submit a recognition task, then poll until the service finishes it. It
// handles longer recordings than the one-shot sentence API, up to 5 MiB
// inline or 1 GiB by URL.
package fileasr

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/cloud-rtc/trtc-asr-go/pkg/credential"
	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
	"github.com/cloud-rtc/trtc-asr-go/pkg/rest"
)

// Audio source selectors.
const (
	SourceTypeURL  = 0
	SourceTypeData = 1
)

// Task states reported by DescribeTaskStatus.
const (
	StatusWaiting = 0
	StatusRunning = 1
	StatusSuccess = 2
	StatusFailed  = 3
)

// Polling defaults for WaitForResult.
const (
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 10 * time.Minute
)

// maxDataBytes is the raw audio limit for inline submission.
const maxDataBytes = 5 << 20

const (
	actionCreate   = "CreateRecTask"
	actionDescribe = "DescribeTaskStatus"
)

// CreateTaskRequest is the JSON body for task submission. Field names follow
// the service's API.
type CreateTaskRequest struct {
	EngineModelType string `json:"EngineModelType"`
	ChannelNum      int    `json:"ChannelNum"`
	ResTextFormat   int    `json:"ResTextFormat"`
	SourceType      int    `json:"SourceType"`

	// URL is required when SourceType is SourceTypeURL; Data and DataLen
	// when SourceType is SourceTypeData. Data carries base64-encoded audio.
	URL     string `json:"Url,omitempty"`
	Data    string `json:"Data,omitempty"`
	DataLen int    `json:"DataLen,omitempty"`

	CallbackURL    string `json:"CallbackUrl,omitempty"`
	FilterDirty    int    `json:"FilterDirty,omitempty"`
	FilterModal    int    `json:"FilterModal,omitempty"`
	FilterPunc     int    `json:"FilterPunc,omitempty"`
	ConvertNumMode int    `json:"ConvertNumMode,omitempty"`
	HotwordID      string `json:"HotwordId,omitempty"`
	HotwordList    string `json:"HotwordList,omitempty"`
}

func (r CreateTaskRequest) validate() error {
	if r.EngineModelType == "" {
		return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "engine model type is required")
	}
	if r.ChannelNum <= 0 {
		return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "channel num must be positive")
	}
	switch r.SourceType {
	case SourceTypeURL:
		if r.URL == "" {
			return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "url is required when source type is 0")
		}
	case SourceTypeData:
		if r.Data == "" {
			return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "data is required when source type is 1")
		}
	default:
		return errorsx.Newf(errorsx.KindValidation, errorsx.CodeInvalidParam, "unknown source type %d", r.SourceType)
	}
	return nil
}

// Words is word-level timing inside a SentenceDetail. Offsets are
// milliseconds relative to the sentence start.
type Words struct {
	Word          string `json:"Word"`
	OffsetStartMs int    `json:"OffsetStartMs"`
	OffsetEndMs   int    `json:"OffsetEndMs"`
}

// SentenceDetail is one recognized sentence with timing and speed details.
type SentenceDetail struct {
	FinalSentence string  `json:"FinalSentence"`
	SliceSentence string  `json:"SliceSentence"`
	WrittenText   string  `json:"WrittenText"`
	StartMs       int     `json:"StartMs"`
	EndMs         int     `json:"EndMs"`
	WordsNum      int     `json:"WordsNum"`
	Words         []Words `json:"Words"`
	SpeechSpeed   float64 `json:"SpeechSpeed"`
	SilenceTime   int     `json:"SilenceTime"`
}

// TaskStatus is the state of a submitted task. Result and ResultDetail are
// populated once Status reaches StatusSuccess; ErrorMsg once StatusFailed.
type TaskStatus struct {
	RecTaskID     string           `json:"RecTaskId"`
	Status        int              `json:"Status"`
	StatusStr     string           `json:"StatusStr"`
	Result        string           `json:"Result"`
	ErrorMsg      string           `json:"ErrorMsg"`
	ResultDetail  []SentenceDetail `json:"ResultDetail"`
	AudioDuration float64          `json:"AudioDuration"`
}

// Recognizer is the file recognition client.
type Recognizer struct {
	client *rest.Client
}

// NewRecognizer builds a client for the production endpoint. Options are the
// shared rest client options.
func NewRecognizer(cred *credential.Credential, opts ...rest.Option) (*Recognizer, error) {
	client, err := rest.NewClient(cred, opts...)
	if err != nil {
		return nil, err
	}
	return &Recognizer{client: client}, nil
}

// CreateTask submits a fully specified task and returns its id.
func (r *Recognizer) CreateTask(ctx context.Context, req CreateTaskRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	var out struct {
		Data struct {
			RecTaskID string `json:"RecTaskId"`
		} `json:"Data"`
	}
	if err := r.client.Post(ctx, actionCreate, req, &out); err != nil {
		return "", err
	}
	if out.Data.RecTaskID == "" {
		return "", errorsx.New(errorsx.KindServer, errorsx.CodeServerError, "empty RecTaskId in response")
	}
	return out.Data.RecTaskID, nil
}

// CreateTaskFromData submits raw audio bytes, at most 5 MiB.
func (r *Recognizer) CreateTaskFromData(ctx context.Context, data []byte, engineModelType string) (string, error) {
	req := CreateTaskRequest{
		EngineModelType: engineModelType,
		ChannelNum:      1,
		ResTextFormat:   1,
		SourceType:      SourceTypeData,
	}
	return r.CreateTaskFromDataWithRequest(ctx, data, req)
}

// CreateTaskFromDataWithRequest submits raw audio bytes with a pre-configured
// request; the source type and data fields are filled in from data.
func (r *Recognizer) CreateTaskFromDataWithRequest(ctx context.Context, data []byte, req CreateTaskRequest) (string, error) {
	if len(data) == 0 {
		return "", errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "audio data is empty")
	}
	if len(data) > maxDataBytes {
		return "", errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "audio data exceeds 5MB limit")
	}
	req.SourceType = SourceTypeData
	req.Data = base64.StdEncoding.EncodeToString(data)
	req.DataLen = len(data)
	req.URL = ""
	return r.CreateTask(ctx, req)
}

// CreateTaskFromURL submits audio the service fetches from audioURL. The
// recording may be up to 12 hours and 1 GiB.
func (r *Recognizer) CreateTaskFromURL(ctx context.Context, audioURL, engineModelType string) (string, error) {
	if audioURL == "" {
		return "", errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "audio url is empty")
	}
	req := CreateTaskRequest{
		EngineModelType: engineModelType,
		ChannelNum:      1,
		ResTextFormat:   1,
		SourceType:      SourceTypeURL,
		URL:             audioURL,
	}
	return r.CreateTask(ctx, req)
}

// DescribeTaskStatus queries one task.
func (r *Recognizer) DescribeTaskStatus(ctx context.Context, recTaskID string) (*TaskStatus, error) {
	if recTaskID == "" {
		return nil, errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "rec task id is empty")
	}
	body := map[string]string{"RecTaskId": recTaskID}
	var out struct {
		Data *TaskStatus `json:"Data"`
	}
	if err := r.client.Post(ctx, actionDescribe, body, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, errorsx.New(errorsx.KindServer, errorsx.CodeServerError, "empty task status in response")
	}
	return out.Data, nil
}

// WaitForResult polls the task with the default interval and timeout until it
// succeeds, fails, times out, or ctx is done.
func (r *Recognizer) WaitForResult(ctx context.Context, recTaskID string) (*TaskStatus, error) {
	return r.WaitForResultInterval(ctx, recTaskID, DefaultPollInterval, DefaultPollTimeout)
}

// WaitForResultInterval polls with a custom interval and overall timeout. A
// failed task surfaces as a server error carrying the task's error message.
func (r *Recognizer) WaitForResultInterval(ctx context.Context, recTaskID string, interval, timeout time.Duration) (*TaskStatus, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := r.DescribeTaskStatus(ctx, recTaskID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case StatusSuccess:
			return status, nil
		case StatusFailed:
			return nil, errorsx.Newf(errorsx.KindServer, errorsx.CodeServerError, "task failed: %s (RecTaskId: %s)", status.ErrorMsg, status.RecTaskID)
		}

		if time.Now().After(deadline) {
			return nil, errorsx.Newf(errorsx.KindTimeout, errorsx.CodeTimeout, "task not completed within %s (RecTaskId: %s, Status: %s)", timeout, recTaskID, status.StatusStr)
		}
		select {
		case <-ctx.Done():
			return nil, errorsx.Wrap(ctx.Err(), errorsx.KindTimeout, errorsx.CodeTimeout, "wait for result canceled")
		case <-ticker.C:
		}
	}
}
