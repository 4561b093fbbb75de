// Package sentence recognizes short utterances (up to one minute) in a single
// signed HTTP call, either from raw audio bytes or from an audio URL.
package sentence

import (
	"context"
	"encoding/base64"

	"github.com/cloud-rtc/trtc-asr-go/pkg/credential"
	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
	"github.com/cloud-rtc/trtc-asr-go/pkg/rest"
)

// Audio source selectors.
const (
	SourceTypeURL  = 0
	SourceTypeData = 1
)

// maxDataBytes is the raw audio limit for inline submission.
const maxDataBytes = 3 << 20

const action = "SentenceRecognition"

// Request is the JSON body of one recognition call. Field names follow the
// service's API, including its spelling of EngSerViceType.
type Request struct {
	EngSerViceType string `json:"EngSerViceType"`
	SourceType     int    `json:"SourceType"`
	VoiceFormat    string `json:"VoiceFormat"`

	// URL is required when SourceType is SourceTypeURL; Data and DataLen
	// when SourceType is SourceTypeData. Data carries base64-encoded audio.
	URL     string `json:"Url,omitempty"`
	Data    string `json:"Data,omitempty"`
	DataLen int    `json:"DataLen,omitempty"`

	WordInfo    int `json:"WordInfo,omitempty"`
	FilterDirty int `json:"FilterDirty,omitempty"`
	FilterModal int `json:"FilterModal,omitempty"`
	FilterPunc  int `json:"FilterPunc,omitempty"`

	// ConvertNumMode defaults to smart conversion (1) on the server; nil
	// keeps that default, a pointer to 0 requests verbatim numbers.
	ConvertNumMode *int `json:"ConvertNumMode,omitempty"`

	HotwordID       string `json:"HotwordId,omitempty"`
	HotwordList     string `json:"HotwordList,omitempty"`
	InputSampleRate int    `json:"InputSampleRate,omitempty"`
}

func (r Request) validate() error {
	if r.EngSerViceType == "" {
		return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "engine service type is required")
	}
	if r.VoiceFormat == "" {
		return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "voice format is required")
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

// Word is word-level timing inside a Result.
type Word struct {
	Word      string `json:"Word"`
	StartTime int    `json:"StartTime"`
	EndTime   int    `json:"EndTime"`
}

// Result is the recognition outcome. AudioDuration is milliseconds.
type Result struct {
	Result        string `json:"Result"`
	AudioDuration int    `json:"AudioDuration"`
	WordSize      int    `json:"WordSize"`
	WordList      []Word `json:"WordList"`
	RequestID     string `json:"RequestId"`
}

// Recognizer is the one-shot recognition client.
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

// Recognize sends a fully specified request.
func (r *Recognizer) Recognize(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var out Result
	if err := r.client.Post(ctx, action, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecognizeData recognizes raw audio bytes, at most 3 MiB. voiceFormat names
// the container, for example "pcm", "wav" or "mp3".
func (r *Recognizer) RecognizeData(ctx context.Context, data []byte, voiceFormat, engineModelType string) (*Result, error) {
	req := Request{
		EngSerViceType: engineModelType,
		SourceType:     SourceTypeData,
		VoiceFormat:    voiceFormat,
	}
	return r.RecognizeDataWithRequest(ctx, data, req)
}

// RecognizeDataWithRequest recognizes raw audio bytes with a pre-configured
// request; the source type and data fields are filled in from data.
func (r *Recognizer) RecognizeDataWithRequest(ctx context.Context, data []byte, req Request) (*Result, error) {
	if len(data) == 0 {
		return nil, errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "audio data is empty")
	}
	if len(data) > maxDataBytes {
		return nil, errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "audio data exceeds 3MB limit")
	}
	req.SourceType = SourceTypeData
	req.Data = base64.StdEncoding.EncodeToString(data)
	req.DataLen = len(data)
	req.URL = ""
	return r.Recognize(ctx, req)
}

// RecognizeURL recognizes audio the service fetches from audioURL.
func (r *Recognizer) RecognizeURL(ctx context.Context, audioURL, voiceFormat, engineModelType string) (*Result, error) {
	if audioURL == "" {
		return nil, errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "audio url is empty")
	}
	req := Request{
		EngSerViceType: engineModelType,
		SourceType:     SourceTypeURL,
		VoiceFormat:    voiceFormat,
		URL:            audioURL,
	}
	return r.Recognize(ctx, req)
}
