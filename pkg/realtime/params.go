package realtime

import (
	"net/url"
	"strconv"

	"github.com/cloud-rtc/trtc-asr-go/pkg/configutil"
	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
	"github.com/cloud-rtc/trtc-asr-go/pkg/usersig"
)

// VoiceFormat identifies the audio encoding streamed to the service.
type VoiceFormat int

const (
	FormatPCM   VoiceFormat = 1
	FormatSpeex VoiceFormat = 4
	FormatSilk  VoiceFormat = 6
	FormatMP3   VoiceFormat = 8
	FormatOpus  VoiceFormat = 10
	FormatWAV   VoiceFormat = 12
)

func (f VoiceFormat) valid() bool {
	switch f {
	case FormatPCM, FormatSpeex, FormatSilk, FormatMP3, FormatOpus, FormatWAV:
		return true
	}
	return false
}

// Common engine model types. Any string the service recognizes is accepted.
const (
	Model8kZH    = "8k_zh"
	Model16kZH   = "16k_zh"
	Model16kEN   = "16k_en"
	Model16kZhEn = "16k_zh_en"
)

// Params is the per-session recognition configuration. The zero value is not
// usable; start from DefaultParams. Durations are milliseconds, matching the
// wire protocol.
type Params struct {
	// VoiceFormat is the encoding of the audio handed to Write.
	VoiceFormat VoiceFormat

	// NeedVAD enables server-side voice activity detection. The service
	// requires it for multi-sentence sessions, so it defaults to true.
	NeedVAD bool

	// ConvertNumMode selects smart number conversion (1) or verbatim
	// transcription (0).
	ConvertNumMode int

	// HotwordID names a server-side hotword vocabulary.
	HotwordID string

	// CustomizationID names a server-side customized model.
	CustomizationID string

	// FilterDirty, FilterModal and FilterPunc strip profanity, filler
	// words and punctuation respectively.
	FilterDirty bool
	FilterModal bool
	FilterPunc  bool

	// WordInfo requests per-word timing in results.
	WordInfo bool

	// VADSilenceMs is the silence gap that ends a sentence. Zero keeps the
	// server default; otherwise the service accepts 200 through 10000.
	VADSilenceMs int

	// MaxSpeakMs caps a single sentence before a forced cut. Zero keeps
	// the server default; otherwise the service accepts 5000 through 90000.
	MaxSpeakMs int

	// VoiceID identifies the session. Empty means a fresh random id is
	// minted at start.
	VoiceID string
}

// DefaultParams returns the session defaults: 16 kHz PCM, VAD on, smart
// number conversion, one-second sentence gap, one-minute sentence cap.
func DefaultParams() Params {
	return Params{
		VoiceFormat:    FormatPCM,
		NeedVAD:        true,
		ConvertNumMode: 1,
		VADSilenceMs:   1000,
		MaxSpeakMs:     60000,
	}
}

// Validate rejects parameter combinations the service would refuse, so the
// failure surfaces before any connection is opened.
func (p Params) Validate() error {
	if !p.VoiceFormat.valid() {
		return errorsx.Newf(errorsx.KindValidation, errorsx.CodeInvalidParam, "unsupported voice format %d", int(p.VoiceFormat))
	}
	if p.ConvertNumMode < 0 || p.ConvertNumMode > 1 {
		return errorsx.Newf(errorsx.KindValidation, errorsx.CodeInvalidParam, "convert_num_mode must be 0 or 1, got %d", p.ConvertNumMode)
	}
	if p.VADSilenceMs != 0 && (p.VADSilenceMs < 200 || p.VADSilenceMs > 10000) {
		return errorsx.Newf(errorsx.KindValidation, errorsx.CodeInvalidParam, "vad_silence_time must be 0 or within [200, 10000], got %d", p.VADSilenceMs)
	}
	if p.MaxSpeakMs != 0 && (p.MaxSpeakMs < 5000 || p.MaxSpeakMs > 90000) {
		return errorsx.Newf(errorsx.KindValidation, errorsx.CodeInvalidParam, "max_speak_time must be 0 or within [5000, 90000], got %d", p.MaxSpeakMs)
	}
	return nil
}

var paramsSchema = configutil.Schema{
	Optional: []string{
		"voice_format",
		"need_vad",
		"convert_num_mode",
		"hotword_id",
		"customization_id",
		"filter_dirty",
		"filter_modal",
		"filter_punc",
		"word_info",
		"vad_silence_time",
		"max_speak_time",
		"voice_id",
	},
}

// ParamsFromSettings builds Params from a free-form settings map, typically
// the session block of a config file. Keys use the wire names; absent keys
// keep the DefaultParams value.
func ParamsFromSettings(settings map[string]any) (Params, error) {
	var raw struct {
		VoiceFormat     *int   `mapstructure:"voice_format"`
		NeedVAD         *bool  `mapstructure:"need_vad"`
		ConvertNumMode  *int   `mapstructure:"convert_num_mode"`
		HotwordID       string `mapstructure:"hotword_id"`
		CustomizationID string `mapstructure:"customization_id"`
		FilterDirty     *bool  `mapstructure:"filter_dirty"`
		FilterModal     *bool  `mapstructure:"filter_modal"`
		FilterPunc      *bool  `mapstructure:"filter_punc"`
		WordInfo        *bool  `mapstructure:"word_info"`
		VADSilenceMs    *int   `mapstructure:"vad_silence_time"`
		MaxSpeakMs      *int   `mapstructure:"max_speak_time"`
		VoiceID         string `mapstructure:"voice_id"`
	}
	if err := configutil.Decode(settings, &raw, paramsSchema); err != nil {
		return Params{}, errorsx.Wrap(err, errorsx.KindValidation, errorsx.CodeInvalidParam, "invalid session settings")
	}

	p := DefaultParams()
	if raw.VoiceFormat != nil {
		p.VoiceFormat = VoiceFormat(*raw.VoiceFormat)
	}
	p.NeedVAD = configutil.Or(raw.NeedVAD, p.NeedVAD)
	p.ConvertNumMode = configutil.Or(raw.ConvertNumMode, p.ConvertNumMode)
	p.HotwordID = raw.HotwordID
	p.CustomizationID = raw.CustomizationID
	p.FilterDirty = configutil.Or(raw.FilterDirty, p.FilterDirty)
	p.FilterModal = configutil.Or(raw.FilterModal, p.FilterModal)
	p.FilterPunc = configutil.Or(raw.FilterPunc, p.FilterPunc)
	p.WordInfo = configutil.Or(raw.WordInfo, p.WordInfo)
	p.VADSilenceMs = configutil.Or(raw.VADSilenceMs, p.VADSilenceMs)
	p.MaxSpeakMs = configutil.Or(raw.MaxSpeakMs, p.MaxSpeakMs)
	p.VoiceID = raw.VoiceID

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// queryValues assembles the signed query set for one session. Required keys
// are always present; optional tuning keys appear only when set, so the
// signed URL stays minimal and stable. url.Values.Encode sorts keys and
// escapes values, which is exactly the canonical form the service verifies.
func (p Params) queryValues(appID int64, engineModelType, voiceID string, tok usersig.Token) url.Values {
	q := url.Values{}
	q.Set("secretid", strconv.FormatInt(appID, 10))
	q.Set("timestamp", strconv.FormatInt(tok.IssuedAt, 10))
	q.Set("expired", strconv.FormatInt(tok.ExpiresAt, 10))
	q.Set("nonce", strconv.FormatInt(tok.Nonce, 10))
	q.Set("engine_model_type", engineModelType)
	q.Set("voice_id", voiceID)
	q.Set("voice_format", strconv.Itoa(int(p.VoiceFormat)))
	q.Set("needvad", boolFlag(p.NeedVAD))

	if p.HotwordID != "" {
		q.Set("hotword_id", p.HotwordID)
	}
	if p.CustomizationID != "" {
		q.Set("customization_id", p.CustomizationID)
	}
	if p.FilterDirty {
		q.Set("filter_dirty", "1")
	}
	if p.FilterModal {
		q.Set("filter_modal", "1")
	}
	if p.FilterPunc {
		q.Set("filter_punc", "1")
	}
	if p.ConvertNumMode != 0 {
		q.Set("convert_num_mode", strconv.Itoa(p.ConvertNumMode))
	}
	if p.WordInfo {
		q.Set("word_info", "1")
	}
	if p.VADSilenceMs != 0 {
		q.Set("vad_silence_time", strconv.Itoa(p.VADSilenceMs))
	}
	if p.MaxSpeakMs != 0 {
		q.Set("max_speak_time", strconv.Itoa(p.MaxSpeakMs))
	}
	return q
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
