package realtime

import "github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"

// mutateParams applies one parameter change under the configuration gate:
// session parameters are mutable only while the session is in PhaseCreated.
func (r *Recognizer) mutateParams(mutate func(p *Params)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseCreated || r.started {
		return errorsx.New(errorsx.KindLifecycle, errorsx.CodeAlreadyStarted, "session configuration is frozen after start")
	}
	next := r.params
	mutate(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	r.params = next
	return nil
}

// SetVoiceFormat selects the encoding of audio handed to Write.
func (r *Recognizer) SetVoiceFormat(format VoiceFormat) error {
	return r.mutateParams(func(p *Params) { p.VoiceFormat = format })
}

// SetNeedVAD toggles server-side voice activity detection.
func (r *Recognizer) SetNeedVAD(enabled bool) error {
	return r.mutateParams(func(p *Params) { p.NeedVAD = enabled })
}

// SetConvertNumMode selects smart (1) or verbatim (0) number transcription.
func (r *Recognizer) SetConvertNumMode(mode int) error {
	return r.mutateParams(func(p *Params) { p.ConvertNumMode = mode })
}

// SetHotwordID selects a server-side hotword vocabulary.
func (r *Recognizer) SetHotwordID(id string) error {
	return r.mutateParams(func(p *Params) { p.HotwordID = id })
}

// SetCustomizationID selects a server-side customized model.
func (r *Recognizer) SetCustomizationID(id string) error {
	return r.mutateParams(func(p *Params) { p.CustomizationID = id })
}

// SetFilterDirty toggles profanity filtering.
func (r *Recognizer) SetFilterDirty(enabled bool) error {
	return r.mutateParams(func(p *Params) { p.FilterDirty = enabled })
}

// SetFilterModal toggles filler-word filtering.
func (r *Recognizer) SetFilterModal(enabled bool) error {
	return r.mutateParams(func(p *Params) { p.FilterModal = enabled })
}

// SetFilterPunc toggles punctuation filtering.
func (r *Recognizer) SetFilterPunc(enabled bool) error {
	return r.mutateParams(func(p *Params) { p.FilterPunc = enabled })
}

// SetWordInfo toggles per-word timing in results.
func (r *Recognizer) SetWordInfo(enabled bool) error {
	return r.mutateParams(func(p *Params) { p.WordInfo = enabled })
}

// SetVADSilenceTime sets the sentence-ending silence gap in milliseconds.
// Zero keeps the server default.
func (r *Recognizer) SetVADSilenceTime(ms int) error {
	return r.mutateParams(func(p *Params) { p.VADSilenceMs = ms })
}

// SetMaxSpeakTime caps single-sentence duration in milliseconds. Zero keeps
// the server default.
func (r *Recognizer) SetMaxSpeakTime(ms int) error {
	return r.mutateParams(func(p *Params) { p.MaxSpeakMs = ms })
}

// SetVoiceID pins the session id instead of minting one at start.
func (r *Recognizer) SetVoiceID(id string) error {
	return r.mutateParams(func(p *Params) { p.VoiceID = id })
}
