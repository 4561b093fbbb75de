// Package configutil decodes the free-form settings maps that reach the SDK
// from YAML config files, in the shape viper produces. Keys match loosely:
// vad_silence_time, vadSilenceTime and vad-silence-time all name the same
// setting.
package configutil

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mitchellh/mapstructure"

	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
)

// Schema lists the keys a settings map may carry. Keys outside the schema
// are rejected so config typos surface instead of silently becoming
// defaults.
type Schema struct {
	Required []string
	Optional []string

	// AllowUnknown admits keys outside the schema, for maps that mix SDK
	// settings with caller-owned extras.
	AllowUnknown bool
}

// Check verifies that every required key is present and non-blank and,
// unless AllowUnknown is set, that no key falls outside the schema.
func (s Schema) Check(input map[string]any) error {
	allowed := make(map[string]struct{}, len(s.Required)+len(s.Optional))
	pending := make(map[string]string, len(s.Required))
	for _, k := range s.Required {
		allowed[foldKey(k)] = struct{}{}
		pending[foldKey(k)] = k
	}
	for _, k := range s.Optional {
		allowed[foldKey(k)] = struct{}{}
	}

	var missing, unknown []string
	for k, v := range input {
		fk := foldKey(k)
		if _, ok := allowed[fk]; !ok {
			if !s.AllowUnknown {
				unknown = append(unknown, k)
			}
			continue
		}
		if name, ok := pending[fk]; ok {
			if blank(v) {
				missing = append(missing, name)
			}
			delete(pending, fk)
		}
	}
	for _, name := range pending {
		missing = append(missing, name)
	}
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(unknown)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(unknown, ", "))
	}
	return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "settings "+strings.Join(parts, "; "))
}

// Decode checks input against the schema and decodes it into out, a pointer
// to a mapstructure-tagged struct. Conversion is weakly typed, so the "500"
// and "true" scalars YAML sometimes yields still land in int and bool
// fields.
func Decode(input map[string]any, out any, schema Schema) error {
	if err := schema.Check(input); err != nil {
		return err
	}
	if len(input) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return foldKey(mapKey) == foldKey(fieldName)
		},
	})
	if err != nil {
		return errorsx.Wrap(err, errorsx.KindValidation, errorsx.CodeInvalidParam, "settings decoder failed")
	}
	if err := dec.Decode(input); err != nil {
		return errorsx.Wrap(err, errorsx.KindValidation, errorsx.CodeInvalidParam, "settings do not fit schema")
	}
	return nil
}

// Or returns fallback when the optional setting was absent.
func Or[T any](value *T, fallback T) T {
	if value == nil {
		return fallback
	}
	return *value
}

func foldKey(k string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return -1
		}
		return unicode.ToLower(r)
	}, k)
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
