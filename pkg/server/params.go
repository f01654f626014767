package server

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/realtime-ai/vadseg/pkg/audio"
	"github.com/realtime-ai/vadseg/pkg/segment"
)

// encodingWAV asks the HTTP endpoint to parse a WAV body.
const encodingWAV = "wav"

// streamParams are the per-request query parameters.
type streamParams struct {
	SampleRate int
	Encoding   string
	Config     segment.Config
}

// parseParams reads sample_rate, encoding and segmentation overrides from
// q on top of base.
func parseParams(q url.Values, base segment.Config, allowWAV bool) (streamParams, error) {
	p := streamParams{SampleRate: audio.DefaultSampleRate, Encoding: string(audio.PCM16LE), Config: base}

	if v := q.Get("sample_rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("sample_rate: %w", err)
		}
		p.SampleRate = n
	}
	if v := q.Get("encoding"); v != "" {
		if allowWAV && v == encodingWAV {
			p.Encoding = encodingWAV
		} else {
			enc, err := audio.ParseEncoding(v)
			if err != nil {
				return p, err
			}
			p.Encoding = string(enc)
		}
	}
	if p.Encoding != encodingWAV {
		if _, _, err := segment.Layout(p.SampleRate); err != nil {
			return p, err
		}
	}

	floats := map[string]*float32{
		"threshold":     &p.Config.Threshold,
		"neg_threshold": &p.Config.NegThreshold,
	}
	for key, dst := range floats {
		if v := q.Get(key); v != "" {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				return p, fmt.Errorf("%s: %w", key, err)
			}
			*dst = float32(f)
		}
	}
	ints := map[string]*int{
		"min_speech_ms":   &p.Config.MinSpeechDurationMs,
		"min_silence_ms":  &p.Config.MinSilenceDurationMs,
		"speech_pad_ms":   &p.Config.SpeechPadMs,
		"time_resolution": &p.Config.TimeResolution,
	}
	for key, dst := range ints {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return p, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v := q.Get("units"); v != "" {
		u, err := segment.ParseUnits(v)
		if err != nil {
			return p, err
		}
		p.Config.Units = u
	}
	return p, p.Config.Validate()
}
