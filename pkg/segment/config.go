package segment

import (
	"errors"
	"fmt"
	"strings"
)

// Units selects how Timestamps are reported.
type Units string

const (
	UnitsSamples Units = "samples"
	UnitsSeconds Units = "seconds"
	UnitsBoth    Units = "both"
)

// ParseUnits accepts samples, seconds or both. Empty means samples.
func ParseUnits(s string) (Units, error) {
	switch Units(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnitsSamples:
		return UnitsSamples, nil
	case UnitsSeconds:
		return UnitsSeconds, nil
	case UnitsBoth:
		return UnitsBoth, nil
	}
	return "", fmt.Errorf("segment: unknown units %q", s)
}

// Config holds the segmentation parameters.
type Config struct {
	// Threshold: a frame with probability >= Threshold is speech.
	Threshold float32 `yaml:"threshold" json:"threshold"`
	// NegThreshold: a frame with probability < NegThreshold is silence.
	// Zero means max(Threshold-0.15, 0.01).
	NegThreshold float32 `yaml:"neg_threshold" json:"neg_threshold"`
	// MinSpeechDurationMs drops segments shorter than this.
	MinSpeechDurationMs int `yaml:"min_speech_duration_ms" json:"min_speech_duration_ms"`
	// MinSilenceDurationMs is the silence needed to close a segment.
	MinSilenceDurationMs int `yaml:"min_silence_duration_ms" json:"min_silence_duration_ms"`
	// SpeechPadMs is added on both sides of every segment.
	SpeechPadMs int `yaml:"speech_pad_ms" json:"speech_pad_ms"`
	// TimeResolution is the number of decimals kept for seconds.
	TimeResolution int `yaml:"time_resolution" json:"time_resolution"`
	// Units selects the Timestamp representation.
	Units Units `yaml:"units" json:"units"`
}

// DefaultConfig returns the standard Silero settings.
func DefaultConfig() Config {
	return Config{
		Threshold:            0.5,
		MinSpeechDurationMs:  250,
		MinSilenceDurationMs: 100,
		SpeechPadMs:          30,
		TimeResolution:       1,
		Units:                UnitsSamples,
	}
}

// EffectiveNegThreshold resolves the zero-value default.
func (c Config) EffectiveNegThreshold() float32 {
	if c.NegThreshold != 0 {
		return c.NegThreshold
	}
	neg := c.Threshold - 0.15
	if neg < 0.01 {
		neg = 0.01
	}
	return neg
}

// Validate returns every problem with c joined into one error.
func (c Config) Validate() error {
	var errs []error
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold must be in [0, 1], got %v", c.Threshold))
	}
	if c.NegThreshold < 0 || c.NegThreshold > 1 {
		errs = append(errs, fmt.Errorf("neg_threshold must be in [0, 1], got %v", c.NegThreshold))
	}
	if neg := c.EffectiveNegThreshold(); neg > c.Threshold {
		errs = append(errs, fmt.Errorf("neg_threshold %v must not exceed threshold %v", neg, c.Threshold))
	}
	if c.MinSpeechDurationMs < 0 {
		errs = append(errs, fmt.Errorf("min_speech_duration_ms must be >= 0, got %d", c.MinSpeechDurationMs))
	}
	if c.MinSilenceDurationMs < 0 {
		errs = append(errs, fmt.Errorf("min_silence_duration_ms must be >= 0, got %d", c.MinSilenceDurationMs))
	}
	if c.SpeechPadMs < 0 {
		errs = append(errs, fmt.Errorf("speech_pad_ms must be >= 0, got %d", c.SpeechPadMs))
	}
	if c.TimeResolution < 0 || c.TimeResolution > 9 {
		errs = append(errs, fmt.Errorf("time_resolution must be in [0, 9], got %d", c.TimeResolution))
	}
	if _, err := ParseUnits(string(c.Units)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// params is Config converted to samples at the model rate.
type params struct {
	threshold    float32
	negThreshold float32
	minSpeech    int
	minSilence   int
	pad          int
}

func msToSamples(sampleRate, ms int) int {
	return sampleRate * ms / 1000
}

func (c Config) params(sampleRate int) params {
	return params{
		threshold:    c.Threshold,
		negThreshold: c.EffectiveNegThreshold(),
		minSpeech:    msToSamples(sampleRate, c.MinSpeechDurationMs),
		minSilence:   msToSamples(sampleRate, c.MinSilenceDurationMs),
		pad:          msToSamples(sampleRate, c.SpeechPadMs),
	}
}
