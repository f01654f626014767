package segment

import (
	"encoding/json"
	"math"
)

// Timestamp is an output segment in the configured units.
type Timestamp struct {
	Start        int
	End          int
	StartSeconds float64
	EndSeconds   float64
	Units        Units
}

// MarshalJSON emits {start,end} as samples or seconds, or all four fields
// for UnitsBoth.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	switch t.Units {
	case UnitsSeconds:
		return json.Marshal(struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		}{t.StartSeconds, t.EndSeconds})
	case UnitsBoth:
		return json.Marshal(struct {
			Start        int     `json:"start"`
			End          int     `json:"end"`
			StartSeconds float64 `json:"start_seconds"`
			EndSeconds   float64 `json:"end_seconds"`
		}{t.Start, t.End, t.StartSeconds, t.EndSeconds})
	}
	return json.Marshal(struct {
		Start int `json:"start"`
		End   int `json:"end"`
	}{t.Start, t.End})
}

// Result is the segmentation of one stream.
type Result struct {
	// Segments are padded ranges in source sample indices.
	Segments []Segment `json:"segments"`
	// Timestamps are Segments in the configured units.
	Timestamps []Timestamp `json:"speech_timestamps"`
	// SampleRate is the source rate.
	SampleRate int `json:"sampling_rate"`
	// ModelRate is the rate the prober ran at.
	ModelRate int `json:"model_rate"`
	// TotalSamples counts source samples.
	TotalSamples int `json:"total_samples"`
	// Frames counts prober calls.
	Frames int `json:"frames"`
}

// Duration returns the stream length in seconds.
func (r *Result) Duration() float64 {
	if r.SampleRate == 0 {
		return 0
	}
	return float64(r.TotalSamples) / float64(r.SampleRate)
}

// SpeechSamples returns the number of samples inside segments.
func (r *Result) SpeechSamples() int {
	n := 0
	for _, s := range r.Segments {
		n += s.Len()
	}
	return n
}

// roundTo rounds to the given decimal places, halves to even.
func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.RoundToEven(v*scale) / scale
}

func timestamps(segs []Segment, sampleRate int, cfg Config) []Timestamp {
	units := cfg.Units
	if units == "" {
		units = UnitsSamples
	}
	out := make([]Timestamp, len(segs))
	for i, s := range segs {
		out[i] = Timestamp{
			Start:        s.Start,
			End:          s.End,
			StartSeconds: roundTo(float64(s.Start)/float64(sampleRate), cfg.TimeResolution),
			EndSeconds:   roundTo(float64(s.End)/float64(sampleRate), cfg.TimeResolution),
			Units:        units,
		}
	}
	return out
}
