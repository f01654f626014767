package runner

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/realtime-ai/vadseg/pkg/segment"
)

// BenchResult summarizes repeated segmentation of one file.
type BenchResult struct {
	File         string          `json:"file"`
	AudioSeconds float64         `json:"audio_seconds"`
	Runs         int             `json:"runs"`
	Mean         time.Duration   `json:"mean"`
	Min          time.Duration   `json:"min"`
	Max          time.Duration   `json:"max"`
	Durations    []time.Duration `json:"durations"`
	// RTF is the real-time factor, mean processing time over audio length.
	RTF      float64 `json:"rtf"`
	Segments int     `json:"segments"`
}

// Bench decodes path once, then runs warmup untimed and runs timed
// segmentations of it.
func (r *Runner) Bench(ctx context.Context, path string, runs, warmup int) (*BenchResult, error) {
	if runs < 1 {
		return nil, errors.New("runner: bench needs at least one run")
	}
	clip, err := r.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	out := &BenchResult{File: path, AudioSeconds: clip.Duration(), Runs: runs}
	err = r.With(ctx, func(s *segment.Segmenter) error {
		for range warmup {
			if _, err := s.Detect(ctx, clip.Samples, clip.SampleRate); err != nil {
				return err
			}
		}
		for range runs {
			start := time.Now()
			res, err := s.Detect(ctx, clip.Samples, clip.SampleRate)
			if err != nil {
				return err
			}
			out.Durations = append(out.Durations, time.Since(start))
			out.Segments = len(res.Segments)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var total time.Duration
	out.Min = out.Durations[0]
	for _, d := range out.Durations {
		total += d
		out.Min = min(out.Min, d)
		out.Max = max(out.Max, d)
	}
	out.Mean = total / time.Duration(runs)
	if out.AudioSeconds > 0 {
		out.RTF = out.Mean.Seconds() / out.AudioSeconds
	}
	r.log.WithFields(logrus.Fields{
		"file": path,
		"mean": out.Mean,
		"rtf":  out.RTF,
	}).Info("bench done")
	return out, nil
}
