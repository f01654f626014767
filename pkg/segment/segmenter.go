package segment

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/vadseg/pkg/logger"
	"github.com/realtime-ai/vadseg/pkg/metrics"
	"github.com/realtime-ai/vadseg/pkg/trace"
	"github.com/realtime-ai/vadseg/pkg/vad"
)

// ErrBusy is returned when a Segmenter already has a stream in progress.
var ErrBusy = errors.New("segment: segmenter busy with another stream")

// Segmenter drives one prober. Only one stream may use it at a time; the
// prober is reset at the start of every stream.
type Segmenter struct {
	prober  vad.Prober
	cfg     Config
	metrics *metrics.Metrics
	log     *logrus.Entry
	busy    atomic.Bool
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithMetrics records frames, segments and streams on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Segmenter) { s.metrics = m }
}

// WithLogger replaces the component logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Segmenter) { s.log = l }
}

// New creates a Segmenter that owns prober.
func New(prober vad.Prober, cfg Config, opts ...Option) (*Segmenter, error) {
	if prober == nil {
		return nil, errors.New("segment: nil prober")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("segment: invalid config: %w", err)
	}
	s := &Segmenter{
		prober: prober,
		cfg:    cfg,
		log:    logger.WithComponent("segmenter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the segmentation parameters.
func (s *Segmenter) Config() Config {
	return s.cfg
}

// Close destroys the prober.
func (s *Segmenter) Close() error {
	return s.prober.Destroy()
}

// Layout resolves the model rate and decimation step for a source rate.
// 8 kHz and 16 kHz run natively; multiples of 16 kHz keep every step-th
// sample.
func Layout(sampleRate int) (modelRate, step int, err error) {
	switch {
	case sampleRate == vad.SampleRate8k || sampleRate == vad.SampleRate16k:
		return sampleRate, 1, nil
	case sampleRate > vad.SampleRate16k && sampleRate%vad.SampleRate16k == 0:
		return vad.SampleRate16k, sampleRate / vad.SampleRate16k, nil
	}
	return 0, 0, fmt.Errorf("%w: %d", vad.ErrUnsupportedSampleRate, sampleRate)
}

// run is the state of one stream over the segmenter's prober.
type run struct {
	seg     *Segmenter
	ctx     context.Context
	span    oteltrace.Span
	tracker *Tracker

	sourceRate int
	modelRate  int
	step       int
	window     int
	pad        int
	frames     int

	onStep   func(Step, int)
	finished func(float64)
	released atomic.Bool
}

func (s *Segmenter) begin(ctx context.Context, sampleRate int, source string) (*run, error) {
	modelRate, step, err := Layout(sampleRate)
	if err != nil {
		return nil, err
	}
	window, err := vad.WindowSize(modelRate)
	if err != nil {
		return nil, err
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	if err := s.prober.Reset(); err != nil {
		s.busy.Store(false)
		return nil, fmt.Errorf("segment: reset prober: %w", err)
	}

	p := s.cfg.params(modelRate)
	ctx, span := trace.StartSpan(ctx, "segment."+source)
	span.SetAttributes(attribute.Int(trace.AttrAudioSampleRate, sampleRate))

	return &run{
		seg:        s,
		ctx:        ctx,
		span:       span,
		tracker:    newTracker(p),
		sourceRate: sampleRate,
		modelRate:  modelRate,
		step:       step,
		window:     window,
		pad:        p.pad,
		finished:   s.metrics.StreamStarted(ctx, source),
	}, nil
}

// process scores one model-rate frame starting at offset.
func (r *run) process(frame []float32, offset int) (float32, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	prob, err := r.seg.prober.Process(frame, r.modelRate)
	if err != nil {
		r.seg.metrics.RecordProberError(r.ctx)
		return 0, fmt.Errorf("segment: probe frame at sample %d: %w", offset, err)
	}
	r.seg.metrics.RecordFrame(r.ctx, time.Since(start))
	r.frames++

	step, err := r.tracker.Observe(prob, offset)
	if err != nil {
		return 0, err
	}
	switch step.Transition {
	case TransitionNone:
		return prob, nil
	case TransitionEnd, TransitionDiscard:
		kept := step.Transition == TransitionEnd
		r.seg.metrics.RecordSegment(r.ctx, kept)
		trace.AddEvent(r.span, "segment", trace.SegmentAttrs(step.Segment.Start*r.step, step.Segment.End*r.step, kept)...)
		r.seg.log.WithFields(logrus.Fields{
			"start": step.Segment.Start * r.step,
			"end":   step.Segment.End * r.step,
			"kept":  kept,
		}).Debug("segment closed")
	}
	if r.onStep != nil {
		r.onStep(step, offset+r.window)
	}
	return prob, nil
}

// finish flushes the tracker and builds the result. total is the
// model-rate sample count and sourceTotal the source-rate count.
func (r *run) finish(total, sourceTotal int) (*Result, error) {
	step := r.tracker.Flush(total)
	if step.Transition != TransitionNone {
		r.seg.metrics.RecordSegment(r.ctx, step.Transition == TransitionEnd)
		if r.onStep != nil {
			r.onStep(step, total)
		}
	}

	padded := Pad(r.tracker.Segments(), r.pad, total)
	for i := range padded {
		padded[i].Start *= r.step
		padded[i].End = min(padded[i].End*r.step, sourceTotal)
	}

	res := &Result{
		Segments:     padded,
		Timestamps:   timestamps(padded, r.sourceRate, r.seg.cfg),
		SampleRate:   r.sourceRate,
		ModelRate:    r.modelRate,
		TotalSamples: sourceTotal,
		Frames:       r.frames,
	}

	r.span.SetAttributes(
		attribute.Int(trace.AttrAudioSamples, sourceTotal),
		attribute.Int(trace.AttrVADFrames, r.frames),
		attribute.Int(trace.AttrSegmentCount, len(padded)),
	)
	r.release(res.Duration())
	return res, nil
}

// abort ends the run without a result and returns err.
func (r *run) abort(err error) error {
	trace.RecordError(r.span, err)
	r.seg.log.WithError(err).Warn("stream aborted")
	r.release(0)
	return err
}

func (r *run) release(audioSeconds float64) {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	r.finished(audioSeconds)
	r.span.End()
	r.seg.busy.Store(false)
}

// feed frames a whole model-rate buffer, zero-padding the last frame.
func (r *run) feed(samples []float32, visit func(offset int, prob float32)) error {
	var last []float32
	for off := 0; off < len(samples); off += r.window {
		frame := samples[off:min(off+r.window, len(samples))]
		if len(frame) < r.window {
			if last == nil {
				last = make([]float32, r.window)
			}
			copy(last, frame)
			frame = last
		}
		prob, err := r.process(frame, off)
		if err != nil {
			return err
		}
		if visit != nil {
			visit(off, prob)
		}
	}
	return nil
}

// decimate keeps every step-th sample.
func decimate(samples []float32, step int) []float32 {
	if step == 1 {
		return samples
	}
	out := make([]float32, 0, (len(samples)+step-1)/step)
	for i := 0; i < len(samples); i += step {
		out = append(out, samples[i])
	}
	return out
}

// Detect segments a fully buffered signal of normalized samples.
func (s *Segmenter) Detect(ctx context.Context, samples []float32, sampleRate int) (*Result, error) {
	r, err := s.begin(ctx, sampleRate, "buffer")
	if err != nil {
		return nil, err
	}
	x := decimate(samples, r.step)
	if err := r.feed(x, nil); err != nil {
		return nil, r.abort(err)
	}
	return r.finish(len(x), len(samples))
}

// FrameProbability is the prober output for one frame.
type FrameProbability struct {
	// Offset is the source sample index of the frame start.
	Offset      int     `json:"offset"`
	Seconds     float64 `json:"seconds"`
	Probability float32 `json:"probability"`
}

// Probabilities scores every frame of a buffered signal without segmenting.
func (s *Segmenter) Probabilities(ctx context.Context, samples []float32, sampleRate int) ([]FrameProbability, error) {
	r, err := s.begin(ctx, sampleRate, "probabilities")
	if err != nil {
		return nil, err
	}
	x := decimate(samples, r.step)
	out := make([]FrameProbability, 0, (len(x)+r.window-1)/r.window)
	err = r.feed(x, func(off int, prob float32) {
		out = append(out, FrameProbability{
			Offset:      off * r.step,
			Seconds:     roundTo(float64(off)/float64(r.modelRate), 3),
			Probability: prob,
		})
	})
	if err != nil {
		return nil, r.abort(err)
	}
	r.release(float64(len(samples)) / float64(sampleRate))
	return out, nil
}
