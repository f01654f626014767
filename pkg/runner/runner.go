// Package runner segments files concurrently, one prober per worker.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/realtime-ai/vadseg/pkg/audio"
	"github.com/realtime-ai/vadseg/pkg/logger"
	"github.com/realtime-ai/vadseg/pkg/metrics"
	"github.com/realtime-ai/vadseg/pkg/report"
	"github.com/realtime-ai/vadseg/pkg/segment"
	"github.com/realtime-ai/vadseg/pkg/trace"
	"github.com/realtime-ai/vadseg/pkg/vad"
)

// SidecarSuffix is appended to an input name for its JSON output.
const SidecarSuffix = ".segments.json"

// Options configures a Runner.
type Options struct {
	// Workers is the number of files processed at once. Zero means one per CPU.
	Workers int
	// SampleRate is the decode rate. Zero keeps a WAV file's own rate when
	// it is supported and decodes everything else at 16 kHz.
	SampleRate int
	// OutputDir receives JSON sidecars. Empty writes them next to the input.
	OutputDir string
	// FFmpeg decodes non-WAV input.
	FFmpeg audio.FFmpeg
	// Metrics and Logger are passed to every Segmenter.
	Metrics *metrics.Metrics
	Logger  *logrus.Entry
}

// Runner owns a pool of Segmenters.
type Runner struct {
	opts Options
	pool chan *segment.Segmenter
	all  []*segment.Segmenter
	log  *logrus.Entry
}

// New builds opts.Workers Segmenters from factory.
func New(factory vad.Factory, cfg segment.Config, opts Options) (*Runner, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithComponent("runner")
	}

	r := &Runner{
		opts: opts,
		pool: make(chan *segment.Segmenter, opts.Workers),
		log:  opts.Logger,
	}
	for range opts.Workers {
		p, err := factory()
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("runner: create prober: %w", err)
		}
		s, err := segment.New(p, cfg, segment.WithMetrics(opts.Metrics), segment.WithLogger(opts.Logger))
		if err != nil {
			p.Destroy()
			r.Close()
			return nil, err
		}
		r.all = append(r.all, s)
		r.pool <- s
	}
	return r, nil
}

// Workers returns the pool size.
func (r *Runner) Workers() int {
	return len(r.all)
}

// Close destroys every prober. The Runner must be idle.
func (r *Runner) Close() error {
	var errs []error
	for _, s := range r.all {
		errs = append(errs, s.Close())
	}
	r.all = nil
	return errors.Join(errs...)
}

// With runs fn with a Segmenter from the pool, waiting for one to be free.
func (r *Runner) With(ctx context.Context, fn func(*segment.Segmenter) error) error {
	var s *segment.Segmenter
	select {
	case s = <-r.pool:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { r.pool <- s }()
	return fn(s)
}

// Load decodes path at the configured rate. With no configured rate a WAV
// file at an unsupported rate is decoded again at 16 kHz.
func (r *Runner) Load(ctx context.Context, path string) (*audio.Clip, error) {
	clip, err := audio.Load(ctx, r.opts.FFmpeg, path, r.opts.SampleRate)
	if err != nil {
		return nil, err
	}
	if _, _, err := segment.Layout(clip.SampleRate); err != nil && r.opts.SampleRate == 0 {
		return audio.Load(ctx, r.opts.FFmpeg, path, audio.DefaultSampleRate)
	}
	return clip, nil
}

// ProcessFile segments one file. WAV input is read whole; anything else is
// streamed from ffmpeg without buffering the decoded audio.
func (r *Runner) ProcessFile(ctx context.Context, path string, opts ...segment.StreamOption) (*segment.Result, error) {
	var res *segment.Result
	err := trace.WithSpan(ctx, "runner.file", func(ctx context.Context) error {
		return r.With(ctx, func(s *segment.Segmenter) error {
			var err error
			if audio.IsWAV(path) {
				var clip *audio.Clip
				if clip, err = r.Load(ctx, path); err != nil {
					return err
				}
				res, err = s.Detect(ctx, clip.Samples, clip.SampleRate)
				return err
			}

			rate := r.opts.SampleRate
			if rate == 0 {
				rate = audio.DefaultSampleRate
			}
			rc, err := r.opts.FFmpeg.Open(ctx, path, rate)
			if err != nil {
				return err
			}
			res, err = s.DetectReader(ctx, rc, rate, audio.PCM16LE, opts...)
			if cerr := rc.Close(); err == nil {
				err = cerr
			}
			return err
		})
	}, oteltrace.WithAttributes(trace.FileAttrs(path)...))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// Run processes paths with up to Workers files in flight. A failed file
// does not stop the others; its error is kept in its Entry. done, if not
// nil, is called as each file finishes. Entries are in input order.
func (r *Runner) Run(ctx context.Context, paths []string, done func(report.Entry)) ([]report.Entry, error) {
	entries := make([]report.Entry, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Workers())

	for i, path := range paths {
		g.Go(func() error {
			res, err := r.ProcessFile(ctx, path)
			if err == nil && r.opts.OutputDir != "" {
				err = WriteSidecar(SidecarPath(path, r.opts.OutputDir), res)
			}
			entries[i] = report.Entry{File: path, Result: res, Err: err}

			log := r.log.WithField("file", path)
			if err != nil {
				log.WithError(err).Warn("file failed")
			} else {
				log.WithField("segments", len(res.Segments)).Info("file done")
			}
			if done != nil {
				done(entries[i])
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	return entries, g.Wait()
}

// Strip writes the speech of in, with silence removed, to out.
func (r *Runner) Strip(ctx context.Context, in, out string) (*segment.Result, error) {
	clip, err := r.Load(ctx, in)
	if err != nil {
		return nil, err
	}

	var res *segment.Result
	err = r.With(ctx, func(s *segment.Segmenter) error {
		res, err = s.Detect(ctx, clip.Samples, clip.SampleRate)
		return err
	})
	if err != nil {
		return nil, err
	}

	speech := segment.Collect(clip.Samples, res.Segments)
	if err := audio.Save(ctx, r.opts.FFmpeg, out, speech, clip.SampleRate); err != nil {
		return nil, fmt.Errorf("runner: save %s: %w", out, err)
	}
	return res, nil
}

// Probabilities returns per-frame speech probabilities for path.
func (r *Runner) Probabilities(ctx context.Context, path string) ([]segment.FrameProbability, error) {
	clip, err := r.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	var probs []segment.FrameProbability
	err = r.With(ctx, func(s *segment.Segmenter) error {
		probs, err = s.Probabilities(ctx, clip.Samples, clip.SampleRate)
		return err
	})
	return probs, err
}

// SidecarPath is where the JSON result for input is written.
func SidecarPath(input, outputDir string) string {
	if outputDir == "" {
		return input + SidecarSuffix
	}
	return filepath.Join(outputDir, filepath.Base(input)+SidecarSuffix)
}

// WriteSidecar writes res as JSON to path, creating its directory.
func WriteSidecar(path string, res *segment.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteJSON(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
